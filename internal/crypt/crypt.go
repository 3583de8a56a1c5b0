// Package crypt is the encryption gateway for bundle databases. It turns a
// resolved bundle root into one holding a plaintext database (inspection
// and activation) or an encrypted one (commit and export), idempotently in
// both directions. Each direction consumes the other form, so a directory
// never holds plaintext and ciphertext at once.
//
// The key is derived by hashing a fixed application-embedded seed. This is
// obfuscation against casual extraction of a patient database from a backup,
// NOT a security boundary: anyone with this binary can derive the same key.
// Key management is deliberately a replaceable policy behind KeyProvider.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"medbundle/internal/bundle"
	"medbundle/internal/common"
)

// KeyProvider supplies the symmetric key used for database encryption.
type KeyProvider interface {
	Key() ([]byte, error)
}

// SeedKeyProvider derives an AES-256 key as SHA-256 of a fixed seed string.
type SeedKeyProvider struct {
	Seed string
}

// Key implements KeyProvider.
func (p SeedKeyProvider) Key() ([]byte, error) {
	sum := sha256.Sum256([]byte(p.Seed))
	return sum[:], nil
}

// embeddedSeed is shared by every installation. See the package comment for
// why this is acceptable here.
const embeddedSeed = "medbundle::bundle-db::v1"

// DefaultKeys is the gateway's production key policy.
var DefaultKeys KeyProvider = SeedKeyProvider{Seed: embeddedSeed}

// Gateway encrypts and decrypts a single database file with AES-256-GCM.
type Gateway struct {
	keys KeyProvider
}

// NewGateway creates a Gateway with the given key policy; nil selects
// DefaultKeys.
func NewGateway(keys KeyProvider) *Gateway {
	if keys == nil {
		keys = DefaultKeys
	}
	return &Gateway{keys: keys}
}

// EnsurePlaintext returns the directory under root containing db.sqlite,
// decrypting db.sqlite.enc in place when necessary. The ciphertext is
// consumed by decryption so the tree never holds both forms at once.
//
// Plaintext is authoritative once present: if db.sqlite already exists
// anywhere under root (top level preferred), this is a true no-op. When
// neither form exists, root is returned unchanged so database validation
// can fail with a precise error.
func (g *Gateway) EnsurePlaintext(root string) (string, error) {
	if dir, ok := findFile(root, bundle.DatabaseName); ok {
		return dir, nil
	}
	encDir, ok := findFile(root, bundle.EncryptedDatabaseName)
	if !ok {
		return root, nil
	}
	cipherPath := filepath.Join(encDir, bundle.EncryptedDatabaseName)
	plainPath := filepath.Join(encDir, bundle.DatabaseName)
	if err := g.DecryptFile(cipherPath, plainPath); err != nil {
		return "", err
	}
	if err := os.Remove(cipherPath); err != nil {
		return "", fmt.Errorf("%w: ciphertext survives decryption at %s: %v",
			common.ErrEncryptionInvariant, cipherPath, err)
	}
	log.WithField("dir", encDir).Debug("decrypted bundle database")
	return encDir, nil
}

// EnsureEncrypted returns the directory under root containing
// db.sqlite.enc, encrypting db.sqlite when necessary and deleting the
// plaintext afterwards.
//
// Plaintext is authoritative here too: a stale ciphertext sitting next to
// a plaintext (an archive that shipped both forms) is overwritten by
// re-encrypting the plaintext. Shipping both forms simultaneously is a
// correctness violation, so a plaintext that survives a failed delete
// fails hard with ErrEncryptionInvariant rather than silently.
func (g *Gateway) EnsureEncrypted(root string) (string, error) {
	plainDir, havePlain := findFile(root, bundle.DatabaseName)
	encDir, haveEnc := findFile(root, bundle.EncryptedDatabaseName)

	if haveEnc && !havePlain {
		return encDir, nil
	}
	if !havePlain {
		return root, nil
	}

	plainPath := filepath.Join(plainDir, bundle.DatabaseName)
	cipherPath := filepath.Join(plainDir, bundle.EncryptedDatabaseName)
	if haveEnc && encDir != plainDir {
		// Stale ciphertext in a different directory would shadow the fresh
		// one on the next decrypt.
		if err := os.Remove(filepath.Join(encDir, bundle.EncryptedDatabaseName)); err != nil {
			return "", fmt.Errorf("%w: stale ciphertext survives at %s: %v",
				common.ErrEncryptionInvariant, encDir, err)
		}
	}
	if err := g.EncryptFile(plainPath, cipherPath); err != nil {
		return "", err
	}
	if err := os.Remove(plainPath); err != nil {
		return "", fmt.Errorf("%w: plaintext survives encryption at %s: %v",
			common.ErrEncryptionInvariant, plainPath, err)
	}
	return plainDir, nil
}

// EncryptFile seals src into dst as nonce||AES-256-GCM ciphertext.
func (g *Gateway) EncryptFile(src, dst string) error {
	aead, err := g.aead()
	if err != nil {
		return err
	}
	plain, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read plaintext: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	if err := os.WriteFile(dst, sealed, 0600); err != nil {
		return fmt.Errorf("write ciphertext: %w", err)
	}
	return nil
}

// DecryptFile opens src (nonce||ciphertext) into dst. Authentication
// failures and truncated input surface as ErrDecryptionFailed.
func (g *Gateway) DecryptFile(src, dst string) error {
	aead, err := g.aead()
	if err != nil {
		return err
	}
	sealed, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read ciphertext: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return fmt.Errorf("%w: ciphertext shorter than nonce", common.ErrDecryptionFailed)
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	if err := os.WriteFile(dst, plain, 0600); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	return nil
}

func (g *Gateway) aead() (cipher.AEAD, error) {
	key, err := g.keys.Key()
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// findFile looks for name directly under root, then nested anywhere below
// it. Returns the containing directory.
func findFile(root, name string) (string, bool) {
	if info, err := os.Stat(filepath.Join(root, name)); err == nil && !info.IsDir() {
		return root, true
	}
	var dir string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && info.Name() == name {
			dir = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})
	return dir, dir != ""
}
