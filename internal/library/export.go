// Copyright 2025 MedBundle Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package library

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Export packs the stored bundle for slug into a zip under destDir and
// returns the archive path. The database ships encrypted, exactly as it
// rests in the library.
func (m *Manager) Export(ctx context.Context, slug, destDir string) (string, error) {
	rec, err := m.index.load(ctx, slug)
	if err != nil {
		return "", err
	}

	// The canonical copy is encrypted at rest already; this guards against
	// a library that was hand-edited into a decrypted state.
	if _, err := m.gateway.EnsureEncrypted(m.layout.BundleDir(slug)); err != nil {
		return "", err
	}

	stamp := time.Now().Format(archiveTimeFormat)
	name := fmt.Sprintf("%s-%s-medbundle.zip", rec.Slug, stamp)
	dest := filepath.Join(destDir, name)

	if err := zipTree(m.layout.BundleDir(slug), dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("export bundle %s: %w", slug, err)
	}
	return dest, nil
}

// zipTree writes the directory tree at src into a zip file at dest.
func zipTree(src, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			_, err := w.Create(filepath.ToSlash(rel) + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(entry, in)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return out.Sync()
}
