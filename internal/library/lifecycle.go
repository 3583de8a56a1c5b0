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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"medbundle/internal/archive"
	"medbundle/internal/bundle"
	"medbundle/internal/common"
	"medbundle/internal/crypt"
	"medbundle/internal/patientdb"
)

// ImportStatus describes how an import attempt ended.
type ImportStatus string

const (
	// StatusActivated means the bundle was committed and made active.
	StatusActivated ImportStatus = "activated"
	// StatusNeedsOverwrite means a bundle for the same patient already
	// exists and the caller must confirm or cancel before anything in the
	// library changes.
	StatusNeedsOverwrite ImportStatus = "needs-overwrite"
)

// ImportResult is the outcome of HandleImport or ConfirmOverwrite.
type ImportResult struct {
	Status   ImportStatus
	Token    string  // set when Status is StatusNeedsOverwrite
	Record   *Record // the committed bundle, set when Status is StatusActivated
	Existing *Record // the conflicting bundle, set when Status is StatusNeedsOverwrite
	Warnings []string
}

// pendingImport is an extraction held open while the caller decides whether
// to overwrite an existing bundle for the same patient.
type pendingImport struct {
	token       string
	identity    *patientdb.Identity
	bundleRoot  string
	archiveName string
	existing    *Record
	extractor   *archive.Extractor
}

// Manager drives the bundle lifecycle: import, commit, activation, deletion.
// One Manager per library directory.
type Manager struct {
	layout  *Layout
	index   *Index
	gateway *crypt.Gateway
	pointer PointerStore

	mu      sync.Mutex
	pending map[string]*pendingImport
}

// NewManager creates a Manager over the given library areas.
func NewManager(layout *Layout, gateway *crypt.Gateway, pointer PointerStore) *Manager {
	return &Manager{
		layout:  layout,
		index:   NewIndex(layout, gateway),
		gateway: gateway,
		pointer: pointer,
		pending: make(map[string]*pendingImport),
	}
}

// Index returns the library index.
func (m *Manager) Index() *Index { return m.index }

// HandleImport runs an import up to the point of no return. When no bundle
// for the same patient exists the import commits and activates immediately.
// When one does exist, nothing in the library is touched and the caller gets
// a token to pass to ConfirmOverwrite or CancelOverwrite.
func (m *Manager) HandleImport(ctx context.Context, archivePath string) (*ImportResult, error) {
	if err := m.layout.Ensure(); err != nil {
		return nil, err
	}
	warnings := m.sweepStaging()

	extractor := archive.NewExtractor(m.layout.ScratchDir())
	extractedRoot, err := extractor.Extract(archivePath)
	if err != nil {
		return nil, err
	}

	archiveName := filepath.Base(archivePath)
	root := bundle.ResolveRoot(extractedRoot, trimArchiveExt(archiveName))
	if !bundle.ContainsDatabase(root) {
		extractor.Cleanup()
		return nil, fmt.Errorf("%w: no database in %s", common.ErrRootNotFound, archiveName)
	}

	identity, err := m.inspect(ctx, root)
	if err != nil {
		extractor.Cleanup()
		return nil, err
	}

	existing, err := m.index.FindByKey(ctx, identity.PatientKey)
	if err != nil {
		extractor.Cleanup()
		return nil, err
	}

	pend := &pendingImport{
		token:       uuid.New().String(),
		identity:    identity,
		bundleRoot:  root,
		archiveName: archiveName,
		existing:    existing,
		extractor:   extractor,
	}

	if existing != nil {
		m.mu.Lock()
		m.pending[pend.token] = pend
		m.mu.Unlock()
		log.WithFields(log.Fields{"patientKey": identity.PatientKey, "slug": existing.Slug}).
			Info("bundle exists for patient, awaiting overwrite decision")
		return &ImportResult{
			Status:   StatusNeedsOverwrite,
			Token:    pend.token,
			Existing: existing,
			Warnings: warnings,
		}, nil
	}

	rec, commitWarnings, err := m.commit(ctx, pend)
	warnings = append(warnings, commitWarnings...)
	if err != nil {
		return nil, err
	}
	return &ImportResult{Status: StatusActivated, Record: rec, Warnings: warnings}, nil
}

// ConfirmOverwrite commits a pending import over the existing bundle. The
// previous version is archived before the swap.
func (m *Manager) ConfirmOverwrite(ctx context.Context, token string) (*ImportResult, error) {
	pend, err := m.takePending(token)
	if err != nil {
		return nil, err
	}
	rec, warnings, err := m.commit(ctx, pend)
	if err != nil {
		return nil, err
	}
	return &ImportResult{Status: StatusActivated, Record: rec, Warnings: warnings}, nil
}

// CancelOverwrite abandons a pending import. The existing bundle is left
// exactly as it was.
func (m *Manager) CancelOverwrite(token string) ([]string, error) {
	pend, err := m.takePending(token)
	if err != nil {
		return nil, err
	}
	return pend.extractor.Cleanup(), nil
}

// takePending removes and returns the pending import for token.
func (m *Manager) takePending(token string) (*pendingImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pend, ok := m.pending[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownPending, token)
	}
	delete(m.pending, token)
	return pend, nil
}

// inspect decrypts the resolved bundle in place (still inside scratch) and
// reads the patient identity. The database may sit below the bundle root,
// so the read happens in whichever directory actually holds it.
func (m *Manager) inspect(ctx context.Context, root string) (*patientdb.Identity, error) {
	dbDir, err := m.gateway.EnsurePlaintext(root)
	if err != nil {
		return nil, err
	}
	return patientdb.ReadIdentity(ctx, dbDir)
}

// commit is the point of no return: stage, archive the previous version,
// swap, prune, activate. The staged copy is fully prepared before the
// existing bundle is touched, and both the archive step and the swap are
// single renames.
func (m *Manager) commit(ctx context.Context, pend *pendingImport) (*Record, []string, error) {
	var warnings []string
	slug := pend.identity.Slug
	now := time.Now()

	staging := m.layout.StagingDir(uuid.New().String())
	if err := CopyTree(pend.bundleRoot, staging, common.RoleStaging); err != nil {
		pend.extractor.Cleanup()
		return nil, warnings, err
	}
	cleanupStaging := func() {
		if err := os.RemoveAll(staging); err != nil {
			warnings = append(warnings, fmt.Sprintf("remove staging %s: %v", staging, err))
		}
	}

	if _, err := m.gateway.EnsureEncrypted(staging); err != nil {
		cleanupStaging()
		pend.extractor.Cleanup()
		return nil, warnings, err
	}

	sc := sidecarFor(pend, now)
	if err := sc.Write(staging); err != nil {
		cleanupStaging()
		pend.extractor.Cleanup()
		return nil, warnings, fmt.Errorf("write sidecar: %w", err)
	}

	if pend.existing != nil {
		stamp := now.Format(archiveTimeFormat)
		archived := m.layout.ArchivedBundleDir(pend.existing.Slug, stamp)
		// Two overwrites inside the same second collide on the timestamp.
		for n := 2; dirExists(archived); n++ {
			archived = m.layout.ArchivedBundleDir(pend.existing.Slug, fmt.Sprintf("%s-%d", stamp, n))
		}
		if err := Move(m.layout.BundleDir(pend.existing.Slug), archived, common.RoleArchive); err != nil {
			cleanupStaging()
			pend.extractor.Cleanup()
			return nil, warnings, err
		}
		// The slug can change across imports when the alias changed, so the
		// old canonical directory is addressed by the existing record's slug
		// while the new one lands under the fresh identity's slug.
	}

	// A distinct patient can share the slug; any stale directory of the
	// same name loses to the incoming bundle.
	if err := RemoveTree(m.layout.BundleDir(slug), common.RoleCanonical); err != nil {
		cleanupStaging()
		pend.extractor.Cleanup()
		return nil, warnings, err
	}
	if err := Move(staging, m.layout.BundleDir(slug), common.RoleCanonical); err != nil {
		// The previous version, if any, stays in the archive rather than
		// being moved back; restoring it would risk destroying the only
		// remaining copy on a second failure.
		cleanupStaging()
		pend.extractor.Cleanup()
		return nil, warnings, err
	}

	if pend.existing != nil {
		warnings = append(warnings, m.pruneArchives(pend.existing.Slug)...)
	}
	warnings = append(warnings, pend.extractor.Cleanup()...)

	rec, err := m.index.load(ctx, slug)
	if err != nil {
		return nil, warnings, err
	}

	activateWarnings, err := m.Activate(ctx, slug)
	warnings = append(warnings, activateWarnings...)
	if err != nil {
		return nil, warnings, err
	}

	log.WithFields(log.Fields{"slug": slug, "patientKey": pend.identity.PatientKey}).
		Info("bundle committed and activated")
	return rec, warnings, nil
}

// Activate loads the stored bundle for slug into the active area, decrypted
// and ready to open. Previous active content is discarded first.
func (m *Manager) Activate(ctx context.Context, slug string) ([]string, error) {
	var warnings []string

	rec, err := m.index.load(ctx, slug)
	if err != nil {
		return nil, err
	}

	if err := RemoveTree(m.layout.ActiveDir(), common.RoleActive); err != nil {
		return nil, err
	}
	active := filepath.Join(m.layout.ActiveDir(), slug)
	if err := CopyTree(m.layout.BundleDir(slug), active, common.RoleActive); err != nil {
		return nil, err
	}
	if _, err := m.gateway.EnsurePlaintext(active); err != nil {
		return nil, err
	}
	if bundle.FindDatabase(active) == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrActiveMissingDB, active)
	}

	if err := m.pointer.Set(ctx, ActivePointer{Slug: slug, PatientKey: rec.PatientKey}); err != nil {
		return nil, fmt.Errorf("persist active pointer: %w", err)
	}
	return warnings, nil
}

// Deactivate clears the active area and the pointer.
func (m *Manager) Deactivate(ctx context.Context) error {
	if err := RemoveTree(m.layout.ActiveDir(), common.RoleActive); err != nil {
		return err
	}
	if err := os.MkdirAll(m.layout.ActiveDir(), 0755); err != nil {
		return err
	}
	return m.pointer.Clear(ctx)
}

// Delete removes the stored bundle for slug, its archived versions, and the
// active copy when it is the active bundle.
func (m *Manager) Delete(ctx context.Context, slug string) ([]string, error) {
	var warnings []string

	ptr, err := m.pointer.Get(ctx)
	if err != nil {
		return nil, err
	}
	if ptr != nil && ptr.Slug == slug {
		if err := m.Deactivate(ctx); err != nil {
			return nil, err
		}
	}

	if err := RemoveTree(m.layout.BundleDir(slug), common.RoleCanonical); err != nil {
		return nil, err
	}
	for _, dir := range m.archivesFor(slug) {
		if err := RemoveTree(dir, common.RoleArchive); err != nil {
			warnings = append(warnings, fmt.Sprintf("remove archived version %s: %v", dir, err))
		}
	}
	return warnings, nil
}

// Active returns the record of the currently active bundle, or nil.
func (m *Manager) Active(ctx context.Context) (*Record, error) {
	ptr, err := m.pointer.Get(ctx)
	if err != nil {
		return nil, err
	}
	if ptr == nil {
		return nil, nil
	}
	return m.index.load(ctx, ptr.Slug)
}

// pruneArchives keeps only the newest archived version for slug. Pruning is
// best-effort; a failure never rolls back the commit.
func (m *Manager) pruneArchives(slug string) []string {
	var warnings []string
	dirs := m.archivesFor(slug)
	if len(dirs) <= 1 {
		return nil
	}
	// Names embed the timestamp, so lexical order is chronological.
	sort.Strings(dirs)
	for _, dir := range dirs[:len(dirs)-1] {
		if err := os.RemoveAll(dir); err != nil {
			warnings = append(warnings, fmt.Sprintf("prune archived version %s: %v", dir, err))
		}
	}
	return warnings
}

// archivesFor lists archive directories belonging to slug.
func (m *Manager) archivesFor(slug string) []string {
	entries, err := os.ReadDir(m.layout.ArchiveDir())
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		s, _, ok := SplitArchiveName(entry.Name())
		if ok && s == slug {
			dirs = append(dirs, filepath.Join(m.layout.ArchiveDir(), entry.Name()))
		}
	}
	return dirs
}

// sweepStaging removes orphaned staging directories left by a crashed
// commit. They are invisible to the index, so removal is always safe.
func (m *Manager) sweepStaging() []string {
	var warnings []string
	entries, err := os.ReadDir(m.layout.PersistentDir())
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() || !IsStagingName(entry.Name()) {
			continue
		}
		path := filepath.Join(m.layout.PersistentDir(), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			warnings = append(warnings, fmt.Sprintf("remove orphaned staging %s: %v", path, err))
		} else {
			log.WithField("path", path).Debug("removed orphaned staging directory")
		}
	}
	return warnings
}

func sidecarFor(pend *pendingImport, importedAt time.Time) *bundle.Sidecar {
	sc := &bundle.Sidecar{
		PatientKey:          pend.identity.PatientKey,
		Alias:               pend.identity.Alias,
		Name:                pend.identity.DisplayName,
		DOB:                 pend.identity.DateOfBirth,
		PatientID:           pend.identity.NumericID,
		ImportedAt:          importedAt,
		OriginalArchiveName: pend.archiveName,
	}
	if man, err := bundle.LoadManifest(pend.bundleRoot); err == nil && man != nil {
		if t, ok := man.CreatedAt(); ok {
			sc.CreatedAt = &t
		}
	}
	return sc
}

func trimArchiveExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
