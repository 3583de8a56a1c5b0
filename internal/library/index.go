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
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"medbundle/internal/bundle"
	"medbundle/internal/common"
	"medbundle/internal/crypt"
	"medbundle/internal/patientdb"
)

// Record describes one stored bundle.
type Record struct {
	Slug                string
	PatientKey          string
	Alias               string
	DisplayName         string
	DateOfBirth         string
	NumericID           *int64
	Path                string
	ImportedAt          time.Time
	CreatedAt           *time.Time
	OriginalArchiveName string
}

// archiveNameStamp matches an embedded export timestamp in an archive file
// name, e.g. "jane-doe-20250102-030405-medbundle.zip".
var archiveNameStamp = regexp.MustCompile(`(\d{8})-(\d{6})`)

// Index reads bundle records off the persistent store. The sidecar is the
// primary identity source; bundles imported by older versions without a
// sidecar fall back to the database itself.
type Index struct {
	layout  *Layout
	gateway *crypt.Gateway
}

// NewIndex creates an Index over layout.
func NewIndex(layout *Layout, gateway *crypt.Gateway) *Index {
	return &Index{layout: layout, gateway: gateway}
}

// List returns all stored bundles sorted by slug. Staging and hidden
// directories are skipped.
func (ix *Index) List(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(ix.layout.PersistentDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	for _, entry := range entries {
		if !entry.IsDir() || IsStagingName(entry.Name()) || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		rec, err := ix.load(ctx, entry.Name())
		if err != nil {
			log.WithFields(log.Fields{"slug": entry.Name(), "error": err}).
				Warn("skipping unreadable bundle directory")
			continue
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Slug < records[j].Slug })
	return records, nil
}

// FindByKey returns the stored bundle whose patient key matches, or nil.
func (ix *Index) FindByKey(ctx context.Context, patientKey string) (*Record, error) {
	records, err := ix.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].PatientKey == patientKey {
			return &records[i], nil
		}
	}
	return nil, nil
}

// FindBySlug returns the stored bundle with the given slug, or nil when no
// such directory exists.
func (ix *Index) FindBySlug(ctx context.Context, slug string) (*Record, error) {
	if IsStagingName(slug) {
		return nil, nil
	}
	info, err := os.Stat(ix.layout.BundleDir(slug))
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	return ix.load(ctx, slug)
}

// load builds the record for one slug directory.
func (ix *Index) load(ctx context.Context, slug string) (*Record, error) {
	dir := ix.layout.BundleDir(slug)
	rec := &Record{Slug: slug, Path: dir}

	sc, err := bundle.LoadSidecar(dir)
	if err != nil {
		log.WithFields(log.Fields{"slug": slug, "error": err}).
			Warn("malformed bundle sidecar, re-deriving identity from database")
	}
	if sc != nil {
		rec.PatientKey = sc.PatientKey
		rec.Alias = sc.Alias
		rec.DisplayName = sc.Name
		rec.DateOfBirth = sc.DOB
		rec.NumericID = sc.PatientID
		rec.OriginalArchiveName = sc.OriginalArchiveName
		rec.ImportedAt = sc.ImportedAt
		if sc.CreatedAt != nil {
			t := *sc.CreatedAt
			rec.CreatedAt = &t
		}
	} else {
		if err := ix.identityFromDatabase(ctx, dir, rec); err != nil {
			return nil, err
		}
	}

	ix.fillTimes(dir, rec)
	return rec, nil
}

// identityFromDatabase reads the patient row out of the stored database
// without touching the stored copy: the database is decrypted (or copied)
// into a scratch directory and read there.
func (ix *Index) identityFromDatabase(ctx context.Context, dir string, rec *Record) error {
	dbPath := bundle.FindDatabase(dir)
	if dbPath == "" {
		return fmt.Errorf("%w: no database under %s", common.ErrDatabaseOpen, dir)
	}

	scratch, err := os.MkdirTemp("", "medbundle-identity-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	plain := filepath.Join(scratch, bundle.DatabaseName)
	if filepath.Base(dbPath) == bundle.EncryptedDatabaseName {
		if err := ix.gateway.DecryptFile(dbPath, plain); err != nil {
			return err
		}
	} else if err := copyOneFile(dbPath, plain); err != nil {
		return err
	}

	id, err := patientdb.ReadIdentity(ctx, scratch)
	if err != nil {
		return err
	}
	rec.PatientKey = id.PatientKey
	rec.Alias = id.Alias
	rec.DisplayName = id.DisplayName
	rec.DateOfBirth = id.DateOfBirth
	rec.NumericID = id.NumericID
	return nil
}

// fillTimes backfills missing timestamps from progressively weaker sources:
// the bundle manifest, the original archive file name, then directory mtime.
func (ix *Index) fillTimes(dir string, rec *Record) {
	if rec.CreatedAt == nil {
		if m, err := bundle.LoadManifest(dir); err == nil && m != nil {
			if t, ok := m.CreatedAt(); ok {
				rec.CreatedAt = &t
			}
		}
	}
	if rec.CreatedAt == nil && rec.OriginalArchiveName != "" {
		if t, ok := stampFromArchiveName(rec.OriginalArchiveName); ok {
			rec.CreatedAt = &t
		}
	}
	if rec.ImportedAt.IsZero() {
		if info, err := os.Stat(dir); err == nil {
			rec.ImportedAt = info.ModTime()
		}
	}
}

func stampFromArchiveName(name string) (time.Time, bool) {
	m := archiveNameStamp.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(archiveTimeFormat, m[1]+"-"+m[2], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
