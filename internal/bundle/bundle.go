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

// Package bundle knows the on-disk shape of a patient bundle: where its
// database lives, how its root is found inside an arbitrary extraction
// tree, and how its sidecar and manifest files are read and written.
package bundle

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Well-known file names inside a bundle.
const (
	DatabaseName          = "db.sqlite"
	EncryptedDatabaseName = "db.sqlite.enc"
	DocsDirName           = "docs"
	ManifestName          = "manifest.json"
	SidecarName           = ".bundle-meta.json"
)

// reservedDocsNames are directory names that hold attachments, never the
// bundle root. They are excluded from root candidacy even when a database
// file happens to sit below them.
var reservedDocsNames = map[string]bool{
	"docs":      true,
	"documents": true,
	"__macosx":  true,
}

// IsDocsName reports whether name is a reserved documents-folder name.
func IsDocsName(name string) bool {
	return reservedDocsNames[strings.ToLower(name)]
}

// isDatabaseName reports whether name is a plaintext or encrypted database.
func isDatabaseName(name string) bool {
	return name == DatabaseName || name == EncryptedDatabaseName
}

// HasTopLevelDatabase reports whether dir directly contains db.sqlite or
// db.sqlite.enc.
func HasTopLevelDatabase(dir string) bool {
	for _, name := range []string{DatabaseName, EncryptedDatabaseName} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// FindDatabase searches dir for a database file, preferring the top level
// over nested locations, and plaintext over ciphertext at the same depth.
// Returns the full path of the file found, or "" when none exists.
func FindDatabase(dir string) string {
	for _, name := range []string{DatabaseName, EncryptedDatabaseName} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	var found string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree: keep searching elsewhere
		}
		if found != "" {
			return filepath.SkipAll
		}
		if !d.IsDir() && isDatabaseName(d.Name()) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// ContainsDatabase reports whether dir contains a database anywhere below it.
func ContainsDatabase(dir string) bool {
	return FindDatabase(dir) != ""
}

// HasManifestSignal reports whether dir shows any of the structural signals
// of a bundle root besides the database itself: a top-level manifest, a
// manifest nested under a docs folder, or a docs folder at all.
func HasManifestSignal(dir string) bool {
	if fileExists(filepath.Join(dir, ManifestName)) {
		return true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() || !IsDocsName(e.Name()) {
			continue
		}
		// A docs folder is itself a signal; a manifest inside it doubly so.
		return true
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
