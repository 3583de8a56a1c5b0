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

package bundle

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ResolveRoot locates the true bundle root inside an extraction tree.
//
// The same logical bundle arrives in two layouts: database at the top level
// (legacy plaintext exports) or nested one directory down with a sibling
// docs/manifest tree (current encrypted exports). A naive "first
// subdirectory" pick chooses a docs folder about as often as the real root,
// so documents-like names are excluded from candidacy outright.
//
// archiveBase is the original archive's base filename; it breaks ties when
// several subdirectories qualify. ResolveRoot never fails: when every
// heuristic is exhausted it returns extractionRoot unchanged and lets
// database validation produce the precise error.
func ResolveRoot(extractionRoot, archiveBase string) string {
	// 1. The extraction root itself already is the bundle root.
	if ContainsDatabase(extractionRoot) && !IsDocsName(filepath.Base(extractionRoot)) {
		if HasTopLevelDatabase(extractionRoot) {
			return extractionRoot
		}
		// Database exists but only nested; keep looking at subdirectories
		// first, they may be the better root.
		if root, ok := resolveAmongChildren(extractionRoot, archiveBase); ok {
			return root
		}
		return promoteDatabaseParent(extractionRoot)
	}

	if root, ok := resolveAmongChildren(extractionRoot, archiveBase); ok {
		return root
	}

	// 5. Last resort: any database anywhere in the tree wins.
	if ContainsDatabase(extractionRoot) {
		return promoteDatabaseParent(extractionRoot)
	}

	// 6. Nothing matched; downstream validation reports the precise error.
	log.WithField("root", extractionRoot).Debug("root resolution exhausted, returning extraction root")
	return extractionRoot
}

// resolveAmongChildren applies steps 2-4 of the resolution order to the
// immediate subdirectories of dir.
func resolveAmongChildren(dir, archiveBase string) (string, bool) {
	children := candidateChildren(dir)
	if len(children) == 0 {
		return "", false
	}

	// 2. Prefer a child that both holds a database and shows a manifest or
	// docs signal.
	for _, child := range children {
		if ContainsDatabase(child) && HasManifestSignal(child) {
			return child, true
		}
	}

	// 3. Exactly one child with a database qualifies even without a signal.
	var withDB []string
	for _, child := range children {
		if ContainsDatabase(child) {
			withDB = append(withDB, child)
		}
	}
	if len(withDB) == 1 {
		return withDB[0], true
	}

	// 4. Fall back to a name match against the archive filename.
	if base := strings.ToLower(strings.TrimSuffix(archiveBase, filepath.Ext(archiveBase))); base != "" {
		for _, child := range withDB {
			if strings.Contains(strings.ToLower(filepath.Base(child)), base) {
				return child, true
			}
		}
	}
	return "", false
}

// candidateChildren lists immediate subdirectories of dir that can be a
// bundle root: visible and not named like a documents folder.
func candidateChildren(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var children []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || IsDocsName(name) {
			continue
		}
		children = append(children, filepath.Join(dir, name))
	}
	return children
}

// promoteDatabaseParent returns the directory holding the first database
// found under dir, stepping one level up when that directory is itself a
// reserved documents folder.
func promoteDatabaseParent(dir string) string {
	dbPath := FindDatabase(dir)
	if dbPath == "" {
		return dir
	}
	parent := filepath.Dir(dbPath)
	if IsDocsName(filepath.Base(parent)) && parent != dir {
		return filepath.Dir(parent)
	}
	return parent
}
