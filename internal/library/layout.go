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
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	persistentDirName = "PersistentBundles"
	archiveDirName    = "PersistentBundlesArchive"
	activeDirName     = "ActiveBundle"
	scratchDirName    = "ImportTemp"

	// stagingPrefix marks in-flight directories under PersistentBundles.
	// Anything carrying it is invisible to the index and removed on startup.
	stagingPrefix = ".staging-"

	// archiveSeparator joins the slug and timestamp in archive folder names.
	archiveSeparator = "--"

	// archiveTimeFormat is the timestamp layout in archive folder names.
	archiveTimeFormat = "20060102-150405"
)

// Layout holds the resolved paths of the four library areas.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at dir.
func NewLayout(dir string) *Layout {
	return &Layout{Root: dir}
}

// PersistentDir returns the canonical bundle store.
func (l *Layout) PersistentDir() string { return filepath.Join(l.Root, persistentDirName) }

// ArchiveDir returns the overwritten-versions store.
func (l *Layout) ArchiveDir() string { return filepath.Join(l.Root, archiveDirName) }

// ActiveDir returns the active bundle working area.
func (l *Layout) ActiveDir() string { return filepath.Join(l.Root, activeDirName) }

// ScratchDir returns the import scratch area.
func (l *Layout) ScratchDir() string { return filepath.Join(l.Root, scratchDirName) }

// BundleDir returns the canonical directory for slug.
func (l *Layout) BundleDir(slug string) string {
	return filepath.Join(l.PersistentDir(), slug)
}

// ArchivedBundleDir returns the archive directory name for slug at the
// given timestamp string.
func (l *Layout) ArchivedBundleDir(slug, stamp string) string {
	return filepath.Join(l.ArchiveDir(), slug+archiveSeparator+stamp)
}

// StagingDir returns a staging directory path for the given token.
func (l *Layout) StagingDir(token string) string {
	return filepath.Join(l.PersistentDir(), stagingPrefix+token)
}

// Ensure creates all four library areas.
func (l *Layout) Ensure() error {
	for _, dir := range []string{l.PersistentDir(), l.ArchiveDir(), l.ActiveDir(), l.ScratchDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create library area %s: %w", dir, err)
		}
	}
	return nil
}

// IsStagingName reports whether name is an in-flight staging directory.
func IsStagingName(name string) bool {
	return strings.HasPrefix(name, stagingPrefix)
}

// SplitArchiveName splits an archive folder name into slug and timestamp.
// Returns ok=false when the name does not follow the slug--stamp pattern.
// The slug itself may contain the separator, so the split happens at the
// last occurrence.
func SplitArchiveName(name string) (slug, stamp string, ok bool) {
	idx := strings.LastIndex(name, archiveSeparator)
	if idx <= 0 || idx+len(archiveSeparator) >= len(name) {
		return "", "", false
	}
	return name[:idx], name[idx+len(archiveSeparator):], true
}
