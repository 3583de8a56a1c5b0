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

// Package archive unpacks an inbound bundle archive into a scratch area.
// The caller's file is never written to or moved: extraction always works
// from a private copy inside the scratch subtree.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"medbundle/internal/common"
)

// junkPatterns are archive entries that are packaging noise, not bundle
// content. macOS zips in particular carry resource forks.
var junkPatterns = []string{
	"__MACOSX/",
	".DS_Store",
	"._*",
	"Thumbs.db",
}

// Extractor owns one scratch subtree. The subtree is reset unconditionally
// at the start of every extraction, which doubles as crash recovery: debris
// from a killed import is removed before it can confuse root resolution.
type Extractor struct {
	scratchDir string
	filter     *ignore.GitIgnore
	lock       *flock.Flock
}

// NewExtractor creates an Extractor rooted at scratchDir (the ImportTemp
// area). The lock file lives next to the scratch subtree, not inside it,
// so the reset cannot delete it.
func NewExtractor(scratchDir string) *Extractor {
	return &Extractor{
		scratchDir: scratchDir,
		filter:     ignore.CompileIgnoreLines(junkPatterns...),
		lock:       flock.New(scratchDir + ".lock"),
	}
}

// ScratchDir returns the scratch subtree path.
func (e *Extractor) ScratchDir() string { return e.scratchDir }

// Extract unpacks archivePath and returns the extraction root. The caller
// owns the returned directory until Cleanup is called.
func (e *Extractor) Extract(archivePath string) (string, error) {
	locked, err := e.lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("%w: acquire import lock: %v", common.ErrExtractionFailed, err)
	}
	if !locked {
		return "", common.ErrImportInProgress
	}

	root, err := e.extract(archivePath)
	if err != nil {
		// Failed extraction releases the scratch area immediately.
		e.Cleanup()
		return "", err
	}
	return root, nil
}

func (e *Extractor) extract(archivePath string) (string, error) {
	// Self-healing reset: whatever a previous crashed import left behind
	// goes away before anything else happens.
	if err := os.RemoveAll(e.scratchDir); err != nil {
		return "", fmt.Errorf("%w: reset scratch: %v", common.ErrExtractionFailed, err)
	}
	if err := os.MkdirAll(e.scratchDir, 0755); err != nil {
		return "", fmt.Errorf("%w: create scratch: %v", common.ErrExtractionFailed, err)
	}

	workingCopy := filepath.Join(e.scratchDir, "inbound.zip")
	if err := copyFile(archivePath, workingCopy); err != nil {
		return "", fmt.Errorf("%w: copy archive: %v", common.ErrExtractionFailed, err)
	}

	extractedRoot := filepath.Join(e.scratchDir, "extracted")
	if err := os.MkdirAll(extractedRoot, 0755); err != nil {
		return "", fmt.Errorf("%w: create extraction root: %v", common.ErrExtractionFailed, err)
	}
	if err := e.unzip(workingCopy, extractedRoot); err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"archive": filepath.Base(archivePath), "root": extractedRoot}).
		Debug("archive extracted")
	return extractedRoot, nil
}

// Cleanup removes the scratch subtree and releases the import lock.
// Failures are non-fatal and returned as warnings; by the time Cleanup runs
// the operation's outcome is already decided.
func (e *Extractor) Cleanup() []string {
	var warnings []string
	if err := os.RemoveAll(e.scratchDir); err != nil {
		msg := fmt.Sprintf("remove scratch %s: %v", e.scratchDir, err)
		log.Warn(msg)
		warnings = append(warnings, msg)
	}
	if err := e.lock.Unlock(); err != nil {
		msg := fmt.Sprintf("release import lock: %v", err)
		log.Warn(msg)
		warnings = append(warnings, msg)
	}
	return warnings
}

// unzip extracts src into dst, skipping junk entries and rejecting paths
// that would escape dst.
func (e *Extractor) unzip(src, dst string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: open archive: %v", common.ErrExtractionFailed, err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		name := filepath.ToSlash(entry.Name)
		if e.filter.MatchesPath(name) {
			continue
		}
		target, err := sanitizePath(dst, name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: create directory %s: %v", common.ErrExtractionFailed, name, err)
			}
			continue
		}
		if err := extractEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: create parent for %s: %v", common.ErrExtractionFailed, entry.Name, err)
	}
	in, err := entry.Open()
	if err != nil {
		return fmt.Errorf("%w: read entry %s: %v", common.ErrExtractionFailed, entry.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrExtractionFailed, target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: extract %s: %v", common.ErrExtractionFailed, entry.Name, err)
	}
	return nil
}

// sanitizePath joins an archive entry name onto dst, rejecting absolute
// names and parent traversal.
func sanitizePath(dst, name string) (string, error) {
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: absolute entry path %q", common.ErrExtractionFailed, name)
	}
	target := filepath.Join(dst, filepath.FromSlash(name))
	if target != dst && !strings.HasPrefix(target, dst+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry path escapes archive: %q", common.ErrExtractionFailed, name)
	}
	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
