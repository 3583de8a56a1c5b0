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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkTree creates files (empty) and directories under root. Entries ending
// in "/" are directories.
func mkTree(t *testing.T, root string, entries ...string) {
	t.Helper()
	for _, entry := range entries {
		path := filepath.Join(root, filepath.FromSlash(entry))
		if entry[len(entry)-1] == '/' {
			require.NoError(t, os.MkdirAll(path, 0755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
}

func TestResolveRoot(t *testing.T) {
	t.Parallel()

	t.Run("database at extraction root wins", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root, "db.sqlite", "docs/report.pdf")

		assert.Equal(t, root, ResolveRoot(root, "bundle"))
	})

	t.Run("encrypted database at root also wins", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root, "db.sqlite.enc")

		assert.Equal(t, root, ResolveRoot(root, "bundle"))
	})

	t.Run("single wrapper folder is unwrapped", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root, "bundle/db.sqlite", "bundle/docs/report.pdf")

		assert.Equal(t, filepath.Join(root, "bundle"), ResolveRoot(root, "other-name"))
	})

	t.Run("child with database and manifest beats plain database child", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root,
			"extra/db.sqlite",
			"real/db.sqlite", "real/manifest.json",
		)

		assert.Equal(t, filepath.Join(root, "real"), ResolveRoot(root, "nomatch"))
	})

	t.Run("docs folder is never treated as a bundle candidate", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		// A stray database inside docs must not promote docs to bundle root.
		mkTree(t, root,
			"docs/old-backup/db.sqlite",
			"bundle/db.sqlite",
		)

		assert.Equal(t, filepath.Join(root, "bundle"), ResolveRoot(root, "nomatch"))
	})

	t.Run("archive name match breaks ties between database children", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root,
			"jane-doe-export/db.sqlite",
			"notes/db.sqlite",
		)

		assert.Equal(t, filepath.Join(root, "jane-doe-export"), ResolveRoot(root, "jane-doe-export.zip"))
	})

	t.Run("child owning a nested database still qualifies", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root,
			"a/b/payload/db.sqlite",
			"unrelated/readme.txt",
		)

		assert.Equal(t, filepath.Join(root, "a"), ResolveRoot(root, "nomatch"))
	})

	t.Run("database only inside docs falls back to deep search", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root, "docs/inner/db.sqlite")

		assert.Equal(t, filepath.Join(root, "docs", "inner"), ResolveRoot(root, "nomatch"))
	})

	t.Run("database directly under a docs folder promotes one level", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root, "docs/db.sqlite", "readme.txt")

		assert.Equal(t, root, ResolveRoot(root, "nomatch"))
	})

	t.Run("nothing recognizable falls back to extraction root", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root, "one/readme.txt", "two/readme.txt")

		assert.Equal(t, root, ResolveRoot(root, "nomatch"))
	})

	t.Run("hidden directories are not candidates", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mkTree(t, root,
			".hidden/db.sqlite",
			"bundle/db.sqlite",
		)

		assert.Equal(t, filepath.Join(root, "bundle"), ResolveRoot(root, "nomatch"))
	})
}
