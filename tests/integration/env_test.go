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

package integration

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"medbundle/internal/crypt"
	"medbundle/internal/library"
	"medbundle/internal/testutil"
)

// TestEnv is an isolated medbundle installation: its own config dir,
// library layout, pointer store and lifecycle manager.
type TestEnv struct {
	t         *testing.T
	ConfigDir string
	Layout    *library.Layout
	Manager   *library.Manager
	pointer   *library.SQLitePointerStore
}

// NewTestEnv creates an isolated environment. MEDBUNDLE_CONFIG_DIR is set
// for the duration of the test so settings and state stay inside it.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	configDir := t.TempDir()
	t.Setenv("MEDBUNDLE_CONFIG_DIR", configDir)

	if err := library.InitConfigDir(); err != nil {
		t.Fatalf("init config dir: %v", err)
	}
	settings, err := library.LoadGlobalSettings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	layout := library.NewLayout(settings.ResolvedLibraryDir())
	if err := layout.Ensure(); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}
	pointer, err := library.OpenPointerStore(filepath.Join(configDir, "state.sqlite"))
	if err != nil {
		t.Fatalf("open pointer store: %v", err)
	}

	env := &TestEnv{
		t:         t,
		ConfigDir: configDir,
		Layout:    layout,
		Manager:   library.NewManager(layout, crypt.NewGateway(nil), pointer),
		pointer:   pointer,
	}
	t.Cleanup(func() { pointer.Close() })
	return env
}

// MakeArchive builds a bundle zip wrapped in a top-level folder, the shape
// real exports arrive in.
func (env *TestEnv) MakeArchive(name string, row testutil.PatientRow) string {
	env.t.Helper()
	pack := env.t.TempDir()
	root := filepath.Join(pack, "bundle")
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0755); err != nil {
		env.t.Fatal(err)
	}
	testutil.WritePatientDB(env.t, root, row)
	if err := os.WriteFile(filepath.Join(root, "manifest.json"),
		[]byte(`{"createdAt":"2025-01-02T03:04:05Z"}`), 0644); err != nil {
		env.t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "report.pdf"),
		[]byte("pdf-bytes"), 0644); err != nil {
		env.t.Fatal(err)
	}

	archivePath := filepath.Join(env.t.TempDir(), name)
	if err := zipDirectory(pack, archivePath); err != nil {
		env.t.Fatalf("build archive: %v", err)
	}
	return archivePath
}

func zipDirectory(src, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)
	defer w.Close()

	return filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}
		if d.IsDir() {
			_, err := w.Create(filepath.ToSlash(rel) + "/")
			return err
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
}
