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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecar(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		id := int64(42)
		created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
		in := &Sidecar{
			PatientKey:          "pid:42",
			Alias:               "Jane D.",
			Name:                "Jane Doe",
			DOB:                 "1980-04-15",
			PatientID:           &id,
			ImportedAt:          time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC),
			CreatedAt:           &created,
			OriginalArchiveName: "jane-export.zip",
		}
		require.NoError(t, in.Write(dir))

		out, err := LoadSidecar(dir)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, in.PatientKey, out.PatientKey)
		assert.Equal(t, in.Alias, out.Alias)
		assert.Equal(t, in.Name, out.Name)
		assert.Equal(t, in.DOB, out.DOB)
		require.NotNil(t, out.PatientID)
		assert.Equal(t, id, *out.PatientID)
		assert.True(t, in.ImportedAt.Equal(out.ImportedAt))
		require.NotNil(t, out.CreatedAt)
		assert.True(t, created.Equal(*out.CreatedAt))
		assert.Equal(t, in.OriginalArchiveName, out.OriginalArchiveName)
	})

	t.Run("absent file returns nil without error", func(t *testing.T) {
		t.Parallel()
		sc, err := LoadSidecar(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, sc)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, SidecarName), []byte("{"), 0644))

		_, err := LoadSidecar(dir)
		assert.Error(t, err)
	})

	t.Run("optional fields are omitted from the file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		in := &Sidecar{
			PatientKey:          "abcdef",
			Alias:               "anon",
			ImportedAt:          time.Now(),
			OriginalArchiveName: "x.zip",
		}
		require.NoError(t, in.Write(dir))

		data, err := os.ReadFile(filepath.Join(dir, SidecarName))
		require.NoError(t, err)
		content := string(data)
		assert.NotContains(t, content, "patientId")
		assert.NotContains(t, content, "createdAt")
		assert.NotContains(t, content, `"name"`)
		assert.True(t, strings.HasSuffix(content, "\n"))
	})
}
