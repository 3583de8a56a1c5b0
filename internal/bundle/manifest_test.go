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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(content), 0644))
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	t.Run("absent manifest is not an error", func(t *testing.T) {
		t.Parallel()
		m, err := LoadManifest(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("malformed manifest is treated as absent", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeManifest(t, dir, "{not json")

		m, err := LoadManifest(dir)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("manifest under docs is found", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeManifest(t, filepath.Join(dir, DocsDirName), `{"createdAt":"2025-03-04T05:06:07Z"}`)

		m, err := LoadManifest(dir)
		require.NoError(t, err)
		require.NotNil(t, m)
		ts, ok := m.CreatedAt()
		require.True(t, ok)
		assert.Equal(t, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), ts.UTC())
	})
}

func TestManifestCreatedAt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    time.Time
		ok      bool
	}{
		{
			name:    "createdAt RFC3339",
			content: `{"createdAt":"2025-01-02T03:04:05Z"}`,
			want:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			ok:      true,
		},
		{
			name:    "creationDate is an accepted alias",
			content: `{"creationDate":"2024-12-31T23:59:59Z"}`,
			want:    time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			ok:      true,
		},
		{
			name:    "first matching key in priority order wins",
			content: `{"timestamp":"2020-01-01T00:00:00Z","createdAt":"2025-01-02T03:04:05Z"}`,
			want:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			ok:      true,
		},
		{
			name:    "nested under metadata",
			content: `{"metadata":{"exportedAt":"2023-06-07T08:09:10Z"}}`,
			want:    time.Date(2023, 6, 7, 8, 9, 10, 0, time.UTC),
			ok:      true,
		},
		{
			name:    "bare date",
			content: `{"created":"2022-05-06"}`,
			want:    time.Date(2022, 5, 6, 0, 0, 0, 0, time.UTC),
			ok:      true,
		},
		{
			name:    "epoch seconds",
			content: `{"createdAt":1735689600}`,
			want:    time.Unix(1735689600, 0),
			ok:      true,
		},
		{
			name:    "epoch milliseconds",
			content: `{"createdAt":1735689600000}`,
			want:    time.UnixMilli(1735689600000),
			ok:      true,
		},
		{
			name:    "unparseable value is skipped",
			content: `{"createdAt":"not a date"}`,
			ok:      false,
		},
		{
			name:    "no timestamp keys",
			content: `{"version":3}`,
			ok:      false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)

			m, err := LoadManifest(dir)
			require.NoError(t, err)
			require.NotNil(t, m)

			ts, ok := m.CreatedAt()
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, tc.want.Equal(ts), "want %v, got %v", tc.want, ts)
			}
		})
	}
}
