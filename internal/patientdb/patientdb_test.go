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

package patientdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medbundle/internal/common"
	"medbundle/internal/testutil"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Open(t.TempDir())
		assert.ErrorIs(t, err, common.ErrDatabaseOpen)
	})

	t.Run("not a sqlite file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "db.sqlite"), []byte("plain text"), 0644))

		_, err := Open(dir)
		assert.ErrorIs(t, err, common.ErrDatabaseOpen)
	})

	t.Run("valid database opens", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WritePatientDB(t, dir, testutil.PatientRow{ID: 1, Alias: "a", DOB: "2000-01-01"})

		db, err := Open(dir)
		require.NoError(t, err)
		assert.NoError(t, db.Close())
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing patients table", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WriteEmptyDB(t, dir)

		db, err := Open(dir)
		require.NoError(t, err)
		defer db.Close()

		assert.ErrorIs(t, db.Validate(ctx), common.ErrMissingPatientTable)
	})

	t.Run("empty patients table", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WritePatientDB(t, dir) // table, no rows

		db, err := Open(dir)
		require.NoError(t, err)
		defer db.Close()

		assert.ErrorIs(t, db.Validate(ctx), common.ErrEmptyPatientTable)
	})

	t.Run("populated table validates", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WritePatientDB(t, dir, testutil.PatientRow{ID: 3, Alias: "x", DOB: "1990-02-03"})

		db, err := Open(dir)
		require.NoError(t, err)
		defer db.Close()

		assert.NoError(t, db.Validate(ctx))
	})
}

func TestReadIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("full schema", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WritePatientDB(t, dir, testutil.PatientRow{
			ID: 9, Alias: "Jane D.", DOB: "1980-04-15", FirstName: "Jane", LastName: "Doe",
		})

		id, err := ReadIdentity(ctx, dir)
		require.NoError(t, err)
		assert.Equal(t, "pid:9", id.PatientKey)
		assert.Equal(t, "Jane Doe", id.DisplayName)
		assert.Equal(t, "jane-d", id.Slug)
	})

	t.Run("legacy schema without name columns", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WriteLegacyPatientDB(t, dir, 0, "anon7", "1975-06-07")

		id, err := ReadIdentity(ctx, dir)
		require.NoError(t, err)
		assert.Nil(t, id.NumericID)
		assert.Equal(t, PatientKey(nil, "anon7", "1975-06-07"), id.PatientKey)
		assert.Equal(t, "anon7", id.DisplayName)
	})
}
