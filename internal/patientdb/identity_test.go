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
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatientKey(t *testing.T) {
	t.Parallel()

	t.Run("numeric id takes precedence", func(t *testing.T) {
		t.Parallel()
		id := int64(7)
		assert.Equal(t, "pid:7", PatientKey(&id, "Jane", "1980-04-15"))
	})

	t.Run("alias and dob hash when no id", func(t *testing.T) {
		t.Parallel()
		sum := sha1.Sum([]byte("jane|1980-04-15"))
		assert.Equal(t, hex.EncodeToString(sum[:]), PatientKey(nil, "Jane", "1980-04-15"))
	})

	t.Run("alias is trimmed and lowercased, dob only trimmed", func(t *testing.T) {
		t.Parallel()
		a := PatientKey(nil, "  Jane  ", " 1980-04-15 ")
		b := PatientKey(nil, "jane", "1980-04-15")
		assert.Equal(t, a, b)
	})

	t.Run("distinct patients get distinct keys", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t,
			PatientKey(nil, "jane", "1980-04-15"),
			PatientKey(nil, "jane", "1981-04-15"))
	})
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane-doe"},
		{"  jane   doe  ", "jane-doe"},
		{"Jäne_Doe-2", "jäne_doe-2"},
		{"...", "patient"},
		{"", "patient"},
		{"J.P. O'Neil", "j-p-o-neil"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Slugify(tc.in))
		})
	}
}

func TestDeriveIdentity(t *testing.T) {
	t.Parallel()

	t.Run("full row", func(t *testing.T) {
		t.Parallel()
		row := &PatientModel{}
		row.ID.Int64, row.ID.Valid = 12, true
		row.Alias.String, row.Alias.Valid = "Jane D.", true
		row.DOB.String, row.DOB.Valid = "1980-04-15", true
		row.FirstName.String, row.FirstName.Valid = "Jane", true
		row.LastName.String, row.LastName.Valid = "Doe", true

		id := DeriveIdentity(row)
		assert.Equal(t, "pid:12", id.PatientKey)
		assert.Equal(t, "Jane D.", id.Alias)
		assert.Equal(t, "Jane Doe", id.DisplayName)
		assert.Equal(t, "jane-d", id.Slug)
		if assert.NotNil(t, id.NumericID) {
			assert.Equal(t, int64(12), *id.NumericID)
		}
	})

	t.Run("zero id means no numeric id", func(t *testing.T) {
		t.Parallel()
		row := &PatientModel{}
		row.ID.Int64, row.ID.Valid = 0, true
		row.Alias.String, row.Alias.Valid = "anon", true
		row.DOB.String, row.DOB.Valid = "1999-01-01", true

		id := DeriveIdentity(row)
		assert.Nil(t, id.NumericID)
		assert.NotEqual(t, "pid:0", id.PatientKey)
	})

	t.Run("display name falls back to alias", func(t *testing.T) {
		t.Parallel()
		row := &PatientModel{}
		row.Alias.String, row.Alias.Valid = "anon42", true

		id := DeriveIdentity(row)
		assert.Equal(t, "anon42", id.DisplayName)
	})
}
