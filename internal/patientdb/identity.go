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
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Identity is the resolved identity of the patient a bundle represents.
// PatientKey, not Slug, is authoritative for deduplication: two bundles with
// the same key are the same patient regardless of folder name.
type Identity struct {
	Alias       string
	DisplayName string
	DateOfBirth string
	NumericID   *int64
	PatientKey  string
	Slug        string
}

// ReadIdentity opens the database inside a resolved root and derives the
// patient's identity. Fails with the validation error kinds when the
// database is unusable; a missing name column is not a failure.
func ReadIdentity(ctx context.Context, root string) (*Identity, error) {
	db, err := Open(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.Validate(ctx); err != nil {
		return nil, err
	}
	row, err := db.ReadPatientRow(ctx)
	if err != nil {
		return nil, err
	}
	id := DeriveIdentity(row)
	return &id, nil
}

// DeriveIdentity computes the identity fields from a patient row.
func DeriveIdentity(row *PatientModel) Identity {
	id := Identity{
		Alias:       strings.TrimSpace(row.Alias.String),
		DateOfBirth: strings.TrimSpace(row.DOB.String),
		DisplayName: joinName(row.FirstName.String, row.LastName.String),
	}
	if id.DisplayName == "" {
		id.DisplayName = id.Alias
	}
	if row.ID.Valid && row.ID.Int64 > 0 {
		n := row.ID.Int64
		id.NumericID = &n
	}
	id.PatientKey = PatientKey(id.NumericID, id.Alias, id.DateOfBirth)
	id.Slug = Slugify(id.Alias)
	return id
}

// PatientKey derives the deduplication key: "pid:<numericId>" when a
// numeric id is present, else the lowercase hex SHA-1 of
// "<trimmed-lowercased-alias>|<trimmed-dob>". The wire format is fixed;
// existing libraries depend on it.
func PatientKey(numericID *int64, alias, dob string) string {
	if numericID != nil {
		return fmt.Sprintf("pid:%d", *numericID)
	}
	seed := strings.ToLower(strings.TrimSpace(alias)) + "|" + strings.TrimSpace(dob)
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Slugify derives a filesystem-safe, human-meaningful folder name from an
// alias. Slug collisions are tolerated: the patient key, not the slug,
// decides identity.
func Slugify(alias string) string {
	var b strings.Builder
	prevDash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(alias)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		case r == '-' || r == '_':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "patient"
	}
	return slug
}

// joinName combines first/last name, preferring whichever half is present
// when only one is non-empty.
func joinName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}
