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

// Package testutil builds fixture bundle databases for tests. Production
// code never creates patient databases; they always arrive inside archives.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
)

// PatientRow is the single row written into a fixture database.
type PatientRow struct {
	ID        int64
	Alias     string
	DOB       string
	FirstName string
	LastName  string
}

// WritePatientDB creates db.sqlite in dir containing the patients table
// with the given rows. Zero rows leaves the table empty.
func WritePatientDB(tb testing.TB, dir string, rows ...PatientRow) string {
	tb.Helper()
	path := filepath.Join(dir, "db.sqlite")

	db, err := sql.Open("libsql", fmt.Sprintf("file:%s", path))
	if err != nil {
		tb.Fatalf("open fixture database: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE patients (
		id INTEGER,
		alias_label TEXT,
		dob TEXT,
		first_name TEXT,
		last_name TEXT
	)`)
	if err != nil {
		tb.Fatalf("create patients table: %v", err)
	}

	for _, row := range rows {
		_, err = db.Exec(
			`INSERT INTO patients (id, alias_label, dob, first_name, last_name) VALUES (?, ?, ?, ?, ?)`,
			nullableID(row.ID), row.Alias, row.DOB, row.FirstName, row.LastName,
		)
		if err != nil {
			tb.Fatalf("insert patient row: %v", err)
		}
	}
	return path
}

// WriteLegacyPatientDB creates db.sqlite with only the three original
// columns, for exercising the reduced-schema fallback.
func WriteLegacyPatientDB(tb testing.TB, dir string, id int64, alias, dob string) string {
	tb.Helper()
	path := filepath.Join(dir, "db.sqlite")

	db, err := sql.Open("libsql", fmt.Sprintf("file:%s", path))
	if err != nil {
		tb.Fatalf("open fixture database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE patients (id INTEGER, alias_label TEXT, dob TEXT)`); err != nil {
		tb.Fatalf("create patients table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO patients (id, alias_label, dob) VALUES (?, ?, ?)`,
		nullableID(id), alias, dob); err != nil {
		tb.Fatalf("insert patient row: %v", err)
	}
	return path
}

// WriteEmptyDB creates db.sqlite in dir without the patients table.
func WriteEmptyDB(tb testing.TB, dir string) string {
	tb.Helper()
	path := filepath.Join(dir, "db.sqlite")

	db, err := sql.Open("libsql", fmt.Sprintf("file:%s", path))
	if err != nil {
		tb.Fatalf("open fixture database: %v", err)
	}
	defer db.Close()

	// Touch the file so it exists on disk as a valid empty database.
	if _, err := db.Exec(`CREATE TABLE placeholder (x INTEGER)`); err != nil {
		tb.Fatalf("create placeholder table: %v", err)
	}
	return path
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
