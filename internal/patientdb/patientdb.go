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

// Package patientdb opens the relational database inside a bundle and reads
// the two things the pipeline needs from it: that it is a valid patient
// export, and the identity fields of the patient it contains.
package patientdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"medbundle/internal/bundle"
	"medbundle/internal/common"
	"medbundle/internal/util"
)

// PatientTable is the one table a bundle database must contain.
const PatientTable = "patients"

// DefaultBusyTimeout in milliseconds.
const DefaultBusyTimeout = 5000

// EnvBusyTimeout overrides the sqlite busy_timeout for all opens.
const EnvBusyTimeout = "MEDBUNDLE_BUSY_TIMEOUT"

// configBusyTimeout is set from the settings file at startup.
var configBusyTimeout int

// SetConfigBusyTimeout sets the settings-file busy_timeout value.
// A value of 0 is ignored (env var or default applies).
func SetConfigBusyTimeout(ms int) { configBusyTimeout = ms }

// busyTimeout resolves the timeout. Priority: env > config file > default.
func busyTimeout() int {
	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			return ms
		}
	}
	if configBusyTimeout > 0 {
		return configBusyTimeout
	}
	return DefaultBusyTimeout
}

// buildDSN builds the sqlite DSN for a bundle database path.
func buildDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", path, busyTimeout())
}

// PatientModel maps the patients table row the identity resolver reads.
// first_name/last_name are absent in legacy exports; reads of those columns
// go through a fallback query instead of this model.
type PatientModel struct {
	bun.BaseModel `bun:"table:patients"`

	ID        sql.NullInt64  `bun:"id"`
	Alias     sql.NullString `bun:"alias_label"`
	DOB       sql.NullString `bun:"dob"`
	FirstName sql.NullString `bun:"first_name"`
	LastName  sql.NullString `bun:"last_name"`
}

// DB is an open handle to a bundle's patient database.
type DB struct {
	path  string
	sqlDB *sql.DB
	bunDB *bun.DB
}

// Open opens the plaintext database inside a resolved bundle root.
// Failures to open or to issue the first query surface as ErrDatabaseOpen.
func Open(root string) (*DB, error) {
	path := filepath.Join(root, bundle.DatabaseName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDatabaseOpen, path, err)
	}
	sqlDB, err := sql.Open("libsql", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabaseOpen, err)
	}
	// sql.Open is lazy, and a query that never touches a table would not
	// read the file. Fetching the schema version forces the header read,
	// so a corrupt or non-sqlite file fails here.
	var schemaVersion int64
	if err := sqlDB.QueryRow("PRAGMA schema_version").Scan(&schemaVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDatabaseOpen, path, err)
	}
	return &DB{
		path:  path,
		sqlDB: sqlDB,
		bunDB: bun.NewDB(sqlDB, sqlitedialect.New()),
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.sqlDB != nil {
		return db.sqlDB.Close()
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Validate asserts the three things that make this a usable patient export:
// the patients table exists and it holds at least one row (opening already
// succeeded in Open). Each failure is a distinct error kind because the
// user remediation differs: corrupt file vs. wrong file vs. empty export.
func (db *DB) Validate(ctx context.Context) error {
	exists, err := db.tableExists(ctx, PatientTable)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabaseOpen, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", common.ErrMissingPatientTable, db.path)
	}
	count, err := db.rowCount(ctx, PatientTable)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabaseOpen, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", common.ErrEmptyPatientTable, db.path)
	}
	return nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	return util.RetryWithResult(ctx, func() (bool, error) {
		var n int
		err := db.bunDB.NewRaw(
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
		).Scan(ctx, &n)
		return n > 0, err
	}, util.DatabaseRetryOptions(ctx)...)
}

func (db *DB) rowCount(ctx context.Context, name string) (int64, error) {
	return util.RetryWithResult(ctx, func() (int64, error) {
		var n int64
		err := db.bunDB.NewRaw(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, name)).Scan(ctx, &n)
		return n, err
	}, util.DatabaseRetryOptions(ctx)...)
}

// ReadPatientRow reads one identity row, tolerating the narrower legacy
// schema that lacks the name columns by falling back to a reduced query.
// dob is read through CAST: the driver coerces date-like TEXT to a time
// value otherwise, and the patient key must hash the stored string.
func (db *DB) ReadPatientRow(ctx context.Context) (*PatientModel, error) {
	var row PatientModel
	err := db.bunDB.NewRaw(
		`SELECT id, alias_label, CAST(dob AS TEXT), first_name, last_name FROM patients LIMIT 1`,
	).Scan(ctx, &row.ID, &row.Alias, &row.DOB, &row.FirstName, &row.LastName)
	if err == nil {
		return &row, nil
	}
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", common.ErrEmptyPatientTable, db.path)
	}
	// Legacy schema without name columns: graceful degradation, not failure.
	row = PatientModel{}
	err = db.bunDB.NewRaw(
		`SELECT id, alias_label, CAST(dob AS TEXT) FROM patients LIMIT 1`,
	).Scan(ctx, &row.ID, &row.Alias, &row.DOB)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", common.ErrEmptyPatientTable, db.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read patient row: %w", err)
	}
	return &row, nil
}
