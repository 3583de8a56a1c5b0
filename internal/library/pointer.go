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

package library

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	pointerKeySlug = "active_slug"
	pointerKeyPKey = "active_patient_key"
)

// ActivePointer identifies the bundle currently loaded into the active area.
type ActivePointer struct {
	Slug       string
	PatientKey string
}

// PointerStore persists the active-bundle pointer across process restarts.
type PointerStore interface {
	Set(ctx context.Context, ptr ActivePointer) error
	// Get returns nil when no bundle is active.
	Get(ctx context.Context) (*ActivePointer, error)
	Clear(ctx context.Context) error
	Close() error
}

// stateModel represents the state table
type stateModel struct {
	bun.BaseModel `bun:"table:state"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// SQLitePointerStore keeps the pointer in a small SQLite state file.
type SQLitePointerStore struct {
	path  string
	db    *sql.DB
	bunDB *bun.DB
}

// OpenPointerStore opens or creates the state file at path.
func OpenPointerStore(path string) (*SQLitePointerStore, error) {
	db, err := sql.Open("libsql", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize state schema: %w", err)
	}
	return &SQLitePointerStore{
		path:  path,
		db:    db,
		bunDB: bun.NewDB(db, sqlitedialect.New()),
	}, nil
}

// Set sets the active pointer (upserts both keys).
func (s *SQLitePointerStore) Set(ctx context.Context, ptr ActivePointer) error {
	for key, value := range map[string]string{
		pointerKeySlug: ptr.Slug,
		pointerKeyPKey: ptr.PatientKey,
	} {
		_, err := s.bunDB.NewInsert().
			Model(&stateModel{Key: key, Value: value}).
			On("CONFLICT (key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get returns the active pointer, or nil when none is set.
func (s *SQLitePointerStore) Get(ctx context.Context) (*ActivePointer, error) {
	slug, err := s.getValue(ctx, pointerKeySlug)
	if err != nil {
		return nil, err
	}
	if slug == "" {
		return nil, nil
	}
	key, err := s.getValue(ctx, pointerKeyPKey)
	if err != nil {
		return nil, err
	}
	return &ActivePointer{Slug: slug, PatientKey: key}, nil
}

// Clear removes the active pointer.
func (s *SQLitePointerStore) Clear(ctx context.Context) error {
	_, err := s.bunDB.NewDelete().
		Model((*stateModel)(nil)).
		Where("key IN (?, ?)", pointerKeySlug, pointerKeyPKey).
		Exec(ctx)
	return err
}

// Close closes the database connection
func (s *SQLitePointerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLitePointerStore) getValue(ctx context.Context, key string) (string, error) {
	var row stateModel
	err := s.bunDB.NewSelect().
		Model(&row).
		Where("key = ?", key).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// MemoryPointerStore is an in-process PointerStore for tests.
type MemoryPointerStore struct {
	mu  sync.Mutex
	ptr *ActivePointer
}

func NewMemoryPointerStore() *MemoryPointerStore {
	return &MemoryPointerStore{}
}

func (m *MemoryPointerStore) Set(_ context.Context, ptr ActivePointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ptr = &ptr
	return nil
}

func (m *MemoryPointerStore) Get(_ context.Context) (*ActivePointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ptr == nil {
		return nil, nil
	}
	cp := *m.ptr
	return &cp, nil
}

func (m *MemoryPointerStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ptr = nil
	return nil
}

func (m *MemoryPointerStore) Close() error { return nil }
