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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Sidecar is the .bundle-meta.json file written next to a persisted bundle
// on every successful commit. It caches identity and provenance so library
// listings never need to open the database. It is a cache, not a source of
// truth: readers must fall back to the database when it is absent or stale.
type Sidecar struct {
	PatientKey          string     `json:"patientKey"`
	Alias               string     `json:"alias"`
	Name                string     `json:"name,omitempty"`
	DOB                 string     `json:"dob,omitempty"`
	PatientID           *int64     `json:"patientId,omitempty"`
	ImportedAt          time.Time  `json:"importedAt"`
	CreatedAt           *time.Time `json:"createdAt,omitempty"`
	OriginalArchiveName string     `json:"originalArchiveName"`
}

// LoadSidecar reads the sidecar from a bundle directory.
// Returns (nil, nil) when the file does not exist; a malformed sidecar is an
// error so callers can decide to fall back to the database.
func LoadSidecar(dir string) (*Sidecar, error) {
	data, err := os.ReadFile(filepath.Join(dir, SidecarName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	return &sc, nil
}

// Write persists the sidecar into dir, pretty-printed, replacing any
// previous version.
func (sc *Sidecar) Write(dir string) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SidecarName), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}
