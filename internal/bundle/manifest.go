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
	"os"
	"path/filepath"
	"time"
)

// Manifest is the free-form metadata file some archives carry at the bundle
// root or under docs/. Only timestamp-ish keys are consulted; everything
// else is preserved but ignored.
type Manifest struct {
	raw map[string]any
}

// Historical exports named the creation timestamp differently across
// versions. First match wins, so order encodes priority.
var createdAtKeys = []string{"createdAt", "creationDate", "exportedAt", "created", "timestamp"}

// LoadManifest reads manifest.json from the bundle root, falling back to
// docs/manifest.json. Returns (nil, nil) when no manifest exists; an
// unreadable or malformed manifest is also treated as absent since the file
// is advisory.
func LoadManifest(root string) (*Manifest, error) {
	for _, p := range []string{
		filepath.Join(root, ManifestName),
		filepath.Join(root, DocsDirName, ManifestName),
	} {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, nil
		}
		return &Manifest{raw: raw}, nil
	}
	return nil, nil
}

// CreatedAt probes the manifest for a creation timestamp. Top-level keys are
// tried first, then the same keys under a nested "metadata" object. Values
// may be ISO-8601 strings or unix epoch numbers (seconds or milliseconds).
func (m *Manifest) CreatedAt() (time.Time, bool) {
	if m == nil || m.raw == nil {
		return time.Time{}, false
	}
	if t, ok := probeTimestamp(m.raw); ok {
		return t, true
	}
	if nested, ok := m.raw["metadata"].(map[string]any); ok {
		return probeTimestamp(nested)
	}
	return time.Time{}, false
}

func probeTimestamp(obj map[string]any) (time.Time, bool) {
	for _, key := range createdAtKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if t, ok := coerceTimestamp(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// timestampLayouts are tried in order against string values.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	case float64:
		// JSON numbers arrive as float64. Values past the year 2286 in
		// seconds are interpreted as milliseconds.
		secs := int64(val)
		if secs > 9_999_999_999 {
			return time.UnixMilli(secs), true
		}
		if secs > 0 {
			return time.Unix(secs, 0), true
		}
	}
	return time.Time{}, false
}
