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

// Package library manages the on-disk bundle library: the persistent store,
// the archive area, the active bundle, and the lifecycle transitions between
// them.
package library

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"medbundle/internal/artifacts"
)

// getConfigDir returns the config directory path.
// Uses MEDBUNDLE_CONFIG_DIR env var if set, otherwise defaults to ~/.medbundle.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("MEDBUNDLE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".medbundle")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// GlobalSettingsPath returns the global settings file path
func GlobalSettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir initializes the config directory with default files
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create default global settings file if not exists (using template)
	settingsPath := GlobalSettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// GlobalSettings represents global medbundle settings
type GlobalSettings struct {
	LogLevel    string `yaml:"log_level"`    // Log level: trace, debug, info, warn, off (default: warn)
	BusyTimeout int    `yaml:"busy_timeout"` // SQLite busy_timeout for bundle databases (ms), 0 = use default
	LibraryDir  string `yaml:"library_dir"`  // Library root directory, empty = <config dir>/library
}

// loadDefaultGlobalSettings parses default settings from embedded artifact.
func loadDefaultGlobalSettings() GlobalSettings {
	var settings GlobalSettings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded global settings: " + err.Error())
	}
	return settings
}

// LoadGlobalSettings loads the global settings from ~/.medbundle/settings.yaml.
// Always reads from file to get latest config. Falls back to embedded defaults
// if the file doesn't exist.
func LoadGlobalSettings() (*GlobalSettings, error) {
	data, err := os.ReadFile(GlobalSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			settings := loadDefaultGlobalSettings()
			return &settings, nil
		}
		return nil, err
	}

	var settings GlobalSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveGlobalSettings saves the global settings to ~/.medbundle/settings.yaml
func SaveGlobalSettings(settings *GlobalSettings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# MedBundle settings\n# See: medbundle settings --help\n\n")
	return os.WriteFile(GlobalSettingsPath(), append(header, data...), 0600)
}

// ResolvedLibraryDir resolves the library root directory from settings.
func (s *GlobalSettings) ResolvedLibraryDir() string {
	if s.LibraryDir != "" {
		return s.LibraryDir
	}
	return filepath.Join(getConfigDir(), "library")
}
