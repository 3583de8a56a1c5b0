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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDBUNDLE_CONFIG_DIR", dir)

	assert.Equal(t, dir, ConfigDir())
	assert.Equal(t, filepath.Join(dir, "settings.yaml"), GlobalSettingsPath())
}

func TestInitConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDBUNDLE_CONFIG_DIR", dir)

	require.NoError(t, InitConfigDir())
	assert.FileExists(t, GlobalSettingsPath())

	// A second init keeps an edited settings file intact.
	require.NoError(t, os.WriteFile(GlobalSettingsPath(), []byte("log_level: debug\n"), 0600))
	require.NoError(t, InitConfigDir())

	settings, err := LoadGlobalSettings()
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.LogLevel)
}

func TestGlobalSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDBUNDLE_CONFIG_DIR", dir)

	t.Run("defaults when file absent", func(t *testing.T) {
		settings, err := LoadGlobalSettings()
		require.NoError(t, err)
		assert.Equal(t, "warn", settings.LogLevel)
		assert.Equal(t, 0, settings.BusyTimeout)
		assert.Equal(t, filepath.Join(dir, "library"), settings.ResolvedLibraryDir())
	})

	t.Run("save and reload", func(t *testing.T) {
		settings, err := LoadGlobalSettings()
		require.NoError(t, err)
		settings.BusyTimeout = 12000
		settings.LibraryDir = "/tmp/elsewhere"
		require.NoError(t, SaveGlobalSettings(settings))

		loaded, err := LoadGlobalSettings()
		require.NoError(t, err)
		assert.Equal(t, 12000, loaded.BusyTimeout)
		assert.Equal(t, "/tmp/elsewhere", loaded.ResolvedLibraryDir())
	})
}
