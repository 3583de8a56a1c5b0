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

package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"medbundle/internal/library"
)

var settingsCmd = &cobra.Command{
	Use:   "settings [key] [value]",
	Short: "Show or change global settings",
	Long: `Show or change settings stored in ` + "`settings.yaml`" + ` in the config
directory.

Keys:
  log_level     trace, debug, info, warn, off
  busy_timeout  SQLite busy_timeout in milliseconds (0 = default)
  library_dir   library root directory (empty = default)

Examples:
  medbundle settings
  medbundle settings log_level debug
  medbundle settings busy_timeout 10000`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSettings,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	settings, err := library.LoadGlobalSettings()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Printf("log_level:    %s\n", settings.LogLevel)
		fmt.Printf("busy_timeout: %d\n", settings.BusyTimeout)
		fmt.Printf("library_dir:  %s\n", settings.ResolvedLibraryDir())
		fmt.Printf("\nFile: %s\n", library.GlobalSettingsPath())
		return nil
	}
	if len(args) == 1 {
		return fmt.Errorf("a value is required to change %q", args[0])
	}

	key, value := args[0], args[1]
	switch key {
	case "log_level":
		settings.LogLevel = value
	case "busy_timeout":
		ms, err := strconv.Atoi(value)
		if err != nil || ms < 0 {
			return fmt.Errorf("busy_timeout must be a non-negative integer, got %q", value)
		}
		settings.BusyTimeout = ms
	case "library_dir":
		settings.LibraryDir = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}

	if err := library.SaveGlobalSettings(settings); err != nil {
		return err
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}
