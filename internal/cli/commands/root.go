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
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"medbundle/internal/crypt"
	"medbundle/internal/library"
	"medbundle/internal/patientdb"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		// Dev build: include epoch and commit for troubleshooting
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "medbundle",
	Short: "Manage patient bundle archives on this device",
	Long: `Import, store, activate and export patient bundles.

A bundle is a zip archive holding a patient database and its documents.
Imported bundles are kept encrypted in a local library with one active
bundle at a time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := library.InitConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		settings, err := library.LoadGlobalSettings()
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		patientdb.SetConfigBusyTimeout(settings.BusyTimeout)
		applyLogLevel(settings.LogLevel)
		return nil
	},
}

func applyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "":
		log.SetLevel(log.WarnLevel)
	case "off":
		log.SetLevel(log.PanicLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
}

// openManager builds the lifecycle manager over the configured library
// directory. The returned closer releases the pointer store.
func openManager() (*library.Manager, func(), error) {
	settings, err := library.LoadGlobalSettings()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}
	layout := library.NewLayout(settings.ResolvedLibraryDir())
	if err := layout.Ensure(); err != nil {
		return nil, nil, err
	}
	pointer, err := library.OpenPointerStore(filepath.Join(library.ConfigDir(), "state.sqlite"))
	if err != nil {
		return nil, nil, err
	}
	m := library.NewManager(layout, crypt.NewGateway(nil), pointer)
	return m, func() { pointer.Close() }, nil
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("medbundle version {{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
