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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"medbundle/internal/library"
)

var importOverwrite bool

var importCmd = &cobra.Command{
	Use:   "import <archive.zip>",
	Short: "Import a patient bundle archive",
	Long: `Import a bundle archive into the library and make it the active bundle.

When a bundle for the same patient already exists, the import stops and asks
for confirmation before replacing it. The replaced version is kept in the
archive area. Pass --overwrite to skip the question.

Examples:
  medbundle import ~/Downloads/jane-export.zip
  medbundle import --overwrite backup.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVarP(&importOverwrite, "overwrite", "y", false,
		"replace an existing bundle for the same patient without asking")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	archivePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("archive not found: %s", archivePath)
	}

	m, closer, err := openManager()
	if err != nil {
		return err
	}
	defer closer()

	ctx := cmd.Context()
	res, err := m.HandleImport(ctx, archivePath)
	if err != nil {
		return err
	}
	printWarnings(res.Warnings)

	if res.Status == library.StatusNeedsOverwrite {
		fmt.Printf("A bundle for this patient already exists: %s (%s)\n",
			res.Existing.Slug, res.Existing.DisplayName)
		if !importOverwrite && !confirm("Replace it? The current version will be archived") {
			warnings, err := m.CancelOverwrite(res.Token)
			printWarnings(warnings)
			if err != nil {
				return err
			}
			fmt.Println("Import cancelled, existing bundle unchanged.")
			return nil
		}
		res, err = m.ConfirmOverwrite(ctx, res.Token)
		if err != nil {
			return err
		}
		printWarnings(res.Warnings)
	}

	fmt.Printf("Imported and activated %s (%s)\n", res.Record.Slug, res.Record.DisplayName)
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
}
