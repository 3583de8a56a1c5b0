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

	"github.com/spf13/cobra"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export <slug>",
	Short: "Pack a stored bundle into a zip archive",
	Long: `Write a stored bundle to a zip archive suitable for transfer to
another device. The database stays encrypted inside the archive.

Examples:
  medbundle export jane-d
  medbundle export jane-d --out ~/Desktop`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "directory to write the archive into")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	slug := args[0]

	m, closer, err := openManager()
	if err != nil {
		return err
	}
	defer closer()

	ctx := cmd.Context()
	rec, err := m.Index().FindBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no bundle named %s", slug)
	}

	destDir, err := filepath.Abs(exportDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	path, err := m.Export(ctx, slug, destDir)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", slug, path)
	return nil
}
