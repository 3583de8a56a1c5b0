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

	"github.com/spf13/cobra"

	"medbundle/internal/library"
)

var infoCmd = &cobra.Command{
	Use:   "info [slug]",
	Short: "Show details of a stored bundle",
	Long: `Show the identity and provenance of a stored bundle.
Without an argument, shows the active bundle.

Examples:
  medbundle info
  medbundle info jane-d`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	m, closer, err := openManager()
	if err != nil {
		return err
	}
	defer closer()

	ctx := cmd.Context()
	var rec *library.Record
	if len(args) > 0 {
		rec, err = m.Index().FindBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no bundle named %s", args[0])
		}
	} else {
		rec, err = m.Active(ctx)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("No active bundle.")
			return nil
		}
	}

	active, err := m.Active(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Slug:        %s\n", rec.Slug)
	fmt.Printf("Patient:     %s\n", rec.DisplayName)
	if rec.DateOfBirth != "" {
		fmt.Printf("DOB:         %s\n", rec.DateOfBirth)
	}
	if rec.NumericID != nil {
		fmt.Printf("Patient ID:  %d\n", *rec.NumericID)
	}
	fmt.Printf("Patient key: %s\n", rec.PatientKey)
	fmt.Printf("Path:        %s\n", rec.Path)
	if rec.CreatedAt != nil {
		fmt.Printf("Created:     %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if !rec.ImportedAt.IsZero() {
		fmt.Printf("Imported:    %s\n", rec.ImportedAt.Format("2006-01-02 15:04:05"))
	}
	if rec.OriginalArchiveName != "" {
		fmt.Printf("Source:      %s\n", rec.OriginalArchiveName)
	}
	fmt.Printf("Active:      %v\n", active != nil && active.Slug == rec.Slug)
	return nil
}
