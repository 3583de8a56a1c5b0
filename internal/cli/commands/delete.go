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
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a stored bundle and its archived versions",
	Long: `Remove a bundle from the library, including its archived versions.
When the bundle is active, the active area is cleared too.

This cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "delete without asking")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	if !deleteForce && !confirm(fmt.Sprintf("Delete bundle %s (%s) and its archived versions", slug, rec.DisplayName)) {
		fmt.Println("Aborted.")
		return nil
	}

	warnings, err := m.Delete(ctx, slug)
	printWarnings(warnings)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", slug)
	return nil
}
