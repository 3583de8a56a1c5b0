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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored bundles",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	m, closer, err := openManager()
	if err != nil {
		return err
	}
	defer closer()

	ctx := cmd.Context()
	records, err := m.Index().List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No bundles in the library.")
		return nil
	}

	active, err := m.Active(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tPATIENT\tDOB\tCREATED\tIMPORTED\t")
	for _, rec := range records {
		marker := ""
		if active != nil && active.Slug == rec.Slug {
			marker = " *"
		}
		created := "-"
		if rec.CreatedAt != nil {
			created = rec.CreatedAt.Format("2006-01-02")
		}
		imported := "-"
		if !rec.ImportedAt.IsZero() {
			imported = rec.ImportedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\t\n",
			rec.Slug, marker, rec.DisplayName, rec.DateOfBirth, created, imported)
	}
	return w.Flush()
}
