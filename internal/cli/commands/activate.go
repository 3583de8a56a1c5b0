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

var activateCmd = &cobra.Command{
	Use:   "activate <slug>",
	Short: "Load a stored bundle into the active area",
	Long: `Make a stored bundle the active one. The previous active content is
discarded; the stored copy stays untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runActivate,
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Clear the active bundle",
	Args:  cobra.NoArgs,
	RunE:  runDeactivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deactivateCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	m, closer, err := openManager()
	if err != nil {
		return err
	}
	defer closer()

	warnings, err := m.Activate(cmd.Context(), args[0])
	printWarnings(warnings)
	if err != nil {
		return err
	}
	fmt.Printf("Activated %s\n", args[0])
	return nil
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	m, closer, err := openManager()
	if err != nil {
		return err
	}
	defer closer()

	if err := m.Deactivate(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Active bundle cleared.")
	return nil
}
