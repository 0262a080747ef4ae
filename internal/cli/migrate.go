// Copyright 2025 Oliver Eikemeier. All Rights Reserved.
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
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"github.com/spf13/cobra"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/pipeline"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [dir]",
	Short: "Rewrite timer usages under a directory",
	Long: `Migrate scans the directory tree for Go files importing the legacy timer
package, rewrites the automatically transformable ones and attaches fallback
markers to the rest. Companion artifacts are generated per module root.
Running migrate again on its own output is a no-op.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

var (
	dryRun           bool
	jobs             int
	legacyImportPath string
	targetImportPath string
)

func init() {
	migrateCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report decisions without writing files")
	migrateCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "concurrent unit limit (0 = GOMAXPROCS)")
	migrateCmd.Flags().StringVar(&legacyImportPath, "legacy-import-path", "", "override the legacy timer import path")
	migrateCmd.Flags().StringVar(&targetImportPath, "target-import-path", "", "override the scheduler import path")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	legacy := api.DefaultLegacy()
	if legacyImportPath != "" {
		legacy.ImportPath = legacyImportPath
	}

	target := api.DefaultTarget()
	if targetImportPath != "" {
		target.ImportPath = targetImportPath
	}

	log := logger()

	summary, err := pipeline.Run(cmd.Context(), pipeline.Options{
		Dir:    dir,
		DryRun: dryRun,
		Jobs:   jobs,
		Legacy: legacy,
		Target: target,
		Log:    log,
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("units", summary.Units).
		Int("transformed", summary.AutoTransformed).
		Int("fallback", summary.FallbackMarked).
		Int("already_marked", summary.AlreadyMarked).
		Int("not_applicable", summary.NotApplicable).
		Int("skipped_by_policy", summary.SkippedByPolicy).
		Int("failed", summary.Failed).
		Msg("migration complete")

	return nil
}
