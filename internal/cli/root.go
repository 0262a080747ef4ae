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

// Package cli implements the timershift command line interface.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "timershift",
	Short: "Migrate legacy container-managed timers to the job scheduler",
	Long: `Timershift analyzes Go source trees using the legacy container-managed
timer API, rewrites the provably safe usages to the job scheduler and marks
everything else for manual migration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command line interface.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logger().Error().Err(err).Msg("timershift failed")

		return err
	}

	return nil
}

// logger builds the console logger honoring the verbosity flag and the
// TIMERSHIFT_LOG_LEVEL environment override.
func logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	v := viper.New()
	v.SetEnvPrefix("timershift")
	_ = v.BindEnv("log_level")

	if s := v.GetString("log_level"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			level = parsed
		}
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
