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

package gclplugin

import timershift "fillmore-labs.com/timershift/analyzer"

// Settings represents the configuration options for an instance of the [Plugin].
type Settings struct {
	// LegacyImportPath overrides the import path of the legacy timer package.
	LegacyImportPath *string `json:"legacy-import-path,omitzero"`
	// ReportAuto also reports units that can be migrated automatically.
	ReportAuto *bool `json:"report-auto,omitzero"`
}

// Options converts [Settings] into a list of [timershift.Option] for the timershift analyzer.
// It processes settings and applies them only when explicitly set (non-nil).
func (s Settings) Options() []timershift.Option {
	var opts []timershift.Option

	opts = appendOption(opts, s.LegacyImportPath, timershift.WithLegacyImportPath)
	opts = appendOption(opts, s.ReportAuto, timershift.WithReportAuto)

	return opts
}

// appendOption appends a non-nil setting to a [timershift.Option] list.
func appendOption[T any](opts []timershift.Option, value *T, constructor func(T) timershift.Option) []timershift.Option {
	if value == nil {
		return opts
	}

	return append(opts, constructor(*value))
}
