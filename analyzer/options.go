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

package analyzer

import (
	"log/slog"
)

// Option configures specific behavior of a [New] timershift analyzer.
type Option interface {
	apply(r *runOptions)
	LogAttr() slog.Attr
}

// Options is a list of [Option] values that itself satisfies the [Option] interface.
type Options []Option

// LogValue implements [slog.LogValuer].
func (o Options) LogValue() slog.Value {
	as := make([]slog.Attr, 0, len(o))
	as = appendOptions(as, o)

	return slog.GroupValue(as...)
}

func appendOptions(as []slog.Attr, o Options) []slog.Attr {
	for _, opt := range o {
		switch opt := opt.(type) {
		case nil:
			as = append(as, slog.String("nil", "<nil>"))

		case Options:
			as = appendOptions(as, opt)

		default:
			as = append(as, opt.LogAttr())
		}
	}

	return as
}

func (o Options) apply(r *runOptions) {
	for _, opt := range o {
		if opt == nil {
			continue
		}

		opt.apply(r)
	}
}

// LogAttr is for logging with [slog.Logger.LogAttrs].
func (o Options) LogAttr() slog.Attr {
	return slog.Any("options", o)
}

// WithLegacyImportPath is an [Option] to configure the import path of the
// legacy timer package to detect.
func WithLegacyImportPath(path string) Option { return legacyPathOption{path: path} }

type legacyPathOption struct{ path string }

func (o legacyPathOption) apply(r *runOptions) {
	r.legacy.ImportPath = o.path
}

func (o legacyPathOption) LogAttr() slog.Attr {
	return slog.String("legacy-import-path", o.path)
}

// WithReportAuto is an [Option] to configure whether automatically
// transformable units are reported too, not just the ones needing manual
// migration.
func WithReportAuto(reportAuto bool) Option { return reportAutoOption{reportAuto: reportAuto} }

type reportAutoOption struct{ reportAuto bool }

func (o reportAutoOption) apply(r *runOptions) {
	r.reportAuto = o.reportAuto
}

func (o reportAutoOption) LogAttr() slog.Attr {
	return slog.Bool("report-auto", o.reportAuto)
}
