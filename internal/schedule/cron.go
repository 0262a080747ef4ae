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

package schedule

import (
	"strings"

	"github.com/robfig/cron/v3"
)

// ExclusivityMarker is the cron placeholder meaning "unspecified, deferring
// to the other of day-of-month/day-of-week". The target format requires it
// on exactly one of the two fields.
const ExclusivityMarker = "?"

// cronParser validates synthesized expressions against the six-field format
// second minute hour day-of-month month day-of-week.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// synthesize builds the cron expression from the parsed calendar fields.
//
// Exactly one of day-of-month/day-of-week carries the exclusivity marker:
// if day-of-month was explicitly constrained the marker goes to day-of-week,
// otherwise to day-of-month when day-of-week was constrained, and to
// day-of-week by convention when neither was. Both fields explicitly set is
// a genuine conflict, even if one of the explicit values is "*".
func (f *ExpressionFacts) synthesize() {
	if f.DayOfMonthSet && f.DayOfWeekSet {
		f.unsafe("both day-of-month and day-of-week are explicitly set")
	}

	if !f.Safe {
		return
	}

	dom, dow := f.DayOfMonth, f.DayOfWeek

	switch {
	case f.DayOfMonthSet:
		dow = ExclusivityMarker

	case f.DayOfWeekSet:
		dom = ExclusivityMarker

	default:
		dow = ExclusivityMarker
	}

	expr := strings.Join([]string{f.Second, f.Minute, f.Hour, dom, f.Month, dow}, " ")

	if _, err := cronParser.Parse(expr); err != nil {
		f.unsafe("synthesized cron expression %q is invalid: %v", expr, err)

		return
	}

	f.CronExpr = expr
}
