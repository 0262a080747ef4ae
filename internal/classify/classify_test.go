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

package classify_test

import (
	"strings"
	"testing"

	. "fillmore-labs.com/timershift/internal/classify"
	"fillmore-labs.com/timershift/internal/schedule"
	"fillmore-labs.com/timershift/internal/usage"
)

// callback returns minimal facts for a unit with one timeout callback.
func callback() *usage.Facts {
	return &usage.Facts{
		CallbackCount:  1,
		CallbackName:   "onTimeout",
		CallbackStruct: "Poller",
	}
}

func safeExpression() *schedule.ExpressionFacts {
	return &schedule.ExpressionFacts{Safe: true, CronExpr: "0 0 2 * * ?"}
}

func unsafeExpression() *schedule.ExpressionFacts {
	return &schedule.ExpressionFacts{Safe: false, Reasons: []string{"both day-of-month and day-of-week are explicitly set"}}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := [...]struct {
		name    string
		facts   func() *usage.Facts
		want    Outcome
		reasons int
	}{
		{
			name:  "no callback",
			facts: func() *usage.Facts { return &usage.Facts{} },
			want:  NotApplicable,
		},
		{
			name: "clean single action",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true

				return f
			},
			want: AutoTransform,
		},
		{
			name: "clean interval",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesInterval = true

				return f
			},
			want: AutoTransform,
		},
		{
			name: "calendar with safe expression",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesCalendar = true
				f.Expression = safeExpression()

				return f
			},
			want: AutoTransform,
		},
		{
			name: "payload and handle in callback",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true
				f.UsesPayload = true
				f.UsesHandle = true

				return f
			},
			want: AutoTransform,
		},
		{
			name: "multiple callbacks",
			facts: func() *usage.Facts {
				f := callback()
				f.CallbackCount = 2

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "calendar with unsafe expression",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesCalendar = true
				f.Expression = unsafeExpression()

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "calendar without expression",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesCalendar = true

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "enumeration",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true
				f.UsesEnumeration = true

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "direct cancel",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true
				f.UsesCancel = true

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "unsupported inspection",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true
				f.UsesUnsupportedInspection = true

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "handle escape",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true
				f.UsesHandle = true
				f.HandleEscapes = true

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "schedule escape",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesCalendar = true
				f.Expression = safeExpression()
				f.UsesSchedule = true
				f.ScheduleEscapes = true

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "schedule without safe expression",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true
				f.UsesSchedule = true

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "schedule with safe expression",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesCalendar = true
				f.Expression = safeExpression()
				f.UsesSchedule = true

				return f
			},
			want: AutoTransform,
		},
		{
			name: "inconsistency",
			facts: func() *usage.Facts {
				f := callback()
				f.UsesSingleAction = true
				f.Inconsistencies = []string{"creation call in refresh has an unexpected argument count"}

				return f
			},
			want:    Fallback,
			reasons: 1,
		},
		{
			name: "reasons accumulate",
			facts: func() *usage.Facts {
				f := callback()
				f.CallbackCount = 2
				f.UsesEnumeration = true
				f.UsesCancel = true

				return f
			},
			want:    Fallback,
			reasons: 3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tc.facts())

			if got.Outcome != tc.want {
				t.Fatalf("Classify() = %v (%s), want %v",
					got.Outcome, strings.Join(got.Reasons, "; "), tc.want)
			}

			if tc.want == Fallback && len(got.Reasons) != tc.reasons {
				t.Errorf("got %d reasons (%q), want %d", len(got.Reasons), got.Reasons, tc.reasons)
			}

			if tc.want != Fallback && len(got.Reasons) != 0 {
				t.Errorf("got reasons %q, want none", got.Reasons)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	testCases := [...]struct {
		outcome Outcome
		want    string
	}{
		{NotApplicable, "n/a"},
		{AutoTransform, "auto"},
		{Fallback, "fallback"},
	}

	for _, tc := range testCases {
		if got := tc.outcome.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
