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

// Package classify decides whether a unit's timer usage can be rewritten
// automatically. The decision procedure is a pure function over the usage
// facts: every rule must pass for an automatic transformation, and the
// reasons of all failing rules are reported together.
package classify

import (
	"fmt"

	"fillmore-labs.com/timershift/internal/usage"
)

// Outcome is the classification result for one unit.
type Outcome uint8

//go:generate go tool stringer -type Outcome -linecomment
const (
	// NotApplicable: the unit has no designated timeout callback.
	NotApplicable Outcome = iota // n/a

	// AutoTransform: every safety rule passed.
	AutoTransform // auto

	// Fallback: at least one safety rule failed; the unit is marked for
	// manual migration instead of being rewritten.
	Fallback // fallback
)

// Decision is an outcome with the union of the triggered unsafe reasons.
type Decision struct {
	Outcome Outcome
	Reasons []string
}

// Classify evaluates the safety rules in order. Evaluation does not stop at
// the first failure: the fallback marker reports every triggered reason.
func Classify(f *usage.Facts) Decision {
	if f.CallbackCount == 0 {
		return Decision{Outcome: NotApplicable}
	}

	var reasons []string

	if f.CallbackCount > 1 {
		reasons = append(reasons, fmt.Sprintf("multiple timeout callbacks (%d); job delegation needs one entry point", f.CallbackCount))
	}

	if f.UsesCalendar && !expressionSafe(f) {
		reasons = append(reasons, calendarReason(f))
	}

	if f.UsesEnumeration {
		reasons = append(reasons, "dynamic enumeration of timers implies runtime-managed state")
	}

	if f.UsesCancel {
		reasons = append(reasons, "direct timer cancellation; only handle-chain cancellation is rewritable")
	}

	if f.UsesUnsupportedInspection {
		reasons = append(reasons, "timer inspection calls have no scheduler equivalent")
	}

	if f.UsesHandle && f.HandleEscapes {
		reasons = append(reasons, "timer handle escapes the callback method")
	}

	if f.UsesSchedule {
		switch {
		case f.ScheduleEscapes:
			reasons = append(reasons, "schedule value escapes the callback method")

		case !expressionSafe(f):
			reasons = append(reasons, "schedule retrieval without a safe calendar expression to populate it")
		}
	}

	reasons = append(reasons, f.Inconsistencies...)

	if len(reasons) > 0 {
		return Decision{Outcome: Fallback, Reasons: reasons}
	}

	return Decision{Outcome: AutoTransform}
}

func expressionSafe(f *usage.Facts) bool {
	return f.Expression != nil && f.Expression.Safe
}

func calendarReason(f *usage.Facts) string {
	if f.Expression == nil {
		return "calendar timer creation without a parsable schedule expression"
	}

	return "unsafe schedule expression: " + f.Expression.Reason()
}
