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

// Package schedule parses literal calendar-expression builder chains of the
// legacy timer API and synthesizes equivalent cron expressions.
//
// Parsing is best effort and fail closed: anything that is not a literal
// chain of recognized setters marks the expression unsafe, but parsing
// continues so every detected issue is available to the fallback marker.
package schedule

import (
	"fmt"
	"go/ast"
	"go/token"
	"regexp"
	"strings"

	"fillmore-labs.com/timershift/internal/api"
)

// ExpressionFacts are the parsed calendar fields of one builder chain.
//
// Field defaults follow the legacy calendar-expression specification:
// seconds, minutes and hours default to "0", the remaining fields to "*".
type ExpressionFacts struct {
	Second, Minute, Hour        string
	DayOfMonth, DayOfWeek       string
	Month                       string
	DayOfMonthSet, DayOfWeekSet bool

	// CronExpr is the synthesized six-field cron expression; empty when the
	// expression is unsafe.
	CronExpr string

	// Safe is false when any part of the chain has no faithful cron
	// equivalent. Reasons holds one human-readable entry per issue.
	Safe    bool
	Reasons []string
}

// newExpressionFacts returns facts populated with the legacy defaults.
func newExpressionFacts() *ExpressionFacts {
	return &ExpressionFacts{
		Second:     "0",
		Minute:     "0",
		Hour:       "0",
		DayOfMonth: "*",
		DayOfWeek:  "*",
		Month:      "*",
		Safe:       true,
	}
}

// Reason returns the joined unsafe reasons.
func (f *ExpressionFacts) Reason() string { return strings.Join(f.Reasons, "; ") }

func (f *ExpressionFacts) unsafe(format string, args ...any) {
	f.Safe = false
	f.Reasons = append(f.Reasons, fmt.Sprintf(format, args...))
}

// Patterns of literal values the downstream scheduler cannot represent.
var (
	// ordinalPattern matches ordinal weekday markers like "3rd Mon".
	ordinalPattern = regexp.MustCompile(`^[1-5](st|nd|rd|th)\s+\S+$`)

	// negativeOffsetPattern matches trailing negative day offsets like "-7".
	negativeOffsetPattern = regexp.MustCompile(`^-[0-9]+$`)
)

// Parse unwinds a literal builder chain rooted at the calendar-expression
// constructor. The returned facts are never nil.
func Parse(expr ast.Expr, res *api.Resolver) *ExpressionFacts {
	f := newExpressionFacts()
	f.parseChain(expr, res)
	f.synthesize()

	return f
}

// parseChain recursively unwinds one link of the builder chain. The base
// case is the constructor call itself; every other link must be a
// single-argument setter call with a literal argument.
func (f *ExpressionFacts) parseChain(expr ast.Expr, res *api.Resolver) {
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		f.unsafe("schedule expression is not a literal builder chain")

		return
	}

	// Constructor call: end of the chain.
	if res.IsLegacyFunc(call.Fun, res.Legacy().NewSchedule) {
		return
	}

	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		f.unsafe("schedule expression is not rooted at the calendar-expression constructor")

		return
	}

	// Unwind the receiver first so issues are reported chain-first.
	f.parseChain(sel.X, res)

	name := sel.Sel.Name

	switch api.ClassifySetter(name) {
	case api.SetterUnsupported:
		f.unsafe("calendar attribute %s has no scheduler equivalent", name)

		return

	case api.SetterUnknown:
		f.unsafe("unrecognized calendar-expression method %s", name)

		return

	case api.SetterSupported:
	}

	value, ok := literalArg(call)
	if !ok {
		f.unsafe("non-literal argument to %s", name)

		return
	}

	f.set(name, value)
}

// literalArg extracts the single literal argument of a setter call.
func literalArg(call *ast.CallExpr) (string, bool) {
	if len(call.Args) != 1 {
		return "", false
	}

	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok {
		return "", false
	}

	switch lit.Kind {
	case token.STRING:
		return strings.Trim(lit.Value, "`\""), true

	case token.INT:
		return lit.Value, true
	}

	return "", false
}

// set records one parsed calendar field, rejecting literal values that are
// known to be unsupported downstream.
func (f *ExpressionFacts) set(name, value string) {
	switch {
	case strings.EqualFold(value, "last") || strings.Contains(strings.ToLower(value), "last "):
		f.unsafe("%s value %q: last-day markers are not supported", name, value)

	case negativeOffsetPattern.MatchString(value):
		f.unsafe("%s value %q: negative day offsets are not supported", name, value)

	case ordinalPattern.MatchString(value):
		f.unsafe("%s value %q: ordinal weekday markers are not supported", name, value)
	}

	switch name {
	case "Second":
		f.Second = value
	case "Minute":
		f.Minute = value
	case "Hour":
		f.Hour = value
	case "DayOfMonth":
		f.DayOfMonth = value
		f.DayOfMonthSet = true
	case "DayOfWeek":
		f.DayOfWeek = value
		f.DayOfWeekSet = true
	case "Month":
		f.Month = value
	}
}
