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

package usage

import (
	"go/ast"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/schedule"
)

// Facts records everything the safety classifier needs to know about one
// source unit's use of the legacy timer API. Facts are owned by the analysis
// of that unit and are immutable once classification runs.
type Facts struct {
	// ServiceFields maps struct names to their legacy-service field names.
	ServiceFields map[string][]string

	// CallbackCount is the number of designated timeout callbacks; exactly
	// one is required for automatic transformation.
	CallbackCount int

	// CallbackName and CallbackStruct identify the designated callback.
	CallbackName   string
	CallbackStruct string

	// CallbackHasTimerParam is true when the callback takes the legacy
	// timer value; CallbackParam is the preserved identifier.
	CallbackHasTimerParam bool
	CallbackParam         string

	UsesSingleAction          bool
	UsesInterval              bool
	UsesCalendar              bool
	UsesEnumeration           bool
	UsesCancel                bool
	UsesUnsupportedInspection bool
	UsesPayload               bool
	UsesHandle                bool
	HandleEscapes             bool
	UsesSchedule              bool
	ScheduleEscapes           bool

	// MayRequirePersistence is true when any creation call requests, or
	// cannot be proven not to request, durable scheduling.
	MayRequirePersistence bool

	// Expression is attached when a calendar construction call was parsed.
	// With several calendar call sites it is the first unsafe expression,
	// or the first one when all are safe.
	Expression *schedule.ExpressionFacts

	// Inconsistencies lists call sites that could not be decoded at all,
	// such as a creation call with a missing configuration argument. Any
	// entry forces the fallback path so no call expression is dropped.
	Inconsistencies []string
}

// Pattern is the free-text creation-pattern classification for the detailed
// fallback marker.
func (f *Facts) Pattern() string {
	var (
		pattern string
		n       int
	)

	for _, p := range []struct {
		used bool
		name string
	}{
		{f.UsesSingleAction, "single"},
		{f.UsesInterval, "interval"},
		{f.UsesCalendar, "calendar"},
	} {
		if p.used {
			pattern = p.name
			n++
		}
	}

	switch n {
	case 0:
		return "none"
	case 1:
		return pattern
	default:
		return "mixed"
	}
}

// ParamKind classifies a legacy-typed function parameter.
type ParamKind uint8

const (
	// ParamTimer is a parameter of the legacy timer value type.
	ParamTimer ParamKind = iota

	// ParamHandle is a parameter of the legacy handle type.
	ParamHandle

	// ParamSchedule is a parameter of the legacy calendar-expression type.
	ParamSchedule
)

// ServiceField is one legacy-service field declaration.
type ServiceField struct {
	Struct string
	Decl   *ast.Field
}

// Callback is one designated timeout callback declaration.
type Callback struct {
	Decl      *ast.FuncDecl
	Directive *ast.Comment
	Param     *ast.Field // legacy timer parameter; nil when absent
}

// Constructor is a candidate constructor function for a struct carrying a
// legacy-service field, used to thread the replacement scheduler through.
type Constructor struct {
	Decl *ast.FuncDecl

	// Lit is the composite literal constructing the struct, nil when the
	// constructor delegates instead.
	Lit *ast.CompositeLit

	// Delegate is a call to another recorded constructor, nil otherwise.
	Delegate *ast.CallExpr
}

// Creation is one timer creation call site.
type Creation struct {
	Kind api.ServiceCall
	Call *ast.CallExpr

	// Recv is the receiver identifier of the enclosing method, Struct its
	// type, and Field the legacy-service field the call goes through.
	Recv   string
	Struct string
	Field  string

	// DelayText and IntervalText are the source snippets of the timing
	// arguments; Payload and Persistent are the decoded configuration.
	DelayText    string
	IntervalText string
	Payload      string
	Persistent   string

	// Expression is the parsed calendar expression for calendar creation.
	Expression *schedule.ExpressionFacts
}

// ValueBind is a local binding of a handle or schedule value retrieved from
// the callback parameter, rewritable in place.
type ValueBind struct {
	Name string
	Call *ast.CallExpr
}

// HandleCancel is a rewritable handle-chain cancellation inside the callback.
type HandleCancel struct {
	Call   *ast.CallExpr
	Handle string

	// Recv and Struct identify the enclosing method's receiver, through
	// which the scheduler field is reached in the rewrite.
	Recv   string
	Struct string
}

// LegacyParam is a legacy-typed parameter of some function.
type LegacyParam struct {
	Fn    *ast.FuncDecl
	Field *ast.Field
	Kind  ParamKind
}

// Sites records the AST locations the transformer and the fallback emitter
// operate on. Unlike Facts, sites are positional and never influence the
// classification decision.
type Sites struct {
	ServiceFieldDecls []ServiceField
	LegacyFieldDecls  []*ast.Field
	Callbacks         []Callback
	Constructors      []Constructor
	Creations         []*Creation
	PayloadCalls      []*ast.CallExpr
	HandleBinds       []ValueBind
	HandleCancels     []HandleCancel
	ScheduleBinds     []ValueBind
	LegacyImports     []*ast.ImportSpec
	LegacyParams      []LegacyParam
	LegacyVarDecls    []*ast.ValueSpec

	// LegacyRefFuncs are the functions whose bodies reference the legacy
	// API; on the fallback path their bodies are blanked.
	LegacyRefFuncs []*ast.FuncDecl
}
