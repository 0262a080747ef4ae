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

// Package transform rewrites an automatically transformable unit from the
// legacy timer API to the job scheduler.
//
// All rewrites are byte-offset edits against the original source, applied in
// one pass. The transformer assumes the safety classifier approved the unit;
// shapes it still cannot rewrite yield an error that leaves the unit
// untouched.
package transform

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/edit"
	"fillmore-labs.com/timershift/internal/usage"
)

// Transformer rewrites one unit.
type Transformer struct {
	Legacy api.Legacy
	Target api.Target

	Res  *api.Resolver
	Fset *token.FileSet
	Src  []byte

	// Info is the unit's best-effort type information; may be nil.
	Info *types.Info

	// CompatImport is the import path of the generated compatibility
	// package under the unit's module root.
	CompatImport string
}

// Result is the rewritten source plus the companion needs it implies.
type Result struct {
	Src []byte

	// UsedHandleCompat and UsedScheduleCompat request generation of the
	// compatibility value objects for the module root.
	UsedHandleCompat   bool
	UsedScheduleCompat bool
}

// ErrNotRewritable reports a shape the transformer cannot rewrite; the unit
// is left untouched and the error is local to it.
var ErrNotRewritable = errors.New("not rewritable")

// Rewrite applies the full auto-transform edit sequence.
func (t *Transformer) Rewrite(file *ast.File, facts *usage.Facts, sites *usage.Sites) (*Result, error) {
	res := &Result{}

	var edits []edit.Edit

	keepField := len(sites.Creations) > 0 || len(sites.HandleCancels) > 0

	edits = append(edits, t.fieldEdits(sites, keepField)...)

	ctorEdits, err := t.constructorEdits(sites, keepField)
	if err != nil {
		return nil, err
	}
	edits = append(edits, ctorEdits...)

	edits = append(edits, t.callbackEdits(sites)...)

	creationEdits, err := t.creationEdits(facts, sites)
	if err != nil {
		return nil, err
	}
	edits = append(edits, creationEdits...)

	edits = append(edits, t.payloadEdits(facts, sites)...)
	edits = append(edits, t.handleEdits(facts, sites, res)...)

	scheduleEdits, err := t.scheduleEdits(facts, sites, res)
	if err != nil {
		return nil, err
	}
	edits = append(edits, scheduleEdits...)

	edits = append(edits, t.helperEdits(facts, sites)...)

	importEdits, err := t.importEdits(file, facts, sites, res)
	if err != nil {
		return nil, err
	}
	edits = append(edits, importEdits...)

	src, err := edit.Apply(t.Src, edits)
	if err != nil {
		return nil, errors.Wrap(err, "applying transformation edits")
	}

	res.Src = src

	return res, nil
}

// text returns the source snippet of a node.
func (t *Transformer) text(n ast.Node) string {
	pos, end := edit.Span(t.Fset, n)

	return string(t.Src[pos:end])
}

// schedulerType is the qualified target scheduler type.
func (t *Transformer) schedulerType() string {
	return t.Target.PkgName + "." + t.Target.Scheduler
}

// contextType is the qualified target execution-context type.
func (t *Transformer) contextType() string {
	return t.Target.PkgName + "." + t.Target.Context
}

// lineSpan widens a node's span to whole lines including the trailing
// newline, for removing declarations without leaving blank lines.
func (t *Transformer) lineSpan(n ast.Node) (int, int) {
	f := t.Fset.File(n.Pos())

	start := f.Offset(f.LineStart(f.Line(n.Pos())))

	endLine := f.Line(n.End())
	if endLine < f.LineCount() {
		return start, f.Offset(f.LineStart(endLine + 1))
	}

	return start, f.Size()
}

// fieldEdits replaces every legacy-service field with the scheduler type, or
// removes it when no scheduling call site remains.
func (t *Transformer) fieldEdits(sites *usage.Sites, keepField bool) []edit.Edit {
	var edits []edit.Edit

	for _, sf := range sites.ServiceFieldDecls {
		if keepField {
			edits = append(edits, edit.ReplaceNode(t.Fset, sf.Decl.Type, t.schedulerType()))
		} else {
			pos, end := t.lineSpan(sf.Decl)
			edits = append(edits, edit.Delete(pos, end))
		}
	}

	return edits
}

// constructorEdits threads the scheduler through the unit's constructors.
//
// A constructor that already takes the legacy service as a parameter keeps
// its shape: the parameter is retyped and the existing field assignment
// stays valid. Otherwise a trailing scheduler parameter is injected and
// either added to the composite literal or passed through the delegation
// call, never both.
func (t *Transformer) constructorEdits(sites *usage.Sites, keepField bool) ([]edit.Edit, error) {
	if !keepField {
		return nil, nil
	}

	var edits []edit.Edit

	for _, ctor := range sites.Constructors {
		if retyped := t.retypeServiceParams(ctor.Decl); len(retyped) > 0 {
			edits = append(edits, retyped...)

			continue
		}

		edits = append(edits, t.injectParam(ctor.Decl, "scheduler "+t.schedulerType()))

		switch {
		case ctor.Delegate != nil:
			edits = append(edits, t.injectArg(ctor.Delegate, "scheduler"))

		case ctor.Lit != nil:
			lit, err := t.injectLitEntry(ctor.Lit, "scheduler", sites)
			if err != nil {
				return nil, err
			}

			edits = append(edits, lit)
		}
	}

	return edits, nil
}

// retypeServiceParams retypes legacy-service parameters in place.
func (t *Transformer) retypeServiceParams(fn *ast.FuncDecl) []edit.Edit {
	var edits []edit.Edit

	if fn.Type.Params == nil {
		return nil
	}

	for _, field := range fn.Type.Params.List {
		if t.Res.IsService(field.Type) {
			edits = append(edits, edit.ReplaceNode(t.Fset, field.Type, t.schedulerType()))
		}
	}

	return edits
}

// injectParam appends a parameter before the closing parenthesis.
func (t *Transformer) injectParam(fn *ast.FuncDecl, param string) edit.Edit {
	params := fn.Type.Params
	at := t.Fset.Position(params.Closing).Offset

	if len(params.List) > 0 {
		param = ", " + param
	}

	return edit.Insert(at, param)
}

// injectArg appends an argument before the closing parenthesis of a call.
func (t *Transformer) injectArg(call *ast.CallExpr, arg string) edit.Edit {
	at := t.Fset.Position(call.Rparen).Offset

	if len(call.Args) > 0 {
		arg = ", " + arg
	}

	return edit.Insert(at, arg)
}

// injectLitEntry adds the scheduler field to a keyed composite literal.
func (t *Transformer) injectLitEntry(lit *ast.CompositeLit, value string, sites *usage.Sites) (edit.Edit, error) {
	structName := litTypeName(lit)

	field, err := serviceFieldName(sites, structName)
	if err != nil {
		return edit.Edit{}, err
	}

	entry := field + ": " + value

	if len(lit.Elts) == 0 {
		return edit.Insert(t.Fset.Position(lit.Rbrace).Offset, entry), nil
	}

	if _, ok := lit.Elts[0].(*ast.KeyValueExpr); !ok {
		return edit.Edit{}, errors.Wrapf(ErrNotRewritable,
			"positional composite literal for %s", structName)
	}

	last := lit.Elts[len(lit.Elts)-1]

	return edit.Insert(t.Fset.Position(last.End()).Offset, ", "+entry), nil
}

func litTypeName(lit *ast.CompositeLit) string {
	switch typ := lit.Type.(type) {
	case *ast.Ident:
		return typ.Name
	case *ast.StarExpr:
		if id, ok := typ.X.(*ast.Ident); ok {
			return id.Name
		}
	}

	return ""
}

// serviceFieldName returns the struct's (single) legacy-service field name.
func serviceFieldName(sites *usage.Sites, structName string) (string, error) {
	for _, sf := range sites.ServiceFieldDecls {
		if sf.Struct == structName && len(sf.Decl.Names) > 0 {
			return sf.Decl.Names[0].Name, nil
		}
	}

	return "", errors.Wrapf(ErrNotRewritable, "no service field on %s", structName)
}

// callbackEdits strips the timeout directive and retypes the timer
// parameter to the execution context, preserving the identifier so every
// other use in the body stays valid.
func (t *Transformer) callbackEdits(sites *usage.Sites) []edit.Edit {
	var edits []edit.Edit

	for _, cb := range sites.Callbacks {
		pos, end := t.lineSpan(cb.Directive)
		edits = append(edits, edit.Delete(pos, end))

		if cb.Param != nil {
			edits = append(edits, edit.ReplaceNode(t.Fset, cb.Param.Type, t.contextType()))
		}
	}

	return edits
}

// payloadEdits rewrites payload retrieval to the keyed-data lookup on the
// retyped callback parameter.
func (t *Transformer) payloadEdits(facts *usage.Facts, sites *usage.Sites) []edit.Edit {
	var edits []edit.Edit

	for _, call := range sites.PayloadCalls {
		replacement := fmt.Sprintf("%s.Data().Get(%s)", facts.CallbackParam, strconv.Quote(t.Target.PayloadKey))
		edits = append(edits, edit.ReplaceNode(t.Fset, call, replacement))
	}

	return edits
}

// handleEdits rewrites handle retrieval to the compatibility handle and
// handle-chain cancellation to an unschedule call on the scheduler field.
func (t *Transformer) handleEdits(facts *usage.Facts, sites *usage.Sites, res *Result) []edit.Edit {
	var edits []edit.Edit

	for _, bind := range sites.HandleBinds {
		res.UsedHandleCompat = true

		replacement := fmt.Sprintf("%s.NewTimerHandle(%s.Name(), %s.Group())",
			t.Target.CompatPkg, facts.CallbackParam, facts.CallbackParam)
		edits = append(edits, edit.ReplaceNode(t.Fset, bind.Call, replacement))
	}

	for _, hc := range sites.HandleCancels {
		field := firstServiceField(sites, hc.Struct)

		replacement := fmt.Sprintf("%s.%s.Unschedule(%s.Name(), %s.Group())",
			hc.Recv, field, hc.Handle, hc.Handle)
		edits = append(edits, edit.ReplaceNode(t.Fset, hc.Call, replacement))
	}

	return edits
}

func firstServiceField(sites *usage.Sites, structName string) string {
	name, err := serviceFieldName(sites, structName)
	if err != nil {
		return "scheduler"
	}

	return name
}

// scheduleEdits rewrites schedule retrieval to a compatibility schedule
// populated from the statically parsed calendar expression.
func (t *Transformer) scheduleEdits(facts *usage.Facts, sites *usage.Sites, res *Result) ([]edit.Edit, error) {
	if len(sites.ScheduleBinds) == 0 {
		return nil, nil
	}

	expr := facts.Expression
	if expr == nil || !expr.Safe {
		// The classifier guarantees a safe expression here.
		return nil, errors.Wrap(ErrNotRewritable, "schedule retrieval without safe calendar expression")
	}

	replacement := fmt.Sprintf("%s.NewSchedule(%q, %q, %q, %q, %q, %q, %q)",
		t.Target.CompatPkg,
		expr.Second, expr.Minute, expr.Hour, expr.DayOfMonth, expr.DayOfWeek, expr.Month,
		expr.CronExpr)

	var edits []edit.Edit

	for _, bind := range sites.ScheduleBinds {
		res.UsedScheduleCompat = true
		edits = append(edits, edit.ReplaceNode(t.Fset, bind.Call, replacement))
	}

	return edits, nil
}

// importEdits replaces the legacy import with the imports the rewritten
// unit needs. Additional imports are spliced over the legacy import spec so
// both grouped and single-import declarations stay well formed.
func (t *Transformer) importEdits(file *ast.File, facts *usage.Facts, sites *usage.Sites, res *Result) ([]edit.Edit, error) {
	if len(sites.LegacyImports) == 0 {
		return nil, errors.Wrap(ErrNotRewritable, "unit has no legacy import")
	}

	needed := []string{t.Target.ImportPath}

	// Only the single-shot and interval helpers use the time package; the
	// cron helper does not.
	if facts.UsesSingleAction || facts.UsesInterval {
		needed = append(needed, "time")
	}

	if res.UsedHandleCompat || res.UsedScheduleCompat {
		needed = append(needed, t.CompatImport)
	}

	existing := make(map[string]bool, len(file.Imports))
	for _, imp := range file.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil {
			existing[p] = true
		}
	}

	var paths []string

	for _, p := range needed {
		if !existing[p] {
			paths = append(paths, strconv.Quote(p))
		}
	}

	var edits []edit.Edit

	// The first legacy import spec becomes the new imports; any further
	// aliased duplicates are removed outright.
	for i, imp := range sites.LegacyImports {
		if i == 0 && len(paths) > 0 {
			edits = append(edits, t.spliceImports(file, imp, paths))

			continue
		}

		pos, end := t.lineSpan(imp)
		edits = append(edits, edit.Delete(pos, end))
	}

	return edits, nil
}

// spliceImports replaces one import spec with the needed paths. Inside a
// parenthesized declaration the spec is replaced in place; a bare single
// import cannot hold more than one path, so the whole declaration is
// rewritten in grouped form when needed.
func (t *Transformer) spliceImports(file *ast.File, imp *ast.ImportSpec, paths []string) edit.Edit {
	decl := enclosingImportDecl(file, imp)

	if decl == nil || decl.Lparen.IsValid() || len(paths) == 1 {
		return edit.ReplaceNode(t.Fset, imp, strings.Join(paths, "\n\t"))
	}

	return edit.ReplaceNode(t.Fset, decl, "import (\n\t"+strings.Join(paths, "\n\t")+"\n)")
}

func enclosingImportDecl(file *ast.File, spec *ast.ImportSpec) *ast.GenDecl {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT {
			continue
		}

		for _, s := range gd.Specs {
			if s == spec {
				return gd
			}
		}
	}

	return nil
}
