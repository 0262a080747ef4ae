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

// Package fallback marks units the transformer must not touch.
//
// Instead of rewriting scheduling semantics it cannot prove safe, the emitter
// strips every legacy API reference from the unit and leaves two machine-
// readable comment markers behind: one naming the reasons the unit needs
// manual migration, one carrying the full usage facts gathered by the
// analyzer. Function bodies that referenced the legacy API are replaced with
// a panic so the unit stays compilable while the missing migration cannot go
// unnoticed at runtime.
package fallback

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"github.com/cockroachdb/errors"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/edit"
	"fillmore-labs.com/timershift/internal/usage"
)

// Marker prefixes. The pipeline treats a unit containing MarkerPrefix as
// already processed, which makes marking idempotent.
const (
	MarkerPrefix = "//timershift:fallback "
	FactsPrefix  = "//timershift:facts "
)

// Emitter rewrites one unit onto the fallback path.
type Emitter struct {
	Target api.Target

	Res  *api.Resolver
	Fset *token.FileSet
	Src  []byte
}

// markerPayload is the primary marker, aimed at the engineer doing the
// manual migration.
type markerPayload struct {
	Reason          string `json:"reason"`
	Category        string `json:"category"`
	OriginalCode    string `json:"originalCode"`
	SuggestedAction string `json:"suggestedAction"`
}

// factsPayload is the secondary marker, a machine-readable dump of the
// analysis for migration tooling and reporting.
type factsPayload struct {
	Pattern               string   `json:"pattern"`
	Callbacks             int      `json:"callbacks"`
	SingleAction          bool     `json:"singleAction"`
	Interval              bool     `json:"interval"`
	Calendar              bool     `json:"calendar"`
	Enumeration           bool     `json:"enumeration"`
	Cancel                bool     `json:"cancel"`
	Inspection            bool     `json:"inspection"`
	Payload               bool     `json:"payload"`
	HandleEscapes         bool     `json:"handleEscapes"`
	ScheduleEscapes       bool     `json:"scheduleEscapes"`
	MayRequirePersistence bool     `json:"mayRequirePersistence"`
	Inconsistencies       []string `json:"inconsistencies,omitempty"`
}

// Mark applies the full fallback edit sequence and returns the new source.
func (e *Emitter) Mark(file *ast.File, facts *usage.Facts, sites *usage.Sites, reasons []string) ([]byte, error) {
	var edits []edit.Edit

	markerEdit, err := e.markerEdit(file, facts, sites, reasons)
	if err != nil {
		return nil, err
	}
	edits = append(edits, markerEdit)

	edits = append(edits, e.directiveEdits(sites)...)
	edits = append(edits, e.declEdits(sites)...)

	sigEdits, usedTarget := e.signatureEdits(file)
	edits = append(edits, sigEdits...)

	edits = append(edits, e.bodyEdits(sites)...)
	edits = append(edits, e.importEdits(sites, usedTarget)...)

	src, err := edit.Apply(e.Src, edits)
	if err != nil {
		return nil, errors.Wrap(err, "applying fallback edits")
	}

	return src, nil
}

// markerEdit builds the two marker comments and inserts them above the unit's
// primary declaration.
func (e *Emitter) markerEdit(file *ast.File, facts *usage.Facts, sites *usage.Sites, reasons []string) (edit.Edit, error) {
	anchor := e.anchor(file, sites)
	if anchor == nil {
		return edit.Edit{}, errors.New("unit has no declaration to mark")
	}

	m := markerPayload{
		Reason:          strings.Join(reasons, "; "),
		Category:        "TIMER",
		OriginalCode:    e.firstLine(anchor),
		SuggestedAction: "migrate this unit to " + e.Target.ImportPath + " manually",
	}

	f := factsPayload{
		Pattern:               facts.Pattern(),
		Callbacks:             facts.CallbackCount,
		SingleAction:          facts.UsesSingleAction,
		Interval:              facts.UsesInterval,
		Calendar:              facts.UsesCalendar,
		Enumeration:           facts.UsesEnumeration,
		Cancel:                facts.UsesCancel,
		Inspection:            facts.UsesUnsupportedInspection,
		Payload:               facts.UsesPayload,
		HandleEscapes:         facts.HandleEscapes,
		ScheduleEscapes:       facts.ScheduleEscapes,
		MayRequirePersistence: facts.MayRequirePersistence,
		Inconsistencies:       facts.Inconsistencies,
	}

	mJSON, err := json.Marshal(m)
	if err != nil {
		return edit.Edit{}, errors.Wrap(err, "encoding fallback marker")
	}

	fJSON, err := json.Marshal(f)
	if err != nil {
		return edit.Edit{}, errors.Wrap(err, "encoding facts marker")
	}

	text := MarkerPrefix + string(mJSON) + "\n" + FactsPrefix + string(fJSON) + "\n"

	at := anchor.Pos()
	if fn, ok := anchor.(*ast.FuncDecl); ok && fn.Doc != nil {
		at = fn.Doc.Pos()
	} else if gd, ok := anchor.(*ast.GenDecl); ok && gd.Doc != nil {
		at = gd.Doc.Pos()
	}

	tf := e.Fset.File(at)
	line := tf.Offset(tf.LineStart(tf.Line(at)))

	return edit.Insert(line, text), nil
}

// anchor picks the declaration the markers attach to: the designated callback
// when one exists, otherwise the first non-import declaration.
func (e *Emitter) anchor(file *ast.File, sites *usage.Sites) ast.Decl {
	if len(sites.Callbacks) > 0 {
		return sites.Callbacks[0].Decl
	}

	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.IMPORT {
			continue
		}

		return decl
	}

	return nil
}

// firstLine returns the first source line of a declaration, for the marker's
// originalCode field.
func (e *Emitter) firstLine(n ast.Node) string {
	pos, end := edit.Span(e.Fset, n)

	text := string(e.Src[pos:end])
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}

	return strings.TrimSpace(text)
}

// directiveEdits removes the timeout directive lines. The directive names a
// legacy concept; keeping it on unmigrated code would misdirect a later run.
func (e *Emitter) directiveEdits(sites *usage.Sites) []edit.Edit {
	var edits []edit.Edit

	for _, cb := range sites.Callbacks {
		pos, end := e.lineSpan(cb.Directive)
		edits = append(edits, edit.Delete(pos, end))
	}

	return edits
}

// declEdits removes legacy-typed struct fields and package-level variables.
func (e *Emitter) declEdits(sites *usage.Sites) []edit.Edit {
	var edits []edit.Edit

	for _, sf := range sites.ServiceFieldDecls {
		pos, end := e.lineSpan(sf.Decl)
		edits = append(edits, edit.Delete(pos, end))
	}

	for _, field := range sites.LegacyFieldDecls {
		pos, end := e.lineSpan(field)
		edits = append(edits, edit.Delete(pos, end))
	}

	for _, vs := range sites.LegacyVarDecls {
		pos, end := e.lineSpan(vs)
		edits = append(edits, edit.Delete(pos, end))
	}

	return edits
}

// signatureEdits retypes every legacy-typed parameter and result in the unit
// so no signature mentions the legacy package. Timer parameters become the
// scheduler's execution context, service parameters the scheduler itself;
// handle and schedule values have no target-side signature equivalent and
// degrade to any. The second result reports whether a target type was used.
func (e *Emitter) signatureEdits(file *ast.File) ([]edit.Edit, bool) {
	var (
		edits      []edit.Edit
		usedTarget bool
	)

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}

		for _, field := range fieldList(fn.Type.Params) {
			switch {
			case e.Res.IsService(field.Type):
				usedTarget = true
				edits = append(edits, edit.ReplaceNode(e.Fset, field.Type, e.qualified(e.Target.Scheduler)))

			case e.Res.IsTimer(field.Type):
				usedTarget = true
				edits = append(edits, edit.ReplaceNode(e.Fset, field.Type, e.qualified(e.Target.Context)))

			case e.Res.IsHandle(field.Type), e.Res.IsSchedule(field.Type),
				e.Res.IsAnyLegacyType(field.Type):
				edits = append(edits, edit.ReplaceNode(e.Fset, field.Type, "any"))
			}
		}

		// Bodies producing legacy values are blanked, so degraded result
		// types never have to carry a real value.
		for _, field := range fieldList(fn.Type.Results) {
			if e.Res.IsAnyLegacyType(field.Type) {
				edits = append(edits, edit.ReplaceNode(e.Fset, field.Type, "any"))
			}
		}
	}

	return edits, usedTarget
}

func fieldList(fl *ast.FieldList) []*ast.Field {
	if fl == nil {
		return nil
	}

	return fl.List
}

// bodyEdits replaces the body of every function that references the legacy
// API with a panic, keeping the unit compilable without silently running
// half-migrated scheduling logic.
func (e *Emitter) bodyEdits(sites *usage.Sites) []edit.Edit {
	var edits []edit.Edit

	for _, fn := range sites.LegacyRefFuncs {
		if fn.Body == nil {
			continue
		}

		replacement := fmt.Sprintf(
			"{\n\t// Legacy timer logic removed; see the timershift:fallback marker.\n\tpanic(%q)\n}",
			"timershift: "+funcName(fn)+" requires manual migration")
		edits = append(edits, edit.ReplaceNode(e.Fset, fn.Body, replacement))
	}

	return edits
}

func funcName(fn *ast.FuncDecl) string {
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		if name := typeName(fn.Recv.List[0].Type); name != "" {
			return name + "." + fn.Name.Name
		}
	}

	return fn.Name.Name
}

func typeName(expr ast.Expr) string {
	switch expr := expr.(type) {
	case *ast.Ident:
		return expr.Name
	case *ast.StarExpr:
		return typeName(expr.X)
	}

	return ""
}

// importEdits removes every legacy import; when a retyped signature needs the
// target package, its import is spliced over the first legacy import spec.
func (e *Emitter) importEdits(sites *usage.Sites, usedTarget bool) []edit.Edit {
	var edits []edit.Edit

	for i, imp := range sites.LegacyImports {
		if i == 0 && usedTarget {
			edits = append(edits, edit.ReplaceNode(e.Fset, imp, `"`+e.Target.ImportPath+`"`))

			continue
		}

		pos, end := e.lineSpan(imp)
		edits = append(edits, edit.Delete(pos, end))
	}

	return edits
}

func (e *Emitter) qualified(name string) string {
	return e.Target.PkgName + "." + name
}

// lineSpan widens a node's span to whole lines including the trailing
// newline, for removing declarations without leaving blank lines.
func (e *Emitter) lineSpan(n ast.Node) (int, int) {
	f := e.Fset.File(n.Pos())

	start := f.Offset(f.LineStart(f.Line(n.Pos())))

	endLine := f.Line(n.End())
	if endLine < f.LineCount() {
		return start, f.Offset(f.LineStart(endLine + 1))
	}

	return start, f.Size()
}
