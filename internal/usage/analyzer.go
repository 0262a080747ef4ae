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

// Package usage analyzes one source unit's use of the legacy timer API.
//
// The analyzer walks the unit's declarations twice. The first pass collects
// legacy-service field names and designated callbacks, because later call
// resolution may have to fall back to name matching when type information is
// absent. The second pass visits every method body and classifies each call
// whose receiver is a known legacy-service field or legacy timer value,
// tracking handle-like values in per-method local sets to decide whether
// they escape the single method scope in which they are rewritable.
package usage

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/edit"
)

// Analyzer produces Facts and Sites for one source unit.
type Analyzer struct {
	Res  *api.Resolver
	Fset *token.FileSet
	Src  []byte
}

// Analyze runs both passes over the unit.
func (a *Analyzer) Analyze(file *ast.File) (*Facts, *Sites) {
	c := &collector{
		Analyzer:       a,
		facts:          &Facts{ServiceFields: make(map[string][]string)},
		sites:          &Sites{},
		pkgServiceVars: make(map[string]bool),
	}

	c.collectImports(file)
	c.collectDeclarations(file)
	c.collectUsages(file)

	return c.facts, c.sites
}

// text returns the source snippet of a node.
func (a *Analyzer) text(n ast.Node) string {
	pos, end := edit.Span(a.Fset, n)

	return string(a.Src[pos:end])
}

// collector accumulates facts and sites over both passes.
type collector struct {
	*Analyzer

	facts *Facts
	sites *Sites

	// pkgServiceVars are the names of package-level legacy-service
	// variables, seeded into every method's tracked locals.
	pkgServiceVars map[string]bool
}

func (c *collector) collectImports(file *ast.File) {
	legacyPath := c.Res.Legacy().ImportPath

	for _, imp := range file.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil && p == legacyPath {
			c.sites.LegacyImports = append(c.sites.LegacyImports, imp)
		}
	}
}

// collectDeclarations is the first pass: struct fields and callbacks.
func (c *collector) collectDeclarations(file *ast.File) {
	for _, decl := range file.Decls {
		switch decl := decl.(type) {
		case *ast.GenDecl:
			switch decl.Tok {
			case token.TYPE:
				for _, spec := range decl.Specs {
					ts, ok := spec.(*ast.TypeSpec)
					if !ok {
						continue
					}

					if st, ok := ts.Type.(*ast.StructType); ok {
						c.collectFields(ts.Name.Name, st)
					}
				}

			case token.VAR:
				c.collectPackageVars(decl)
			}

		case *ast.FuncDecl:
			c.collectCallback(decl)
		}
	}
}

// collectPackageVars flags package-level variables of legacy types. There is
// no scheduler-side equivalent for shared timer state, so any such variable
// routes the unit to the fallback path.
func (c *collector) collectPackageVars(decl *ast.GenDecl) {
	for _, spec := range decl.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok || vs.Type == nil {
			continue
		}

		if c.Res.IsAnyLegacyType(vs.Type) {
			c.facts.UsesUnsupportedInspection = true
			c.sites.LegacyVarDecls = append(c.sites.LegacyVarDecls, vs)
		}

		if c.Res.IsService(vs.Type) {
			for _, name := range vs.Names {
				c.pkgServiceVars[name.Name] = true
			}
		}
	}
}

// collectFields records legacy-typed struct fields. Only the service field
// is rewritable; timer, handle and schedule fields imply state the migration
// cannot represent and raise the corresponding escape flags (fail closed).
func (c *collector) collectFields(structName string, st *ast.StructType) {
	for _, field := range st.Fields.List {
		switch {
		case c.Res.IsService(field.Type):
			for _, name := range field.Names {
				c.facts.ServiceFields[structName] = append(c.facts.ServiceFields[structName], name.Name)
			}

			c.sites.ServiceFieldDecls = append(c.sites.ServiceFieldDecls, ServiceField{Struct: structName, Decl: field})

		case c.Res.IsTimer(field.Type):
			c.facts.UsesUnsupportedInspection = true
			c.sites.LegacyFieldDecls = append(c.sites.LegacyFieldDecls, field)

		case c.Res.IsHandle(field.Type):
			c.facts.UsesHandle = true
			c.facts.HandleEscapes = true
			c.sites.LegacyFieldDecls = append(c.sites.LegacyFieldDecls, field)

		case c.Res.IsSchedule(field.Type):
			c.facts.UsesSchedule = true
			c.facts.ScheduleEscapes = true
			c.sites.LegacyFieldDecls = append(c.sites.LegacyFieldDecls, field)
		}
	}
}

// collectCallback records functions carrying the timeout directive.
func (c *collector) collectCallback(fn *ast.FuncDecl) {
	directive := c.directiveComment(fn)
	if directive == nil {
		return
	}

	c.facts.CallbackCount++

	cb := Callback{Decl: fn, Directive: directive}

	params := fn.Type.Params
	switch {
	case params == nil || len(params.List) == 0:
		// Parameterless callbacks are valid.

	case len(params.List) == 1 && len(params.List[0].Names) == 1 && c.Res.IsTimer(params.List[0].Type):
		cb.Param = params.List[0]

	default:
		// The legacy API only ever passes the timer value.
		c.facts.UsesUnsupportedInspection = true
		c.facts.Inconsistencies = append(c.facts.Inconsistencies,
			"timeout callback "+fn.Name.Name+" has an unsupported parameter list")
	}

	// The first callback is the designated one; more than one is reported
	// by the classifier.
	if c.facts.CallbackCount == 1 {
		c.facts.CallbackName = fn.Name.Name
		c.facts.CallbackStruct = receiverType(fn)

		if cb.Param != nil {
			c.facts.CallbackHasTimerParam = true
			c.facts.CallbackParam = params.List[0].Names[0].Name
		}
	}

	c.sites.Callbacks = append(c.sites.Callbacks, cb)
}

// directiveComment returns the timeout directive in a function's doc
// comment, or nil.
func (c *collector) directiveComment(fn *ast.FuncDecl) *ast.Comment {
	if fn.Doc == nil {
		return nil
	}

	directive := c.Res.Legacy().Directive
	for _, cm := range fn.Doc.List {
		if strings.TrimSpace(cm.Text) == directive {
			return cm
		}
	}

	return nil
}

// collectUsages is the second pass: method bodies, call classification and
// escape tracking. It also records candidate constructors for the structs
// that carry a legacy-service field.
func (c *collector) collectUsages(file *ast.File) {
	ctorNames := c.constructorNames(file)

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}

		c.collectLegacyParams(fn)

		if fn.Recv == nil {
			c.collectConstructor(fn, ctorNames)
		}

		m := c.newMethod(fn)
		m.walkBlock(fn.Body)

		if m.sawLegacy {
			c.sites.LegacyRefFuncs = append(c.sites.LegacyRefFuncs, fn)
		}
	}
}

// collectLegacyParams records legacy-typed parameters of every function,
// skipping the designated callback parameter which is handled separately.
func (c *collector) collectLegacyParams(fn *ast.FuncDecl) {
	if fn.Type.Params == nil {
		return
	}

	isCallback := c.directiveComment(fn) != nil

	for _, field := range fn.Type.Params.List {
		switch {
		case c.Res.IsTimer(field.Type):
			if isCallback {
				continue
			}

			c.sites.LegacyParams = append(c.sites.LegacyParams, LegacyParam{Fn: fn, Field: field, Kind: ParamTimer})

		case c.Res.IsHandle(field.Type):
			// A handle reaching another function already escaped.
			c.facts.UsesHandle = true
			c.facts.HandleEscapes = true
			c.sites.LegacyParams = append(c.sites.LegacyParams, LegacyParam{Fn: fn, Field: field, Kind: ParamHandle})

		case c.Res.IsSchedule(field.Type):
			c.facts.UsesSchedule = true
			c.facts.ScheduleEscapes = true
			c.sites.LegacyParams = append(c.sites.LegacyParams, LegacyParam{Fn: fn, Field: field, Kind: ParamSchedule})
		}
	}
}

// constructorNames returns the names of functions that construct a struct
// carrying a legacy-service field, for delegation detection.
func (c *collector) constructorNames(file *ast.File) map[string]bool {
	names := make(map[string]bool)

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || fn.Body == nil {
			continue
		}

		if c.constructedStruct(fn) != "" {
			names[fn.Name.Name] = true
		}
	}

	return names
}

// constructedStruct returns the name of the service-carrying struct a
// function constructs, or "".
func (c *collector) constructedStruct(fn *ast.FuncDecl) string {
	var found string

	ast.Inspect(fn.Body, func(n ast.Node) bool {
		lit, ok := n.(*ast.CompositeLit)
		if !ok {
			return true
		}

		if name := typeName(lit.Type); name != "" {
			if _, ok := c.facts.ServiceFields[name]; ok {
				found = name

				return false
			}
		}

		return true
	})

	return found
}

// collectConstructor records a constructor site with either its composite
// literal or its delegation call to another constructor.
func (c *collector) collectConstructor(fn *ast.FuncDecl, ctorNames map[string]bool) {
	ctor := Constructor{Decl: fn}

	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.CompositeLit:
			if name := typeName(n.Type); name != "" {
				if _, ok := c.facts.ServiceFields[name]; ok && ctor.Lit == nil {
					ctor.Lit = n
				}
			}

		case *ast.CallExpr:
			if id, ok := n.Fun.(*ast.Ident); ok && ctorNames[id.Name] && id.Name != fn.Name.Name && ctor.Delegate == nil {
				ctor.Delegate = n
			}
		}

		return true
	})

	if ctor.Lit != nil || ctor.Delegate != nil {
		c.sites.Constructors = append(c.sites.Constructors, ctor)
	}
}

// receiverType returns the receiver's type name, or "".
func receiverType(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}

	return typeName(fn.Recv.List[0].Type)
}

// receiverName returns the receiver's identifier, or "".
func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 || len(fn.Recv.List[0].Names) == 0 {
		return ""
	}

	return fn.Recv.List[0].Names[0].Name
}

// typeName unwraps *T, T and generic instantiations to the base name.
func typeName(expr ast.Expr) string {
	switch expr := expr.(type) {
	case *ast.StarExpr:
		return typeName(expr.X)
	case *ast.Ident:
		return expr.Name
	case *ast.IndexExpr:
		return typeName(expr.X)
	}

	return ""
}
