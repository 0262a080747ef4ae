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
	"go/token"
)

// produced is the legacy value kind yielded by an expression.
type produced uint8

const (
	prodNone produced = iota
	prodTimer
	prodHandle
	prodSchedule
)

// valueCtx describes how an expression's value is consumed. It replaces the
// mutable visitor state of a traversal with an explicit context passed down
// the recursion.
type valueCtx uint8

const (
	// ctxDiscard: the value is discarded or only inspected in place.
	ctxDiscard valueCtx = iota

	// ctxBind: the value is bound to a local identifier by the caller.
	ctxBind

	// ctxChain: the value is the receiver of a chained call.
	ctxChain

	// ctxEscape: the value leaves the method scope (argument, return value,
	// field store, composite literal element).
	ctxEscape
)

// method tracks one function body. The local sets are scoped to this method
// only and never merged across methods; cross-method knowledge is carried
// exclusively by the sticky escape flags on Facts.
type method struct {
	*collector

	fn       *ast.FuncDecl
	recvName string
	recvType string

	inCallback    bool
	callbackParam string

	timerVars    map[string]bool
	handleVars   map[string]bool
	scheduleVars map[string]bool
	serviceVars  map[string]bool

	// sawLegacy is set on the first legacy reference in this body.
	sawLegacy bool
}

func (c *collector) newMethod(fn *ast.FuncDecl) *method {
	m := &method{
		collector:    c,
		fn:           fn,
		recvName:     receiverName(fn),
		recvType:     receiverType(fn),
		inCallback:   c.directiveComment(fn) != nil,
		timerVars:    make(map[string]bool),
		handleVars:   make(map[string]bool),
		scheduleVars: make(map[string]bool),
		serviceVars:  make(map[string]bool),
	}

	// Package-level service variables are visible in every body; local
	// bindings of the same name simply re-mark them.
	for name := range c.pkgServiceVars {
		m.serviceVars[name] = true
	}

	if params := fn.Type.Params; params != nil {
		for _, field := range params.List {
			for _, name := range field.Names {
				switch {
				case c.Res.IsTimer(field.Type):
					if m.inCallback && m.callbackParam == "" {
						m.callbackParam = name.Name
					} else {
						m.timerVars[name.Name] = true
					}

				case c.Res.IsHandle(field.Type):
					m.handleVars[name.Name] = true

				case c.Res.IsSchedule(field.Type):
					m.scheduleVars[name.Name] = true

				case c.Res.IsService(field.Type):
					m.serviceVars[name.Name] = true
				}
			}
		}
	}

	return m
}

// escape raises the sticky cross-method escape flag for a value kind. Once
// set it is never cleared for this unit.
func (m *method) escape(k produced) {
	switch k {
	case prodHandle:
		m.facts.UsesHandle = true
		m.facts.HandleEscapes = true

	case prodSchedule:
		m.facts.UsesSchedule = true
		m.facts.ScheduleEscapes = true

	case prodTimer:
		// A timer value leaving its call site has no scheduler equivalent.
		m.inconsistency("timer value leaves its creation site in " + m.fn.Name.Name)
	}
}

func (m *method) inconsistency(reason string) {
	m.facts.Inconsistencies = append(m.facts.Inconsistencies, reason)
}

// trackedKind returns the kind a local identifier is currently bound to.
func (m *method) trackedKind(name string) produced {
	switch {
	case name == m.callbackParam && name != "":
		return prodTimer

	case m.timerVars[name]:
		return prodTimer

	case m.handleVars[name]:
		return prodHandle

	case m.scheduleVars[name]:
		return prodSchedule
	}

	return prodNone
}

// bind records a local identifier as holding a legacy value kind,
// replacing any previous binding.
func (m *method) bind(name string, k produced) {
	if name == "_" {
		return
	}

	delete(m.timerVars, name)
	delete(m.handleVars, name)
	delete(m.scheduleVars, name)

	switch k {
	case prodTimer:
		m.timerVars[name] = true
	case prodHandle:
		m.handleVars[name] = true
	case prodSchedule:
		m.scheduleVars[name] = true
	}
}

func (m *method) walkBlock(b *ast.BlockStmt) {
	if b == nil {
		return
	}

	for _, s := range b.List {
		m.walkStmt(s)
	}
}

func (m *method) walkStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.BlockStmt:
		m.walkBlock(s)

	case *ast.ExprStmt:
		m.walkExpr(s.X, ctxDiscard)

	case *ast.AssignStmt:
		m.walkAssign(s)

	case *ast.DeclStmt:
		m.walkDecl(s)

	case *ast.ReturnStmt:
		for _, r := range s.Results {
			m.walkExpr(r, ctxEscape)
		}

	case *ast.IfStmt:
		m.walkStmt2(s.Init)
		m.walkExpr(s.Cond, ctxDiscard)
		m.walkBlock(s.Body)
		m.walkStmt2(s.Else)

	case *ast.ForStmt:
		m.walkStmt2(s.Init)
		if s.Cond != nil {
			m.walkExpr(s.Cond, ctxDiscard)
		}
		m.walkStmt2(s.Post)
		m.walkBlock(s.Body)

	case *ast.RangeStmt:
		m.walkExpr(s.X, ctxDiscard)
		m.walkBlock(s.Body)

	case *ast.SwitchStmt:
		m.walkStmt2(s.Init)
		if s.Tag != nil {
			m.walkExpr(s.Tag, ctxDiscard)
		}
		m.walkBlock(s.Body)

	case *ast.TypeSwitchStmt:
		m.walkStmt2(s.Init)
		m.walkStmt2(s.Assign)
		m.walkBlock(s.Body)

	case *ast.SelectStmt:
		m.walkBlock(s.Body)

	case *ast.CaseClause:
		for _, e := range s.List {
			m.walkExpr(e, ctxDiscard)
		}
		for _, st := range s.Body {
			m.walkStmt(st)
		}

	case *ast.CommClause:
		m.walkStmt2(s.Comm)
		for _, st := range s.Body {
			m.walkStmt(st)
		}

	case *ast.LabeledStmt:
		m.walkStmt(s.Stmt)

	case *ast.GoStmt:
		m.walkExpr(s.Call, ctxDiscard)

	case *ast.DeferStmt:
		m.walkExpr(s.Call, ctxDiscard)

	case *ast.SendStmt:
		m.walkExpr(s.Chan, ctxDiscard)
		m.walkExpr(s.Value, ctxEscape)

	case *ast.IncDecStmt:
		m.walkExpr(s.X, ctxDiscard)
	}
}

// walkStmt2 is walkStmt for optional statements.
func (m *method) walkStmt2(s ast.Stmt) {
	if s != nil {
		m.walkStmt(s)
	}
}

// walkAssign handles binding and field-store escapes. Multi-value forms are
// not modeled and treated as escaping.
func (m *method) walkAssign(a *ast.AssignStmt) {
	if len(a.Lhs) != len(a.Rhs) {
		for _, rhs := range a.Rhs {
			m.walkExpr(rhs, ctxEscape)
		}

		return
	}

	for i, lhs := range a.Lhs {
		rhs := a.Rhs[i]

		switch lhs := lhs.(type) {
		case *ast.Ident:
			k := m.walkExpr(rhs, ctxBind)
			m.bind(lhs.Name, k)
			m.recordBind(lhs.Name, rhs, k)

		default:
			// Store into a field, index or dereference: a tracked value
			// leaving through it escapes.
			if k := m.walkExpr(rhs, ctxEscape); k != prodNone {
				m.sawLegacy = true
			}

			m.walkExpr(lhs, ctxDiscard)
		}
	}
}

// recordBind records rewritable handle/schedule retrievals bound from a
// direct call on the callback parameter.
func (m *method) recordBind(name string, rhs ast.Expr, k produced) {
	call, ok := rhs.(*ast.CallExpr)
	if !ok {
		return
	}

	switch k {
	case prodHandle:
		m.sites.HandleBinds = append(m.sites.HandleBinds, ValueBind{Name: name, Call: call})

	case prodSchedule:
		m.sites.ScheduleBinds = append(m.sites.ScheduleBinds, ValueBind{Name: name, Call: call})

	case prodTimer:
		// The rewritten creation call yields no timer value: a bound
		// result cannot be represented.
		m.inconsistency("timer value bound to " + name + " in " + m.fn.Name.Name)
	}
}

// walkDecl handles var declarations, both typed and initialized.
func (m *method) walkDecl(d *ast.DeclStmt) {
	gen, ok := d.Decl.(*ast.GenDecl)
	if !ok || gen.Tok != token.VAR {
		return
	}

	for _, spec := range gen.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}

		if vs.Type != nil {
			m.declType(vs)
		}

		for i, value := range vs.Values {
			k := m.walkExpr(value, ctxBind)
			if i < len(vs.Names) {
				m.bind(vs.Names[i].Name, k)
				m.recordBind(vs.Names[i].Name, value, k)
			}
		}
	}
}

// declType classifies an explicitly typed var declaration. Explicit handle
// and schedule types cannot survive the rewrite, so they are conservatively
// treated as escapes.
func (m *method) declType(vs *ast.ValueSpec) {
	switch {
	case m.Res.IsTimer(vs.Type):
		m.sawLegacy = true
		for _, name := range vs.Names {
			m.bind(name.Name, prodTimer)
		}

	case m.Res.IsHandle(vs.Type):
		m.sawLegacy = true
		m.escape(prodHandle)

	case m.Res.IsSchedule(vs.Type):
		m.sawLegacy = true
		m.escape(prodSchedule)

	case m.Res.IsService(vs.Type):
		m.sawLegacy = true
		for _, name := range vs.Names {
			m.serviceVars[name.Name] = true
		}
	}
}

// walkExpr classifies an expression and reports the legacy value kind it
// yields. Escapes are raised here based on the consumption context.
func (m *method) walkExpr(e ast.Expr, ctx valueCtx) produced {
	switch e := e.(type) {
	case *ast.CallExpr:
		k := m.classifyCall(e)
		if k != prodNone && ctx == ctxEscape {
			m.escape(k)
		}

		return k

	case *ast.Ident:
		if m.serviceVars[e.Name] {
			m.sawLegacy = true
		}

		k := m.trackedKind(e.Name)
		if k != prodNone {
			m.sawLegacy = true
			if ctx == ctxEscape {
				m.escape(k)
			}
		}

		return k

	case *ast.ParenExpr:
		return m.walkExpr(e.X, ctx)

	case *ast.StarExpr:
		return m.walkExpr(e.X, ctx)

	case *ast.UnaryExpr:
		if e.Op == token.AND {
			// Taking the address of a tracked value lets it escape.
			return m.walkExpr(e.X, ctxEscape)
		}

		m.walkExpr(e.X, ctxDiscard)

	case *ast.BinaryExpr:
		// Comparisons and arithmetic never yield a legacy value.
		m.walkExpr(e.X, ctxDiscard)
		m.walkExpr(e.Y, ctxDiscard)

	case *ast.SelectorExpr:
		m.walkExpr(e.X, ctxDiscard)

	case *ast.IndexExpr:
		m.walkExpr(e.X, ctxDiscard)
		m.walkExpr(e.Index, ctxDiscard)

	case *ast.CompositeLit:
		for _, elt := range e.Elts {
			m.walkExpr(elt, ctxEscape)
		}

	case *ast.KeyValueExpr:
		return m.walkExpr(e.Value, ctx)

	case *ast.TypeAssertExpr:
		m.walkExpr(e.X, ctxDiscard)

	case *ast.FuncLit:
		// Closures share the method's bindings; uses inside follow the
		// same escape rules.
		m.walkBlock(e.Body)
	}

	return prodNone
}

// walkArgs walks call arguments; tracked values passed as arguments escape.
func (m *method) walkArgs(args []ast.Expr) {
	for _, arg := range args {
		m.walkExpr(arg, ctxEscape)
	}
}
