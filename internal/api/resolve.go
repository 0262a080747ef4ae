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

package api

import (
	"go/ast"
	"go/types"
	"path"
	"strconv"
)

// Trust controls how much evidence a type match requires.
type Trust uint8

const (
	// TrustVerified requires a resolved type, a qualified reference to the
	// legacy package, or a simple name backed by an import of the legacy
	// package. A miss here only means a usage is not counted.
	TrustVerified Trust = iota

	// TrustBareName additionally accepts an unqualified simple-name match
	// without import verification. Used for handle and schedule detection,
	// where a missed escape silently miscompiles user code while a false
	// positive only costs a fallback marker.
	TrustBareName
)

// Resolver decides whether AST type expressions refer to legacy API types.
//
// Resolution is layered: resolved static type, then qualified-name
// reconstruction from the selector chain, then import-aware simple-name
// matching. Each layer only fires when the previous one cannot decide, which
// keeps the resolver usable with partial or absent type information.
type Resolver struct {
	legacy Legacy

	// info carries best-effort type information; may be nil.
	info *types.Info

	// qualifiers are the local names the legacy package is imported under.
	qualifiers map[string]bool

	// dotImported is true when the legacy package is dot-imported, making
	// bare simple names trustworthy without further evidence.
	dotImported bool

	// imported is true when any import of the legacy package exists.
	imported bool
}

// NewResolver builds a resolver for one source file.
func NewResolver(legacy Legacy, info *types.Info, file *ast.File) *Resolver {
	r := &Resolver{
		legacy:     legacy,
		info:       info,
		qualifiers: make(map[string]bool, 1),
	}

	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil || p != legacy.ImportPath {
			continue
		}

		r.imported = true

		switch {
		case imp.Name == nil:
			r.qualifiers[path.Base(p)] = true

		case imp.Name.Name == ".":
			r.dotImported = true

		case imp.Name.Name == "_":
			// Blank import carries no references.

		default:
			r.qualifiers[imp.Name.Name] = true
		}
	}

	return r
}

// Imported reports whether the file imports the legacy package at all.
func (r *Resolver) Imported() bool { return r.imported }

// Legacy returns the descriptor the resolver matches against.
func (r *Resolver) Legacy() Legacy { return r.legacy }

// IsService reports whether expr denotes the legacy timer service type.
func (r *Resolver) IsService(expr ast.Expr) bool {
	return r.isLegacyType(expr, r.legacy.Service, TrustVerified)
}

// IsTimer reports whether expr denotes the legacy timer value type.
func (r *Resolver) IsTimer(expr ast.Expr) bool {
	return r.isLegacyType(expr, r.legacy.Timer, TrustBareName)
}

// IsHandle reports whether expr denotes the legacy timer handle type.
func (r *Resolver) IsHandle(expr ast.Expr) bool {
	return r.isLegacyType(expr, r.legacy.Handle, TrustBareName)
}

// IsSchedule reports whether expr denotes the legacy calendar-expression type.
func (r *Resolver) IsSchedule(expr ast.Expr) bool {
	return r.isLegacyType(expr, r.legacy.Schedule, TrustBareName)
}

// IsLegacyFunc reports whether the call target expr names the given function
// of the legacy package, such as the calendar-expression constructor.
func (r *Resolver) IsLegacyFunc(expr ast.Expr, name string) bool {
	switch fun := expr.(type) {
	case *ast.SelectorExpr:
		if fun.Sel.Name != name {
			return false
		}

		return r.qualifiesLegacy(fun.X)

	case *ast.Ident:
		return fun.Name == name && r.dotImported
	}

	return false
}

// IsAnyLegacyType reports whether expr denotes any of the legacy API types,
// used when stripping residual legacy references on the fallback path.
func (r *Resolver) IsAnyLegacyType(expr ast.Expr) bool {
	for _, name := range []string{r.legacy.Service, r.legacy.Timer, r.legacy.Handle, r.legacy.Schedule, r.legacy.Config} {
		if r.isLegacyType(expr, name, TrustVerified) {
			return true
		}
	}

	return r.IsTimer(expr) || r.IsHandle(expr) || r.IsSchedule(expr)
}

// isLegacyType applies the layered resolution chain to a type expression.
func (r *Resolver) isLegacyType(expr ast.Expr, name string, trust Trust) bool {
	// Unwrap pointer types; the legacy API is used both ways.
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}

	// Layer 1: resolved static type.
	switch r.resolvedType(expr, name) {
	case resolvedMatch:
		return true
	case resolvedOther:
		return false
	}

	switch expr := expr.(type) {
	case *ast.SelectorExpr:
		// Layer 2: qualified-name reconstruction from the selector chain.
		return expr.Sel.Name == name && r.qualifiesLegacy(expr.X)

	case *ast.Ident:
		// Layer 3: simple name backed by a dot import of the legacy package.
		if expr.Name != name {
			return false
		}

		if r.dotImported {
			return true
		}

		// Layer 4: bare simple name, only where the caller opted in.
		return trust == TrustBareName
	}

	return false
}

type resolution uint8

const (
	resolvedNone resolution = iota // no usable type information
	resolvedMatch
	resolvedOther
)

// resolvedType consults best-effort type information for expr.
func (r *Resolver) resolvedType(expr ast.Expr, name string) resolution {
	if r.info == nil {
		return resolvedNone
	}

	tv, ok := r.info.Types[expr]
	if !ok || tv.Type == nil {
		return resolvedNone
	}

	t := tv.Type
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}

	named, ok := t.(*types.Named)
	if !ok || named.Obj() == nil || named.Obj().Pkg() == nil {
		return resolvedNone
	}

	if named.Obj().Pkg().Path() == r.legacy.ImportPath {
		if named.Obj().Name() == name {
			return resolvedMatch
		}

		return resolvedOther
	}

	// A resolved type from an unrelated package is authoritative: do not
	// fall through to name matching for code that merely shares a name.
	return resolvedOther
}

// qualifiesLegacy reports whether expr is a package qualifier for the legacy
// import, either by import-verified name or by matching the package ident of
// an unverifiable file (fail closed: unknown qualifiers do not match).
func (r *Resolver) qualifiesLegacy(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	if !ok {
		return false
	}

	return r.qualifiers[id.Name]
}
