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

package corpus

import (
	"go/ast"
	"go/token"
	"go/types"
	"path"
)

// bestEffortInfo type-checks one package against stub imports, collecting
// whatever resolves. Check errors are expected and discarded: the corpus
// under migration need not compile in this environment, and the resolver's
// fallback layers cover whatever stays unresolved.
func bestEffortInfo(fset *token.FileSet, pkgName string, files []*ast.File) *types.Info {
	info := &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
	}

	conf := types.Config{
		Error:                    func(error) {},
		Importer:                 stubImporter{},
		DisableUnusedImportCheck: true,
	}

	_, _ = conf.Check(pkgName, fset, files, info) // best effort

	return info
}

// stubImporter resolves every import to an empty placeholder package.
// Selectors into such packages stay untyped, which is exactly the partial
// information the layered resolver is built for.
type stubImporter struct{}

func (stubImporter) Import(importPath string) (*types.Package, error) {
	pkg := types.NewPackage(importPath, path.Base(importPath))
	pkg.MarkComplete()

	return pkg, nil
}
