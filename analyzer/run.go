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

package analyzer

import (
	"errors"
	"fmt"
	"go/ast"
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/classify"
	"fillmore-labs.com/timershift/internal/usage"
)

// ErrResultMissing is returned when a required analyzer result is missing.
// This typically indicates a configuration error where the analyzer's
// Requires field is not properly set.
var ErrResultMissing = errors.New("analyzer result missing")

// run classifies every file of the pass that imports the legacy timer
// package and reports the migration decision as a diagnostic. It never
// rewrites anything; the analyzer is the dry-run surface of the migration.
func (r *runOptions) run(p *analysis.Pass) (any, error) {
	in, ok := p.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	if !ok {
		return nil, fmt.Errorf("timershift: %s %w", inspect.Analyzer.Name, ErrResultMissing)
	}

	root, types := in.Root(), []ast.Node{
		(*ast.File)(nil),
	}

	root.Inspect(types, func(i inspector.Cursor) bool {
		if file, ok := i.Node().(*ast.File); ok {
			r.checkFile(p, file)
		}

		return false
	})

	return nil, nil
}

func (r *runOptions) checkFile(p *analysis.Pass, file *ast.File) {
	imp := legacyImport(file, r.legacy.ImportPath)
	if imp == nil {
		return
	}

	src, err := p.ReadFile(p.Fset.Position(file.Pos()).Filename)
	if err != nil {
		// Source snippets degrade to empty strings; classification still works.
		src = nil
	}

	res := api.NewResolver(r.legacy, p.TypesInfo, file)
	a := usage.Analyzer{Res: res, Fset: p.Fset, Src: src}
	facts, sites := a.Analyze(file)

	decision := classify.Classify(facts)

	switch decision.Outcome {
	case classify.NotApplicable:
		p.Report(analysis.Diagnostic{
			Pos:     imp.Pos(),
			Message: "file imports the legacy timer package but declares no timeout callback",
		})

	case classify.AutoTransform:
		if !r.reportAuto {
			return
		}

		p.Report(analysis.Diagnostic{
			Pos: sites.Callbacks[0].Decl.Pos(),
			Message: fmt.Sprintf("timeout callback %s.%s can be migrated to the job scheduler automatically",
				facts.CallbackStruct, facts.CallbackName),
		})

	case classify.Fallback:
		p.Report(analysis.Diagnostic{
			Pos:     sites.Callbacks[0].Decl.Pos(),
			Message: "timer usage requires manual migration: " + strings.Join(decision.Reasons, "; "),
		})
	}
}

func legacyImport(file *ast.File, path string) *ast.ImportSpec {
	for _, imp := range file.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil && p == path {
			return imp
		}
	}

	return nil
}
