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

// Package corpus loads the source units of a migration run.
//
// A unit is one Go source file; units are grouped by module root, the
// nearest ancestor directory carrying a go.mod. Type information is
// best effort: packages are checked against stub imports, and resolution
// falls back to name matching where checking could not decide.
package corpus

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/mod/modfile"

	"fillmore-labs.com/timershift/internal/api"
)

// FallbackMarker is the comment prefix of an attached fallback marker; its
// presence makes a unit terminal for repeated runs.
const FallbackMarker = "//timershift:fallback"

// Root is one module root of the corpus.
type Root struct {
	// Dir is the absolute root directory.
	Dir string

	// ModulePath is the module path from go.mod, or "" when unknown.
	ModulePath string
}

// Unit is one source file of the corpus.
type Unit struct {
	Path string
	Root *Root

	Fset *token.FileSet
	File *ast.File
	Src  []byte

	// Info is shared best-effort type information for the unit's package;
	// may be nil when checking failed outright.
	Info *types.Info
}

// ReferencesLegacy is the cheap scan-phase precondition: the unit imports
// the legacy package.
func (u *Unit) ReferencesLegacy(legacy api.Legacy) bool {
	for _, imp := range u.File.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil && p == legacy.ImportPath {
			return true
		}
	}

	return false
}

// HasFallbackMarker reports whether a previous run already marked the unit.
func (u *Unit) HasFallbackMarker() bool {
	return bytes.Contains(u.Src, []byte(FallbackMarker))
}

// Load scans dir for module roots and parses every Go source file.
//
// Failures to read or parse individual files are logged and skipped; they
// never abort the run.
func Load(dir string, log zerolog.Logger) ([]*Unit, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving corpus directory")
	}

	roots, byDir, err := scan(dir)
	if err != nil {
		return nil, err
	}

	var units []*Unit

	for _, pkgDir := range sortedKeys(byDir) {
		units = append(units, loadPackage(pkgDir, byDir[pkgDir], roots, log)...)
	}

	return units, nil
}

// scan walks the corpus, collecting module roots and Go files per directory.
func scan(dir string) (roots []*Root, byDir map[string][]string, err error) {
	byDir = make(map[string][]string)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()

		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return filepath.SkipDir
			}

			return nil
		}

		switch {
		case name == "go.mod":
			roots = append(roots, newRoot(filepath.Dir(path)))

		case strings.HasSuffix(name, ".go"):
			byDir[filepath.Dir(path)] = append(byDir[filepath.Dir(path)], path)
		}

		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "scanning corpus %s", dir)
	}

	if len(roots) == 0 {
		// A corpus without a go.mod is still migratable; companion
		// artifacts land at the corpus directory itself.
		roots = append(roots, &Root{Dir: dir})
	}

	// Longest directories first, so nearest-ancestor lookup can take the
	// first prefix match.
	sort.Slice(roots, func(i, j int) bool { return len(roots[i].Dir) > len(roots[j].Dir) })

	return roots, byDir, nil
}

func newRoot(dir string) *Root {
	root := &Root{Dir: dir}

	if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
		root.ModulePath = modfile.ModulePath(data)
	}

	return root
}

// rootFor returns the nearest ancestor root of a directory.
func rootFor(roots []*Root, dir string) *Root {
	for _, root := range roots {
		if dir == root.Dir || strings.HasPrefix(dir, root.Dir+string(filepath.Separator)) {
			return root
		}
	}

	return roots[len(roots)-1]
}

// loadPackage parses one directory's files and attaches shared best-effort
// type information per package clause.
func loadPackage(dir string, paths []string, roots []*Root, log zerolog.Logger) []*Unit {
	fset := token.NewFileSet()
	root := rootFor(roots, dir)

	var units []*Unit

	byPkg := make(map[string][]*Unit)

	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("unit", path).Msg("skipping unreadable file")

			continue
		}

		file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
		if err != nil {
			log.Warn().Err(err).Str("unit", path).Msg("skipping unparsable file")

			continue
		}

		u := &Unit{Path: path, Root: root, Fset: fset, File: file, Src: src}
		units = append(units, u)
		byPkg[file.Name.Name] = append(byPkg[file.Name.Name], u)
	}

	for name, pkgUnits := range byPkg {
		info := bestEffortInfo(fset, name, files(pkgUnits))
		for _, u := range pkgUnits {
			u.Info = info
		}
	}

	return units
}

func files(units []*Unit) []*ast.File {
	fs := make([]*ast.File, len(units))
	for i, u := range units {
		fs[i] = u.File
	}

	return fs
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
