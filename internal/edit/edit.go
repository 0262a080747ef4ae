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

// Package edit applies byte-offset text edits to source files.
//
// The edit model mirrors the text-edit shape of the go/analysis suggested-fix
// machinery, but works on raw bytes so it can be applied to files outside an
// analysis pass.
package edit

import (
	"go/ast"
	"go/token"
	"slices"

	"github.com/cockroachdb/errors"
)

// Edit replaces src[Pos:End] with New. An insertion has Pos == End.
type Edit struct {
	Pos, End int
	New      string
}

// Replace creates an edit replacing the span [pos, end).
func Replace(pos, end int, text string) Edit { return Edit{Pos: pos, End: end, New: text} }

// Insert creates an edit inserting text at pos.
func Insert(pos int, text string) Edit { return Edit{Pos: pos, End: pos, New: text} }

// Delete creates an edit removing the span [pos, end).
func Delete(pos, end int) Edit { return Edit{Pos: pos, End: end} }

// ReplaceNode creates an edit replacing the source span of an AST node.
func ReplaceNode(fset *token.FileSet, n ast.Node, text string) Edit {
	pos, end := Span(fset, n)

	return Replace(pos, end, text)
}

// DeleteNode creates an edit removing the source span of an AST node.
func DeleteNode(fset *token.FileSet, n ast.Node) Edit {
	pos, end := Span(fset, n)

	return Delete(pos, end)
}

// Span returns the byte offsets of an AST node within its file.
func Span(fset *token.FileSet, n ast.Node) (pos, end int) {
	return fset.Position(n.Pos()).Offset, fset.Position(n.End()).Offset
}

// ErrOverlap is returned when two edits touch overlapping spans.
var ErrOverlap = errors.New("overlapping edits")

// ErrOutOfRange is returned when an edit span exceeds the source length.
var ErrOutOfRange = errors.New("edit out of range")

// Apply returns a copy of src with all edits applied.
//
// Edits are sorted by position; insertions at the same position keep their
// relative order. Overlapping spans are rejected rather than resolved, since
// an overlap always indicates a transformer bug.
func Apply(src []byte, edits []Edit) ([]byte, error) {
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b Edit) int {
		if a.Pos != b.Pos {
			return a.Pos - b.Pos
		}

		return a.End - b.End
	})

	var out []byte

	last := 0
	for _, e := range sorted {
		switch {
		case e.Pos < 0 || e.End < e.Pos || e.End > len(src):
			return nil, errors.Wrapf(ErrOutOfRange, "[%d:%d) in %d bytes", e.Pos, e.End, len(src))

		case e.Pos < last:
			return nil, errors.Wrapf(ErrOverlap, "edit at %d begins before %d", e.Pos, last)
		}

		out = append(out, src[last:e.Pos]...)
		out = append(out, e.New...)
		last = e.End
	}

	out = append(out, src[last:]...)

	return out, nil
}
