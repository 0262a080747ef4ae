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

package fallback_test

import (
	"encoding/json"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"fillmore-labs.com/timershift/internal/api"
	. "fillmore-labs.com/timershift/internal/fallback"
	"fillmore-labs.com/timershift/internal/usage"
)

func mark(t *testing.T, src string, reasons ...string) string {
	t.Helper()

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "unit.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing test source: %v", err)
	}

	res := api.NewResolver(api.DefaultLegacy(), nil, file)

	a := usage.Analyzer{Res: res, Fset: fset, Src: []byte(src)}
	facts, sites := a.Analyze(file)

	e := &Emitter{Target: api.DefaultTarget(), Res: res, Fset: fset, Src: []byte(src)}

	out, err := e.Mark(file, facts, sites, reasons)
	if err != nil {
		t.Fatalf("Mark() error: %v", err)
	}

	return string(out)
}

// markerLine extracts the JSON document following the given marker prefix.
func markerLine(t *testing.T, out, prefix string) map[string]any {
	t.Helper()

	i := strings.Index(out, prefix)
	if i < 0 {
		t.Fatalf("output has no %q marker:\n%s", prefix, out)
	}

	line := out[i+len(prefix):]
	if j := strings.IndexByte(line, '\n'); j >= 0 {
		line = line[:j]
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("marker payload %q is not valid JSON: %v", line, err)
	}

	return payload
}

func TestMarkEnumerationUnit(t *testing.T) {
	t.Parallel()

	out := mark(t, `package p

import "enterprise.example/container/timer"

type Poller struct {
	timers timer.Service
}

//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	for _, x := range p.timers.GetTimers() {
		x.Cancel()
	}
}

func stash(h timer.Handle) timer.Handle {
	return h
}
`, "timer enumeration has no scheduler equivalent")

	marker := markerLine(t, out, MarkerPrefix)

	if marker["reason"] != "timer enumeration has no scheduler equivalent" {
		t.Errorf("marker reason = %v", marker["reason"])
	}

	if marker["category"] != "TIMER" {
		t.Errorf("marker category = %v, want TIMER", marker["category"])
	}

	if code, _ := marker["originalCode"].(string); !strings.Contains(code, "onTimeout") {
		t.Errorf("marker originalCode = %q, want the callback declaration", code)
	}

	facts := markerLine(t, out, FactsPrefix)

	if facts["enumeration"] != true {
		t.Errorf("facts enumeration = %v, want true", facts["enumeration"])
	}

	if facts["callbacks"] != float64(1) {
		t.Errorf("facts callbacks = %v, want 1", facts["callbacks"])
	}

	// The markers sit directly above the callback declaration.
	if strings.Index(out, MarkerPrefix) > strings.Index(out, "func (p *Poller) onTimeout") {
		t.Error("markers placed after the callback declaration")
	}

	for _, want := range []string{
		`"enterprise.example/sched/quartz"`,
		"func (p *Poller) onTimeout(t quartz.Context) {",
		"func stash(h any) any {",
		`panic("timershift: Poller.onTimeout requires manual migration")`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("marked unit missing %q:\n%s", want, out)
		}
	}

	for _, absent := range []string{
		"enterprise.example/container/timer",
		"//timer:timeout",
		"timers timer.Service",
		"GetTimers",
	} {
		if strings.Contains(out, absent) {
			t.Errorf("marked unit still contains %q:\n%s", absent, out)
		}
	}
}

// TestMarkPackageVarUnit covers a unit with no callback: the markers attach
// to the first declaration, the package-level service variable is removed and
// with no retyped signature the legacy import disappears entirely.
func TestMarkPackageVarUnit(t *testing.T) {
	t.Parallel()

	out := mark(t, `package p

import "enterprise.example/container/timer"

var shared timer.Service

func use() {
	shared.CreateSingleActionTimer(5000, nil)
}
`, "package-level timer service cannot be analyzed per unit")

	markerLine(t, out, MarkerPrefix)
	markerLine(t, out, FactsPrefix)

	for _, want := range []string{
		`panic("timershift: use requires manual migration")`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("marked unit missing %q:\n%s", want, out)
		}
	}

	for _, absent := range []string{
		"enterprise.example/container/timer",
		"var shared",
		"CreateSingleActionTimer",
		"quartz",
	} {
		if strings.Contains(out, absent) {
			t.Errorf("marked unit still contains %q:\n%s", absent, out)
		}
	}
}

// TestMarkIsDetectable checks the round trip the pipeline relies on: a
// marked unit carries the prefix that keeps it from being marked twice.
func TestMarkIsDetectable(t *testing.T) {
	t.Parallel()

	out := mark(t, `package p

import "enterprise.example/container/timer"

//timer:timeout
func run(t *timer.Timer) {
	t.Cancel()
}
`, "direct cancellation requires manual review")

	if !strings.Contains(out, MarkerPrefix) {
		t.Fatal("marked unit does not carry the fallback marker prefix")
	}

	if strings.Count(out, MarkerPrefix) != 1 || strings.Count(out, FactsPrefix) != 1 {
		t.Error("expected exactly one marker pair")
	}
}
