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

package usage_test

import (
	"go/parser"
	"go/token"
	"testing"

	"fillmore-labs.com/timershift/internal/api"
	. "fillmore-labs.com/timershift/internal/usage"
)

func analyze(t *testing.T, src string) (*Facts, *Sites) {
	t.Helper()

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "unit.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing test source: %v", err)
	}

	res := api.NewResolver(api.DefaultLegacy(), nil, file)
	a := Analyzer{Res: res, Fset: fset, Src: []byte(src)}

	return a.Analyze(file)
}

const header = `package p

import "enterprise.example/container/timer"

type Poller struct {
	timers timer.Service
}
`

func TestSingleActionUnit(t *testing.T) {
	t.Parallel()

	facts, sites := analyze(t, header+`
func NewPoller(svc timer.Service) *Poller {
	return &Poller{timers: svc}
}

func (p *Poller) refresh() {
	p.timers.CreateSingleActionTimer(5000, timer.NewConfig("refresh", false))
}

//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	process(t.Payload())
}

func process(v any) {}
`)

	if !facts.UsesSingleAction || facts.UsesInterval || facts.UsesCalendar {
		t.Errorf("creation flags = %t %t %t, want single action only",
			facts.UsesSingleAction, facts.UsesInterval, facts.UsesCalendar)
	}

	if facts.CallbackCount != 1 || facts.CallbackName != "onTimeout" || facts.CallbackStruct != "Poller" {
		t.Errorf("callback = %d %s.%s, want 1 Poller.onTimeout",
			facts.CallbackCount, facts.CallbackStruct, facts.CallbackName)
	}

	if !facts.CallbackHasTimerParam || facts.CallbackParam != "t" {
		t.Errorf("callback param = %t %q, want true %q", facts.CallbackHasTimerParam, facts.CallbackParam, "t")
	}

	if !facts.UsesPayload || len(sites.PayloadCalls) != 1 {
		t.Errorf("payload = %t with %d sites, want one rewritable site", facts.UsesPayload, len(sites.PayloadCalls))
	}

	if facts.MayRequirePersistence {
		t.Error("MayRequirePersistence = true for an explicitly transient timer")
	}

	if len(facts.Inconsistencies) != 0 {
		t.Errorf("unexpected inconsistencies: %q", facts.Inconsistencies)
	}

	if len(sites.Creations) != 1 {
		t.Fatalf("got %d creation sites, want 1", len(sites.Creations))
	}

	site := sites.Creations[0]
	if site.DelayText != "5000" || site.Payload != `"refresh"` || site.Persistent != "false" {
		t.Errorf("creation decoded as delay=%q payload=%q persistent=%q", site.DelayText, site.Payload, site.Persistent)
	}

	if site.Recv != "p" || site.Struct != "Poller" || site.Field != "timers" {
		t.Errorf("creation site bound to %s.%s on %s", site.Recv, site.Field, site.Struct)
	}

	if len(sites.Constructors) != 1 {
		t.Errorf("got %d constructors, want 1", len(sites.Constructors))
	}

	if pat := facts.Pattern(); pat != "single" {
		t.Errorf("Pattern() = %q, want %q", pat, "single")
	}
}

func TestHandleChainCancel(t *testing.T) {
	t.Parallel()

	facts, sites := analyze(t, header+`
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	h := t.Handle()
	h.Timer().Cancel()
}
`)

	if !facts.UsesHandle {
		t.Error("UsesHandle = false")
	}

	if facts.HandleEscapes {
		t.Error("HandleEscapes = true for a handle confined to the callback")
	}

	if facts.UsesCancel {
		t.Error("UsesCancel = true; the chained cancellation is the rewritable form")
	}

	if len(sites.HandleBinds) != 1 || sites.HandleBinds[0].Name != "h" {
		t.Fatalf("HandleBinds = %v, want one binding of h", sites.HandleBinds)
	}

	if len(sites.HandleCancels) != 1 || sites.HandleCancels[0].Handle != "h" {
		t.Fatalf("HandleCancels = %v, want one cancellation through h", sites.HandleCancels)
	}
}

func TestEscapes(t *testing.T) {
	t.Parallel()

	testCases := [...]struct {
		name string
		src  string
		chk  func(*testing.T, *Facts)
	}{
		{
			name: "handle returned",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) stash(t *timer.Timer) timer.Handle {
	return t.Handle()
}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.HandleEscapes {
					t.Error("HandleEscapes = false for a returned handle")
				}
			},
		},
		{
			name: "handle passed as argument",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	h := t.Handle()
	remember(h)
}

func remember(v any) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.HandleEscapes {
					t.Error("HandleEscapes = false for a handle passed to another function")
				}
			},
		},
		{
			name: "handle struct field",
			src: `
type keeper struct {
	h timer.Handle
}

//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.HandleEscapes {
					t.Error("HandleEscapes = false for a handle-typed struct field")
				}
			},
		},
		{
			name: "handle stored through field",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	p.state = t.Handle()
}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.HandleEscapes {
					t.Error("HandleEscapes = false for a handle stored through a field")
				}
			},
		},
		{
			name: "handle address taken",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	h := t.Handle()
	use(&h)
}

func use(v any) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.HandleEscapes {
					t.Error("HandleEscapes = false for an address-taken handle")
				}
			},
		},
		{
			name: "handle parameter of helper",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func inspect(h timer.Handle) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.HandleEscapes {
					t.Error("HandleEscapes = false for a handle-typed parameter")
				}
			},
		},
		{
			name: "schedule confined to callback",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	s := t.Schedule()
	record(s.Hour())
}

func record(v string) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.UsesSchedule {
					t.Error("UsesSchedule = false")
				}
				if f.ScheduleEscapes {
					t.Error("ScheduleEscapes = true for a schedule confined to the callback")
				}
			},
		},
		{
			name: "schedule in composite literal",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	s := t.Schedule()
	keep([]any{s})
}

func keep(v []any) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.ScheduleEscapes {
					t.Error("ScheduleEscapes = false for a schedule in a composite literal")
				}
			},
		},
		{
			name: "timer value bound",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) refresh() {
	tm := p.timers.CreateSingleActionTimer(100, nil)
	_ = tm
}
`,
			chk: func(t *testing.T, f *Facts) {
				if len(f.Inconsistencies) == 0 {
					t.Error("binding the created timer value reported no inconsistency")
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			facts, _ := analyze(t, header+tc.src)
			tc.chk(t, facts)
		})
	}
}

func TestUnsafeUsageFlags(t *testing.T) {
	t.Parallel()

	testCases := [...]struct {
		name string
		src  string
		chk  func(*testing.T, *Facts)
	}{
		{
			name: "enumeration",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) drain() {
	for range p.timers.GetAllTimers() {
	}
}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.UsesEnumeration {
					t.Error("UsesEnumeration = false")
				}
			},
		},
		{
			name: "direct cancel",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	t.Cancel()
}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.UsesCancel {
					t.Error("UsesCancel = false")
				}
			},
		},
		{
			name: "unknown inspection method",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {
	_ = t.GetTimeRemaining()
}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.UsesUnsupportedInspection {
					t.Error("UsesUnsupportedInspection = false")
				}
			},
		},
		{
			name: "timer struct field",
			src: `
type watcher struct {
	active *timer.Timer
}

//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.UsesUnsupportedInspection {
					t.Error("UsesUnsupportedInspection = false for a timer-typed field")
				}
			},
		},
		{
			name: "package level service var",
			src: `
var shared timer.Service

//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if !f.UsesUnsupportedInspection {
					t.Error("UsesUnsupportedInspection = false for a package-level service variable")
				}
			},
		},
		{
			name: "two callbacks",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

//timer:timeout
func (p *Poller) onExpiry(t *timer.Timer) {}
`,
			chk: func(t *testing.T, f *Facts) {
				if f.CallbackCount != 2 {
					t.Errorf("CallbackCount = %d, want 2", f.CallbackCount)
				}
			},
		},
		{
			name: "creation argument count",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) refresh() {
	p.timers.CreateSingleActionTimer(100)
}
`,
			chk: func(t *testing.T, f *Facts) {
				if len(f.Inconsistencies) == 0 {
					t.Error("unexpected argument count reported no inconsistency")
				}
			},
		},
		{
			name: "opaque configuration",
			src: `
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) refresh(cfg *timer.Config) {
	p.timers.CreateSingleActionTimer(100, cfg)
}
`,
			chk: func(t *testing.T, f *Facts) {
				if len(f.Inconsistencies) == 0 {
					t.Error("non-literal configuration reported no inconsistency")
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			facts, _ := analyze(t, header+tc.src)
			tc.chk(t, facts)
		})
	}
}

func TestCalendarCreation(t *testing.T) {
	t.Parallel()

	facts, sites := analyze(t, header+`
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) nightly() {
	p.timers.CreateCalendarTimer(timer.NewScheduleExpression().Hour("2"), nil)
}
`)

	if !facts.UsesCalendar {
		t.Error("UsesCalendar = false")
	}

	if facts.Expression == nil || !facts.Expression.Safe {
		t.Fatalf("Expression = %+v, want safe parsed expression", facts.Expression)
	}

	if facts.Expression.CronExpr != "0 0 2 * * ?" {
		t.Errorf("CronExpr = %q, want %q", facts.Expression.CronExpr, "0 0 2 * * ?")
	}

	// Nil configuration defaults calendar timers to persistent.
	if !facts.MayRequirePersistence {
		t.Error("MayRequirePersistence = false for a nil-config calendar timer")
	}

	if len(sites.Creations) != 1 || sites.Creations[0].Persistent != "true" {
		t.Fatalf("Creations = %v, want one persistent site", sites.Creations)
	}
}

// TestUnsafeExpressionWins checks that with several calendar sites the unit
// keeps the unsafe expression for reporting.
func TestUnsafeExpressionWins(t *testing.T) {
	t.Parallel()

	facts, _ := analyze(t, header+`
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) nightly() {
	p.timers.CreateCalendarTimer(timer.NewScheduleExpression().Hour("2"), nil)
	p.timers.CreateCalendarTimer(timer.NewScheduleExpression().Year("2026"), nil)
}
`)

	if facts.Expression == nil || facts.Expression.Safe {
		t.Fatalf("Expression = %+v, want the unsafe expression retained", facts.Expression)
	}
}

func TestIntervalCreation(t *testing.T) {
	t.Parallel()

	facts, sites := analyze(t, header+`
//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) {}

func (p *Poller) start() {
	p.timers.CreateIntervalTimer(1000, 60000, timer.NewConfig("tick", true))
}
`)

	if !facts.UsesInterval {
		t.Error("UsesInterval = false")
	}

	if !facts.MayRequirePersistence {
		t.Error("MayRequirePersistence = false for an explicitly persistent timer")
	}

	if len(sites.Creations) != 1 {
		t.Fatalf("got %d creation sites, want 1", len(sites.Creations))
	}

	site := sites.Creations[0]
	if site.DelayText != "1000" || site.IntervalText != "60000" {
		t.Errorf("interval decoded as delay=%q interval=%q", site.DelayText, site.IntervalText)
	}
}
