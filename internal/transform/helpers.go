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

package transform

import (
	"fmt"
	"go/ast"
	"go/types"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/edit"
	"fillmore-labs.com/timershift/internal/usage"
)

// delayShape classifies the timing argument of a single-shot creation call.
type delayShape uint8

const (
	// delayMillis: a millisecond count, the legacy API's native unit.
	delayMillis delayShape = iota

	// delayAt: an absolute time value.
	delayAt

	// delayIn: a duration value.
	delayIn
)

// creationEdits rewrites every creation call to the matching generated
// scheduling helper, translating arguments positionally.
func (t *Transformer) creationEdits(facts *usage.Facts, sites *usage.Sites) ([]edit.Edit, error) {
	jobName := facts.CallbackStruct + "Job"

	var edits []edit.Edit

	for _, site := range sites.Creations {
		var replacement string

		switch site.Kind {
		case api.ServiceCallSingle:
			helper := [...]string{
				delayMillis: "scheduleJobAfterMillis",
				delayAt:     "scheduleJobAt",
				delayIn:     "scheduleJobAfter",
			}[t.delayShape(site.Call.Args[0])]

			replacement = fmt.Sprintf("%s.%s(%s, %s, %s, %q)",
				site.Recv, helper, site.DelayText, site.Payload, site.Persistent, jobName)

		case api.ServiceCallInterval:
			replacement = fmt.Sprintf("%s.scheduleJobEvery(%s, %s, %s, %s, %q)",
				site.Recv, site.DelayText, site.IntervalText, site.Payload, site.Persistent, jobName)

		case api.ServiceCallCalendar:
			if site.Expression == nil || !site.Expression.Safe {
				return nil, errors.Wrap(ErrNotRewritable, "calendar creation without safe expression")
			}

			replacement = fmt.Sprintf("%s.scheduleJobCron(%q, %s, %s, %q)",
				site.Recv, site.Expression.CronExpr, site.Payload, site.Persistent, jobName)

		default:
			continue
		}

		edits = append(edits, edit.ReplaceNode(t.Fset, site.Call, replacement))
	}

	return edits, nil
}

// delayShape decides which single-shot helper a timing argument needs,
// preferring resolved type information and falling back to syntactic
// heuristics. The legacy unit is milliseconds, so that is the default.
func (t *Transformer) delayShape(arg ast.Expr) delayShape {
	if name := t.resolvedTimeType(arg); name != "" {
		switch name {
		case "Time":
			return delayAt
		case "Duration":
			return delayIn
		}

		return delayMillis
	}

	text := t.text(arg)

	switch {
	case strings.Contains(text, "time.Now") || strings.Contains(text, "time.Date"):
		return delayAt

	case strings.Contains(text, "time.Millisecond") || strings.Contains(text, "time.Second") ||
		strings.Contains(text, "time.Minute") || strings.Contains(text, "time.Hour") ||
		strings.Contains(text, "time.Duration"):
		return delayIn
	}

	return delayMillis
}

// resolvedTimeType returns the name of a resolved time package type, or "".
func (t *Transformer) resolvedTimeType(arg ast.Expr) string {
	info := t.Info
	if info == nil {
		return ""
	}

	tv, ok := info.Types[arg]
	if !ok || tv.Type == nil {
		return ""
	}

	named, ok := tv.Type.(*types.Named)
	if !ok || named.Obj() == nil || named.Obj().Pkg() == nil || named.Obj().Pkg().Path() != "time" {
		return ""
	}

	return named.Obj().Name()
}

// helperEdits appends the generated scheduling helper methods. The three
// single-shot variants are always generated together: the rewritten call
// sites resolve statically and each variant must have somewhere valid to go.
func (t *Transformer) helperEdits(facts *usage.Facts, sites *usage.Sites) []edit.Edit {
	structs := make(map[string]string) // struct -> receiver ident

	for _, site := range sites.Creations {
		if _, ok := structs[site.Struct]; !ok && site.Struct != "" {
			structs[site.Struct] = site.Recv
		}
	}

	if len(structs) == 0 {
		return nil
	}

	names := make([]string, 0, len(structs))
	for name := range structs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder

	for _, structName := range names {
		t.writeHelpers(&b, facts, sites, structName, structs[structName])
	}

	return []edit.Edit{edit.Insert(len(t.Src), b.String())}
}

// writeHelpers emits the helper method set for one struct.
func (t *Transformer) writeHelpers(b *strings.Builder, facts *usage.Facts, sites *usage.Sites, structName, recv string) {
	field := firstServiceField(sites, structName)
	if recv == "" {
		recv = strings.ToLower(structName[:1])
	}

	spec := func(tail string) string {
		return fmt.Sprintf("%s.%s.Schedule(%s.NewJobSpec(jobName).WithData(%s, payload).Persistent(persistent)%s)",
			recv, field, t.Target.PkgName, strconv.Quote(t.Target.PayloadKey), tail)
	}

	if facts.UsesSingleAction {
		fmt.Fprintf(b, `
// scheduleJobAfterMillis schedules a one-shot job after a millisecond delay.
func (%[1]s *%[2]s) scheduleJobAfterMillis(delayMillis int64, payload any, persistent bool, jobName string) {
	%[1]s.scheduleJobAfter(time.Duration(delayMillis)*time.Millisecond, payload, persistent, jobName)
}

// scheduleJobAt schedules a one-shot job at an absolute time.
func (%[1]s *%[2]s) scheduleJobAt(at time.Time, payload any, persistent bool, jobName string) {
	%[3]s
}

// scheduleJobAfter schedules a one-shot job after a delay.
func (%[1]s *%[2]s) scheduleJobAfter(delay time.Duration, payload any, persistent bool, jobName string) {
	%[4]s
}
`, recv, structName, spec(".At(at)"), spec(".After(delay)"))
	}

	if facts.UsesInterval {
		fmt.Fprintf(b, `
// scheduleJobEvery schedules a repeating job with an initial delay.
func (%[1]s *%[2]s) scheduleJobEvery(initialMillis, intervalMillis int64, payload any, persistent bool, jobName string) {
	%[3]s
}
`, recv, structName,
			spec(".After(time.Duration(initialMillis)*time.Millisecond).Every(time.Duration(intervalMillis)*time.Millisecond)"))
	}

	if facts.UsesCalendar {
		fmt.Fprintf(b, `
// scheduleJobCron schedules a job on a cron expression.
func (%[1]s *%[2]s) scheduleJobCron(cronExpr string, payload any, persistent bool, jobName string) {
	%[3]s
}
`, recv, structName, spec(".Cron(cronExpr)"))
	}
}
