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
	"slices"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/schedule"
)

// classifyCall inspects one call expression. Calls whose receiver is a known
// legacy-service field or a tracked legacy value are classified into the
// usage flags; everything else is walked generically so tracked values
// passed as arguments still escape.
func (m *method) classifyCall(call *ast.CallExpr) produced {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		m.walkArgs(call.Args)

		return prodNone
	}

	name := sel.Sel.Name

	switch x := sel.X.(type) {
	case *ast.SelectorExpr:
		// recv.field.Method(...): a call through a legacy-service field.
		if id, ok := x.X.(*ast.Ident); ok && id.Name == m.recvName && m.isServiceField(x.Sel.Name) {
			return m.serviceCall(call, name, x.Sel.Name)
		}

		m.walkExpr(x, ctxDiscard)
		m.walkArgs(call.Args)

	case *ast.Ident:
		switch {
		case m.serviceVars[x.Name]:
			return m.serviceValueCall(call, name, x.Name)

		case x.Name == m.callbackParam && x.Name != "":
			return m.timerCall(call, name, true)

		case m.timerVars[x.Name]:
			return m.timerCall(call, name, false)

		case m.handleVars[x.Name]:
			return m.handleCall(call, name)

		case m.scheduleVars[x.Name]:
			return m.scheduleCall(call, name)

		default:
			m.walkArgs(call.Args)
		}

	case *ast.CallExpr:
		// Chained receiver: classify the inner call first.
		inner := m.walkExpr(x, ctxChain)
		if inner == prodTimer {
			return m.chainedTimerCall(call, x, name)
		}

		m.walkArgs(call.Args)

	default:
		m.walkExpr(x, ctxDiscard)
		m.walkArgs(call.Args)
	}

	return prodNone
}

func (m *method) isServiceField(name string) bool {
	if m.recvType == "" {
		return false
	}

	return slices.Contains(m.facts.ServiceFields[m.recvType], name)
}

// serviceCall classifies a call through a legacy-service field.
func (m *method) serviceCall(call *ast.CallExpr, name, field string) produced {
	m.sawLegacy = true

	kind := api.ClassifyServiceCall(name)
	switch kind {
	case api.ServiceCallSingle, api.ServiceCallInterval, api.ServiceCallCalendar:
		return m.creation(call, kind, field)

	case api.ServiceCallEnumerate:
		m.facts.UsesEnumeration = true
		m.walkArgs(call.Args)

	default:
		m.facts.UsesUnsupportedInspection = true
		m.walkArgs(call.Args)
	}

	return prodNone
}

// serviceValueCall classifies a call on a service value that is not a field
// of the enclosing receiver. Creation through such a reference has no struct
// to attach the generated scheduling helpers to, so it is not rewritable.
func (m *method) serviceValueCall(call *ast.CallExpr, name, recv string) produced {
	m.sawLegacy = true

	kind := api.ClassifyServiceCall(name)
	switch kind {
	case api.ServiceCallSingle:
		m.facts.UsesSingleAction = true
	case api.ServiceCallInterval:
		m.facts.UsesInterval = true
	case api.ServiceCallCalendar:
		m.facts.UsesCalendar = true
	case api.ServiceCallEnumerate:
		m.facts.UsesEnumeration = true
		m.walkArgs(call.Args)

		return prodNone
	default:
		m.facts.UsesUnsupportedInspection = true
		m.walkArgs(call.Args)

		return prodNone
	}

	m.inconsistency("timer creation through service value " + recv + " is not rewritable")
	m.walkArgs(call.Args)

	return prodTimer
}

// timerCall classifies a call on a timer value. onParam is true only for a
// direct call on the designated callback parameter inside the callback.
func (m *method) timerCall(call *ast.CallExpr, name string, onParam bool) produced {
	m.sawLegacy = true
	m.walkArgs(call.Args)

	switch api.ClassifyTimerCall(name) {
	case api.TimerCallCancel:
		// Direct cancellation; only handle-chain cancellation is safe.
		m.facts.UsesCancel = true

	case api.TimerCallHandle:
		m.facts.UsesHandle = true
		if !onParam {
			// Retrieved from something other than the callback parameter.
			m.facts.HandleEscapes = true
		}

		return prodHandle

	case api.TimerCallPayload:
		if onParam {
			m.facts.UsesPayload = true
			m.sites.PayloadCalls = append(m.sites.PayloadCalls, call)
		} else {
			m.facts.UsesUnsupportedInspection = true
		}

	case api.TimerCallSchedule:
		m.facts.UsesSchedule = true
		if !onParam {
			m.facts.ScheduleEscapes = true
		}

		return prodSchedule

	default:
		m.facts.UsesUnsupportedInspection = true
	}

	return prodNone
}

// handleCall classifies a call on a tracked handle value. The legacy handle
// exposes exactly one operation, retrieving its timer.
func (m *method) handleCall(call *ast.CallExpr, name string) produced {
	m.sawLegacy = true
	m.facts.UsesHandle = true
	m.walkArgs(call.Args)

	if name != "Timer" {
		m.facts.UsesUnsupportedInspection = true

		return prodNone
	}

	if !m.inCallback {
		// Handle used outside the designated callback.
		m.facts.HandleEscapes = true
	}

	return prodTimer
}

// scheduleCall classifies a call on a tracked schedule value. The supported
// calendar accessors survive the rewrite to the compatibility object;
// anything else does not.
func (m *method) scheduleCall(call *ast.CallExpr, name string) produced {
	m.sawLegacy = true
	m.walkArgs(call.Args)

	if api.ClassifySetter(name) != api.SetterSupported || len(call.Args) != 0 {
		m.facts.UsesUnsupportedInspection = true
	}

	return prodNone
}

// chainedTimerCall classifies a call chained onto an expression producing a
// timer, such as h.Timer().Cancel(). Only that cancellation chain, inside
// the callback, is rewritable.
func (m *method) chainedTimerCall(call, inner *ast.CallExpr, name string) produced {
	if name == "Cancel" {
		if h := m.handleChain(inner); h != "" && m.inCallback {
			m.walkArgs(call.Args)
			m.sites.HandleCancels = append(m.sites.HandleCancels,
				HandleCancel{Call: call, Handle: h, Recv: m.recvName, Struct: m.recvType})

			return prodNone
		}
	}

	return m.timerCall(call, name, false)
}

// handleChain reports the handle identifier when inner is h.Timer() on a
// tracked handle.
func (m *method) handleChain(inner *ast.CallExpr) string {
	sel, ok := inner.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Timer" {
		return ""
	}

	id, ok := sel.X.(*ast.Ident)
	if !ok || !m.handleVars[id.Name] {
		return ""
	}

	return id.Name
}

// argCount is the expected argument count per creation kind.
func argCount(kind api.ServiceCall) int {
	if kind == api.ServiceCallInterval {
		return 3
	}

	return 2
}

// creation decodes one timer creation call site.
func (m *method) creation(call *ast.CallExpr, kind api.ServiceCall, field string) produced {
	switch kind {
	case api.ServiceCallSingle:
		m.facts.UsesSingleAction = true
	case api.ServiceCallInterval:
		m.facts.UsesInterval = true
	case api.ServiceCallCalendar:
		m.facts.UsesCalendar = true
	}

	if len(call.Args) != argCount(kind) {
		// Never silently drop a call expression: flag it and leave the
		// site untouched.
		m.inconsistency("creation call in " + m.fn.Name.Name + " has an unexpected argument count")
		m.walkArgs(call.Args)

		return prodTimer
	}

	site := &Creation{Kind: kind, Call: call, Recv: m.recvName, Struct: m.recvType, Field: field}

	switch kind {
	case api.ServiceCallSingle:
		site.DelayText = m.text(call.Args[0])
		m.walkExpr(call.Args[0], ctxEscape)

	case api.ServiceCallInterval:
		site.DelayText = m.text(call.Args[0])
		site.IntervalText = m.text(call.Args[1])
		m.walkExpr(call.Args[0], ctxEscape)
		m.walkExpr(call.Args[1], ctxEscape)

	case api.ServiceCallCalendar:
		site.Expression = schedule.Parse(call.Args[0], m.Res)
		m.attachExpression(site.Expression)
		m.walkExpr(call.Args[0], ctxEscape)
	}

	m.decodeConfig(site, call.Args[len(call.Args)-1])
	m.sites.Creations = append(m.sites.Creations, site)

	return prodTimer
}

// attachExpression keeps one expression per unit: the first unsafe one, or
// the first seen when all are safe.
func (m *method) attachExpression(f *schedule.ExpressionFacts) {
	if m.facts.Expression == nil || (m.facts.Expression.Safe && !f.Safe) {
		m.facts.Expression = f
	}
}

// decodeConfig extracts payload and persistence from the configuration
// argument. A nil configuration falls back to the legacy framework default:
// transient for single-shot and interval timers, persistent for calendar
// timers.
func (m *method) decodeConfig(site *Creation, cfg ast.Expr) {
	if id, ok := cfg.(*ast.Ident); ok && id.Name == "nil" {
		site.Payload = "nil"

		if site.Kind == api.ServiceCallCalendar {
			site.Persistent = "true"
			m.facts.MayRequirePersistence = true
		} else {
			site.Persistent = "false"
		}

		return
	}

	call, ok := cfg.(*ast.CallExpr)
	if !ok || !m.Res.IsLegacyFunc(call.Fun, m.Res.Legacy().NewConfig) || len(call.Args) != 2 {
		m.inconsistency("timer configuration in " + m.fn.Name.Name + " is not a literal construction")
		m.walkExpr(cfg, ctxEscape)

		return
	}

	site.Payload = m.text(call.Args[0])
	site.Persistent = m.text(call.Args[1])
	m.walkExpr(call.Args[0], ctxEscape)

	if site.Persistent != "false" {
		m.facts.MayRequirePersistence = true
	}
}
