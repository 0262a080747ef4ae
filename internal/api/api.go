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

// Package api describes the legacy container-managed timer API that is being
// migrated away from and the external job-scheduler API that replaces it.
//
// Both descriptions are plain name tables. The migration engine never links
// against either API; it only recognizes references to the legacy one and
// emits references to the target one.
package api

// Legacy names the types and operations of the container-managed timer API.
type Legacy struct {
	// ImportPath is the import path of the legacy timer package.
	ImportPath string

	// PkgName is the package identifier used in qualified references.
	PkgName string

	// Service is the injected timer service type.
	Service string

	// Timer is the active timer value type.
	Timer string

	// Handle is the opaque timer handle type.
	Handle string

	// Schedule is the calendar-expression builder type.
	Schedule string

	// Config is the timer configuration type.
	Config string

	// NewSchedule is the calendar-expression constructor.
	NewSchedule string

	// NewConfig is the timer configuration constructor.
	NewConfig string

	// Directive is the comment directive designating the timeout callback.
	Directive string
}

// Target names the types of the external job scheduler that call sites are
// rewritten to.
type Target struct {
	// ImportPath is the import path of the scheduler package.
	ImportPath string

	// PkgName is the package identifier used in emitted code.
	PkgName string

	// Scheduler is the scheduler service type.
	Scheduler string

	// Context is the job execution context type.
	Context string

	// PayloadKey is the keyed-data entry the legacy payload is stored under.
	PayloadKey string

	// CompatPkg is the package name of the generated compatibility value
	// objects, emitted once per module root.
	CompatPkg string
}

// DefaultLegacy returns the descriptor for the supported legacy timer API.
func DefaultLegacy() Legacy {
	return Legacy{
		ImportPath:  "enterprise.example/container/timer",
		PkgName:     "timer",
		Service:     "Service",
		Timer:       "Timer",
		Handle:      "Handle",
		Schedule:    "ScheduleExpression",
		Config:      "Config",
		NewSchedule: "NewScheduleExpression",
		NewConfig:   "NewConfig",
		Directive:   "//timer:timeout",
	}
}

// DefaultTarget returns the descriptor for the supported job scheduler.
func DefaultTarget() Target {
	return Target{
		ImportPath: "enterprise.example/sched/quartz",
		PkgName:    "quartz",
		Scheduler:  "Scheduler",
		Context:    "Context",
		PayloadKey: "payload",
		CompatPkg:  "timercompat",
	}
}

// ServiceCall classifies a call on the legacy timer service by method name.
type ServiceCall uint8

const (
	// ServiceCallUnknown is any service method the migration does not model.
	ServiceCallUnknown ServiceCall = iota

	// ServiceCallSingle is single-shot timer creation.
	ServiceCallSingle

	// ServiceCallInterval is repeating-interval timer creation.
	ServiceCallInterval

	// ServiceCallCalendar is calendar-expression timer creation.
	ServiceCallCalendar

	// ServiceCallEnumerate is dynamic enumeration of active timers.
	ServiceCallEnumerate
)

// ClassifyServiceCall maps a legacy service method name to its kind.
// Unknown names fail closed and are treated as unsupported by callers.
func ClassifyServiceCall(name string) ServiceCall {
	switch name {
	case "CreateSingleActionTimer":
		return ServiceCallSingle
	case "CreateIntervalTimer":
		return ServiceCallInterval
	case "CreateCalendarTimer":
		return ServiceCallCalendar
	case "GetTimers", "GetAllTimers":
		return ServiceCallEnumerate
	default:
		return ServiceCallUnknown
	}
}

// TimerCall classifies a call on a legacy timer value by method name.
type TimerCall uint8

const (
	// TimerCallUnknown is any timer method the migration does not model.
	// It includes the inspection calls that have no scheduler equivalent.
	TimerCallUnknown TimerCall = iota

	// TimerCallCancel cancels the timer.
	TimerCallCancel

	// TimerCallHandle retrieves the timer handle.
	TimerCallHandle

	// TimerCallPayload retrieves the timer payload.
	TimerCallPayload

	// TimerCallSchedule retrieves the calendar expression.
	TimerCallSchedule
)

// ClassifyTimerCall maps a legacy timer method name to its kind.
func ClassifyTimerCall(name string) TimerCall {
	switch name {
	case "Cancel":
		return TimerCallCancel
	case "Handle":
		return TimerCallHandle
	case "Payload":
		return TimerCallPayload
	case "Schedule":
		return TimerCallSchedule
	default:
		return TimerCallUnknown
	}
}

// ScheduleSetter classifies a calendar-expression builder method.
type ScheduleSetter uint8

const (
	// SetterUnknown is an unrecognized builder method.
	SetterUnknown ScheduleSetter = iota

	// SetterSupported is a builder method with a cron equivalent.
	SetterSupported

	// SetterUnsupported is a builder method with no cron equivalent.
	SetterUnsupported
)

// ClassifySetter maps a calendar-expression method name to its kind.
func ClassifySetter(name string) ScheduleSetter {
	switch name {
	case "Second", "Minute", "Hour", "DayOfMonth", "DayOfWeek", "Month":
		return SetterSupported
	case "Year", "Timezone", "Start", "End":
		return SetterUnsupported
	default:
		return SetterUnknown
	}
}
