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

// Package timer is a stub of the legacy container-managed timer API, just
// enough surface for the test fixtures to type-check.
package timer

// Service creates and enumerates container-managed timers.
type Service interface {
	CreateSingleActionTimer(delay int64, config *Config) *Timer
	CreateIntervalTimer(initial, interval int64, config *Config) *Timer
	CreateCalendarTimer(expr *ScheduleExpression, config *Config) *Timer
	GetTimers() []*Timer
	GetAllTimers() []*Timer
}

// Timer is a running container-managed timer.
type Timer struct{}

func (t *Timer) Cancel()                       {}
func (t *Timer) Handle() Handle                { return Handle{} }
func (t *Timer) Payload() any                  { return nil }
func (t *Timer) Schedule() *ScheduleExpression { return nil }
func (t *Timer) TimeRemaining() int64          { return 0 }

// Handle is the serializable reference to a timer.
type Handle struct{}

func (h Handle) Timer() *Timer { return nil }

// Config carries the payload and persistence flag of a new timer.
type Config struct{}

func NewConfig(payload any, persistent bool) *Config { return nil }

// ScheduleExpression is the builder for calendar-based timers.
type ScheduleExpression struct{}

func NewScheduleExpression() *ScheduleExpression { return &ScheduleExpression{} }

func (e *ScheduleExpression) Second(v string) *ScheduleExpression     { return e }
func (e *ScheduleExpression) Minute(v string) *ScheduleExpression     { return e }
func (e *ScheduleExpression) Hour(v string) *ScheduleExpression       { return e }
func (e *ScheduleExpression) DayOfMonth(v string) *ScheduleExpression { return e }
func (e *ScheduleExpression) DayOfWeek(v string) *ScheduleExpression  { return e }
func (e *ScheduleExpression) Month(v string) *ScheduleExpression      { return e }
func (e *ScheduleExpression) Year(v string) *ScheduleExpression       { return e }
func (e *ScheduleExpression) Timezone(v string) *ScheduleExpression   { return e }
