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

package artifact

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/corpus"
)

const generatedHeader = "// Code generated by timershift. DO NOT EDIT.\n\n"

func jobFileName(job JobClass) string {
	return strings.ToLower(job.Struct) + "_job.go"
}

// renderJob emits the job delegate adapting a struct's timeout callback to
// the scheduler's job interface.
func renderJob(target api.Target, job JobClass) []byte {
	var b bytes.Buffer

	b.WriteString(generatedHeader)
	fmt.Fprintf(&b, "package %s\n\n", job.Pkg)
	fmt.Fprintf(&b, "import (\n\t%q\n)\n\n", target.ImportPath)

	name := job.Name()

	fmt.Fprintf(&b, "// %s adapts %s's timeout callback to the scheduler's job interface.\n", name, job.Struct)
	fmt.Fprintf(&b, "type %s struct {\n\tdelegate *%s\n}\n\n", name, job.Struct)

	fmt.Fprintf(&b, "// New%s creates the job delegate.\n", name)
	fmt.Fprintf(&b, "func New%s(delegate *%s) *%s {\n\treturn &%s{delegate: delegate}\n}\n\n",
		name, job.Struct, name, name)

	ctxType := target.PkgName + "." + target.Context

	b.WriteString("// Execute runs the migrated timeout callback.\n")
	if job.TakesContext {
		fmt.Fprintf(&b, "func (j *%s) Execute(ctx %s) {\n\tj.delegate.%s(ctx)\n}\n",
			name, ctxType, job.Callback)
	} else {
		fmt.Fprintf(&b, "func (j *%s) Execute(_ %s) {\n\tj.delegate.%s()\n}\n",
			name, ctxType, job.Callback)
	}

	return b.Bytes()
}

// renderHandleCompat emits the compatibility timer handle, a value object
// standing in for the legacy opaque handle on the scheduler side.
func renderHandleCompat(target api.Target) []byte {
	var b bytes.Buffer

	b.WriteString(generatedHeader)
	fmt.Fprintf(&b, `// Package %[1]s carries value objects preserving legacy timer API
// semantics that the scheduler has no direct equivalent for.
package %[1]s

// TimerHandle identifies a scheduled job by name and group, standing in for
// the legacy opaque timer handle.
type TimerHandle struct {
	name  string
	group string
}

// NewTimerHandle creates a handle for the named job.
func NewTimerHandle(name, group string) TimerHandle {
	return TimerHandle{name: name, group: group}
}

// Name is the job name.
func (h TimerHandle) Name() string { return h.name }

// Group is the job group.
func (h TimerHandle) Group() string { return h.group }
`, target.CompatPkg)

	return b.Bytes()
}

// renderScheduleCompat emits the compatibility schedule, exposing the six
// calendar fields under their legacy accessor names plus the synthesized
// cron expression.
func renderScheduleCompat(target api.Target) []byte {
	var b bytes.Buffer

	b.WriteString(generatedHeader)
	fmt.Fprintf(&b, `package %s

// Schedule is the calendar schedule of a migrated timer, with the field
// accessors of the legacy calendar expression plus the synthesized cron
// expression driving the scheduler.
type Schedule struct {
	second     string
	minute     string
	hour       string
	dayOfMonth string
	dayOfWeek  string
	month      string
	cron       string
}

// NewSchedule creates a schedule from the six calendar fields and the cron
// expression synthesized from them.
func NewSchedule(second, minute, hour, dayOfMonth, dayOfWeek, month, cron string) Schedule {
	return Schedule{
		second:     second,
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		dayOfWeek:  dayOfWeek,
		month:      month,
		cron:       cron,
	}
}

// Second is the seconds field.
func (s Schedule) Second() string { return s.second }

// Minute is the minutes field.
func (s Schedule) Minute() string { return s.minute }

// Hour is the hours field.
func (s Schedule) Hour() string { return s.hour }

// DayOfMonth is the day-of-month field.
func (s Schedule) DayOfMonth() string { return s.dayOfMonth }

// DayOfWeek is the day-of-week field.
func (s Schedule) DayOfWeek() string { return s.dayOfWeek }

// Month is the months field.
func (s Schedule) Month() string { return s.month }

// Cron is the synthesized cron expression.
func (s Schedule) Cron() string { return s.cron }
`, target.CompatPkg)

	return b.Bytes()
}

// renderBootstrap emits the per-root job enumeration for wiring into the
// application bootstrap.
func renderBootstrap(root *corpus.Root, jobs []JobClass) []byte {
	var b bytes.Buffer

	b.WriteString(generatedHeader)
	b.WriteString(`// Package schedulerinit enumerates the scheduler jobs created by the
// migration, for wiring into the application bootstrap.
package schedulerinit

// Jobs lists the generated job classes of this module as package-qualified
// names.
var Jobs = []string{
`)

	for _, job := range jobs {
		fmt.Fprintf(&b, "\t%q,\n", qualifiedJobName(root, job))
	}

	b.WriteString("}\n")

	return b.Bytes()
}

func renderProperties(persistent bool) []byte {
	var b bytes.Buffer

	b.WriteString("# Generated by timershift.\n")
	fmt.Fprintf(&b, "scheduler.job-store.persistent=%t\n", persistent)

	return b.Bytes()
}

func manifestLine(root *corpus.Root, job JobClass) string {
	return qualifiedJobName(root, job)
}

// qualifiedJobName is the job class name qualified by its package import
// path, or by the bare package name when the root has no module path.
func qualifiedJobName(root *corpus.Root, job JobClass) string {
	pkgPath := job.Pkg

	if root.ModulePath != "" {
		if rel, err := filepath.Rel(root.Dir, job.Dir); err == nil {
			pkgPath = root.ModulePath
			if rel != "." {
				pkgPath += "/" + filepath.ToSlash(rel)
			}
		}
	}

	return pkgPath + "." + job.Name()
}
