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

package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fillmore-labs.com/timershift/internal/api"
	. "fillmore-labs.com/timershift/internal/artifact"
	"fillmore-labs.com/timershift/internal/corpus"
)

func read(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err, "reading artifact %s", path)

	return string(data)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	root := &corpus.Root{Dir: tmp, ModulePath: "example.com/app"}

	store := NewStore(api.DefaultTarget())
	store.RecordJob(root, JobClass{
		Dir:          filepath.Join(tmp, "internal", "poll"),
		Pkg:          "poll",
		Struct:       "Poller",
		Callback:     "onTimeout",
		TakesContext: true,
	})
	store.RecordHandleCompat(root)
	store.RecordScheduleCompat(root)
	store.RecordPersistence(root)

	require.NoError(t, store.Generate(false, zerolog.Nop()))

	job := read(t, filepath.Join(tmp, "internal", "poll", "poller_job.go"))
	assert.Contains(t, job, "// Code generated by timershift. DO NOT EDIT.")
	assert.Contains(t, job, "package poll")
	assert.Contains(t, job, `"enterprise.example/sched/quartz"`)
	assert.Contains(t, job, "type PollerJob struct {\n\tdelegate *Poller\n}")
	assert.Contains(t, job, "func (j *PollerJob) Execute(ctx quartz.Context) {\n\tj.delegate.onTimeout(ctx)\n}")

	handle := read(t, filepath.Join(tmp, "timercompat", "handle.go"))
	assert.Contains(t, handle, "package timercompat")
	assert.Contains(t, handle, "func NewTimerHandle(name, group string) TimerHandle")

	schedule := read(t, filepath.Join(tmp, "timercompat", "schedule.go"))
	assert.Contains(t, schedule, "func NewSchedule(second, minute, hour, dayOfMonth, dayOfWeek, month, cron string) Schedule")

	bootstrap := read(t, filepath.Join(tmp, "schedulerinit", "schedulerinit.go"))
	assert.Contains(t, bootstrap, "package schedulerinit")
	assert.Contains(t, bootstrap, `"example.com/app/internal/poll.PollerJob",`)

	props := read(t, filepath.Join(tmp, "scheduler.properties"))
	assert.Contains(t, props, "scheduler.job-store.persistent=true")

	manifest := read(t, filepath.Join(tmp, "jobs.manifest"))
	assert.Equal(t, "example.com/app/internal/poll.PollerJob\n", manifest)
}

func TestGenerateWithoutContext(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	root := &corpus.Root{Dir: tmp}

	store := NewStore(api.DefaultTarget())
	store.RecordJob(root, JobClass{Dir: tmp, Pkg: "p", Struct: "Worker", Callback: "run"})

	require.NoError(t, store.Generate(false, zerolog.Nop()))

	job := read(t, filepath.Join(tmp, "worker_job.go"))
	assert.Contains(t, job, "func (j *WorkerJob) Execute(_ quartz.Context) {\n\tj.delegate.run()\n}")

	props := read(t, filepath.Join(tmp, "scheduler.properties"))
	assert.Contains(t, props, "scheduler.job-store.persistent=false")

	// Without a module path the manifest qualifies by package name.
	manifest := read(t, filepath.Join(tmp, "jobs.manifest"))
	assert.Equal(t, "p.WorkerJob\n", manifest)
}

// TestGenerateIdempotent checks that a second run leaves every artifact
// byte-identical, including the merged manifest.
func TestGenerateIdempotent(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	root := &corpus.Root{Dir: tmp, ModulePath: "example.com/app"}

	record := func() *Store {
		store := NewStore(api.DefaultTarget())
		store.RecordJob(root, JobClass{Dir: tmp, Pkg: "app", Struct: "Poller", Callback: "onTimeout"})
		store.RecordHandleCompat(root)

		return store
	}

	require.NoError(t, record().Generate(false, zerolog.Nop()))

	paths := []string{
		filepath.Join(tmp, "poller_job.go"),
		filepath.Join(tmp, "timercompat", "handle.go"),
		filepath.Join(tmp, "schedulerinit", "schedulerinit.go"),
		filepath.Join(tmp, "scheduler.properties"),
		filepath.Join(tmp, "jobs.manifest"),
	}

	before := make(map[string]string, len(paths))
	for _, path := range paths {
		before[path] = read(t, path)
	}

	require.NoError(t, record().Generate(false, zerolog.Nop()))

	for _, path := range paths {
		assert.Equal(t, before[path], read(t, path), "artifact %s changed on the second run", path)
	}
}

// TestGenerateMergesManifest checks that pre-existing manifest lines survive
// a run and the result stays sorted and deduplicated.
func TestGenerateMergesManifest(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	root := &corpus.Root{Dir: tmp, ModulePath: "example.com/app"}

	manifestPath := filepath.Join(tmp, "jobs.manifest")
	require.NoError(t, os.WriteFile(manifestPath, []byte("example.com/app.PollerJob\nexample.com/app.ZJob\n"), 0o644))

	store := NewStore(api.DefaultTarget())
	store.RecordJob(root, JobClass{Dir: tmp, Pkg: "app", Struct: "Poller", Callback: "onTimeout"})
	store.RecordJob(root, JobClass{Dir: tmp, Pkg: "app", Struct: "Mailer", Callback: "flush"})

	require.NoError(t, store.Generate(false, zerolog.Nop()))

	assert.Equal(t,
		"example.com/app.MailerJob\nexample.com/app.PollerJob\nexample.com/app.ZJob\n",
		read(t, manifestPath))
}

func TestGenerateDryRun(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	root := &corpus.Root{Dir: tmp, ModulePath: "example.com/app"}

	store := NewStore(api.DefaultTarget())
	store.RecordJob(root, JobClass{Dir: tmp, Pkg: "app", Struct: "Poller", Callback: "onTimeout"})
	store.RecordHandleCompat(root)

	require.NoError(t, store.Generate(true, zerolog.Nop()))

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry run must not create artifacts")
}
