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

// Package artifact generates the companion files of a migration run.
//
// Transformed units delegate their timeout callbacks to generated job
// classes; module roots additionally receive the compatibility value
// objects, a bootstrap enumeration, a scheduler configuration fragment and
// a job manifest. Needs are collected per root during the concurrent
// transform phase and written out in one pass afterwards, so repeated runs
// produce byte-identical artifacts.
package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/corpus"
)

// JobClass describes one generated job delegate.
type JobClass struct {
	// Dir is the directory of the transformed unit; the delegate file is
	// emitted next to it, in the same package.
	Dir string

	// Pkg is the unit's package name.
	Pkg string

	// Struct is the type carrying the timeout callback, Callback the
	// callback method name.
	Struct   string
	Callback string

	// TakesContext is true when the callback accepts the execution context.
	TakesContext bool
}

// Name is the job class identifier.
func (j JobClass) Name() string { return j.Struct + "Job" }

// rootNeeds accumulates what one module root requires.
type rootNeeds struct {
	jobs map[string]JobClass // keyed by Dir + Struct

	handleCompat   bool
	scheduleCompat bool
	persistent     bool
}

// Store collects artifact needs across units. It is safe for concurrent use
// during the transform phase.
type Store struct {
	target api.Target

	mu    sync.Mutex
	roots map[*corpus.Root]*rootNeeds
}

// NewStore creates an empty store emitting references to the given scheduler.
func NewStore(target api.Target) *Store {
	return &Store{target: target, roots: make(map[*corpus.Root]*rootNeeds)}
}

func (s *Store) needs(root *corpus.Root) *rootNeeds {
	n, ok := s.roots[root]
	if !ok {
		n = &rootNeeds{jobs: make(map[string]JobClass)}
		s.roots[root] = n
	}

	return n
}

// RecordJob registers a job delegate for a transformed unit. Two units
// transforming the same struct in the same directory share one delegate.
func (s *Store) RecordJob(root *corpus.Root, job JobClass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.needs(root).jobs[job.Dir+"\x00"+job.Struct] = job
}

// RecordHandleCompat requests the compatibility timer handle for the root.
func (s *Store) RecordHandleCompat(root *corpus.Root) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.needs(root).handleCompat = true
}

// RecordScheduleCompat requests the compatibility schedule for the root.
func (s *Store) RecordScheduleCompat(root *corpus.Root) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.needs(root).scheduleCompat = true
}

// RecordPersistence notes that some transformed unit of the root may require
// a durable job store.
func (s *Store) RecordPersistence(root *corpus.Root) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.needs(root).persistent = true
}

// Generate writes all collected artifacts. With dryRun set, pending writes
// are logged but nothing touches the file system.
func (s *Store) Generate(dryRun bool, log zerolog.Logger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, root := range s.sortedRoots() {
		if err := s.generateRoot(root, s.roots[root], dryRun, log); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) sortedRoots() []*corpus.Root {
	roots := make([]*corpus.Root, 0, len(s.roots))
	for root := range s.roots {
		roots = append(roots, root)
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i].Dir < roots[j].Dir })

	return roots
}

func (s *Store) generateRoot(root *corpus.Root, needs *rootNeeds, dryRun bool, log zerolog.Logger) error {
	jobs := sortedJobs(needs.jobs)

	for _, job := range jobs {
		path := filepath.Join(job.Dir, jobFileName(job))
		if err := writeArtifact(path, renderJob(s.target, job), dryRun, log); err != nil {
			return err
		}
	}

	if needs.handleCompat || needs.scheduleCompat {
		if err := s.generateCompat(root, needs, dryRun, log); err != nil {
			return err
		}
	}

	if len(jobs) == 0 {
		return nil
	}

	initPath := filepath.Join(root.Dir, "schedulerinit", "schedulerinit.go")
	if err := writeArtifact(initPath, renderBootstrap(root, jobs), dryRun, log); err != nil {
		return err
	}

	propsPath := filepath.Join(root.Dir, "scheduler.properties")
	if err := writeArtifact(propsPath, renderProperties(needs.persistent), dryRun, log); err != nil {
		return err
	}

	return writeManifest(root, jobs, dryRun, log)
}

func (s *Store) generateCompat(root *corpus.Root, needs *rootNeeds, dryRun bool, log zerolog.Logger) error {
	dir := filepath.Join(root.Dir, s.target.CompatPkg)

	if needs.handleCompat {
		path := filepath.Join(dir, "handle.go")
		if err := writeArtifact(path, renderHandleCompat(s.target), dryRun, log); err != nil {
			return err
		}
	}

	if needs.scheduleCompat {
		path := filepath.Join(dir, "schedule.go")
		if err := writeArtifact(path, renderScheduleCompat(s.target), dryRun, log); err != nil {
			return err
		}
	}

	return nil
}

func sortedJobs(m map[string]JobClass) []JobClass {
	jobs := make([]JobClass, 0, len(m))
	for _, job := range m {
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Dir != jobs[j].Dir {
			return jobs[i].Dir < jobs[j].Dir
		}

		return jobs[i].Struct < jobs[j].Struct
	})

	return jobs
}

// writeManifest merges the generated job names into the root's manifest,
// deduplicating exact lines so repeated runs never grow the file.
func writeManifest(root *corpus.Root, jobs []JobClass, dryRun bool, log zerolog.Logger) error {
	path := filepath.Join(root.Dir, "jobs.manifest")

	lines := make(map[string]bool)

	if existing, err := os.ReadFile(path); err == nil {
		for _, line := range bytes.Split(existing, []byte("\n")) {
			if len(line) > 0 {
				lines[string(line)] = true
			}
		}
	}

	for _, job := range jobs {
		lines[manifestLine(root, job)] = true
	}

	merged := make([]string, 0, len(lines))
	for line := range lines {
		merged = append(merged, line)
	}

	sort.Strings(merged)

	var buf bytes.Buffer
	for _, line := range merged {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return writeArtifact(path, buf.Bytes(), dryRun, log)
}

// writeArtifact writes content to path unless it already matches, keeping
// artifact generation idempotent at the byte level.
func writeArtifact(path string, content []byte, dryRun bool, log zerolog.Logger) error {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		log.Debug().Str("artifact", path).Msg("artifact up to date")

		return nil
	}

	if dryRun {
		log.Info().Str("artifact", path).Msg("would write artifact")

		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating artifact directory for %s", path)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.Wrapf(err, "writing artifact %s", path)
	}

	log.Info().Str("artifact", path).Msg("wrote artifact")

	return nil
}
