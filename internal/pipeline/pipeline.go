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

// Package pipeline drives a migration run end to end.
//
// Units move through a fixed state machine: unanalyzed units either turn out
// not to reference the legacy API (terminal) or are classified; classified
// units are either rewritten automatically or receive a fallback marker. The
// two rewritten states are mutually exclusive and both are terminal, which
// makes repeated runs converge. Units are processed concurrently; companion
// artifacts are generated in a second phase after all units settled.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fillmore-labs.com/timershift/internal/api"
	"fillmore-labs.com/timershift/internal/artifact"
	"fillmore-labs.com/timershift/internal/classify"
	"fillmore-labs.com/timershift/internal/corpus"
	"fillmore-labs.com/timershift/internal/fallback"
	"fillmore-labs.com/timershift/internal/policy"
	"fillmore-labs.com/timershift/internal/transform"
	"fillmore-labs.com/timershift/internal/usage"
)

// Options configures a migration run.
type Options struct {
	// Dir is the corpus directory.
	Dir string

	// DryRun reports decisions without writing any file.
	DryRun bool

	// Jobs bounds unit-level concurrency; zero means GOMAXPROCS.
	Jobs int

	Legacy api.Legacy
	Target api.Target

	Log zerolog.Logger
}

// Summary counts unit outcomes of one run.
type Summary struct {
	Units           int
	NotApplicable   int
	AutoTransformed int
	FallbackMarked  int
	AlreadyMarked   int
	SkippedByPolicy int
	Failed          int
}

// Run executes the migration over the corpus and returns the outcome counts.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	units, err := corpus.Load(opts.Dir, opts.Log)
	if err != nil {
		return nil, err
	}

	policies, err := loadPolicies(units)
	if err != nil {
		return nil, err
	}

	r := &runner{
		opts:    opts,
		store:   artifact.NewStore(opts.Target),
		summary: &Summary{Units: len(units)},
	}

	g, ctx := errgroup.WithContext(ctx)

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(jobs)

	for _, u := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			return r.process(u, policies[u.Root])
		})
	}

	// Artifact generation needs the complete per-root picture, so it waits
	// for every unit to settle.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.store.Generate(opts.DryRun, opts.Log); err != nil {
		return nil, err
	}

	return r.summary, nil
}

// loadPolicies resolves the migration policy once per distinct root.
func loadPolicies(units []*corpus.Unit) (map[*corpus.Root]policy.Policy, error) {
	policies := make(map[*corpus.Root]policy.Policy)

	for _, u := range units {
		if _, ok := policies[u.Root]; ok {
			continue
		}

		p, err := policy.Load(u.Root.Dir)
		if err != nil {
			return nil, err
		}

		policies[u.Root] = p
	}

	return policies, nil
}

type runner struct {
	opts  Options
	store *artifact.Store

	mu      sync.Mutex
	summary *Summary
}

func (r *runner) count(f func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f(r.summary)
}

// process takes one unit through the state machine. Analysis problems are
// local to the unit; only file-system failures abort the run.
func (r *runner) process(u *corpus.Unit, pol policy.Policy) error {
	log := r.opts.Log.With().Str("unit", u.Path).Logger()

	if !pol.Active() {
		log.Debug().Msg("root opted out by policy")
		r.count(func(s *Summary) { s.SkippedByPolicy++ })

		return nil
	}

	if !u.ReferencesLegacy(r.opts.Legacy) {
		r.count(func(s *Summary) { s.NotApplicable++ })

		return nil
	}

	if u.HasFallbackMarker() {
		log.Debug().Msg("unit already carries a fallback marker")
		r.count(func(s *Summary) { s.AlreadyMarked++ })

		return nil
	}

	res := api.NewResolver(r.opts.Legacy, u.Info, u.File)
	analyzer := usage.Analyzer{Res: res, Fset: u.Fset, Src: u.Src}
	facts, sites := analyzer.Analyze(u.File)

	decision := classify.Classify(facts)

	switch decision.Outcome {
	case classify.NotApplicable:
		log.Debug().Msg("no timeout callback, unit not applicable")
		r.count(func(s *Summary) { s.NotApplicable++ })

		return nil

	case classify.AutoTransform:
		return r.autoTransform(u, res, facts, sites, log)

	case classify.Fallback:
		return r.markFallback(u, res, facts, sites, decision.Reasons, log)
	}

	return nil
}

func (r *runner) autoTransform(u *corpus.Unit, res *api.Resolver,
	facts *usage.Facts, sites *usage.Sites, log zerolog.Logger,
) error {
	t := &transform.Transformer{
		Legacy:       r.opts.Legacy,
		Target:       r.opts.Target,
		Res:          res,
		Fset:         u.Fset,
		Src:          u.Src,
		Info:         u.Info,
		CompatImport: compatImport(u.Root, r.opts.Target),
	}

	result, err := t.Rewrite(u.File, facts, sites)
	if errors.Is(err, transform.ErrNotRewritable) {
		// Late structural surprises degrade to the fallback path instead of
		// leaving the unit half done.
		log.Info().Err(err).Msg("unit not rewritable, degrading to fallback")

		return r.markFallback(u, res, facts, sites, []string{err.Error()}, log)
	}

	if err != nil {
		log.Error().Err(err).Msg("transformation failed")
		r.count(func(s *Summary) { s.Failed++ })

		return nil
	}

	if err := r.writeUnit(u, result.Src, log); err != nil {
		return err
	}

	r.recordArtifacts(u, facts, result)

	log.Info().Str("callback", facts.CallbackStruct+"."+facts.CallbackName).Msg("unit transformed")
	r.count(func(s *Summary) { s.AutoTransformed++ })

	return nil
}

func (r *runner) recordArtifacts(u *corpus.Unit, facts *usage.Facts, result *transform.Result) {
	r.store.RecordJob(u.Root, artifact.JobClass{
		Dir:          filepath.Dir(u.Path),
		Pkg:          u.File.Name.Name,
		Struct:       facts.CallbackStruct,
		Callback:     facts.CallbackName,
		TakesContext: facts.CallbackHasTimerParam,
	})

	if result.UsedHandleCompat {
		r.store.RecordHandleCompat(u.Root)
	}

	if result.UsedScheduleCompat {
		r.store.RecordScheduleCompat(u.Root)
	}

	if facts.MayRequirePersistence {
		r.store.RecordPersistence(u.Root)
	}
}

func (r *runner) markFallback(u *corpus.Unit, res *api.Resolver,
	facts *usage.Facts, sites *usage.Sites, reasons []string, log zerolog.Logger,
) error {
	e := &fallback.Emitter{
		Target: r.opts.Target,
		Res:    res,
		Fset:   u.Fset,
		Src:    u.Src,
	}

	src, err := e.Mark(u.File, facts, sites, reasons)
	if err != nil {
		log.Error().Err(err).Msg("fallback marking failed")
		r.count(func(s *Summary) { s.Failed++ })

		return nil
	}

	if err := r.writeUnit(u, src, log); err != nil {
		return err
	}

	log.Info().Strs("reasons", reasons).Msg("unit marked for manual migration")
	r.count(func(s *Summary) { s.FallbackMarked++ })

	return nil
}

func (r *runner) writeUnit(u *corpus.Unit, src []byte, log zerolog.Logger) error {
	if r.opts.DryRun {
		log.Info().Msg("would rewrite unit")

		return nil
	}

	if err := os.WriteFile(u.Path, src, 0o644); err != nil {
		return errors.Wrapf(err, "writing unit %s", u.Path)
	}

	return nil
}

// compatImport is the import path of the generated compatibility package
// under the unit's module root.
func compatImport(root *corpus.Root, target api.Target) string {
	if root.ModulePath == "" {
		return target.CompatPkg
	}

	return root.ModulePath + "/" + target.CompatPkg
}
