// Package tracker runs tracking passes: it resolves the assessment
// catalogue, buckets it around now and records participant states of
// in-progress proctored assessments.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/participant"
	"github.com/abhisek/examwatch/internal/summary"
)

// Catalogue lists assessments and their user overrides.
type Catalogue interface {
	Catalogue(ctx context.Context, modules ...assessment.Module) ([]assessment.Window, error)
	Overrides(ctx context.Context, windows []assessment.Window) (map[int64][]assessment.Override, error)
}

// Classifier classifies the eligible users of one assessment.
type Classifier interface {
	Classify(ctx context.Context, w assessment.Window, now time.Time) (participant.Result, error)
}

// Recorder stores one participant-state snapshot.
type Recorder interface {
	Record(ctx context.Context, runID string, assessmentID int64, counts participant.Counts, at time.Time) error
}

// Options configures a tracker.
type Options struct {
	Summary         summary.Options
	ProctoredModule assessment.Module
	Capabilities    []string
	Workers         int
}

// Failure is a per-assessment error that did not stop the pass.
type Failure struct {
	AssessmentID int64 `json:"assessment_id"`
	Err          error `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("assessment %d: %v", f.AssessmentID, f.Err)
}

// Report is the outcome of one pass.
type Report struct {
	RunID    string               `json:"run_id"`
	At       time.Time            `json:"at"`
	Summary  summary.Summary      `json:"-"`
	Results  []participant.Result `json:"results"`
	Failures []Failure            `json:"failures,omitempty"`
}

// Tracker runs tracking passes.
type Tracker struct {
	catalogue  Catalogue
	eligible   participant.EligibleUsers
	classifier Classifier
	recorder   Recorder
	opts       Options
	log        zerolog.Logger
	now        func() time.Time
	newRunID   func() string
}

// New creates a tracker.
func New(catalogue Catalogue, eligible participant.EligibleUsers, classifier Classifier, recorder Recorder, opts Options, log zerolog.Logger) *Tracker {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ProctoredModule == "" {
		opts.ProctoredModule = assessment.ModuleQuiz
	}
	return &Tracker{
		catalogue:  catalogue,
		eligible:   eligible,
		classifier: classifier,
		recorder:   recorder,
		opts:       opts,
		log:        log,
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
}

// Windows loads the catalogue and resolves every window against the
// overrides of its eligible users. Assessments whose users cannot be
// resolved keep their base window and are reported as failures.
func (t *Tracker) Windows(ctx context.Context) ([]assessment.Effective, []Failure, error) {
	windows, err := t.catalogue.Catalogue(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalogue: %w", err)
	}
	overrides, err := t.catalogue.Overrides(ctx, windows)
	if err != nil {
		return nil, nil, fmt.Errorf("load overrides: %w", err)
	}

	var failures []Failure
	for _, w := range windows {
		ovs := overrides[w.ID]
		if len(ovs) == 0 {
			continue
		}
		users, err := t.eligible.EligibleUsers(ctx, w, t.capabilities(w.Module))
		if err != nil {
			t.log.Warn().Err(err).Int64("assessment_id", w.ID).Msg("ignoring overrides")
			failures = append(failures, Failure{AssessmentID: w.ID, Err: err})
			delete(overrides, w.ID)
			continue
		}
		eligible := make(map[int64]bool, len(users))
		for _, u := range users {
			eligible[u] = true
		}
		overrides[w.ID] = assessment.FilterEligible(ovs, eligible)
	}
	return assessment.ResolveAll(windows, overrides), failures, nil
}

func (t *Tracker) capabilities(m assessment.Module) []string {
	if m == t.opts.ProctoredModule {
		return t.opts.Capabilities
	}
	return nil
}

// Summary resolves the catalogue and buckets it around now.
func (t *Tracker) Summary(ctx context.Context, now time.Time) (summary.Summary, []Failure, error) {
	windows, failures, err := t.Windows(ctx)
	if err != nil {
		return summary.Summary{}, nil, err
	}
	return summary.Bucket(windows, now, t.opts.Summary), failures, nil
}

// Run performs one pass at now. Only a catalogue failure or cancellation
// fails the pass; per-assessment failures are reported.
func (t *Tracker) Run(ctx context.Context, now time.Time) (Report, error) {
	rep := Report{RunID: t.newRunID(), At: now}
	sum, failures, err := t.Summary(ctx, now)
	if err != nil {
		return rep, err
	}
	rep.Summary = sum
	rep.Failures = failures

	targets := summary.Filter(sum.InProgress, t.opts.ProctoredModule)
	results := make([]*participant.Result, len(targets))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i, w := range targets {
		g.Go(func() error {
			res, err := t.track(gctx, rep.RunID, w.Window, now)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.log.Error().Err(err).Int64("assessment_id", w.ID).Str("run_id", rep.RunID).Msg("tracking failed")
				mu.Lock()
				rep.Failures = append(rep.Failures, Failure{AssessmentID: w.ID, Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	for _, r := range results {
		if r != nil {
			rep.Results = append(rep.Results, *r)
		}
	}
	t.log.Info().
		Str("run_id", rep.RunID).
		Int("upcoming", sum.UpcomingCount()).
		Int("in_progress", len(sum.InProgress)).
		Int("finished", len(sum.Finished)).
		Int("tracked", len(rep.Results)).
		Int("failures", len(rep.Failures)).
		Msg("tracking pass complete")
	return rep, nil
}

func (t *Tracker) track(ctx context.Context, runID string, w assessment.Window, now time.Time) (participant.Result, error) {
	res, err := t.classifier.Classify(ctx, w, now)
	if err != nil {
		return participant.Result{}, err
	}
	if err := t.recorder.Record(ctx, runID, w.ID, res.Counts, now); err != nil {
		return participant.Result{}, err
	}
	return res, nil
}

// Loop runs a pass immediately and then every interval until ctx is
// cancelled. Failed passes are logged and do not stop the loop. fn, if set,
// receives each successful report.
func (t *Tracker) Loop(ctx context.Context, interval time.Duration, fn func(Report)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rep, err := t.Run(ctx, t.now())
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			t.log.Error().Err(err).Str("run_id", rep.RunID).Msg("tracking pass failed")
		case fn != nil:
			fn(rep)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
