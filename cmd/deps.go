package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/frequency"
	"github.com/abhisek/examwatch/internal/lms"
	"github.com/abhisek/examwatch/internal/participant"
	"github.com/abhisek/examwatch/internal/store"
	"github.com/abhisek/examwatch/internal/summary"
	"github.com/abhisek/examwatch/internal/tracker"
	"github.com/abhisek/examwatch/internal/trend"
)

var errNoLMS = errors.New("lms.dsn is not configured")

func openStore(cmd *cobra.Command) (*store.Store, error) {
	dsn, err := resolveDSN(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve store: %w", err)
	}
	st, err := store.Open(env.cfg.Store.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func openLMS(cmd *cobra.Command) (*lms.Source, error) {
	c := env.cfg.LMS
	if c.DSN == "" {
		return nil, errNoLMS
	}
	src, err := lms.Open(c.Driver, c.DSN, c.Prefix)
	if err != nil {
		return nil, err
	}
	if err := src.Ping(cmd.Context()); err != nil {
		src.Close()
		return nil, fmt.Errorf("connect lms: %w", err)
	}
	return src, nil
}

func summaryOptions() summary.Options {
	t := env.cfg.Tracking
	return summary.Options{
		Horizon:         t.Horizon,
		UpcomingBuckets: t.UpcomingBuckets,
		IncludeHidden:   env.cfg.Reporting.ShowHiddenCourses,
	}
}

// newTracker wires the tracking pass over the LMS and the trend store.
func newTracker(src *lms.Source, st *store.Store) *tracker.Tracker {
	t := env.cfg.Tracking
	caps := t.RequiredCapabilities()
	classifier := participant.NewService(src, src, src, caps, t.SessionTimeout, env.log)
	recorder := trend.NewRecorder(st.TrendRepo(), env.log)
	return tracker.New(src, src, classifier, recorder, tracker.Options{
		Summary:         summaryOptions(),
		ProctoredModule: assessment.Module(t.ProctoredModule),
		Capabilities:    caps,
		Workers:         t.Workers,
	}, env.log)
}

// newFrequency wires the frequency service over the due-event index.
func newFrequency(st *store.Store) *frequency.Service {
	fetchers := frequency.Fetchers(st.DueEventRepo(), env.cfg.Reporting.ShowHiddenCourses)
	return frequency.NewService(frequency.NewCache(), fetchers, env.cfg.Cache.TTL, env.log)
}
