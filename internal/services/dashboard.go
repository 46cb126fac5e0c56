package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

// ChartMonths is how many trailing months the dashboard chart shows.
const ChartMonths = 6

// Dashboard is everything the dashboard view renders.
type Dashboard struct {
	Summary core.Summary
	Monthly []core.MonthCount
	// Err is set when a collection failed to load; it counted as empty.
	Err error
}

// LoadDashboard fetches the three collections concurrently and reduces them.
// A collection that fails to load counts as empty, matching how an empty
// result is shown.
func (s *RecordService) LoadDashboard(ctx context.Context, caller store.Caller, now time.Time) Dashboard {
	var (
		ops   []core.Operation
		tasks []core.Task
		docs  []core.Document
		errs  [3]error
		g     errgroup.Group
	)
	g.Go(func() error {
		ops, errs[0] = s.Operations(ctx, caller)
		return nil
	})
	g.Go(func() error {
		tasks, errs[1] = s.Tasks(ctx, caller)
		return nil
	})
	g.Go(func() error {
		docs, errs[2] = s.Documents(ctx, caller)
		return nil
	})
	_ = g.Wait()

	return Dashboard{
		Summary: core.Summarize(ops, tasks, docs),
		Monthly: core.MonthlyOperations(ops, now, ChartMonths),
		Err:     errors.Join(errs[:]...),
	}
}

// Counts is the raw size of each collection, as shown on the admin view.
type Counts struct {
	Operations int
	Tasks      int
	Documents  int
	Err        error
}

// LoadCounts fetches the three collections concurrently and counts them.
func (s *RecordService) LoadCounts(ctx context.Context, caller store.Caller) Counts {
	var (
		c    Counts
		errs [3]error
		g    errgroup.Group
	)
	g.Go(func() error {
		ops, err := s.Operations(ctx, caller)
		c.Operations, errs[0] = len(ops), err
		return nil
	})
	g.Go(func() error {
		tasks, err := s.Tasks(ctx, caller)
		c.Tasks, errs[1] = len(tasks), err
		return nil
	})
	g.Go(func() error {
		docs, err := s.Documents(ctx, caller)
		c.Documents, errs[2] = len(docs), err
		return nil
	})
	_ = g.Wait()
	c.Err = errors.Join(errs[:]...)
	return c
}
