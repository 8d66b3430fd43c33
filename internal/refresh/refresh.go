// Package refresh re-runs the availability sync on a cron schedule so
// page loads rarely have to wait for the feed.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"farmstay/internal/availability"
	appLog "farmstay/internal/log"
	"farmstay/internal/model"
)

// Refresher is implemented by *availability.Service.
type Refresher interface {
	Refresh(ctx context.Context) availability.Snapshot
}

// Scheduler wraps a cron instance with one sync job.
type Scheduler struct {
	c       *cron.Cron
	entry   cron.EntryID
	timeout time.Duration
}

// New registers a sync job for schedule (standard 5-field cron) in loc. Each
// run gets its own timeout-bound context derived from ctx.
func New(ctx context.Context, schedule string, loc *time.Location, timeout time.Duration, r Refresher) (*Scheduler, error) {
	if loc == nil {
		loc = model.DefaultLocation()
	}
	s := &Scheduler{
		c:       cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
	}

	id, err := s.c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		snap := r.Refresh(runCtx)
		if snap.Error != nil {
			appLog.Warn("scheduled sync failed", "err", *snap.Error, "stale", snap.Stale)
			return
		}
		appLog.Debug("scheduled sync done", "ranges", len(snap.Ranges))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	s.entry = id
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.c.Start()
	appLog.Info("refresh scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Stop halts scheduling and waits for a running sync to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// Next is the next planned run.
func (s *Scheduler) Next() time.Time {
	return s.c.Entry(s.entry).Next
}

// RunNow triggers the job synchronously, outside the schedule.
func (s *Scheduler) RunNow() {
	s.c.Entry(s.entry).WrappedJob.Run()
}
