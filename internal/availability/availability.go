// Package availability runs the fetch, parse and normalize cycle and keeps
// the latest result for the web layer.
package availability

import (
	"context"
	"errors"
	"sync"
	"time"

	"farmstay/internal/ics"
	appLog "farmstay/internal/log"
	"farmstay/internal/model"
	"farmstay/internal/rangeset"
)

const (
	defaultMaxAge      = 15 * time.Minute
	defaultHorizonDays = 365
	defaultTimeout     = ics.DefaultTimeout
)

// Snapshot is what the UI receives. It is produced for every outcome:
// on failure Ranges is empty (or the last good set when Stale is true) and
// Error carries the cause.
type Snapshot struct {
	Ranges      rangeset.RangeSet `json:"ranges"`
	LastUpdated *time.Time        `json:"lastUpdated"`
	Error       *string           `json:"error"`
	Stale       bool              `json:"stale,omitempty"`

	// Diagnostics, not part of the UI contract.
	Events    int      `json:"-"`
	Cancelled int      `json:"-"`
	Skipped   int      `json:"-"`
	Truncated []string `json:"-"`
	err       error
}

// Err returns the underlying error of a failed cycle.
func (s Snapshot) Err() error { return s.err }

// IsBooked reports whether d is inside the snapshot's ranges.
func (s Snapshot) IsBooked(d model.Date) bool {
	return s.Ranges.Contains(d)
}

// Fetcher is implemented by *ics.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options control a single cycle.
type Options struct {
	// HorizonDays bounds recurring blocks, counted from Today-1.
	HorizonDays int
	// Today anchors the recurrence window. Zero means the current UTC day.
	Today model.Date
	// Now stamps LastUpdated. Nil means time.Now.
	Now func() time.Time
}

func failed(err error) Snapshot {
	msg := err.Error()
	return Snapshot{Ranges: rangeset.RangeSet{}, Error: &msg, err: err}
}

// Load runs one fetch-parse-normalize cycle. It never panics and never
// returns an error: every failure ends up in Snapshot.Error.
func Load(ctx context.Context, f Fetcher, url string, opts Options) (snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("availability cycle panicked", errors.New("panic"), "recovered", r)
			snap = failed(errors.New("internal error while reading calendar"))
		}
	}()

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = defaultHorizonDays
	}
	if opts.Today.IsZero() {
		opts.Today = model.DateOf(opts.Now().UTC())
	}

	if url == "" {
		appLog.Error("availability unavailable", ics.ErrMissingURL)
		return failed(ics.ErrMissingURL)
	}

	body, err := f.Fetch(ctx, url)
	if err != nil {
		return failed(err)
	}

	parsed := ics.Parse(body)

	from := opts.Today.AddDays(-1)
	expanded, err := ics.Expand(parsed.Events, ics.ExpandConfig{
		From:  from,
		Until: from.AddDays(opts.HorizonDays),
	})
	if err != nil {
		return failed(err)
	}

	now := opts.Now().UTC()
	set := rangeset.Normalize(expanded.Ranges)

	appLog.Info("availability synced",
		"url", ics.RedactURL(url),
		"events", len(parsed.Events),
		"cancelled", parsed.Cancelled,
		"skipped", len(parsed.Skipped),
		"ranges", len(set),
		"booked_days", set.Days(),
	)

	return Snapshot{
		Ranges:      set,
		LastUpdated: &now,
		Events:      len(parsed.Events),
		Cancelled:   parsed.Cancelled,
		Skipped:     len(parsed.Skipped),
		Truncated:   expanded.TruncatedEvents,
	}
}

// Service caches the latest Snapshot. Concurrent callers share one
// in-flight refresh.
type Service struct {
	fetcher      Fetcher
	url          string
	maxAge       time.Duration
	timeout      time.Duration
	horizonDays  int
	keepLastGood bool
	loc          *time.Location
	now          func() time.Time

	mu       sync.RWMutex
	current  *Snapshot
	lastGood *Snapshot
	takenAt  time.Time

	refreshMu sync.Mutex
}

// Config holds Service settings.
type Config struct {
	URL          string
	MaxAge       time.Duration
	HorizonDays  int
	KeepLastGood bool
	Location     *time.Location
	// Timeout bounds one cycle. The cycle does not inherit the caller's
	// cancellation, so this is its only limit.
	Timeout time.Duration
}

func NewService(f Fetcher, cfg Config) *Service {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if cfg.Location == nil {
		cfg.Location = model.DefaultLocation()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Service{
		fetcher:      f,
		url:          cfg.URL,
		maxAge:       cfg.MaxAge,
		timeout:      cfg.Timeout,
		horizonDays:  cfg.HorizonDays,
		keepLastGood: cfg.KeepLastGood,
		loc:          cfg.Location,
		now:          time.Now,
	}
}

// Get returns the cached snapshot, refreshing it when missing or older
// than the configured max age.
func (s *Service) Get(ctx context.Context) Snapshot {
	s.mu.RLock()
	cur, takenAt := s.current, s.takenAt
	s.mu.RUnlock()

	if cur != nil && s.now().Sub(takenAt) < s.maxAge {
		return *cur
	}
	return s.refresh(ctx, false, takenAt)
}

// Refresh always runs a new cycle.
func (s *Service) Refresh(ctx context.Context) Snapshot {
	return s.refresh(ctx, true, time.Time{})
}

// refresh runs a cycle unless, while waiting for the lock, another caller
// already replaced the snapshot that was seen.
func (s *Service) refresh(ctx context.Context, force bool, seen time.Time) Snapshot {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	cur, takenAt := s.current, s.takenAt
	s.mu.RUnlock()
	if !force && cur != nil && !takenAt.Equal(seen) {
		return *cur
	}

	// The cycle outlives the caller that triggered it: waiting callers and
	// the cache share its result.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	snap := Load(runCtx, s.fetcher, s.url, Options{
		HorizonDays: s.horizonDays,
		Today:       model.DateOf(s.now().In(s.loc)),
		Now:         s.now,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Error == nil {
		good := snap
		s.lastGood = &good
	} else if s.keepLastGood && s.lastGood != nil {
		snap.Ranges = s.lastGood.Ranges
		snap.LastUpdated = s.lastGood.LastUpdated
		snap.Stale = true
	}

	s.current = &snap
	s.takenAt = s.now()
	return snap
}

// Location is the timezone used for "today".
func (s *Service) Location() *time.Location { return s.loc }
