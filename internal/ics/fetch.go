package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	appLog "farmstay/internal/log"
)

const (
	// DefaultTimeout bounds a single feed request.
	DefaultTimeout = 15 * time.Second

	// maxBodyBytes guards against a misbehaving feed endpoint.
	maxBodyBytes = 8 << 20
)

// ErrMissingURL is returned when no feed URL is configured.
var ErrMissingURL = errors.New("calendar feed URL is not configured")

// FetchError describes a failed feed request: a network problem, a timeout
// or a non-2xx status.
type FetchError struct {
	URL        string // redacted
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether a later cycle may succeed.
func (e *FetchError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// Timeout reports whether the request ran out of time.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// HTTPDoer is the subset of *http.Client the fetcher needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher retrieves raw calendar text. It never caches: the feed is the
// source of truth for bookings.
type Fetcher struct {
	client  HTTPDoer
	timeout time.Duration
}

// NewFetcher creates a Fetcher. A non-positive timeout means DefaultTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// WithClient swaps the HTTP client, e.g. for tests.
func (f *Fetcher) WithClient(c HTTPDoer) *Fetcher {
	f.client = c
	return f
}

// Fetch downloads the feed at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, ErrMissingURL
	}
	redacted := RedactURL(rawURL)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: redacted, Err: err}
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.1")
	req.Header.Set("Cache-Control", "no-cache, no-store, max-age=0")
	req.Header.Set("Pragma", "no-cache")

	appLog.Debug("ics fetch start", "url", redacted)
	started := time.Now()

	resp, err := f.client.Do(req)
	if err != nil {
		appLog.Error("ics fetch failed", err, "url", redacted)
		return nil, &FetchError{URL: redacted, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		ferr := &FetchError{URL: redacted, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
		appLog.Error("ics fetch non-2xx", ferr, "url", redacted, "status", resp.StatusCode)
		return nil, ferr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		appLog.Error("ics fetch read failed", err, "url", redacted)
		return nil, &FetchError{URL: redacted, Err: err}
	}

	appLog.Info("ics fetch success",
		"url", redacted,
		"status", resp.StatusCode,
		"bytes", len(body),
		"took", time.Since(started).Round(time.Millisecond),
	)
	return body, nil
}

// RedactURL hides path and query of a feed URL for logging: private iCal
// links carry their secret in both.
//
//	https://www.airbnb.com/calendar/ical/123.ics?s=abcd -> https://www.airbnb.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
