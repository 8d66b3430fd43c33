package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmstay/internal/availability"
	"farmstay/internal/config"
	"farmstay/internal/model"
	"farmstay/internal/rangeset"
)

type stubAvailability struct {
	snap      availability.Snapshot
	gets      atomic.Int32
	refreshes atomic.Int32
}

func (s *stubAvailability) Get(context.Context) availability.Snapshot {
	s.gets.Add(1)
	return s.snap
}

func (s *stubAvailability) Refresh(context.Context) availability.Snapshot {
	s.refreshes.Add(1)
	return s.snap
}

func day(y int, m time.Month, d int) model.Date { return model.NewDate(y, m, d) }

func newTestServer(t *testing.T, snap availability.Snapshot) (*httptest.Server, *stubAvailability) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Listing.ID = "35318624"
	cfg.Listing.NightlyRate = 150
	cfg.Listing.MaxGuests = 4

	stub := &stubAvailability{snap: snap}
	s := NewServer(cfg, stub, time.UTC)
	s.now = func() time.Time { return time.Date(2025, 9, 10, 15, 0, 0, 0, time.UTC) }

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, stub
}

func okSnapshot() availability.Snapshot {
	updated := time.Date(2025, 9, 10, 14, 45, 0, 0, time.UTC)
	return availability.Snapshot{
		Ranges: rangeset.RangeSet{
			{Start: day(2025, 9, 18), End: day(2025, 9, 20)},
			{Start: day(2025, 10, 5), End: day(2025, 10, 8)},
		},
		LastUpdated: &updated,
	}
}

func getJSON(t *testing.T, rawURL string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = uuid.Parse(resp.Header.Get(HeaderRequestID))
	assert.NoError(t, err)
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())
	id := uuid.NewString()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, id, resp.Header.Get(HeaderRequestID))
}

func TestAvailability_Success(t *testing.T) {
	ts, stub := newTestServer(t, okSnapshot())

	var body map[string]any
	resp := getJSON(t, ts.URL+"/api/availability", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, []any{
		map[string]any{"start": "2025-09-18", "end": "2025-09-20"},
		map[string]any{"start": "2025-10-05", "end": "2025-10-08"},
	}, body["ranges"])
	assert.Equal(t, "2025-09-10T14:45:00Z", body["lastUpdated"])
	assert.Nil(t, body["error"])
	assert.Equal(t, int32(1), stub.gets.Load())
	assert.Equal(t, int32(0), stub.refreshes.Load())
}

func TestAvailability_FailureStillOK(t *testing.T) {
	msg := "fetch https://www.airbnb.com/...(redacted): status 503"
	ts, _ := newTestServer(t, availability.Snapshot{Ranges: rangeset.RangeSet{}, Error: &msg})

	var body map[string]any
	resp := getJSON(t, ts.URL+"/api/availability", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["ranges"])
	assert.Nil(t, body["lastUpdated"])
	assert.Equal(t, msg, body["error"])
}

func TestAvailability_ForcedRefresh(t *testing.T) {
	ts, stub := newTestServer(t, okSnapshot())

	getJSON(t, ts.URL+"/api/availability?refresh=1", nil)

	assert.Equal(t, int32(1), stub.refreshes.Load())
	assert.Equal(t, int32(0), stub.gets.Load())
}

func TestAvailability_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	resp, err := http.Post(ts.URL+"/api/availability", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestBooked(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	cases := []struct {
		date   string
		booked bool
	}{
		{"2025-09-17", false},
		{"2025-09-18", true},
		{"2025-09-20", true},
		{"2025-09-21", false},
		{"2025-10-08", true},
	}
	for _, tc := range cases {
		t.Run(tc.date, func(t *testing.T) {
			var body bookedResponse
			resp := getJSON(t, ts.URL+"/api/booked?date="+tc.date, &body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tc.booked, body.Booked)
			assert.Equal(t, tc.date, body.Date.String())
		})
	}
}

func TestBooked_BadDate(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	for _, q := range []string{"", "?date=2025-13-01", "?date=tomorrow"} {
		var body map[string]string
		resp := getJSON(t, ts.URL+"/api/booked"+q, &body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.NotEmpty(t, body["error"])
	}
}

func TestCalendar_DefaultsToCurrentMonth(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	var body struct {
		Year        int    `json:"year"`
		Month       int    `json:"month"`
		Leading     int    `json:"leading"`
		Prev        string `json:"prev"`
		Next        string `json:"next"`
		LastUpdated string `json:"lastUpdated"`
		Days        []struct {
			Date   string `json:"date"`
			Booked bool   `json:"booked"`
			Past   bool   `json:"past"`
		} `json:"days"`
	}
	resp := getJSON(t, ts.URL+"/api/calendar", &body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2025, body.Year)
	assert.Equal(t, 9, body.Month)
	assert.Equal(t, 1, body.Leading)
	assert.Equal(t, "2025-08", body.Prev)
	assert.Equal(t, "2025-10", body.Next)
	assert.Equal(t, "2025-09-10T14:45:00Z", body.LastUpdated)
	require.Len(t, body.Days, 30)
	assert.True(t, body.Days[8].Past)
	assert.False(t, body.Days[9].Past)
	assert.True(t, body.Days[17].Booked)
	assert.False(t, body.Days[20].Booked)
}

func TestCalendar_MonthParams(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	var keyed, split struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	getJSON(t, ts.URL+"/api/calendar?month=2025-10", &keyed)
	getJSON(t, ts.URL+"/api/calendar?year=2025&month=10", &split)

	assert.Equal(t, keyed, split)
	assert.Equal(t, 10, keyed.Month)

	resp := getJSON(t, ts.URL+"/api/calendar?month=13", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = getJSON(t, ts.URL+"/api/calendar?month=2025-1x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCalendar_RejectsMalformedParams(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	for _, q := range []string{
		"?month=abc",
		"?month=9x",
		"?month=0",
		"?year=abc&month=9",
		"?year=-5&month=1",
		"?year=99999&month=1",
		"?month=0005-01",
		"?month=-5",
	} {
		var body map[string]string
		resp := getJSON(t, ts.URL+"/api/calendar"+q, &body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.NotEmpty(t, body["error"], q)
	}
}

func TestCalendar_YearOnlyKeepsCurrentMonth(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	var body struct {
		Year  int    `json:"year"`
		Month int    `json:"month"`
		Prev  string `json:"prev"`
	}
	resp := getJSON(t, ts.URL+"/api/calendar?year=2026", &body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2026, body.Year)
	assert.Equal(t, 9, body.Month)
	assert.Equal(t, "2026-08", body.Prev)
}

func TestQuote(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	var free struct {
		Nights   int    `json:"nights"`
		Lodging  int    `json:"lodging"`
		Guests   int    `json:"guests"`
		Conflict bool   `json:"conflict"`
		URL      string `json:"url"`
	}
	resp := getJSON(t, ts.URL+"/api/quote?start=2025-09-14&end=2025-09-18&guests=9", &free)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, free.Nights)
	assert.Equal(t, 600, free.Lodging)
	assert.Equal(t, 4, free.Guests, "guests are clamped to the listing maximum")
	assert.False(t, free.Conflict, "checkout on a booked day is fine")

	u, err := url.Parse(free.URL)
	require.NoError(t, err)
	assert.Equal(t, "/rooms/35318624", u.Path)
	assert.Equal(t, "2025-09-14", u.Query().Get("check_in"))
	assert.Equal(t, "4", u.Query().Get("adults"))

	var clash struct {
		Conflict bool `json:"conflict"`
	}
	getJSON(t, ts.URL+"/api/quote?start=2025-09-17&end=2025-09-19", &clash)
	assert.True(t, clash.Conflict)
}

func TestQuote_BadInput(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	for _, q := range []string{
		"",
		"?start=2025-09-14",
		"?start=2025-09-14&end=nope",
		"?start=2025-09-18&end=2025-09-14",
		"?start=2025-09-14&end=2025-09-14",
	} {
		resp := getJSON(t, ts.URL+"/api/quote"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestBookingLink(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	var bare linkResponse
	getJSON(t, ts.URL+"/api/booking-link", &bare)
	assert.Equal(t, "https://www.airbnb.com/rooms/35318624", bare.URL)

	var full linkResponse
	getJSON(t, ts.URL+"/api/booking-link?start=2025-09-14&end=2025-09-16", &full)
	assert.Equal(t,
		"https://www.airbnb.com/rooms/35318624?adults=2&check_in=2025-09-14&check_out=2025-09-16&children=0&infants=0&pets=0",
		full.URL)
}

func TestStaticPageAndUnknownAPI(t *testing.T) {
	ts, _ := newTestServer(t, okSnapshot())

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp2, err := http.Get(ts.URL + "/api/nope")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusTeapot, errors.New("short and stout").Error())

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"error":"short and stout"}`, rec.Body.String())
}
