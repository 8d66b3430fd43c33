package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"farmstay/internal/availability"
	"farmstay/internal/booking"
	"farmstay/internal/calendar"
	"farmstay/internal/config"
	appLog "farmstay/internal/log"
	"farmstay/internal/model"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// Month views outside these years are rejected.
const (
	minCalendarYear = 1970
	maxCalendarYear = 2200
)

// Availability is implemented by *availability.Service.
type Availability interface {
	Get(ctx context.Context) availability.Snapshot
	Refresh(ctx context.Context) availability.Snapshot
}

// Server provides the JSON API and the embedded booking page.
type Server struct {
	cfg     *config.Config
	avail   Availability
	listing booking.Listing
	loc     *time.Location
	now     func() time.Time
	mux     *http.ServeMux
}

// embeddedStatic contains the booking page served at "/".
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. loc is the property's timezone; nil
// means model.DefaultLocation.
func NewServer(cfg *config.Config, avail Availability, loc *time.Location) *Server {
	if loc == nil {
		loc = model.DefaultLocation()
	}
	s := &Server{
		cfg:   cfg,
		avail: avail,
		listing: booking.Listing{
			ID:          cfg.Listing.ID,
			BaseURL:     cfg.Listing.BaseURL,
			NightlyRate: cfg.Listing.NightlyRate,
		},
		loc: loc,
		now: time.Now,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler wrapped with request IDs and
// access logging.
func (s *Server) Handler() http.Handler {
	return requestIDMiddleware(s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/availability", s.handleAvailability)
	s.mux.HandleFunc("/api/booked", s.handleBooked)
	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/quote", s.handleQuote)
	s.mux.HandleFunc("/api/booking-link", s.handleBookingLink)

	s.mux.Handle("/", s.staticFileServer())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware echoes a valid incoming X-Request-ID or assigns a new
// one, and logs every request with it.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		appLog.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleAvailability returns the current snapshot. It always answers 200;
// sync failures are reported inside the body.
//
// GET /api/availability?refresh=1
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	var snap availability.Snapshot
	if r.URL.Query().Get("refresh") == "1" {
		snap = s.avail.Refresh(r.Context())
	} else {
		snap = s.avail.Get(r.Context())
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, snap)
}

type bookedResponse struct {
	Date   model.Date `json:"date"`
	Booked bool       `json:"booked"`
	Error  *string    `json:"error"`
}

// GET /api/booked?date=2025-09-18
func (s *Server) handleBooked(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	d, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	snap := s.avail.Get(r.Context())
	writeJSON(w, http.StatusOK, bookedResponse{
		Date:   d,
		Booked: snap.IsBooked(d),
		Error:  snap.Error,
	})
}

type calendarResponse struct {
	calendar.Month
	LastUpdated *time.Time `json:"lastUpdated"`
	Error       *string    `json:"error"`
	Stale       bool       `json:"stale,omitempty"`
}

// handleCalendar returns one month grid with booked flags.
//
// GET /api/calendar?year=2025&month=9
// GET /api/calendar?month=2025-09
//
// Without parameters the current month in the property's timezone is used.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	today := s.today()
	year, month := today.Year, today.Month

	q := r.URL.Query()
	if m := q.Get("month"); strings.Contains(m, "-") {
		y, mm, err := calendar.ParseMonthKey(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		year, month = y, mm
	} else {
		y, err := parseIntParam(q, "year", year)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be a number")
			return
		}
		mm, err := parseIntParam(q, "month", int(month))
		if err != nil || mm < 1 || mm > 12 {
			writeError(w, http.StatusBadRequest, "month must be 1-12")
			return
		}
		year, month = y, time.Month(mm)
	}
	if year < minCalendarYear || year > maxCalendarYear {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("year must be %d-%d", minCalendarYear, maxCalendarYear))
		return
	}

	snap := s.avail.Get(r.Context())
	writeJSON(w, http.StatusOK, calendarResponse{
		Month:       calendar.BuildMonth(year, month, snap.Ranges, today, s.cfg.WeekStart),
		LastUpdated: snap.LastUpdated,
		Error:       snap.Error,
		Stale:       snap.Stale,
	})
}

// handleQuote prices a stay and reports whether any night is booked.
//
// GET /api/quote?start=2025-09-18&end=2025-09-21&guests=2
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	sel, ok := s.parseSelection(w, r, true)
	if !ok {
		return
	}
	snap := s.avail.Get(r.Context())
	writeJSON(w, http.StatusOK, s.listing.Quote(sel, snap.Ranges))
}

type linkResponse struct {
	URL string `json:"url"`
}

// GET /api/booking-link?start=&end=&guests=
func (s *Server) handleBookingLink(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	sel, ok := s.parseSelection(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{URL: s.listing.BuildURL(sel.Start, sel.End, sel.Guests)})
}

// parseSelection reads start, end and guests. Missing dates are allowed
// unless required; present ones must parse and be ordered.
func (s *Server) parseSelection(w http.ResponseWriter, r *http.Request, required bool) (booking.Selection, bool) {
	q := r.URL.Query()
	sel := booking.Selection{Guests: s.clampGuests(parseIntDefault(q.Get("guests"), s.cfg.Listing.DefaultGuests))}

	for _, p := range []struct {
		name string
		dst  *model.Date
	}{{"start", &sel.Start}, {"end", &sel.End}} {
		v := q.Get(p.name)
		if v == "" {
			if required {
				writeError(w, http.StatusBadRequest, p.name+" is required")
				return sel, false
			}
			continue
		}
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, p.name+" must be YYYY-MM-DD")
			return sel, false
		}
		*p.dst = d
	}

	if !sel.Start.IsZero() && !sel.End.IsZero() && !sel.Start.Before(sel.End) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return sel, false
	}
	return sel, true
}

func (s *Server) clampGuests(n int) int {
	if n < 1 {
		return 1
	}
	if limit := s.cfg.Listing.MaxGuests; limit > 0 && n > limit {
		return limit
	}
	return n
}

func (s *Server) today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// staticFileServer serves the embedded page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown API paths are 404s, never the HTML page.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// parseIntParam returns def when name is absent and an error when it is
// present but not an integer.
func parseIntParam(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
