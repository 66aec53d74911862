package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beekhof/astrocal/internal/app"
	"github.com/beekhof/astrocal/internal/auth"
	"github.com/beekhof/astrocal/internal/calendar"
	"github.com/beekhof/astrocal/internal/events"
)

var fixedNow = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

type recordingSource struct {
	mu      sync.Mutex
	err     error
	periods []calendar.Period
}

func (s *recordingSource) Fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, period)
	if s.err != nil {
		return nil, s.err
	}
	if period == (calendar.Period{Month: 2, Year: 2024}) {
		return map[calendar.DateKey]string{"2024-3-20": "Equinox"}, nil
	}
	return map[calendar.DateKey]string{}, nil
}

func (s *recordingSource) last() calendar.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periods[len(s.periods)-1]
}

func newTestServer(t *testing.T, src events.Source, basicAuth *auth.BasicAuth) (*Server, *app.Controller) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	ctrl := app.NewController(src,
		app.WithClock(func() time.Time { return fixedNow }),
		app.WithLogger(logger),
	)
	ctrl.Refresh(context.Background())
	return New(ctrl, basicAuth, "127.0.0.1:0", logger), ctrl
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSource{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"March 2024", "Equinox", `class="today"`, `action="/next"`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}
	if strings.Contains(body, "unavailable") {
		t.Error("Page should not show the degraded banner after a successful fetch")
	}
}

func TestIndex_Degraded(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSource{err: errors.New("connection refused")}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "connection refused") {
		t.Error("Expected degraded banner with the fetch error")
	}
	if !strings.Contains(body, "March 2024") {
		t.Error("Expected the month grid to render despite the failure")
	}
}

func TestNavigate(t *testing.T) {
	src := &recordingSource{}
	srv, ctrl := newTestServer(t, src, nil)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/next", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Expected redirect to '/', got '%s'", loc)
	}
	if got := ctrl.State().Period; got != (calendar.Period{Month: 3, Year: 2024}) {
		t.Errorf("Expected April 2024 after next, got %v", got)
	}
	if got := src.last(); got != (calendar.Period{Month: 3, Year: 2024}) {
		t.Errorf("Expected fetch for April 2024, got %v", got)
	}

	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prev", nil))
	}
	if got := ctrl.State().Period; got != (calendar.Period{Month: 1, Year: 2024}) {
		t.Errorf("Expected February 2024 after two prevs, got %v", got)
	}
}

func TestNavigate_JSON(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSource{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/prev", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Label != "February 2024" {
		t.Errorf("Expected label 'February 2024', got '%s'", resp.Label)
	}
}

// ctxSource fails with the context error when its context is done.
type ctxSource struct{}

func (ctxSource) Fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[calendar.DateKey]string{calendar.KeyFor(period.Year, period.Month, 1): "New moon"}, nil
}

func TestNavigate_DroppedConnection(t *testing.T) {
	srv, ctrl := newTestServer(t, ctxSource{}, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/next", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	out := ctrl.Current()
	if out.Err != nil {
		t.Fatalf("Expected navigation to complete despite the dropped request, got %v", out.Err)
	}
	if out.Month.Period != (calendar.Period{Month: 3, Year: 2024}) || len(out.Month.Events()) != 1 {
		t.Errorf("Expected April 2024 with one event, got %v with %d events", out.Month.Period, len(out.Month.Events()))
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(rec.Body.String(), "unavailable") {
		t.Error("Page should not show the degraded banner after a dropped request")
	}
}

func TestRefresh(t *testing.T) {
	src := &recordingSource{}
	srv, _ := newTestServer(t, src, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, got %d", rec.Code)
	}
	if len(src.periods) != 2 {
		t.Errorf("Expected 2 fetches, got %d", len(src.periods))
	}
}

func TestMonthJSON(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantDegraded bool
		wantEvent    bool
	}{
		{name: "fresh", wantEvent: true},
		{name: "degraded", err: errors.New("timeout"), wantDegraded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &recordingSource{err: tt.err}, nil)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/month", nil))

			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got '%s'", ct)
			}
			var resp struct {
				Period   calendar.Period    `json:"period"`
				Label    string             `json:"label"`
				Cells    []calendar.DayCell `json:"cells"`
				Error    string             `json:"error"`
				Degraded bool               `json:"degraded"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Label != "March 2024" {
				t.Errorf("Expected label 'March 2024', got '%s'", resp.Label)
			}
			// March 2024 starts on a Friday.
			if len(resp.Cells) != 5+31 {
				t.Errorf("Expected %d cells, got %d", 5+31, len(resp.Cells))
			}
			if resp.Degraded != tt.wantDegraded {
				t.Errorf("Expected degraded=%v, got %v", tt.wantDegraded, resp.Degraded)
			}
			if tt.wantDegraded && resp.Error == "" {
				t.Error("Expected an error message")
			}

			hasEvent := false
			for _, cell := range resp.Cells {
				if cell.Key == "2024-3-20" && cell.Label == "Equinox" {
					hasEvent = true
				}
			}
			if hasEvent != tt.wantEvent {
				t.Errorf("Expected event present=%v, got %v", tt.wantEvent, hasEvent)
			}
		})
	}
}

func TestCalendarICS(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSource{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar.ics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Expected text/calendar content type, got '%s'", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "astrocal-2024-03.ics") {
		t.Errorf("Expected attachment filename for 2024-03, got '%s'", cd)
	}
	if !strings.Contains(rec.Body.String(), "SUMMARY:Equinox") {
		t.Error("Expected the equinox event in the calendar")
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSource{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("Expected 200 ok, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouting(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSource{}, nil)
	handler := srv.Handler()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/missing", http.StatusNotFound},
		{http.MethodGet, "/next", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/month", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	line, err := auth.FormatAuthLine("admin", "hunter2")
	if err != nil {
		t.Fatalf("FormatAuthLine() returned an error: %v", err)
	}
	basicAuth, err := auth.ParseBasicAuth(line)
	if err != nil {
		t.Fatalf("ParseBasicAuth() returned an error: %v", err)
	}
	basicAuth.Logger = log.New(io.Discard, "", 0)

	srv, ctrl := newTestServer(t, &recordingSource{}, basicAuth)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected read-only page without auth, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/next", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", rec.Code)
	}
	if got := ctrl.State().Period; got != (calendar.Period{Month: 2, Year: 2024}) {
		t.Errorf("Unauthorized request should not navigate, got %v", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/next", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("Expected 303 with credentials, got %d", rec.Code)
	}
}

func TestStart_Shutdown(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSource{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned an error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}
