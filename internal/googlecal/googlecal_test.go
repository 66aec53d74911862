package googlecal

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beekhof/astrocal/internal/calendar"
)

const eventsJSON = `{
  "kind": "calendar#events",
  "items": [
    {"id": "a", "summary": "St. Patrick's Day", "start": {"date": "2024-03-17"}},
    {"id": "b", "summary": "Daylight saving starts", "start": {"dateTime": "2024-03-10T02:00:00-05:00"}},
    {"id": "c", "summary": "Second event", "start": {"date": "2024-03-17"}},
    {"id": "d", "summary": "No start"}
  ]
}`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/calendars/holidays@example.com/events") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" {
			t.Errorf("Expected singleEvents=true, got %q", q.Get("singleEvents"))
		}
		if q.Get("timeMin") != "2024-03-01T00:00:00Z" || q.Get("timeMax") != "2024-04-01T00:00:00Z" {
			t.Errorf("Unexpected window %s - %s", q.Get("timeMin"), q.Get("timeMax"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, eventsJSON)
	}))
	defer srv.Close()

	src, err := New(context.Background(), Config{
		CalendarID: "holidays@example.com",
		HTTPClient: srv.Client(),
		Endpoint:   srv.URL + "/",
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New() returned an error: %v", err)
	}

	found, err := src.Fetch(context.Background(), calendar.Period{Month: 2, Year: 2024})
	if err != nil {
		t.Fatalf("Fetch() returned an error: %v", err)
	}

	if got := found["2024-3-17"]; got != "St. Patrick's Day; Second event" {
		t.Errorf("Expected joined all-day label, got %q", got)
	}
	if got := found["2024-3-10"]; got != "Daylight saving starts" {
		t.Errorf("Expected timed event on its start date, got %q", got)
	}
	if len(found) != 2 {
		t.Errorf("Expected 2 keys, got %d: %v", len(found), found)
	}
}

func TestFetch_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	src, err := New(context.Background(), Config{
		CalendarID: "x",
		HTTPClient: srv.Client(),
		Endpoint:   srv.URL + "/",
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New() returned an error: %v", err)
	}
	if _, err := src.Fetch(context.Background(), calendar.Period{Month: 2, Year: 2024}); err == nil {
		t.Error("Expected an error for a 403 response")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), Config{APIKey: "k"}); err == nil {
		t.Error("Expected an error without calendar id")
	}
	if _, err := New(context.Background(), Config{CalendarID: "x"}); err == nil {
		t.Error("Expected an error without api key")
	}
}
