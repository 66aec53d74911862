package googlecal

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/beekhof/astrocal/internal/calendar"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Source reads labels for a month from a Google Calendar, typically a
// public one such as a holidays calendar.
type Source struct {
	service    *gcal.Service
	calendarID string
	logger     *log.Logger
}

// Config configures a Source.
type Config struct {
	CalendarID string
	APIKey     string

	// HTTPClient and Endpoint replace the defaults, mainly for tests.
	HTTPClient *http.Client
	Endpoint   string
	Logger     *log.Logger
}

// New creates a Google Calendar API client for cfg.CalendarID.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.CalendarID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	var opts []option.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	} else if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Source{service: service, calendarID: cfg.CalendarID, logger: cfg.Logger}, nil
}

// Fetch implements events.Source.
// Recurring events are expanded to single instances.
func (s *Source) Fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error) {
	found := make(map[calendar.DateKey]string)

	call := s.service.Events.List(s.calendarID).
		TimeMin(period.Start().Format(time.RFC3339)).
		TimeMax(period.End().Format(time.RFC3339)).
		SingleEvents(true). // Expand recurring events
		OrderBy("startTime")

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			key, ok := startKey(item)
			if !ok {
				s.logger.Printf("Warning: skipping Google event %q without a usable start", item.Summary)
				continue
			}
			if existing, dup := found[key]; dup && existing != item.Summary {
				found[key] = existing + "; " + item.Summary
				continue
			}
			found[key] = item.Summary
		}
		return nil
	})
	if err != nil {
		s.logger.Printf("Warning: failed to list Google events for %s: %v", period, err)
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return found, nil
}

// startKey returns the day an event starts on. All-day events carry a
// date, timed events a RFC 3339 date-time whose local date is used.
func startKey(item *gcal.Event) (calendar.DateKey, bool) {
	if item.Start == nil {
		return "", false
	}
	if item.Start.Date != "" {
		key, err := calendar.ParseISODate(item.Start.Date)
		return key, err == nil
	}
	if item.Start.DateTime != "" {
		t, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return "", false
		}
		return calendar.DateOf(t).Key(), true
	}
	return "", false
}
