package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/beekhof/astrocal/internal/calendar"
	"github.com/beekhof/astrocal/internal/events"
)

var (
	// ErrSuperseded is reported by a pipeline run that was overtaken by a
	// newer navigation or refresh before its fetch completed.
	ErrSuperseded = errors.New("superseded by a newer request")

	// ErrInvalidDirection is returned by Advance for anything but -1 or +1.
	ErrInvalidDirection = errors.New("direction must be -1 or +1")
)

// State is the application state owned by a Controller.
type State struct {
	Period calendar.Period
	Today  calendar.Date
	Store  *events.Store
}

// Outcome is the result of one fetch+render run.
type Outcome struct {
	Month      calendar.Month
	Err        error
	Superseded bool
	RenderedAt time.Time
}

// Degraded reports whether the month was rendered without fresh events.
func (o Outcome) Degraded() bool {
	return o.Err != nil && !o.Superseded
}

// Controller tracks the displayed period and runs the fetch+render
// pipeline whenever it changes. When runs overlap, the most recently
// requested one wins: older runs are cancelled and their results dropped.
type Controller struct {
	source       events.Source
	now          func() time.Time
	logger       *log.Logger
	verbose      bool
	fetchTimeout time.Duration
	initial      *calendar.Period

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	current    Outcome
}

// Option configures a Controller.
type Option func(*Controller)

// WithPeriod sets the initially displayed period.
func WithPeriod(p calendar.Period) Option {
	return func(c *Controller) {
		p = p.Normalize()
		c.initial = &p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithVerbose enables DEBUG logs.
func WithVerbose(v bool) Option {
	return func(c *Controller) { c.verbose = v }
}

// WithFetchTimeout bounds each fetch. Zero means no bound beyond the
// caller's context.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) { c.fetchTimeout = d }
}

// NewController creates a controller showing the current month unless
// WithPeriod says otherwise. Nothing is fetched until Refresh is called.
func NewController(source events.Source, opts ...Option) *Controller {
	c := &Controller{
		source: source,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	today := calendar.DateOf(c.now())
	c.state.Today = today
	c.state.Period = calendar.Period{Month: today.Month, Year: today.Year}
	if c.initial != nil {
		c.state.Period = *c.initial
	}
	c.state.Store = events.NewStore()
	c.current = Outcome{
		Month:      calendar.Render(c.state.Period, nil, today),
		RenderedAt: c.now(),
	}
	return c
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the most recently rendered outcome.
func (c *Controller) Current() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the displayed period one month back (-1) or forward (+1)
// and re-runs the pipeline for the new period.
func (c *Controller) Advance(ctx context.Context, direction int) Outcome {
	if direction != -1 && direction != 1 {
		return Outcome{Month: c.Current().Month, Err: fmt.Errorf("%w: got %d", ErrInvalidDirection, direction)}
	}

	c.mu.Lock()
	c.state.Period = c.state.Period.Advance(direction)
	period := c.state.Period
	c.mu.Unlock()

	if c.verbose {
		c.logger.Printf("DEBUG: navigated to %s", period)
	}
	return c.run(ctx)
}

// GoTo displays period and re-runs the pipeline.
func (c *Controller) GoTo(ctx context.Context, period calendar.Period) Outcome {
	c.mu.Lock()
	c.state.Period = period.Normalize()
	c.mu.Unlock()
	return c.run(ctx)
}

// GoToToday displays the month containing the stored today.
func (c *Controller) GoToToday(ctx context.Context) Outcome {
	c.mu.Lock()
	today := c.state.Today
	c.mu.Unlock()
	return c.GoTo(ctx, calendar.Period{Month: today.Month, Year: today.Year})
}

// Refresh re-runs the pipeline for the displayed period.
func (c *Controller) Refresh(ctx context.Context) Outcome {
	return c.run(ctx)
}

// Tick records the wall-clock time now. When its calendar day differs
// from the stored today, today is updated and the displayed period is
// refreshed; the returned bool reports whether that happened.
func (c *Controller) Tick(ctx context.Context, now time.Time) (bool, Outcome) {
	day := calendar.DateOf(now)

	c.mu.Lock()
	if day == c.state.Today {
		current := c.current
		c.mu.Unlock()
		return false, current
	}
	previous := c.state.Today
	c.state.Today = day
	c.mu.Unlock()

	c.logger.Printf("Date changed from %s to %s, refreshing", previous, day)
	return true, c.run(ctx)
}

func (c *Controller) run(ctx context.Context) Outcome {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	period := c.state.Period
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	if c.fetchTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, c.fetchTimeout)
		defer cancelTimeout()
	}

	found, fetchErr := c.source.Fetch(runCtx, period)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if c.verbose {
			c.logger.Printf("DEBUG: dropping result for %s (superseded)", period)
		}
		return Outcome{Month: c.Current().Month, Err: ErrSuperseded, Superseded: true}
	}

	store := c.state.Store
	if fetchErr == nil || len(found) > 0 {
		// Partial results from a multi-source fetch still replace the period.
		store.Replace(period, found)
	} else if !store.Holds(period) {
		store.Clear()
	}
	if fetchErr != nil {
		c.logger.Printf("Warning: rendering %s with %d cached events after fetch failure: %v", period, store.Len(), fetchErr)
	}

	out := Outcome{
		Month:      calendar.Render(period, store, c.state.Today),
		Err:        fetchErr,
		RenderedAt: c.now(),
	}
	c.current = out
	c.cancel = nil
	c.mu.Unlock()

	return out
}
