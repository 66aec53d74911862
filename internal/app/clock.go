package app

import (
	"context"
	"log"
	"time"
)

// TickInterval is how often the clock checks for a new day.
const TickInterval = 60 * time.Second

// Clock periodically feeds the wall-clock time to a Controller so the
// today marker follows the real date. Day changes are detected by
// calendar day, not elapsed time, so late ticks still catch rollovers.
type Clock struct {
	ctrl     *Controller
	now      func() time.Time
	interval time.Duration
	logger   *log.Logger
}

// NewClock creates a clock for ctrl.
func NewClock(ctrl *Controller) *Clock {
	return &Clock{
		ctrl:     ctrl,
		now:      ctrl.now,
		interval: TickInterval,
		logger:   ctrl.logger,
	}
}

// Run ticks until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Printf("Starting clock (interval: %v)", c.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick performs a single check.
func (c *Clock) Tick(ctx context.Context) bool {
	changed, out := c.ctrl.Tick(ctx, c.now())
	if changed && out.Degraded() {
		c.logger.Printf("Warning: refresh after date change degraded: %v", out.Err)
	}
	return changed
}
