// Package timectrl drives the router's periodic re-evaluation loop.
package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/mesh-router/internal/logging"
)

// Clock exposes the controller's notion of now.
type Clock interface {
	Now() time.Time
}

// Mode describes how the controller advances time.
type Mode int

const (
	// RealTime waits one wall-clock tick between steps.
	RealTime Mode = iota
	// Accelerated steps back to back, advancing time by Tick each step.
	Accelerated
)

// TickFunc runs once per step with the new time.
type TickFunc func(ctx context.Context, now time.Time) error

// Controller advances a clock by a fixed tick and runs registered listeners
// after each step, in registration order.
type Controller struct {
	mu      sync.RWMutex
	start   time.Time
	tick    time.Duration
	mode    Mode
	current time.Time

	listeners []namedTick
	log       logging.Logger
}

type namedTick struct {
	name string
	fn   TickFunc
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger attaches a logger for listener failures.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// NewController constructs a controller starting at start.
func NewController(start time.Time, tick time.Duration, mode Mode, opts ...Option) *Controller {
	c := &Controller{
		start:   start,
		tick:    tick,
		mode:    mode,
		current: start,
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Now returns the controller's current time.
func (c *Controller) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SetTime moves the clock to t without running listeners.
func (c *Controller) SetTime(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Tick reports the step size.
func (c *Controller) Tick() time.Duration {
	return c.tick
}

// AddListener registers fn under name, used in failure logs.
func (c *Controller) AddListener(name string, fn TickFunc) {
	c.mu.Lock()
	c.listeners = append(c.listeners, namedTick{name: name, fn: fn})
	c.mu.Unlock()
}

// Step advances the clock by one tick and runs every listener. A failing
// listener does not stop the others; failures are logged and joined.
func (c *Controller) Step(ctx context.Context) error {
	c.mu.Lock()
	c.current = c.current.Add(c.tick)
	now := c.current
	listeners := append([]namedTick(nil), c.listeners...)
	c.mu.Unlock()

	var errs []error
	for _, l := range listeners {
		if err := l.fn(ctx, now); err != nil {
			c.log.Warn(ctx, "tick listener failed",
				logging.String("listener", l.name),
				logging.String("time", now.Format(time.RFC3339Nano)),
				logging.Err(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run steps until duration of controller time has elapsed, or forever when
// duration is zero. It returns ctx.Err() if cancelled first. Listener
// failures are logged and do not end the loop.
func (c *Controller) Run(ctx context.Context, duration time.Duration) error {
	if c.tick <= 0 {
		return errors.New("timectrl: tick must be positive")
	}

	var wait <-chan time.Time
	if c.mode == RealTime {
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()
		wait = ticker.C
	}

	var elapsed time.Duration
	for duration <= 0 || elapsed < duration {
		if wait != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		_ = c.Step(ctx)
		elapsed += c.tick
	}
	return nil
}

// Start runs the controller from its start time in a new goroutine. The
// returned channel receives Run's result and is then closed.
func (c *Controller) Start(ctx context.Context, duration time.Duration) <-chan error {
	c.SetTime(c.start)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.Run(ctx, duration)
	}()
	return done
}
