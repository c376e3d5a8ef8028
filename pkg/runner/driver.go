// Package runner hosts the conversation engine: one goroutine owning every
// engine entry point, one timer for scheduled continuations, and one channel
// serializing externally raised turn events. This is the cooperative
// scheduler the engine assumes: no two engine calls ever run concurrently,
// and a timer tick that arrives after the world changed is harmless because
// the engine re-derives everything from current state.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/internal/runtime"
	"github.com/pocketcoach/converse/pkg/domain"
)

// Driver pumps an engine.
type Driver struct {
	engine *runtime.Engine
	logger *slog.Logger

	events chan domain.TurnEvent
	wake   chan struct{}

	mu   sync.Mutex
	next time.Time // earliest requested advance, zero when none

	stopOnce sync.Once
	stopped  chan struct{}
}

// Option configures the Driver.
type Option func(*Driver)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New creates a Driver. Bind the engine to it by constructing the engine
// with runtime.WithScheduler(d.Schedule) and attaching d.WatchTurn to the
// turn hook, then call Bind.
func New(opts ...Option) *Driver {
	d := &Driver{
		logger:  logging.NewNop(),
		events:  make(chan domain.TurnEvent, 32),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bind attaches the engine the driver pumps. Must happen before Run.
func (d *Driver) Bind(engine *runtime.Engine) {
	d.engine = engine
}

// Schedule asks for an Advance after delay. Multiple requests coalesce to the
// earliest. Safe from any goroutine, including engine callbacks.
func (d *Driver) Schedule(delay time.Duration) {
	due := time.Now().Add(delay)
	d.mu.Lock()
	if d.next.IsZero() || due.Before(d.next) {
		d.next = due
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Post delivers a turn event to the engine, serialized with everything else.
func (d *Driver) Post(ev domain.TurnEvent) {
	select {
	case d.events <- ev:
	case <-d.stopped:
	}
}

// WatchTurn arms auto-dismissal for timed turns. Wire it to the engine's
// turn hook.
func (d *Driver) WatchTurn(turn *domain.Turn) {
	if turn.AutoDismissAfter <= 0 {
		return
	}
	lineID := turn.Line.ID
	time.AfterFunc(turn.AutoDismissAfter, func() {
		d.Post(domain.TurnEvent{Type: domain.EventTimerElapsed, LineID: lineID})
	})
}

// Stop makes Run return. Safe to call from engine hooks.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}

// Run starts the engine and pumps it until ctx is canceled or Stop is
// called. It owns the engine goroutine: every Advance and HandleEvent happens
// here.
func (d *Driver) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	d.engine.Start()
	d.rearm(timer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopped:
			return nil
		case ev := <-d.events:
			d.engine.HandleEvent(ev)
			d.rearm(timer)
		case <-d.wake:
			d.rearm(timer)
		case <-timer.C:
			d.clearDue()
			d.engine.Advance()
			d.rearm(timer)
		}
	}
}

// rearm points the timer at the earliest requested advance.
func (d *Driver) rearm(timer *time.Timer) {
	d.mu.Lock()
	next := d.next
	d.mu.Unlock()

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if next.IsZero() {
		timer.Reset(time.Hour)
		return
	}
	delay := time.Until(next)
	if delay < 0 {
		delay = 0
	}
	timer.Reset(delay)
}

func (d *Driver) clearDue() {
	d.mu.Lock()
	d.next = time.Time{}
	d.mu.Unlock()
}
