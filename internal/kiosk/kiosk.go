package kiosk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/claude/treadmill/internal/models"
)

// ErrStopped is returned by queries made after the event loop exited.
var ErrStopped = errors.New("kiosk stopped")

// DefaultQueueSize is the event queue capacity. Producers block when it is
// full so samples are never dropped or reordered.
const DefaultQueueSize = 256

// Options configures a Kiosk.
type Options struct {
	Settings  models.Settings
	Store     SessionStore
	Display   Broadcaster
	Rate      RateSetter
	Log       *slog.Logger
	QueueSize int
}

// Kiosk is the event loop that owns a Machine. Sensor samples, timer
// expirations, operator commands and background completions are processed
// one at a time in arrival order.
type Kiosk struct {
	machine *Machine
	sched   *loopScheduler
	events  chan func()
	done    chan struct{}
	taps    TapDetector
	log     *slog.Logger
}

// New creates a Kiosk. Nothing happens until Run is called.
func New(opts Options) *Kiosk {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	k := &Kiosk{
		events: make(chan func(), opts.QueueSize),
		done:   make(chan struct{}),
		log:    opts.Log,
	}
	k.sched = newLoopScheduler(k.post)
	k.machine = NewMachine(MachineConfig{
		Settings:  opts.Settings,
		Store:     opts.Store,
		Display:   opts.Display,
		Rate:      opts.Rate,
		Scheduler: k.sched,
		Spawn:     k.spawn,
		Now:       time.Now,
		Log:       opts.Log,
	})
	return k
}

// Run processes events until ctx is cancelled.
func (k *Kiosk) Run(ctx context.Context) error {
	k.machine.Start()
	defer close(k.done)
	for {
		select {
		case <-ctx.Done():
			k.sched.CancelAll()
			return ctx.Err()
		case fn := <-k.events:
			fn()
		}
	}
}

// post enqueues fn. It reports false once the loop has stopped.
func (k *Kiosk) post(fn func()) bool {
	select {
	case k.events <- fn:
		return true
	case <-k.done:
		return false
	}
}

func (k *Kiosk) spawn(work func() func()) {
	go func() {
		if apply := work(); apply != nil {
			k.post(apply)
		}
	}()
}

// Submit queues a sensor sample.
func (k *Kiosk) Submit(s models.Sample) {
	k.post(func() { k.machine.HandleSample(s) })
}

// Reset queues an unconditional return to Idle.
func (k *Kiosk) Reset() {
	k.post(k.machine.Reset)
}

// Tap feeds one pointer press into the reset gesture detector.
func (k *Kiosk) Tap(x, y float64) {
	at := time.Now()
	k.post(func() {
		if k.taps.Tap(x, y, at) {
			k.log.Info("reset gesture detected")
			k.machine.Reset()
		}
	})
}

// UpdateSettings queues new settings for the next session.
func (k *Kiosk) UpdateSettings(s models.Settings) {
	k.post(func() { k.machine.ApplySettings(s) })
}

// Settings returns the settings that will apply to the next session.
func (k *Kiosk) Settings(ctx context.Context) (models.Settings, error) {
	return call(ctx, k, k.machine.Settings)
}

// Display returns the snapshot currently on screen.
func (k *Kiosk) Display(ctx context.Context) (models.DisplayState, error) {
	return call(ctx, k, k.machine.Display)
}

// call runs fn on the loop goroutine and waits for its result.
func call[T any](ctx context.Context, k *Kiosk, fn func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case k.events <- func() { reply <- fn() }:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-k.done:
		return zero, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-k.done:
		return zero, ErrStopped
	}
}
