package kiosk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/claude/treadmill/internal/models"
)

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// manualScheduler is a deterministic Scheduler driven by Advance.
type manualScheduler struct {
	now    time.Time
	timers map[string]manualTimer
	fired  map[string]int
	seq    int
}

type manualTimer struct {
	at  time.Time
	seq int
	fn  func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: epoch, timers: map[string]manualTimer{}, fired: map[string]int{}}
}

func (s *manualScheduler) Now() time.Time { return s.now }

func (s *manualScheduler) After(name string, d time.Duration, fn func()) {
	s.seq++
	s.timers[name] = manualTimer{at: s.now.Add(d), seq: s.seq, fn: fn}
}

func (s *manualScheduler) Cancel(name string) { delete(s.timers, name) }

func (s *manualScheduler) CancelAll() {
	for name := range s.timers {
		delete(s.timers, name)
	}
}

func (s *manualScheduler) pending(name string) bool {
	_, ok := s.timers[name]
	return ok
}

// Advance moves the clock forward, firing due timers in deadline order.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now.Add(d)
	for {
		name, next, ok := s.earliest()
		if !ok || next.at.After(target) {
			break
		}
		delete(s.timers, name)
		s.now = next.at
		s.fired[name]++
		next.fn()
	}
	s.now = target
}

func (s *manualScheduler) earliest() (string, manualTimer, bool) {
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.timers[names[i]], s.timers[names[j]]
		if a.at.Equal(b.at) {
			return a.seq < b.seq
		}
		return a.at.Before(b.at)
	})
	if len(names) == 0 {
		return "", manualTimer{}, false
	}
	return names[0], s.timers[names[0]], true
}

// memStore is an in-memory SessionStore assigning sequential ids.
type memStore struct {
	mu        sync.Mutex
	records   []models.SessionRecord
	appendErr error
	queryErr  error
	appends   int
}

func (s *memStore) Append(_ context.Context, rec models.SessionRecord) (models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.appendErr != nil {
		return models.SessionRecord{}, s.appendErr
	}
	rec.ID = fmt.Sprintf("id-%d", len(s.records)+1)
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *memStore) QueryAll(context.Context) ([]models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := make([]models.SessionRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

type displayRecorder struct {
	states []models.DisplayState
}

func (d *displayRecorder) Publish(s models.DisplayState) { d.states = append(d.states, s) }

func (d *displayRecorder) last() models.DisplayState {
	if len(d.states) == 0 {
		return models.DisplayState{}
	}
	return d.states[len(d.states)-1]
}

type rateRecorder struct {
	sent []int
	err  error
}

func (r *rateRecorder) SetInterval(ms int) error {
	r.sent = append(r.sent, ms)
	return r.err
}

// harness wires a Machine to fakes. Background work is queued in jobs and
// only runs on flush, mimicking the kiosk loop.
type harness struct {
	t       *testing.T
	m       *Machine
	sched   *manualScheduler
	store   *memStore
	display *displayRecorder
	rate    *rateRecorder
	jobs    []func() func()
}

func testSettings() models.Settings {
	s := models.DefaultSettings()
	s.VMin = 2
	s.MessageDuration = 3
	s.MaxDuration = 0
	s.CountdownDuration = 5
	s.PauseDurationBeforeEnd = 1
	s.ResultsDisplayDuration = 15
	s.ScoreDisplayDuration = 10
	return s
}

func newHarness(t *testing.T, settings models.Settings) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		sched:   newManualScheduler(),
		store:   &memStore{},
		display: &displayRecorder{},
		rate:    &rateRecorder{},
	}
	h.m = NewMachine(MachineConfig{
		Settings:  settings,
		Store:     h.store,
		Display:   h.display,
		Rate:      h.rate,
		Scheduler: h.sched,
		Spawn:     func(work func() func()) { h.jobs = append(h.jobs, work) },
		Now:       h.sched.Now,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.m.Start()
	return h
}

// flush runs queued background work and applies its results.
func (h *harness) flush() {
	for len(h.jobs) > 0 {
		work := h.jobs[0]
		h.jobs = h.jobs[1:]
		if apply := work(); apply != nil {
			apply()
		}
	}
}

// feed submits speeds one sample interval apart.
func (h *harness) feed(interval time.Duration, dist float64, speeds ...float64) {
	for _, v := range speeds {
		h.m.HandleSample(models.Sample{DistanceDelta: dist, Speed: v})
		h.sched.Advance(interval)
	}
}

func (h *harness) expect(want State) {
	h.t.Helper()
	if got := h.m.State(); got != want {
		h.t.Fatalf("state = %s, want %s", got, want)
	}
}

var errBoom = errors.New("boom")
