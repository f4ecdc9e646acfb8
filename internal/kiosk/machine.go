package kiosk

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/claude/treadmill/internal/leaderboard"
	"github.com/claude/treadmill/internal/models"
	"github.com/claude/treadmill/internal/session"
)

// SessionStore is the append-only session log the machine writes to and ranks from.
type SessionStore interface {
	Append(ctx context.Context, rec models.SessionRecord) (models.SessionRecord, error)
	QueryAll(ctx context.Context) ([]models.SessionRecord, error)
}

// Broadcaster pushes display snapshots to the screens.
type Broadcaster interface {
	Publish(state models.DisplayState)
}

// RateSetter forwards the sample interval to the sensor.
type RateSetter interface {
	SetInterval(ms int) error
}

// Spawner runs work off the machine goroutine and hands the returned closure
// back to it. A nil closure means nothing to apply.
type Spawner func(work func() func())

// storeTimeout bounds one persistence or leaderboard round trip.
const storeTimeout = 5 * time.Second

// MachineConfig wires a Machine to its collaborators.
type MachineConfig struct {
	Settings  models.Settings
	Store     SessionStore
	Display   Broadcaster
	Rate      RateSetter
	Scheduler Scheduler
	Spawn     Spawner
	Now       func() time.Time
	Log       *slog.Logger
}

// Machine is the kiosk context: the single owner of the live session, the
// current state and every pending timer. It is not safe for concurrent use;
// Kiosk serializes all calls onto one goroutine.
type Machine struct {
	log     *slog.Logger
	now     func() time.Time
	sched   Scheduler
	spawn   Spawner
	store   SessionStore
	display Broadcaster
	rate    RateSetter

	pending models.Settings // last saved settings
	active  models.Settings // settings frozen when the current cycle left Idle

	state    State
	smoother session.Smoother
	agg      session.Aggregator

	lastSpeed       float64
	warmupElapsed   bool
	countersVisible bool
	pauseStart      time.Time
	message         string
	countdown       int
	countdownOn     bool

	cycle     uint64 // incremented per session, tags async results
	seq       uint64 // incremented per broadcast
	lastID    string
	standing  *models.Standing
	miniBoard []models.RankedEntry
	podium    []float64
}

// NewMachine returns a machine in the Idle state. Call Start before feeding samples.
func NewMachine(cfg MachineConfig) *Machine {
	s := cfg.Settings.Normalize()
	m := &Machine{
		log:     cfg.Log,
		now:     cfg.Now,
		sched:   cfg.Scheduler,
		spawn:   cfg.Spawn,
		store:   cfg.Store,
		display: cfg.Display,
		rate:    cfg.Rate,
		pending: s,
		active:  s,
		message: s.IdleMessage,
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.spawn == nil {
		m.spawn = func(work func() func()) {
			if apply := work(); apply != nil {
				apply()
			}
		}
	}
	return m
}

// Start enters Idle and pushes the sample interval to the sensor.
func (m *Machine) Start() {
	m.enterIdle()
	m.pushRate()
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// LastSessionID is the store identity of the session on screen, empty until
// persistence completes or when it failed.
func (m *Machine) LastSessionID() string { return m.lastID }

// Settings returns the settings that will apply to the next session.
func (m *Machine) Settings() models.Settings { return m.pending }

// HandleSample smooths one sensor frame, folds it into the live session and
// evaluates the transition rules in priority order.
func (m *Machine) HandleSample(s models.Sample) {
	v := m.smoother.Push(s.Speed)
	m.lastSpeed = v
	now := m.now()

	switch m.state {
	case Idle, WarmingUp:
		if v >= m.active.VMin {
			m.enterRunning(now, false)
			return
		}
		if m.state == Idle && v > WakeSpeed {
			m.enterWarmup()
		}

	case Running:
		m.agg.Update(s.DistanceDelta, v)
		if m.evaluateRunning(now, v) {
			return
		}
		m.broadcast()
	}
}

// evaluateRunning applies the Running exit rules. It reports whether the
// session ended.
func (m *Machine) evaluateRunning(now time.Time, v float64) bool {
	if m.active.MaxDuration > 0 && now.Sub(m.agg.Start()) >= models.Seconds(m.active.MaxDuration) {
		m.finish(now, "max duration")
		return true
	}
	if m.warmupElapsed && v <= StopSpeed {
		m.finish(now, "stopped")
		return true
	}
	if v >= m.active.VMin {
		m.countersVisible = true
	}
	if m.warmupElapsed && m.countersVisible && v < m.active.VMin {
		if m.pauseStart.IsZero() {
			m.pauseStart = now
		} else if now.Sub(m.pauseStart) > models.Seconds(m.active.PauseDurationBeforeEnd) {
			m.finish(now, "pause")
			return true
		}
	} else {
		m.pauseStart = time.Time{}
	}
	return false
}

// Reset returns to Idle from any state, discarding the live session, and
// re-sends the sample interval to the sensor.
func (m *Machine) Reset() {
	m.log.Info("manual reset", "from", m.state.String())
	m.enterIdle()
	m.pushRate()
}

// ApplySettings stores new settings. A session in progress keeps the settings
// it started with; the sample interval is pushed to the sensor immediately.
func (m *Machine) ApplySettings(s models.Settings) {
	m.pending = s.Normalize()
	if m.state == Idle {
		m.active = m.pending
		m.message = m.active.IdleMessage
		m.broadcast()
	}
	m.pushRate()
}

// Display builds the snapshot currently shown on the screens.
func (m *Machine) Display() models.DisplayState {
	return models.DisplayState{
		Sequence:         m.seq,
		State:            m.state.String(),
		Session:          m.agg.Snapshot(m.now()),
		Settings:         m.active,
		WelcomeMessage:   m.message,
		CountersVisible:  m.countersVisible,
		CountdownValue:   m.countdown,
		CountdownVisible: m.countdownOn,
		Criterion:        m.active.RankingCriterion,
		Standing:         m.standing,
		MiniBoard:        m.miniBoard,
		Podium:           m.podium,
	}
}

func (m *Machine) transition(to State) {
	if m.state != to {
		m.log.Info("state change", "from", m.state.String(), "to", to.String())
	}
	m.sched.CancelAll()
	m.countdownOn = false
	m.countdown = 0
	m.state = to
}

func (m *Machine) enterIdle() {
	m.transition(Idle)
	m.agg.Reset()
	m.smoother.Reset()
	m.lastSpeed = 0
	m.warmupElapsed = false
	m.countersVisible = false
	m.pauseStart = time.Time{}
	m.active = m.pending
	m.message = m.active.IdleMessage
	m.lastID = ""
	m.standing = nil
	m.miniBoard = nil
	m.podium = nil
	m.broadcast()
}

func (m *Machine) enterWarmup() {
	m.transition(WarmingUp)
	m.message = m.active.WelcomeMessage
	m.sched.After(timerWarmup, models.Seconds(m.active.MessageDuration), m.onWarmupElapsed)
	m.broadcast()
}

func (m *Machine) onWarmupElapsed() {
	if m.state != WarmingUp {
		return
	}
	if m.lastSpeed >= m.active.VMin {
		m.enterRunning(m.now(), true)
		return
	}
	m.enterIdle()
}

// enterRunning starts a new session. warmedUp is true when the warm-up message
// already ran its full duration; otherwise a grace timer of the same length
// holds off the stop and pause rules.
func (m *Machine) enterRunning(now time.Time, warmedUp bool) {
	m.transition(Running)
	m.cycle++
	m.agg.Begin(now)
	m.warmupElapsed = warmedUp
	m.countersVisible = true
	m.pauseStart = time.Time{}
	m.message = m.active.WelcomeMessage
	m.lastID = ""
	m.standing = nil
	m.miniBoard = nil
	m.podium = nil

	if !warmedUp {
		m.sched.After(timerGrace, models.Seconds(m.active.MessageDuration), m.onGraceElapsed)
	}
	if m.active.MaxDuration > 0 {
		deadline := models.Seconds(m.active.MaxDuration)
		m.sched.After(timerDeadline, deadline, m.onDeadline)
		if m.active.CountdownDuration > 0 {
			lead := deadline - models.Seconds(m.active.CountdownDuration)
			if lead < 0 {
				lead = 0
			}
			m.sched.After(timerCountdown, lead, m.onCountdownStart)
		}
	}
	m.loadPodium(m.cycle)
	m.broadcast()
}

func (m *Machine) onGraceElapsed() {
	if m.state != Running {
		return
	}
	m.warmupElapsed = true
	m.broadcast()
}

func (m *Machine) onDeadline() {
	if m.state == Running {
		m.finish(m.now(), "max duration")
	}
}

func (m *Machine) onCountdownStart() {
	if m.state != Running {
		return
	}
	now := m.now()
	remaining := models.Seconds(m.active.MaxDuration) - now.Sub(m.agg.Start())
	m.countdown = int(math.Ceil(remaining.Seconds()))
	if m.countdown <= 0 {
		m.finish(now, "countdown")
		return
	}
	m.countdownOn = true
	m.broadcast()
	m.sched.After(timerCountdown, time.Second, m.onCountdownTick)
}

func (m *Machine) onCountdownTick() {
	if m.state != Running || !m.countdownOn {
		return
	}
	m.countdown--
	if m.countdown <= 0 {
		m.countdown = 0
		m.broadcast()
		m.finish(m.now(), "countdown")
		return
	}
	m.broadcast()
	m.sched.After(timerCountdown, time.Second, m.onCountdownTick)
}

// finish freezes the session, shows Results and persists the record in the
// background. The transition never waits on the store.
func (m *Machine) finish(now time.Time, reason string) {
	m.agg.Finish(now)
	rec := m.agg.Record()
	m.log.Info("session finished", "reason", reason,
		"distance", rec.Distance, "avg_speed", rec.AvgSpeed, "max_speed", rec.MaxSpeed, "duration", rec.Duration)

	m.transition(Results)
	m.pauseStart = time.Time{}
	m.sched.After(timerResults, models.Seconds(m.active.ResultsDisplayDuration), m.onResultsElapsed)
	m.persist(m.cycle, rec, m.active.RankingCriterion)
	m.broadcast()
}

func (m *Machine) onResultsElapsed() {
	if m.state != Results {
		return
	}
	m.transition(Leaderboard)
	m.sched.After(timerLeaderboard, models.Seconds(m.active.ScoreDisplayDuration), m.onLeaderboardElapsed)
	m.broadcast()
}

func (m *Machine) onLeaderboardElapsed() {
	if m.state == Leaderboard {
		m.enterIdle()
	}
}

func (m *Machine) persist(cycle uint64, rec models.SessionRecord, c models.Criterion) {
	if m.store == nil {
		return
	}
	store, log := m.store, m.log
	m.spawn(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		saved, err := store.Append(ctx, rec)
		if err != nil {
			log.Error("failed to save session", "date", rec.Date, "error", err)
			saved = models.SessionRecord{}
		}
		records, err := store.QueryAll(ctx)
		if err != nil {
			log.Warn("leaderboard query failed", "error", err)
			records = nil
		}
		res := leaderboard.Evaluate(records, c, saved.ID)

		return func() {
			if m.cycle != cycle || (m.state != Results && m.state != Leaderboard) {
				return
			}
			m.lastID = saved.ID
			m.standing = &res.Standing
			m.miniBoard = res.MiniBoard
			m.broadcast()
		}
	})
}

func (m *Machine) loadPodium(cycle uint64) {
	if m.store == nil {
		return
	}
	store, log, c := m.store, m.log, m.active.RankingCriterion
	m.spawn(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		records, err := store.QueryAll(ctx)
		if err != nil {
			log.Warn("podium query failed", "error", err)
			return nil
		}
		podium := leaderboard.Podium(records, c, leaderboard.PodiumSize)
		return func() {
			if m.cycle != cycle || m.state != Running {
				return
			}
			m.podium = podium
			m.broadcast()
		}
	})
}

func (m *Machine) pushRate() {
	if m.rate == nil {
		return
	}
	if err := m.rate.SetInterval(m.pending.SampleFrequencyMs); err != nil {
		m.log.Warn("failed to push sample interval", "ms", m.pending.SampleFrequencyMs, "error", err)
	}
}

func (m *Machine) broadcast() {
	m.seq++
	if m.display != nil {
		m.display.Publish(m.Display())
	}
}
