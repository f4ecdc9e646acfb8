package session

import (
	"time"

	"github.com/claude/treadmill/internal/models"
)

// Aggregator accumulates distance and speed statistics for one session.
// It is not safe for concurrent use; the kiosk actor owns it.
type Aggregator struct {
	start    time.Time
	end      time.Time
	distance float64
	maxSpeed float64
	speeds   []float64
}

// Begin clears all statistics and starts a new session at now.
func (a *Aggregator) Begin(now time.Time) {
	a.Reset()
	a.start = now
}

// Reset discards the session.
func (a *Aggregator) Reset() {
	*a = Aggregator{speeds: a.speeds[:0]}
}

// Started reports whether Begin was called since the last Reset.
func (a *Aggregator) Started() bool { return !a.start.IsZero() }

// Finished reports whether Finish was called; a finished aggregator is frozen.
func (a *Aggregator) Finished() bool { return !a.end.IsZero() }

// Update applies one smoothed sample. Negative deltas are ignored so distance
// never decreases. Updates on a finished aggregator are dropped.
func (a *Aggregator) Update(distanceDelta, smoothedSpeed float64) {
	if a.Finished() {
		return
	}
	if distanceDelta > 0 {
		a.distance += distanceDelta
	}
	a.speeds = append(a.speeds, smoothedSpeed)
	if smoothedSpeed > a.maxSpeed {
		a.maxSpeed = smoothedSpeed
	}
}

// Finish freezes the session at now. Calling it twice keeps the first end time.
func (a *Aggregator) Finish(now time.Time) {
	if a.Finished() {
		return
	}
	a.end = now
}

// Start returns the session start, zero if not started.
func (a *Aggregator) Start() time.Time { return a.start }

// End returns the session end, zero if still live.
func (a *Aggregator) End() time.Time { return a.end }

// Samples returns the number of speeds recorded.
func (a *Aggregator) Samples() int { return len(a.speeds) }

// Snapshot summarizes the session as of now (or as of its end once finished).
func (a *Aggregator) Snapshot(now time.Time) models.SessionSnapshot {
	snap := models.SessionSnapshot{
		Distance: a.distance,
		MaxSpeed: a.maxSpeed,
		Finished: a.Finished(),
	}
	if n := len(a.speeds); n > 0 {
		var sum float64
		for _, v := range a.speeds {
			sum += v
		}
		snap.AvgSpeed = sum / float64(n)
		snap.CurrentSpeed = a.speeds[n-1]
	}
	if a.Started() {
		until := now
		if a.Finished() {
			until = a.end
		}
		snap.Elapsed = until.Sub(a.start)
		if snap.Elapsed < 0 {
			snap.Elapsed = 0
		}
	}
	snap.Duration = models.FormatDuration(snap.Elapsed)
	return snap
}

// Record builds the SessionRecord persisted at session end. ID is left for the store.
func (a *Aggregator) Record() models.SessionRecord {
	snap := a.Snapshot(a.end)
	date := a.end
	if date.IsZero() {
		date = a.start
	}
	return models.SessionRecord{
		Date:     date.UTC().Format(models.DateLayout),
		Duration: snap.Duration,
		Distance: snap.Distance,
		AvgSpeed: snap.AvgSpeed,
		MaxSpeed: snap.MaxSpeed,
	}
}
