// Package kiosk runs the treadmill session lifecycle: it turns smoothed sensor
// samples and timer expirations into state transitions, persists finished
// sessions, ranks them and pushes display snapshots.
package kiosk

// State is the presentation state shown on both screens.
type State int

const (
	Idle State = iota
	WarmingUp
	Running
	Results
	Leaderboard
)

var stateNames = [...]string{
	Idle:        "idle",
	WarmingUp:   "warmup",
	Running:     "running",
	Results:     "results",
	Leaderboard: "leaderboard",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Speed thresholds in km/h that do not depend on settings.
const (
	// WakeSpeed shows the welcome message.
	WakeSpeed = 0.1
	// StopSpeed ends a running session once the warm-up grace period is over.
	StopSpeed = 0.05
)
