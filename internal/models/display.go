package models

import "time"

// SessionSnapshot is the read-only view of the live session aggregator.
type SessionSnapshot struct {
	Distance     float64       `json:"distance"`
	MaxSpeed     float64       `json:"max_speed"`
	AvgSpeed     float64       `json:"avg_speed"`
	CurrentSpeed float64       `json:"current_speed"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Duration     string        `json:"duration"`
	Finished     bool          `json:"finished"`
}

// DisplayState is broadcast to every attached screen after each meaningful change.
// Screens only render it; they never send state back.
type DisplayState struct {
	Sequence         uint64          `json:"sequence"`
	State            string          `json:"state"`
	Session          SessionSnapshot `json:"session"`
	Settings         Settings        `json:"settings"`
	WelcomeMessage   string          `json:"welcome_message"`
	CountersVisible  bool            `json:"counters_visible"`
	CountdownValue   int             `json:"countdown_value"`
	CountdownVisible bool            `json:"countdown_visible"`
	Criterion        Criterion       `json:"criterion"`
	Standing         *Standing       `json:"standing,omitempty"`
	MiniBoard        []RankedEntry   `json:"mini_board,omitempty"`
	Podium           []float64       `json:"podium,omitempty"`
}
