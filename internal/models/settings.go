package models

import (
	"fmt"
	"time"
)

// Settings are the operator-tunable kiosk parameters. Durations are in seconds.
type Settings struct {
	VMin                   float64   `yaml:"v_min" json:"v_min"`
	MessageDuration        float64   `yaml:"message_duration" json:"message_duration"`
	MaxDuration            float64   `yaml:"max_duration" json:"max_duration"`
	CountdownDuration      float64   `yaml:"countdown_duration" json:"countdown_duration"`
	PauseDurationBeforeEnd float64   `yaml:"pause_duration_before_end" json:"pause_duration_before_end"`
	ResultsDisplayDuration float64   `yaml:"results_display_duration" json:"results_display_duration"`
	ScoreDisplayDuration   float64   `yaml:"score_display_duration" json:"score_display_duration"`
	RankingCriterion       Criterion `yaml:"ranking_criterion" json:"ranking_criterion"`
	SampleFrequencyMs      int       `yaml:"sample_frequency_ms" json:"sample_frequency_ms"`
	WelcomeMessage         string    `yaml:"welcome_message" json:"welcome_message"`
	IdleMessage            string    `yaml:"idle_message" json:"idle_message"`
}

// Sensor firmware bounds for SET_INTERVAL.
const (
	MinSampleFrequencyMs = 100
	MaxSampleFrequencyMs = 5000
)

// DefaultSettings mirrors the values the kiosk shipped with.
func DefaultSettings() Settings {
	return Settings{
		VMin:                   2,
		MessageDuration:        3,
		MaxDuration:            30,
		CountdownDuration:      5,
		PauseDurationBeforeEnd: 1,
		ResultsDisplayDuration: 15,
		ScoreDisplayDuration:   10,
		RankingCriterion:       CriterionAvgSpeed,
		SampleFrequencyMs:      500,
		WelcomeMessage:         "A toi de jouer",
		IdleMessage:            "Viens tester nos super chaussures",
	}
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	if s.VMin <= 0 {
		return fmt.Errorf("v_min must be positive")
	}
	if s.MessageDuration < 0 || s.MaxDuration < 0 || s.CountdownDuration < 0 || s.PauseDurationBeforeEnd < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if s.ResultsDisplayDuration <= 0 || s.ScoreDisplayDuration <= 0 {
		return fmt.Errorf("display durations must be positive")
	}
	if _, err := ParseCriterion(string(s.RankingCriterion)); err != nil {
		return err
	}
	if s.SampleFrequencyMs < MinSampleFrequencyMs || s.SampleFrequencyMs > MaxSampleFrequencyMs {
		return fmt.Errorf("sample_frequency_ms must be between %d and %d", MinSampleFrequencyMs, MaxSampleFrequencyMs)
	}
	return nil
}

// Normalize fills zero values from DefaultSettings and canonicalizes the criterion.
// Zero is a legitimate value for max/countdown/pause durations and is kept.
func (s Settings) Normalize() Settings {
	d := DefaultSettings()
	if s.VMin == 0 {
		s.VMin = d.VMin
	}
	if s.ResultsDisplayDuration == 0 {
		s.ResultsDisplayDuration = d.ResultsDisplayDuration
	}
	if s.ScoreDisplayDuration == 0 {
		s.ScoreDisplayDuration = d.ScoreDisplayDuration
	}
	if s.SampleFrequencyMs == 0 {
		s.SampleFrequencyMs = d.SampleFrequencyMs
	}
	if c, err := ParseCriterion(string(s.RankingCriterion)); err == nil {
		s.RankingCriterion = c
	}
	if s.WelcomeMessage == "" {
		s.WelcomeMessage = d.WelcomeMessage
	}
	if s.IdleMessage == "" {
		s.IdleMessage = d.IdleMessage
	}
	return s
}

// Seconds converts a settings duration to time.Duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
