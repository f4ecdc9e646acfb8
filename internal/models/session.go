package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical display format of SessionRecord.Date.
const DateLayout = "2006-01-02 15:04:05"

// SessionRecord is one completed session as stored in the session log.
// ID is assigned by the store on append and is the only key used for rank lookup.
type SessionRecord struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"`
	Duration string  `json:"duration"`
	Distance float64 `json:"distance"`
	AvgSpeed float64 `json:"avg_speed"`
	MaxSpeed float64 `json:"max_speed"`
}

// Criterion selects the SessionRecord field used for ranking.
type Criterion string

const (
	CriterionAvgSpeed Criterion = "avgSpeed"
	CriterionMaxSpeed Criterion = "maxSpeed"
	CriterionDistance Criterion = "distance"
)

// ParseCriterion accepts the canonical names plus the legacy French ones
// written by older kiosk config files.
func ParseCriterion(s string) (Criterion, error) {
	switch strings.TrimSpace(s) {
	case "avgSpeed", "avg_speed", "vitesseMoyenne", "":
		return CriterionAvgSpeed, nil
	case "maxSpeed", "max_speed", "vitesseMax":
		return CriterionMaxSpeed, nil
	case "distance":
		return CriterionDistance, nil
	}
	return "", fmt.Errorf("unknown ranking criterion %q", s)
}

// Value returns the ranked field of r.
func (c Criterion) Value(r SessionRecord) float64 {
	switch c {
	case CriterionMaxSpeed:
		return r.MaxSpeed
	case CriterionDistance:
		return r.Distance
	default:
		return r.AvgSpeed
	}
}

// Unit is the display unit of the criterion's values.
func (c Criterion) Unit() string {
	if c == CriterionDistance {
		return "m"
	}
	return "km/h"
}

// RankedEntry is a record placed in a leaderboard. Never persisted.
type RankedEntry struct {
	Record    SessionRecord `json:"record"`
	Rank      int           `json:"rank"`
	IsCurrent bool          `json:"is_current"`
}

// Standing is the position of one session among all stored sessions.
// Found is false when the session's ID is absent from the store, in which
// case Position is Total+1.
type Standing struct {
	Position int  `json:"position"`
	Total    int  `json:"total"`
	Found    bool `json:"found"`
}

// FormatDuration renders d as minutes.seconds.centiseconds ("mm.ss.cc").
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	s := ms / 1000
	return fmt.Sprintf("%02d.%02d.%02d", s/60, s%60, (ms/10)%100)
}
