// Package leaderboard ranks stored sessions by a configurable criterion.
package leaderboard

import (
	"sort"

	"github.com/claude/treadmill/internal/models"
)

// DefaultWindow is the number of rows in the mini leaderboard.
const DefaultWindow = 6

// PodiumSize is the number of top values shown while a session runs.
const PodiumSize = 3

// windowLead is how many entries the mini leaderboard shows above the current
// session when it sits in the middle of the table.
const windowLead = 2

// Sort returns a copy of records ordered by criterion, best first.
// Ties keep their insertion order.
func Sort(records []models.SessionRecord, c models.Criterion) []models.SessionRecord {
	sorted := make([]models.SessionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return c.Value(sorted[i]) > c.Value(sorted[j])
	})
	return sorted
}

// IndexOf returns the index of the record with the given ID, or -1.
func IndexOf(sorted []models.SessionRecord, id string) int {
	if id == "" {
		return -1
	}
	for i, r := range sorted {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Rank locates the session id among records.
// An empty record set ranks the session 1 of 1; an unknown id ranks it Total+1.
func Rank(records []models.SessionRecord, c models.Criterion, id string) models.Standing {
	if len(records) == 0 {
		return models.Standing{Position: 1, Total: 1}
	}
	return standingAt(IndexOf(Sort(records, c), id), len(records))
}

func standingAt(idx, total int) models.Standing {
	if idx < 0 {
		return models.Standing{Position: total + 1, Total: total}
	}
	return models.Standing{Position: idx + 1, Total: total, Found: true}
}

// Window selects up to size contiguous entries around currentIndex.
// Near the top it shows more trailing entries, near the bottom more leading ones,
// otherwise windowLead entries before and the rest after. A currentIndex of -1
// yields the top of the table with nothing marked current.
func Window(sorted []models.SessionRecord, currentIndex, size int) []models.RankedEntry {
	if size <= 0 {
		size = DefaultWindow
	}
	start, end := windowBounds(len(sorted), currentIndex, size)
	out := make([]models.RankedEntry, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, models.RankedEntry{
			Record:    sorted[i],
			Rank:      i + 1,
			IsCurrent: i == currentIndex,
		})
	}
	return out
}

func windowBounds(total, idx, size int) (start, end int) {
	switch {
	case total <= size:
		return 0, total
	case idx < 0 || idx >= total:
		return 0, size
	case idx <= 1:
		return 0, size
	case idx >= total-2:
		return total - size, total
	}

	after := total - idx - 1
	trail := size - 1 - windowLead
	if after >= trail {
		start = idx - windowLead
		end = idx + trail + 1
	} else {
		start = idx - (size - 1 - after)
		end = total
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// Podium returns the best n criterion values, highest first.
func Podium(records []models.SessionRecord, c models.Criterion, n int) []float64 {
	sorted := Sort(records, c)
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = c.Value(sorted[i])
	}
	return out
}

// Board ranks every record. currentID marks one entry as current, if present.
func Board(records []models.SessionRecord, c models.Criterion, currentID string) []models.RankedEntry {
	sorted := Sort(records, c)
	out := make([]models.RankedEntry, len(sorted))
	for i, r := range sorted {
		out[i] = models.RankedEntry{Record: r, Rank: i + 1, IsCurrent: currentID != "" && r.ID == currentID}
	}
	return out
}

// Result bundles what the results and leaderboard screens show for one session.
type Result struct {
	Standing  models.Standing
	MiniBoard []models.RankedEntry
}

// Evaluate ranks session id among records and cuts the mini leaderboard around it.
func Evaluate(records []models.SessionRecord, c models.Criterion, id string) Result {
	if len(records) == 0 {
		return Result{Standing: models.Standing{Position: 1, Total: 1}}
	}
	sorted := Sort(records, c)
	idx := IndexOf(sorted, id)
	return Result{
		Standing:  standingAt(idx, len(sorted)),
		MiniBoard: Window(sorted, idx, DefaultWindow),
	}
}
