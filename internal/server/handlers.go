package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/claude/treadmill/internal/config"
	"github.com/claude/treadmill/internal/leaderboard"
	"github.com/claude/treadmill/internal/models"
	"github.com/claude/treadmill/internal/storage"
)

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.kiosk.Settings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutConfig merges the body over the current settings, persists the
// result and hands it to the kiosk for the next session.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	current, err := s.kiosk.Settings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	saved, err := s.settings.Save(current)
	if errors.Is(err, config.ErrInvalidSettings) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		s.log.Error("saving settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.kiosk.UpdateSettings(saved)
	s.log.Info("settings updated", "v_min", saved.VMin, "criterion", saved.RankingCriterion, "sample_frequency_ms", saved.SampleFrequencyMs)
	writeJSON(w, http.StatusOK, saved)
}

// handleListSessions returns stored sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := s.sessions.QueryAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make([]models.SessionRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}
	writeJSON(w, http.StatusOK, limitSlice(out, parseLimit(r)))
}

func (s *Server) handleAddSession(w http.ResponseWriter, r *http.Request) {
	var rec models.SessionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	rec.ID = ""
	saved, err := s.sessions.Append(r.Context(), rec)
	if errors.Is(err, storage.ErrInvalidRecord) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		s.log.Error("appending session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleLeaderboard ranks every stored session. The criterion defaults to
// the one configured for the kiosk.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	var c models.Criterion
	if q := r.URL.Query().Get("criterion"); q != "" {
		parsed, err := models.ParseCriterion(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		c = parsed
	} else {
		settings, err := s.kiosk.Settings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		c = settings.RankingCriterion
	}

	records, err := s.sessions.QueryAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	board := leaderboard.Board(records, c, r.URL.Query().Get("current"))
	writeJSON(w, http.StatusOK, map[string]any{
		"criterion": c,
		"unit":      c.Unit(),
		"total":     len(board),
		"entries":   limitSlice(board, parseLimit(r)),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.kiosk.Display(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.kiosk.Reset()
	s.log.Info("reset requested", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset"})
}

type tapRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	s.kiosk.Tap(req.X, req.Y)
	w.WriteHeader(http.StatusNoContent)
}

// parseLimit reads ?limit=, 0 meaning unlimited.
func parseLimit(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
