package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/claude/treadmill/internal/config"
	"github.com/claude/treadmill/internal/models"
	"github.com/claude/treadmill/internal/storage"
)

const testKey = "test-key"

type fakeKiosk struct {
	mu       sync.Mutex
	settings models.Settings
	state    models.DisplayState
	resets   int
	taps     [][2]float64
	err      error
}

func (k *fakeKiosk) Settings(context.Context) (models.Settings, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.settings, k.err
}

func (k *fakeKiosk) Display(context.Context) (models.DisplayState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state, k.err
}

func (k *fakeKiosk) UpdateSettings(s models.Settings) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.settings = s
}

func (k *fakeKiosk) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.resets++
}

func (k *fakeKiosk) Tap(x, y float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.taps = append(k.taps, [2]float64{x, y})
}

type memLog struct {
	records []models.SessionRecord
}

func (m *memLog) Append(_ context.Context, rec models.SessionRecord) (models.SessionRecord, error) {
	if rec.Date == "" {
		return rec, fmt.Errorf("%w: missing date", storage.ErrInvalidRecord)
	}
	rec.ID = fmt.Sprintf("s%d", len(m.records)+1)
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memLog) QueryAll(context.Context) ([]models.SessionRecord, error) {
	return m.records, nil
}

type fixture struct {
	srv      *Server
	kiosk    *fakeKiosk
	sessions *memLog
	file     *config.SettingsFile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		kiosk:    &fakeKiosk{settings: models.DefaultSettings()},
		sessions: &memLog{},
		file:     config.NewSettingsFile(filepath.Join(t.TempDir(), "settings.yaml")),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.srv = New(f.kiosk, f.sessions, f.file, testKey, log)
	return f
}

func (f *fixture) do(method, path, body string, withKey bool) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if withKey {
		req.Header.Set("X-API-Key", testKey)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

// TestGetConfig verifies the current settings are returned as JSON.
func TestGetConfig(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/config", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var s models.Settings
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if s.VMin != 2 {
		t.Errorf("v_min = %v, want 2", s.VMin)
	}
}

// TestPutConfigMerges verifies a partial body is merged, saved and handed to the kiosk.
func TestPutConfigMerges(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPut, "/api/v1/config", `{"v_min": 4.5, "ranking_criterion": "vitesseMax"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if f.kiosk.settings.VMin != 4.5 || f.kiosk.settings.RankingCriterion != models.CriterionMaxSpeed {
		t.Errorf("kiosk settings = %+v", f.kiosk.settings)
	}
	if f.kiosk.settings.ResultsDisplayDuration != 15 {
		t.Errorf("untouched field changed: %v", f.kiosk.settings.ResultsDisplayDuration)
	}
	onDisk, err := f.file.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if onDisk.VMin != 4.5 {
		t.Errorf("saved v_min = %v, want 4.5", onDisk.VMin)
	}
}

// TestPutConfigInvalid verifies validation errors are 400 and leave the kiosk untouched.
func TestPutConfigInvalid(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPut, "/api/v1/config", `{"sample_frequency_ms": 10}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.kiosk.settings.SampleFrequencyMs != 500 {
		t.Errorf("kiosk settings changed: %+v", f.kiosk.settings)
	}
	if rec := f.do(http.MethodPut, "/api/v1/config", `{not json`, true); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", rec.Code)
	}
}

// TestOperatorEndpointsNeedKey verifies write endpoints reject missing or wrong keys.
func TestOperatorEndpointsNeedKey(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPut, "/api/v1/config"},
		{http.MethodPost, "/api/v1/sessions"},
		{http.MethodPost, "/api/v1/reset"},
	} {
		if rec := f.do(tc.method, tc.path, "{}", false); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without key = %d, want 401", tc.method, tc.path, rec.Code)
		}
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
		req.Header.Set("X-API-Key", "wrong")
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s wrong key = %d, want 403", tc.method, tc.path, rec.Code)
		}
	}
	if f.kiosk.resets != 0 {
		t.Errorf("resets = %d, want 0", f.kiosk.resets)
	}
}

// TestSessionsAddAndList verifies manual entry and newest-first listing.
func TestSessionsAddAndList(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"date":"2025-06-01 10:00:00","duration":"00.30.00","distance":100,"avg_speed":6,"max_speed":8}`,
		`{"id":"ignored","date":"2025-06-01 11:00:00","duration":"00.30.00","distance":200,"avg_speed":7,"max_speed":9}`,
	} {
		if rec := f.do(http.MethodPost, "/api/v1/sessions", body, true); rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
		}
	}
	if rec := f.do(http.MethodPost, "/api/v1/sessions", `{"distance":1}`, true); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid record status = %d, want 400", rec.Code)
	}

	rec := f.do(http.MethodGet, "/api/v1/sessions?limit=1", "", false)
	var got []models.SessionRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s2" {
		t.Errorf("sessions = %+v, want newest s2 only", got)
	}
}

// TestLeaderboard verifies ranking by query criterion and the configured default.
func TestLeaderboard(t *testing.T) {
	f := newFixture(t)
	f.sessions.records = []models.SessionRecord{
		{ID: "a", Distance: 300, AvgSpeed: 5},
		{ID: "b", Distance: 100, AvgSpeed: 9},
	}

	var body struct {
		Criterion string               `json:"criterion"`
		Total     int                  `json:"total"`
		Entries   []models.RankedEntry `json:"entries"`
	}
	rec := f.do(http.MethodGet, "/api/v1/leaderboard", "", false)
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Criterion != "avgSpeed" || body.Entries[0].Record.ID != "b" {
		t.Errorf("default board = %+v", body)
	}

	rec = f.do(http.MethodGet, "/api/v1/leaderboard?criterion=distance&current=b", "", false)
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Entries[0].Record.ID != "a" || body.Entries[0].Rank != 1 {
		t.Errorf("distance board = %+v", body)
	}
	if !body.Entries[1].IsCurrent {
		t.Error("current entry not marked")
	}
	if body.Total != 2 {
		t.Errorf("total = %d, want 2", body.Total)
	}

	if rec := f.do(http.MethodGet, "/api/v1/leaderboard?criterion=calories", "", false); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown criterion status = %d, want 400", rec.Code)
	}
}

// TestStateAndStoppedKiosk verifies the snapshot endpoint and its failure mode.
func TestStateAndStoppedKiosk(t *testing.T) {
	f := newFixture(t)
	f.kiosk.state = models.DisplayState{Sequence: 4, State: "running"}
	rec := f.do(http.MethodGet, "/api/v1/state", "", false)
	var st models.DisplayState
	json.NewDecoder(rec.Body).Decode(&st)
	if st.State != "running" || st.Sequence != 4 {
		t.Errorf("state = %+v", st)
	}

	f.kiosk.err = context.Canceled
	if rec := f.do(http.MethodGet, "/api/v1/state", "", false); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// TestResetAndTap verifies both manual reset paths reach the kiosk.
func TestResetAndTap(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodPost, "/api/v1/reset", "", true); rec.Code != http.StatusAccepted {
		t.Errorf("reset status = %d, want 202", rec.Code)
	}
	if f.kiosk.resets != 1 {
		t.Errorf("resets = %d, want 1", f.kiosk.resets)
	}

	rec := f.do(http.MethodPost, "/api/v1/tap", `{"x": 12, "y": 30}`, false)
	if rec.Code != http.StatusNoContent {
		t.Errorf("tap status = %d, want 204", rec.Code)
	}
	if len(f.kiosk.taps) != 1 || f.kiosk.taps[0] != [2]float64{12, 30} {
		t.Errorf("taps = %v", f.kiosk.taps)
	}
}

// TestMount verifies extra handlers share the middleware stack.
func TestMount(t *testing.T) {
	f := newFixture(t)
	f.srv.Mount("/ws/display", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(w, bytes.NewBufferString("feed"))
	}))
	rec := f.do(http.MethodGet, "/ws/display", "", false)
	if rec.Body.String() != "feed" {
		t.Errorf("body = %q, want feed", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing on mounted handler")
	}
}
