package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claude/treadmill/internal/models"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestHTTPClientSessionsOrder verifies the newest-first API listing is
// returned in insertion order.
func TestHTTPClientSessionsOrder(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, []models.SessionRecord{{ID: "3"}, {ID: "2"}, {ID: "1"}})
		},
	})
	defer ts.Close()

	recs, err := NewHTTPClient(ts.URL + "/").Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "1" || recs[2].ID != "3" {
		t.Errorf("records = %+v", recs)
	}
}

// TestHTTPClientStateAndSettings verifies the state and config endpoints decode.
func TestHTTPClientStateAndSettings(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/state": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, models.DisplayState{Sequence: 5, State: "results"})
		},
		"/api/v1/config": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, models.DefaultSettings())
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	st, err := c.KioskState(context.Background())
	if err != nil || st.State != "results" {
		t.Errorf("state = %+v, err = %v", st, err)
	}
	s, err := c.KioskSettings(context.Background())
	if err != nil || s.SampleFrequencyMs != 500 {
		t.Errorf("settings = %+v, err = %v", s, err)
	}
}

// TestHTTPClientServerError verifies non-200 responses are reported.
func TestHTTPClientServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/state": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "kiosk stopped", http.StatusServiceUnavailable)
		},
	})
	defer ts.Close()

	if _, err := NewHTTPClient(ts.URL).KioskState(context.Background()); err == nil {
		t.Fatal("expected error for 503")
	}
}

// TestLocalDataSource verifies Local delegates to the store and kiosk.
func TestLocalDataSource(t *testing.T) {
	src := sampleSource()
	l := Local{Store: storeFunc(src.Sessions), Kiosk: kioskStub{src}}
	recs, _ := l.Sessions(context.Background())
	if len(recs) != 3 {
		t.Errorf("records = %d, want 3", len(recs))
	}
	st, _ := l.KioskState(context.Background())
	if st.Sequence != 12 {
		t.Errorf("sequence = %d, want 12", st.Sequence)
	}
	s, _ := l.KioskSettings(context.Background())
	if s.VMin != 2 {
		t.Errorf("v_min = %v, want 2", s.VMin)
	}
}

type storeFunc func(context.Context) ([]models.SessionRecord, error)

func (f storeFunc) QueryAll(ctx context.Context) ([]models.SessionRecord, error) { return f(ctx) }

type kioskStub struct{ src *fakeSource }

func (k kioskStub) Display(ctx context.Context) (models.DisplayState, error) {
	return k.src.KioskState(ctx)
}

func (k kioskStub) Settings(ctx context.Context) (models.Settings, error) {
	return k.src.KioskSettings(ctx)
}
