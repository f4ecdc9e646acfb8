package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/treadmill/internal/models"
)

// HTTPClient implements DataSource by calling the kiosk admin API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// the kiosk runs elsewhere (reached over the LAN or Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

// Sessions returns every stored session in insertion order. The admin API
// lists newest first, so the list is reversed.
func (c *HTTPClient) Sessions(ctx context.Context) ([]models.SessionRecord, error) {
	var recs []models.SessionRecord
	if err := c.get(ctx, "/api/v1/sessions", &recs); err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (c *HTTPClient) KioskState(ctx context.Context) (models.DisplayState, error) {
	var st models.DisplayState
	err := c.get(ctx, "/api/v1/state", &st)
	return st, err
}

func (c *HTTPClient) KioskSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := c.get(ctx, "/api/v1/config", &s)
	return s, err
}
