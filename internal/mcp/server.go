package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/treadmill/internal/leaderboard"
	"github.com/claude/treadmill/internal/models"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("Treadmill Kiosk", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Treadmill kiosk server. Query the session leaderboard, past sessions and the live kiosk state. Speeds are km/h, distances meters."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolGetLeaderboard, Handler: h.getLeaderboard},
		server.ServerTool{Tool: toolGetSessions, Handler: h.getSessions},
		server.ServerTool{Tool: toolGetKioskState, Handler: h.getKioskState},
	)

	s.AddResources(
		server.ServerResource{Resource: resSettings, Handler: h.settings},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Tool definitions ---

var toolGetLeaderboard = mcp.NewTool("get_leaderboard",
	mcp.WithDescription("Rank every stored session. Ties keep the order sessions were recorded in."),
	mcp.WithString("criterion", mcp.Description("Ranking field. Defaults to the kiosk's configured criterion."), mcp.Enum("avgSpeed", "maxSpeed", "distance")),
	mcp.WithNumber("limit", mcp.Description("Maximum entries to return. Defaults to 10.")),
)

var toolGetSessions = mcp.NewTool("get_sessions",
	mcp.WithDescription("List stored sessions, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 20.")),
)

var toolGetKioskState = mcp.NewTool("get_kiosk_state",
	mcp.WithDescription("Current kiosk screen: lifecycle state, live session counters, countdown and ranking."),
)

// --- Resource definitions ---

var resSettings = mcp.NewResource(
	"treadmill://settings",
	"Kiosk Settings",
	mcp.WithResourceDescription("Operator settings applied to the next session"),
	mcp.WithMIMEType("application/json"),
)

// --- Tool handlers ---

func (h *handlers) getLeaderboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var c models.Criterion
	if name := req.GetString("criterion", ""); name != "" {
		parsed, err := models.ParseCriterion(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		c = parsed
	} else {
		settings, err := h.ds.KioskSettings(ctx)
		if err != nil {
			h.log.Error("mcp get_leaderboard settings", "error", err)
			return mcp.NewToolResultError("settings unavailable: " + err.Error()), nil
		}
		c = settings.RankingCriterion
	}

	records, err := h.ds.Sessions(ctx)
	if err != nil {
		h.log.Error("mcp get_leaderboard", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	board := leaderboard.Board(records, c, "")
	if limit := req.GetInt("limit", 10); limit > 0 && len(board) > limit {
		board = board[:limit]
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"criterion": c,
		"unit":      c.Unit(),
		"total":     len(records),
		"entries":   board,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := h.ds.Sessions(ctx)
	if err != nil {
		h.log.Error("mcp get_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	limit := req.GetInt("limit", 20)
	out := make([]models.SessionRecord, 0, len(records))
	for i := len(records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, records[i])
	}

	result, err := mcp.NewToolResultJSON(out)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getKioskState(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.ds.KioskState(ctx)
	if err != nil {
		h.log.Error("mcp get_kiosk_state", "error", err)
		return mcp.NewToolResultError("kiosk unavailable: " + err.Error()), nil
	}
	result, err := mcp.NewToolResultJSON(st)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// --- Resource handlers ---

func (h *handlers) settings(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	s, err := h.ds.KioskSettings(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
