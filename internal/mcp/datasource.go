package mcp

import (
	"context"

	"github.com/claude/treadmill/internal/models"
)

// DataSource abstracts the kiosk for MCP tools. Local (in-process) and
// HTTPClient (remote via the admin API) both satisfy this interface.
type DataSource interface {
	Sessions(ctx context.Context) ([]models.SessionRecord, error)
	KioskState(ctx context.Context) (models.DisplayState, error)
	KioskSettings(ctx context.Context) (models.Settings, error)
}

// SessionReader is the part of the session store MCP needs.
type SessionReader interface {
	QueryAll(ctx context.Context) ([]models.SessionRecord, error)
}

// KioskReader is the part of the kiosk MCP needs.
type KioskReader interface {
	Display(ctx context.Context) (models.DisplayState, error)
	Settings(ctx context.Context) (models.Settings, error)
}

// Local serves MCP from the running process.
type Local struct {
	Store SessionReader
	Kiosk KioskReader
}

// Compile-time checks.
var (
	_ DataSource = Local{}
	_ DataSource = (*HTTPClient)(nil)
)

func (l Local) Sessions(ctx context.Context) ([]models.SessionRecord, error) {
	return l.Store.QueryAll(ctx)
}

func (l Local) KioskState(ctx context.Context) (models.DisplayState, error) {
	return l.Kiosk.Display(ctx)
}

func (l Local) KioskSettings(ctx context.Context) (models.Settings, error) {
	return l.Kiosk.Settings(ctx)
}
