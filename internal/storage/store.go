// Package storage persists completed treadmill sessions. Every backend is an
// append-only log that assigns the session identity on insert and returns
// records in insertion order.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/claude/treadmill/internal/models"
)

// ErrInvalidRecord is returned by Append for records that cannot be stored.
var ErrInvalidRecord = errors.New("invalid session record")

// Store is the session log used by the kiosk, the admin API and the importer.
type Store interface {
	Append(ctx context.Context, rec models.SessionRecord) (models.SessionRecord, error)
	QueryAll(ctx context.Context) ([]models.SessionRecord, error)
	Close() error
}

var (
	_ Store = (*CSVStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Backend names accepted by Open.
const (
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and locates a backend.
type Options struct {
	Backend        string
	CSVPath        string
	SQLitePath     string
	DSN            string
	MigrationsPath string
}

// Open returns the configured backend. Postgres migrations are applied first
// when a migrations path is set.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendCSV, "":
		return OpenCSV(opts.CSVPath)
	case BackendSQLite:
		return OpenSQLite(opts.SQLitePath)
	case BackendPostgres:
		if opts.MigrationsPath != "" {
			if err := RunMigrations(opts.DSN, opts.MigrationsPath); err != nil {
				return nil, err
			}
		}
		return OpenPostgres(ctx, opts.DSN)
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
}

func validate(rec models.SessionRecord) error {
	if rec.Date == "" {
		return fmt.Errorf("%w: missing date", ErrInvalidRecord)
	}
	for _, v := range []float64{rec.Distance, rec.AvgSpeed, rec.MaxSpeed} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bad value %v", ErrInvalidRecord, v)
		}
	}
	return nil
}
