package storage

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claude/treadmill/internal/models"
)

// Querier is the subset of *pgxpool.Pool used by PostgresStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore keeps the session log in a shared Postgres database, so
// several kiosks can rank against one table.
type PostgresStore struct {
	db Querier
}

// OpenPostgres connects a pool and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts rec under a new UUIDv7.
func (s *PostgresStore) Append(ctx context.Context, rec models.SessionRecord) (models.SessionRecord, error) {
	if err := validate(rec); err != nil {
		return models.SessionRecord{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("generating session id: %w", err)
	}
	rec.ID = id.String()

	_, err = s.db.Exec(ctx,
		`INSERT INTO sessions (id, session_date, duration, distance, avg_speed, max_speed)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Date, rec.Duration, rec.Distance, rec.AvgSpeed, rec.MaxSpeed,
	)
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("inserting session: %w", err)
	}
	return rec, nil
}

// QueryAll returns every session in insertion order.
func (s *PostgresStore) QueryAll(ctx context.Context) ([]models.SessionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_date, duration, distance, avg_speed, max_speed
		 FROM sessions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		var r models.SessionRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.Duration, &r.Distance, &r.AvgSpeed, &r.MaxSpeed); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
