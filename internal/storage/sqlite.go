package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/treadmill/internal/models"
)

// SQLiteStore keeps the session log in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		session_date TEXT NOT NULL,
		duration     TEXT NOT NULL,
		distance     REAL NOT NULL,
		avg_speed    REAL NOT NULL,
		max_speed    REAL NOT NULL,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sessions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts rec under a new UUIDv7.
func (s *SQLiteStore) Append(ctx context.Context, rec models.SessionRecord) (models.SessionRecord, error) {
	if err := validate(rec); err != nil {
		return models.SessionRecord{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("generating session id: %w", err)
	}
	rec.ID = id.String()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, session_date, duration, distance, avg_speed, max_speed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Date, rec.Duration, rec.Distance, rec.AvgSpeed, rec.MaxSpeed,
	)
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("inserting session: %w", err)
	}
	return rec, nil
}

// QueryAll returns every session in insertion order.
func (s *SQLiteStore) QueryAll(ctx context.Context) ([]models.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_date, duration, distance, avg_speed, max_speed
		 FROM sessions ORDER BY rowid`)
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

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
