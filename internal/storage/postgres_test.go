package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

var sessionColumns = []string{"id", "session_date", "duration", "distance", "avg_speed", "max_speed"}

// TestPostgresAppend verifies the insert statement and generated id.
func TestPostgresAppend(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(pgxmock.AnyArg(), "2025-06-01 10:00:00", "00.30.00", 120.0, 8.5, 10.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgres(mock)
	rec, err := s.Append(context.Background(), sampleRecord("2025-06-01 10:00:00", 120, 8.5, 10))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.ID == "" {
		t.Error("id not assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestPostgresQueryAll verifies rows are scanned in query order.
func TestPostgresQueryAll(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, session_date, duration, distance, avg_speed, max_speed\s+FROM sessions ORDER BY seq`).
		WillReturnRows(pgxmock.NewRows(sessionColumns).
			AddRow("a", "2025-06-01 10:00:00", "00.10.00", 100.0, 6.0, 7.0).
			AddRow("b", "2025-06-01 10:05:00", "00.12.00", 140.0, 7.0, 8.0))

	got, err := NewPostgres(mock).QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].Distance != 140 {
		t.Errorf("records = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestPostgresAppendError verifies driver errors are wrapped.
func TestPostgresAppendError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO sessions`).WillReturnError(boom)

	_, err = NewPostgres(mock).Append(context.Background(), sampleRecord("2025-06-01 10:00:00", 1, 1, 1))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
