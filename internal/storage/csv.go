package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/claude/treadmill/internal/models"
)

const utf8BOM = "\uFEFF"

// CSVHeader is the first line of the session log, after the byte order mark.
var CSVHeader = []string{"Date", "Durée", "Distance (m)", "Vitesse moyenne", "Vitesse max"}

// CSVStore is the spreadsheet-friendly session log: semicolon separated,
// decimal comma, one decimal place. Record IDs are data row ordinals.
type CSVStore struct {
	mu   sync.Mutex
	path string
	rows int
}

// OpenCSV opens the log at path, creating it with a header if missing.
func OpenCSV(path string) (*CSVStore, error) {
	if path == "" {
		return nil, errors.New("csv path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating csv dir: %w", err)
	}
	s := &CSVStore{path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.writeHeader(); err != nil {
			return nil, err
		}
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("checking csv file: %w", err)
	}

	_, rows, err := s.read()
	if err != nil {
		return nil, err
	}
	s.rows = rows
	return s, nil
}

func (s *CSVStore) writeHeader() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating csv file: %w", err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, utf8BOM); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	w := newCSVWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Append writes one row and returns the record with its row ID.
func (s *CSVStore) Append(_ context.Context, rec models.SessionRecord) (models.SessionRecord, error) {
	if err := validate(rec); err != nil {
		return models.SessionRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("opening csv file: %w", err)
	}
	defer f.Close()

	w := newCSVWriter(f)
	if err := w.Write([]string{
		rec.Date,
		rec.Duration,
		formatDecimal(rec.Distance),
		formatDecimal(rec.AvgSpeed),
		formatDecimal(rec.MaxSpeed),
	}); err != nil {
		return models.SessionRecord{}, fmt.Errorf("writing csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return models.SessionRecord{}, fmt.Errorf("writing csv row: %w", err)
	}

	s.rows++
	rec.ID = rowID(s.rows)
	return rec, nil
}

// QueryAll reads every row. Values come back rounded to one decimal.
func (s *CSVStore) QueryAll(_ context.Context) ([]models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, _, err := s.read()
	return recs, err
}

// Close is a no-op; the file is opened per operation.
func (s *CSVStore) Close() error { return nil }

// Path returns the log location.
func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) read() ([]models.SessionRecord, int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening csv file: %w", err)
	}
	defer f.Close()
	return readCSV(f)
}

// ReadCSV parses a session log and reports how many data rows it saw. Rows
// that do not parse are skipped but still consume their ordinal, so IDs stay
// stable.
func ReadCSV(r io.Reader) ([]models.SessionRecord, int, error) {
	return readCSV(r)
}

func readCSV(r io.Reader) ([]models.SessionRecord, int, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, []byte(utf8BOM)) {
		br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	var out []models.SessionRecord
	row := 0
	header := true
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading csv: %w", err)
		}
		if header {
			header = false
			if len(fields) > 0 && fields[0] == CSVHeader[0] {
				continue
			}
		}
		row++
		rec, ok := parseRow(fields)
		if !ok {
			continue
		}
		rec.ID = rowID(row)
		out = append(out, rec)
	}
	return out, row, nil
}

func parseRow(fields []string) (models.SessionRecord, bool) {
	if len(fields) < 5 || strings.TrimSpace(fields[0]) == "" {
		return models.SessionRecord{}, false
	}
	var vals [3]float64
	for i := range vals {
		v, err := parseDecimal(fields[2+i])
		if err != nil {
			return models.SessionRecord{}, false
		}
		vals[i] = v
	}
	return models.SessionRecord{
		Date:     strings.TrimSpace(fields[0]),
		Duration: strings.TrimSpace(fields[1]),
		Distance: vals[0],
		AvgSpeed: vals[1],
		MaxSpeed: vals[2],
	}, true
}

func newCSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	cw.UseCRLF = true
	return cw
}

func formatDecimal(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 1, 64), ".", ",", 1)
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
}

func rowID(n int) string { return "row-" + strconv.Itoa(n) }
