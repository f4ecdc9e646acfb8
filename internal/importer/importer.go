package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/claude/treadmill/internal/models"
	"github.com/claude/treadmill/internal/storage"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesErrored   int

	RowsRead    int
	RowsSkipped int

	SessionsInserted   int
	SessionsDuplicated int
}

// Importer copies legacy kiosk CSV logs into a session store.
type Importer struct {
	dst    storage.Store
	log    *slog.Logger
	dryRun bool
	stats  Stats
	seen   map[string]bool
}

// New creates a new Importer.
func New(dst storage.Store, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{dst: dst, log: log, dryRun: dryRun}
}

// Import processes a single CSV file, or every .csv file in a directory in
// name order. Sessions already present in the destination (same date,
// duration and distance) are skipped, so re-running an import is safe.
func (imp *Importer) Import(ctx context.Context, path string) (*Stats, error) {
	files, err := collect(path)
	if err != nil {
		return &imp.stats, err
	}

	if err := imp.loadExisting(ctx); err != nil {
		return &imp.stats, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}
		if err := imp.importFile(ctx, f); err != nil {
			return &imp.stats, fmt.Errorf("importing %s: %w", filepath.Base(f), err)
		}
	}
	return &imp.stats, nil
}

func collect(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := filepath.Glob(filepath.Join(path, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (imp *Importer) loadExisting(ctx context.Context) error {
	existing, err := imp.dst.QueryAll(ctx)
	if err != nil {
		return fmt.Errorf("reading destination: %w", err)
	}
	imp.seen = make(map[string]bool, len(existing))
	for _, r := range existing {
		imp.seen[dedupKey(r)] = true
	}
	return nil
}

// importFile reads one log and appends its sessions in row order.
func (imp *Importer) importFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		imp.log.Warn("open failed", "file", path, "error", err)
		imp.stats.FilesErrored++
		return nil
	}
	defer f.Close()

	recs, rows, err := storage.ReadCSV(f)
	if err != nil {
		imp.log.Warn("parse failed", "file", path, "error", err)
		imp.stats.FilesErrored++
		return nil
	}
	imp.stats.FilesProcessed++
	imp.stats.RowsRead += rows
	imp.stats.RowsSkipped += rows - len(recs)

	for _, rec := range recs {
		key := dedupKey(rec)
		if imp.seen[key] {
			imp.stats.SessionsDuplicated++
			continue
		}
		imp.seen[key] = true

		if imp.dryRun {
			imp.stats.SessionsInserted++
			continue
		}
		rec.ID = ""
		if _, err := imp.dst.Append(ctx, rec); err != nil {
			return fmt.Errorf("appending session %s: %w", rec.Date, err)
		}
		imp.stats.SessionsInserted++
	}

	imp.log.Info("imported file", "file", filepath.Base(path), "rows", rows, "sessions", len(recs))
	return nil
}

func dedupKey(r models.SessionRecord) string {
	return r.Date + "|" + r.Duration + "|" + strconv.FormatFloat(r.Distance, 'f', 1, 64)
}
