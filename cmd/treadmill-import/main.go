package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/treadmill/internal/config"
	"github.com/claude/treadmill/internal/importer"
	"github.com/claude/treadmill/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	srcPath := flag.String("path", "", "legacy CSV file or directory of CSV files (required)")
	backend := flag.String("backend", "", "destination backend, overrides storage.backend (sqlite or postgres)")
	dryRun := flag.Bool("dry-run", false, "report counts without writing to the destination")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *srcPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: treadmill-import -config config.yaml -path RunningSessions.csv [-backend sqlite] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dest := cfg.Storage.Backend
	if *backend != "" {
		dest = *backend
	}
	if dest == storage.BackendCSV || dest == "" {
		log.Error("destination must be an SQL backend", "backend", dest)
		os.Exit(1)
	}

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode: nothing will be written to the destination")
	}

	// Open destination
	store, err := storage.Open(ctx, storage.Options{
		Backend:        dest,
		SQLitePath:     cfg.Storage.SQLitePath,
		DSN:            cfg.Storage.Database.DSN(),
		MigrationsPath: cfg.Storage.MigrationsPath,
	})
	if err != nil {
		log.Error("failed to open destination", "backend", dest, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("destination ready", "backend", dest)

	// Run import
	imp := importer.New(store, log, *dryRun)
	stats, err := imp.Import(ctx, *srcPath)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_errored", stats.FilesErrored,
		"rows_read", stats.RowsRead,
		"rows_skipped", stats.RowsSkipped,
		"sessions_inserted", stats.SessionsInserted,
		"sessions_duplicated", stats.SessionsDuplicated,
	)
}
