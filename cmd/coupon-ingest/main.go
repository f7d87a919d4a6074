// Command coupon-ingest bulk-imports partner coupon batches from gzipped CSV
// files. A code that appears in more than one batch is a conflict between
// partners and is skipped.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"

	"github.com/angkor-mart/storefront/internal/repository"
)

func main() {
	var (
		dataDir       string
		databaseURL   string
		bloomCapacity uint
		batchSize     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz coupon batches")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&bloomCapacity, "bloom-capacity", 1_000_000, "expected codes per file")
	flag.IntVar(&batchSize, "batch-size", 1000, "coupons per database batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, bloomCapacity, batchSize); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, capacity uint, batchSize int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list batches")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}
	if len(files) > maxFiles {
		return errors.Errorf("at most %d batch files are supported, got %d", maxFiles, len(files))
	}
	sort.Strings(files)

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes shared between batches")
	conflicts, err := findConflicts(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}
	slog.Info("conflicting codes", slog.Int("count", len(conflicts)))

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL, repository.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("pass 3: importing coupons")
	stats, err := importFiles(ctx, files, conflicts, repository.NewCouponRepository(pool), batchSize)
	if err != nil {
		return errors.Wrap(err, "import coupons")
	}

	slog.Info("import summary",
		slog.Int("written", stats.written),
		slog.Int("skipped_conflict", stats.conflicts),
		slog.Int("skipped_invalid", stats.invalid),
	)
	return nil
}
