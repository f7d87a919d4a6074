package main

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angkor-mart/storefront/internal/domain/coupon"
)

const (
	bloomFPR      = 0.001
	maxFiles      = bits.UintSize
	progressEvery = 100_000
	importWorkers = 2
)

// couponWriter stores a batch of coupons.
type couponWriter interface {
	Upsert(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count int
			if err := streamCodes(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Int("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Int("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflicts re-streams each file and checks codes against the other
// files' filters. Every file that holds a shared code flags it, so a code
// flagged by two or more files is a real conflict and bloom false positives
// drop out.
func findConflicts(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			if err := streamCodes(ctx, path, func(code string) {
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= fileBit
						return
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s for conflicts", path)
			}
			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}
	conflicts := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			conflicts[code] = struct{}{}
		}
	}
	return conflicts, nil
}

type importStats struct {
	written   int
	conflicts int
	invalid   int
}

// importFiles parses every file and upserts the valid, non-conflicting rows
// in batches.
func importFiles(ctx context.Context, files []string, conflicts map[string]struct{}, w couponWriter, batchSize int) (importStats, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var (
		mu    sync.Mutex
		total importStats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(importWorkers)
	for _, path := range files {
		g.Go(func() error {
			var (
				st    importStats
				batch = make([]coupon.Coupon, 0, batchSize)
			)
			flush := func() error {
				n, err := w.Upsert(ctx, batch)
				st.written += n
				batch = batch[:0]
				return err
			}

			err := streamRows(ctx, path, func(line int, rec []string) error {
				c, err := parseRow(rec)
				if err != nil {
					st.invalid++
					slog.Warn("skipping row", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
					return nil
				}
				if _, ok := conflicts[c.Code]; ok {
					st.conflicts++
					return nil
				}
				batch = append(batch, c)
				if len(batch) == batchSize {
					return flush()
				}
				return nil
			})
			if err == nil && len(batch) > 0 {
				err = flush()
			}

			mu.Lock()
			total.written += st.written
			total.conflicts += st.conflicts
			total.invalid += st.invalid
			mu.Unlock()

			if err != nil {
				return errors.Wrapf(err, "import %s", path)
			}
			slog.Info("file imported", slog.String("file", path), slog.Int("written", st.written))
			return nil
		})
	}

	err := g.Wait()
	return total, err
}

// parseRow reads code,type,value[,min_order[,max_uses[,expires_at]]].
func parseRow(rec []string) (coupon.Coupon, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	if len(rec) < 3 {
		return coupon.Coupon{}, errors.Errorf("want at least 3 fields, got %d", len(rec))
	}

	c := coupon.Coupon{
		Code:     coupon.NormalizeCode(field(0)),
		Type:     coupon.DiscountType(strings.ToLower(field(1))),
		MinOrder: decimal.Zero,
		IsActive: true,
	}
	var err error
	if c.Value, err = decimal.NewFromString(field(2)); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "value")
	}
	if v := field(3); v != "" {
		if c.MinOrder, err = decimal.NewFromString(v); err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "min_order")
		}
	}
	if v := field(4); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "max_uses")
		}
		c.MaxUses = &n
	}
	if v := field(5); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "expires_at")
		}
		c.ExpiresAt = &t
	}
	if err := c.Check(); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

// streamCodes calls fn with the normalized code of every data row.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	return streamRows(ctx, path, func(_ int, rec []string) error {
		if code := coupon.NormalizeCode(rec[0]); code != "" {
			fn(code)
		}
		return nil
	})
}

// streamRows opens a gzip-compressed CSV file and calls fn for each record.
// A leading header row starting with "code" is skipped.
func streamRows(ctx context.Context, path string, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}
