package search

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/angkor-mart/storefront/internal/domain/product"
)

const backfillBatch = 100

// Backfill copies every product from src into idx in pages and returns the
// number indexed.
func Backfill(ctx context.Context, src product.Repository, idx product.Index) (int, error) {
	var n int
	for offset := 0; ; offset += backfillBatch {
		page, err := src.List(ctx, product.Filter{Limit: backfillBatch, Offset: offset})
		if err != nil {
			return n, errors.Wrap(err, "list products")
		}
		for i := range page {
			if err := idx.Index(ctx, &page[i]); err != nil {
				return n, errors.Wrapf(err, "index %s", page[i].ID)
			}
			n++
		}
		if len(page) < backfillBatch {
			return n, nil
		}
	}
}
