package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angkor-mart/storefront/internal/domain/product"
)

type pagedRepo struct {
	product.Repository
	all   []product.Product
	pages int
}

func (r *pagedRepo) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	r.pages++
	if f.Offset >= len(r.all) {
		return nil, nil
	}
	return r.all[f.Offset:min(f.Offset+f.Limit, len(r.all))], nil
}

type recordingIndex struct {
	ids  []string
	fail string
}

func (x *recordingIndex) Index(_ context.Context, p *product.Product) error {
	if p.ID == x.fail {
		return errors.New("mapper_parsing_exception")
	}
	x.ids = append(x.ids, p.ID)
	return nil
}

func (x *recordingIndex) Remove(context.Context, string) error { return nil }

func (x *recordingIndex) Search(context.Context, string, int, int) ([]string, error) {
	return nil, nil
}

func products(n int) []product.Product {
	out := make([]product.Product, n)
	for i := range out {
		out[i] = product.Product{ID: fmt.Sprintf("p-%03d", i)}
	}
	return out
}

func TestBackfill(t *testing.T) {
	tests := []struct {
		name  string
		count int
		pages int
	}{
		{name: "empty catalog", count: 0, pages: 1},
		{name: "partial page", count: 42, pages: 1},
		{name: "exact page", count: backfillBatch, pages: 2},
		{name: "several pages", count: 2*backfillBatch + 7, pages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &pagedRepo{all: products(tt.count)}
			idx := &recordingIndex{}

			n, err := Backfill(context.Background(), repo, idx)
			require.NoError(t, err)
			assert.Equal(t, tt.count, n)
			assert.Len(t, idx.ids, tt.count)
			assert.Equal(t, tt.pages, repo.pages)
		})
	}
}

func TestBackfill_StopsOnIndexError(t *testing.T) {
	repo := &pagedRepo{all: products(10)}
	idx := &recordingIndex{fail: "p-004"}

	n, err := Backfill(context.Background(), repo, idx)
	require.Error(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, err.Error(), "p-004")
}
