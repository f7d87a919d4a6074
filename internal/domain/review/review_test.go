package review

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angkor-mart/storefront/internal/domain/product"
)

type mockProductRepo struct {
	product.Repository
	ids map[string]bool
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if !m.ids[id] {
		return nil, product.ErrNotFound
	}
	return &product.Product{ID: id}, nil
}

type mockReviewRepo struct {
	byKey map[string]*Review
}

func newMockReviewRepo() *mockReviewRepo {
	return &mockReviewRepo{byKey: map[string]*Review{}}
}

func (m *mockReviewRepo) ListByProduct(_ context.Context, productID string) ([]Review, error) {
	var out []Review
	for _, r := range m.byKey {
		if r.ProductID == productID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) Summarize(_ context.Context, productID string) (Summary, error) {
	var sum, n int
	for _, r := range m.byKey {
		if r.ProductID == productID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return Summary{Average: decimal.Zero}, nil
	}
	return Summary{Average: decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(n))), Count: n}, nil
}

func (m *mockReviewRepo) Upsert(_ context.Context, r *Review) (*Review, error) {
	key := r.UserID + "/" + r.ProductID
	if existing, ok := m.byKey[key]; ok {
		existing.Rating = r.Rating
		existing.Comment = r.Comment
		existing.UpdatedAt = r.UpdatedAt
		cp := *existing
		return &cp, nil
	}
	cp := *r
	m.byKey[key] = &cp
	return r, nil
}

func (m *mockReviewRepo) GetByID(_ context.Context, id string) (*Review, error) {
	for _, r := range m.byKey {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockReviewRepo) Delete(_ context.Context, id string) error {
	for k, r := range m.byKey {
		if r.ID == id {
			delete(m.byKey, k)
			return nil
		}
	}
	return ErrNotFound
}

func newTestService() (*Service, *mockReviewRepo) {
	repo := newMockReviewRepo()
	return NewService(repo, &mockProductRepo{ids: map[string]bool{"p1": true}}), repo
}

func TestService_SubmitUpserts(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first, err := svc.Submit(ctx, &Review{ProductID: "p1", UserID: "u1", Rating: 3, Comment: " ok "})
	require.NoError(t, err)
	assert.Equal(t, "ok", first.Comment)

	second, err := svc.Submit(ctx, &Review{ProductID: "p1", UserID: "u1", Rating: 5, Comment: "great"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Rating)
	assert.Len(t, repo.byKey, 1)
}

func TestService_SubmitValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, rating := range []int{0, 6, -1} {
		_, err := svc.Submit(ctx, &Review{ProductID: "p1", UserID: "u1", Rating: rating})
		assert.ErrorIs(t, err, ErrInvalidRating)
	}

	_, err := svc.Submit(ctx, &Review{ProductID: "missing", UserID: "u1", Rating: 4})
	assert.ErrorIs(t, err, product.ErrNotFound)

	long, err := svc.Submit(ctx, &Review{ProductID: "p1", UserID: "u1", Rating: 4, Comment: strings.Repeat("ក", maxCommentLength+5)})
	require.NoError(t, err)
	assert.Len(t, []rune(long.Comment), maxCommentLength)
}

func TestService_List(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for uid, rating := range map[string]int{"u1": 5, "u2": 4, "u3": 4} {
		_, err := svc.Submit(ctx, &Review{ProductID: "p1", UserID: uid, Rating: rating})
		require.NoError(t, err)
	}

	reviews, sum, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, reviews, 3)
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, "4.3", sum.Average.String())
}

func TestService_DeleteOwnerOnly(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	r, err := svc.Submit(ctx, &Review{ProductID: "p1", UserID: "u1", Rating: 2})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, r.ID, "u2"), ErrNotOwner)
	assert.Len(t, repo.byKey, 1)

	require.NoError(t, svc.Delete(ctx, r.ID, "u1"))
	assert.Empty(t, repo.byKey)

	assert.ErrorIs(t, svc.Delete(ctx, r.ID, "u1"), ErrNotFound)
}
