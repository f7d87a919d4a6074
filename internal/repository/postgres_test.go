package repository

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/internal/domain/product"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "krama", want: "krama"},
		{in: "50%", want: `50\%`},
		{in: "t_shirt", want: `t\_shirt`},
		{in: `a\b`, want: `a\\b`},
		{in: "ក្រមា", want: "ក្រមា"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.in))
		})
	}
}

func TestValidIDs(t *testing.T) {
	ids := []string{
		"8a0f6f64-8f0e-4a3c-9d3e-1f2a3b4c5d6e",
		"angkor-wat-t-shirt",
		"",
		"00000000-0000-0000-0000-000000000001",
	}
	assert.Equal(t, []string{ids[0], ids[3]}, validIDs(ids))
	assert.Empty(t, validIDs([]string{"1", "2"}))
	assert.False(t, validID("ORD-250309-0042"))
}

func TestPgErrorCode(t *testing.T) {
	unique := errors.Wrap(&pgconn.PgError{Code: codeUniqueViolation}, "insert product")
	fk := &pgconn.PgError{Code: codeForeignKeyViolation}

	assert.Equal(t, codeUniqueViolation, pgErrorCode(unique))
	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isForeignKeyViolation(unique))
	assert.True(t, isForeignKeyViolation(fk))
	assert.Empty(t, pgErrorCode(errors.New("connection reset")))
}

func TestWrapProductWriteErr(t *testing.T) {
	require.ErrorIs(t, wrapProductWriteErr(&pgconn.PgError{Code: codeUniqueViolation}, "create"), product.ErrSlugTaken)
	require.ErrorIs(t, wrapProductWriteErr(&pgconn.PgError{Code: codeForeignKeyViolation}, "create"), category.ErrNotFound)

	cause := errors.New("timeout")
	err := wrapProductWriteErr(cause, "update product")
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "update product")
}
