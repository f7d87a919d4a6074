package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/pkg/slug"
)

func TestCatalogFile(t *testing.T) {
	c, err := loadCatalog(filepath.Join("..", "..", "db", "seed", "catalog.json"))
	require.NoError(t, err)

	slugs := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		assert.NotEmpty(t, cat.NameKM, cat.NameEN)
		slugs[slug.Make(cat.NameEN)] = true
	}
	require.NotEmpty(t, c.Products)
	for _, p := range c.Products {
		assert.True(t, slugs[p.Category], "%s references unknown category %q", p.NameEN, p.Category)
		assert.NotEmpty(t, slug.Make(p.NameEN))
		assert.False(t, p.Price.IsNegative())
	}

	coupons, err := c.coupons()
	require.NoError(t, err)
	require.Len(t, coupons, len(c.Coupons))
	for _, cp := range coupons {
		assert.Equal(t, coupon.NormalizeCode(cp.Code), cp.Code)
		assert.True(t, cp.IsActive)
	}
}

func TestCatalogFile_InvalidCoupon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"coupons":[{"code":"half","type":"percentage","value":150}]}`), 0o600))

	c, err := loadCatalog(path)
	require.NoError(t, err)

	_, err = c.coupons()
	var fe *coupon.InvalidFieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "value", fe.Field)
}

func TestLoadCatalog_Errors(t *testing.T) {
	_, err := loadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = loadCatalog(path)
	assert.ErrorContains(t, err, "parse catalog JSON")
}
