// Command seed-db loads the demo catalog, coupons and optionally the first
// admin account. It is safe to run repeatedly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/angkor-mart/storefront/internal/domain/auth"
	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/internal/domain/product"
	"github.com/angkor-mart/storefront/internal/repository"
	"github.com/angkor-mart/storefront/pkg/slug"
)

type catalogFile struct {
	Categories []categoryJSON `json:"categories"`
	Products   []productJSON  `json:"products"`
	Coupons    []couponJSON   `json:"coupons"`
}

type categoryJSON struct {
	NameEN string `json:"nameEn"`
	NameKM string `json:"nameKm"`
	Icon   string `json:"icon"`
}

type productJSON struct {
	Category      string           `json:"category"`
	NameEN        string           `json:"nameEn"`
	NameKM        string           `json:"nameKm"`
	DescriptionEN string           `json:"descriptionEn"`
	DescriptionKM string           `json:"descriptionKm"`
	Price         decimal.Decimal  `json:"price"`
	SalePrice     *decimal.Decimal `json:"salePrice"`
	OnSale        bool             `json:"onSale"`
	Image         string           `json:"image"`
	InStock       *bool            `json:"inStock"`
}

type couponJSON struct {
	Code      string          `json:"code"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	MinOrder  decimal.Decimal `json:"minOrder"`
	MaxUses   *int            `json:"maxUses"`
	ExpiresAt *time.Time      `json:"expiresAt"`
}

func loadCatalog(path string) (*catalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	var c catalogFile
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	return &c, nil
}

// coupons validates the catalog coupons. Codes are normalized the same way
// checkout does.
func (c *catalogFile) coupons() ([]coupon.Coupon, error) {
	out := make([]coupon.Coupon, 0, len(c.Coupons))
	for _, item := range c.Coupons {
		cp := coupon.Coupon{
			Code:      coupon.NormalizeCode(item.Code),
			Type:      coupon.DiscountType(item.Type),
			Value:     item.Value,
			MinOrder:  item.MinOrder,
			MaxUses:   item.MaxUses,
			ExpiresAt: item.ExpiresAt,
			IsActive:  true,
		}
		if err := cp.Check(); err != nil {
			return nil, errors.Wrapf(err, "coupon %s", item.Code)
		}
		out = append(out, cp)
	}
	return out, nil
}

func main() {
	var (
		databaseURL   string
		catalogPath   string
		adminEmail    string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogPath, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&adminEmail, "admin-email", "", "first admin email (or STORE_SEED_ADMIN_EMAIL env)")
	flag.StringVar(&adminPassword, "admin-password", "", "first admin password (or STORE_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminEmail == "" {
		adminEmail = os.Getenv("STORE_SEED_ADMIN_EMAIL")
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("STORE_SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogPath, adminEmail, adminPassword); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogPath, adminEmail, adminPassword string) error {
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	coupons, err := catalog.coupons()
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL, repository.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	categoryRepo := repository.NewCategoryRepository(pool)
	productRepo := repository.NewProductRepository(pool)

	if err := seedCategories(ctx, category.NewService(categoryRepo), catalog.Categories); err != nil {
		return errors.Wrap(err, "seed categories")
	}
	if err := seedProducts(ctx, product.NewService(productRepo, categoryRepo, nil), categoryRepo, productRepo, catalog.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, repository.NewCouponRepository(pool), coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if adminEmail != "" {
		if err := seedAdmin(ctx, pool, adminEmail, adminPassword); err != nil {
			return errors.Wrap(err, "seed admin")
		}
	}
	return nil
}

func seedCategories(ctx context.Context, svc *category.Service, categories []categoryJSON) error {
	slog.Info("seeding categories", slog.Int("count", len(categories)))

	for _, c := range categories {
		sl := slug.Make(c.NameEN)
		if _, err := svc.Get(ctx, sl); err == nil {
			slog.Info("category exists", slog.String("slug", sl))
			continue
		} else if !errors.Is(err, category.ErrNotFound) {
			return errors.Wrapf(err, "get category %s", sl)
		}

		cat := &category.Category{NameEN: c.NameEN, NameKM: c.NameKM, Icon: c.Icon}
		if err := svc.Create(ctx, cat); err != nil {
			return errors.Wrapf(err, "create category %s", c.NameEN)
		}
		slog.Info("created category", slog.String("slug", cat.Slug), slog.String("name_km", cat.NameKM))
	}
	return nil
}

func seedProducts(
	ctx context.Context,
	svc *product.Service,
	categories category.Repository,
	products product.Repository,
	items []productJSON,
) error {
	slog.Info("seeding products", slog.Int("count", len(items)))

	for _, p := range items {
		sl := slug.Make(p.NameEN)
		if _, err := products.GetBySlug(ctx, sl); err == nil {
			slog.Info("product exists", slog.String("slug", sl))
			continue
		} else if !errors.Is(err, product.ErrNotFound) {
			return errors.Wrapf(err, "get product %s", sl)
		}

		cat, err := categories.GetBySlug(ctx, p.Category)
		if err != nil {
			return errors.Wrapf(err, "category %q of %s", p.Category, p.NameEN)
		}
		inStock := true
		if p.InStock != nil {
			inStock = *p.InStock
		}
		np := &product.Product{
			NameEN:        p.NameEN,
			NameKM:        p.NameKM,
			DescriptionEN: p.DescriptionEN,
			DescriptionKM: p.DescriptionKM,
			Price:         p.Price,
			SalePrice:     p.SalePrice,
			OnSale:        p.OnSale,
			Image:         p.Image,
			Images:        []string{},
			CategoryID:    cat.ID,
			InStock:       inStock,
		}
		if err := svc.Create(ctx, np); err != nil {
			return errors.Wrapf(err, "create product %s", p.NameEN)
		}
		slog.Info("created product", slog.String("slug", np.Slug), slog.String("price", np.Price.StringFixed(2)))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository, coupons []coupon.Coupon) error {
	slog.Info("seeding coupons", slog.Int("count", len(coupons)))

	n, err := repo.Upsert(ctx, coupons)
	if err != nil {
		return err
	}
	slog.Info("upserted coupons", slog.Int("count", n))
	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	// Setup never issues a token, so the signing key is throwaway.
	tokens, err := auth.NewTokens([]byte(uuid.NewString()), 0)
	if err != nil {
		return err
	}
	svc := auth.NewService(repository.NewAdminRepository(pool), tokens)

	a, err := svc.Setup(ctx, email, password)
	if errors.Is(err, auth.ErrSetupDone) {
		slog.Info("admin already configured, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("created admin", slog.String("id", a.ID), slog.String("email", a.Email))
	return nil
}
