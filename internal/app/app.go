package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/cdn"
	"github.com/angkor-mart/storefront/internal/domain/auth"
	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/internal/domain/order"
	"github.com/angkor-mart/storefront/internal/domain/product"
	"github.com/angkor-mart/storefront/internal/domain/review"
	"github.com/angkor-mart/storefront/internal/domain/user"
	"github.com/angkor-mart/storefront/internal/domain/wishlist"
	"github.com/angkor-mart/storefront/internal/handler"
	"github.com/angkor-mart/storefront/internal/identity"
	"github.com/angkor-mart/storefront/internal/notify"
	"github.com/angkor-mart/storefront/internal/repository"
	"github.com/angkor-mart/storefront/internal/search"
	"github.com/angkor-mart/storefront/pkg/health"
	"github.com/angkor-mart/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)
	wishlistRepo := repository.NewWishlistRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)

	// Optional product search.
	var index product.Index
	if len(cfg.Search.Addresses) > 0 {
		idx, err := openSearch(ctx, lg, cfg.Search, productRepo)
		if err != nil {
			return errors.Wrap(err, "open search")
		}
		healthSvc.AddReadinessCheck("elasticsearch", 5*time.Second, health.PingCheck(idx),
			health.WithFailureThreshold(3))
		index = idx
	}

	// Notifications.
	notifiers, closers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return errors.Wrap(err, "build notifiers")
	}
	dispatcher, err := notify.NewDispatcher(lg.Named("notify"), m.MeterProvider(), cfg.Notify.Timeout, notifiers...)
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}
	for _, n := range notifiers {
		lg.Info("Notifier enabled", zap.String("name", n.Name()))
	}

	// Domain services.
	tokens, err := auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return errors.Wrap(err, "create token issuer")
	}
	verifier, err := identity.NewGoogleVerifier(identity.Options{
		ProjectID: cfg.Auth.FirebaseProject,
		CertsURL:  cfg.Auth.CertsURL,
	})
	if err != nil {
		return errors.Wrap(err, "create identity verifier")
	}
	couponValidator := coupon.NewRepoValidator(couponRepo)
	orderService, err := order.NewService(productRepo, couponValidator, orderRepo, dispatcher, order.ServiceConfig{
		PaymentLinks: order.PaymentLinks{
			ABAPayWayURL: cfg.Payment.ABAPayWayURL,
			KHQRURL:      cfg.Payment.KHQRURL,
		},
		ManualPaymentConfirm: cfg.Payment.ManualConfirm,
		MeterProvider:        m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	if cfg.Payment.CallbackSecret == "" {
		lg.Warn("Payment callback secret not set, callbacks will be refused")
	}

	services := handler.Services{
		Products:   product.NewService(productRepo, categoryRepo, index),
		Categories: category.NewService(categoryRepo),
		Coupons:    coupon.NewService(couponRepo),
		Validator:  couponValidator,
		Orders:     orderService,
		Users:      user.NewService(userRepo),
		Reviews:    review.NewService(reviewRepo, productRepo),
		Wishlist:   wishlist.NewService(wishlistRepo, productRepo),
		Admins:     auth.NewService(adminRepo, tokens),
		Identity:   verifier,
	}
	if cfg.CDN.UploadURL != "" {
		up, err := cdn.New(cdn.Config{URL: cfg.CDN.UploadURL, Preset: cfg.CDN.Preset, Folder: cfg.CDN.Folder})
		if err != nil {
			return errors.Wrap(err, "create uploader")
		}
		services.Uploader = up
	}

	// HTTP handlers.
	h := handler.NewHandler(handler.HandlerConfig{PaymentSecret: []byte(cfg.Payment.CallbackSecret)}, services)

	router := mux.NewRouter()
	router.HandleFunc("/livez", healthSvc.LiveEndpoint).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthSvc.ReadyEndpoint).Methods(http.MethodGet)
	h.Register(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Signature", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Rules:  rateLimitRules(cfg.RateLimit),
				Skip:   skipRateLimit,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			lg.Warn("Pending notifications abandoned", zap.Error(err))
		}
		for _, c := range closers {
			if err := c(); err != nil {
				lg.Warn("Close notifier", zap.Error(err))
			}
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// skipRateLimit exempts health endpoints and payment provider callbacks.
func skipRateLimit(r *http.Request) bool {
	switch r.URL.Path {
	case "/livez", "/readyz", "/api/payments/callback":
		return true
	}
	return r.Method == http.MethodOptions
}

// rateLimitRules guards password guessing and checkout spam with budgets
// tighter than the general one.
func rateLimitRules(cfg RateLimitConfig) []httpmiddleware.RateLimitRule {
	return []httpmiddleware.RateLimitRule{
		{Method: http.MethodPost, Path: "/api/auth/login", Max: cfg.LoginMax, Window: cfg.Window},
		{Method: http.MethodPost, Path: "/api/auth/setup", Max: cfg.LoginMax, Window: cfg.Window},
		{Method: http.MethodPost, Path: "/api/orders", Max: cfg.CheckoutMax, Window: cfg.Window},
	}
}

func openSearch(ctx context.Context, lg *zap.Logger, cfg SearchConfig, products product.Repository) (*search.ProductIndex, error) {
	es, err := search.NewClient(ctx, cfg.Addresses, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}
	idx := search.NewProductIndex(es, cfg.Index)
	created, err := idx.EnsureIndex(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ensure index")
	}
	if created {
		n, err := search.Backfill(ctx, products, idx)
		if err != nil {
			return nil, errors.Wrap(err, "backfill index")
		}
		lg.Info("Search index created", zap.String("index", cfg.Index), zap.Int("products", n))
	}
	return idx, nil
}

// buildNotifiers returns the notifiers enabled by cfg and the close
// functions to run on shutdown.
func buildNotifiers(cfg NotifyConfig) ([]notify.Notifier, []func() error, error) {
	var (
		out    []notify.Notifier
		closer []func() error
	)
	if cfg.SMTP.Host != "" {
		m, err := notify.NewMailer(notify.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			From:      cfg.SMTP.From,
			StoreName: cfg.SMTP.StoreName,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "mailer")
		}
		out = append(out, m)
	}
	if cfg.Webhook.URL != "" {
		w, err := notify.NewWebhook(notify.WebhookConfig{URL: cfg.Webhook.URL, ChatID: cfg.Webhook.ChatID})
		if err != nil {
			return nil, nil, errors.Wrap(err, "webhook")
		}
		out = append(out, w)
	}
	if brokers := nonEmpty(cfg.Kafka.Brokers); len(brokers) > 0 {
		p, err := notify.NewEventPublisher(brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, errors.Wrap(err, "kafka")
		}
		out = append(out, p)
		closer = append(closer, p.Close)
	}
	return out, closer, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
