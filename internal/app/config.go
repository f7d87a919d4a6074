package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DB          DBConfig
	Auth        AuthConfig
	Payment     PaymentConfig
	Search      SearchConfig
	CDN         CDNConfig
	Notify      NotifyConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DBConfig tunes the PostgreSQL pool.
type DBConfig struct {
	MaxConns        int32         `default:"10" usage:"Maximum pool connections" flag:"db-max-conns"`
	MinConns        int32         `default:"0"  usage:"Minimum idle pool connections" flag:"db-min-conns"`
	MaxConnLifetime time.Duration `default:"1h" usage:"Maximum connection lifetime" flag:"db-max-conn-lifetime"`
}

// AuthConfig configures admin sessions and customer identity tokens.
type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET" usage:"HS256 secret for admin session tokens (at least 16 bytes)" flag:"jwt-secret"`
	TokenTTL        time.Duration `default:"168h" usage:"Admin session lifetime" flag:"token-ttl"`
	FirebaseProject string        `env:"FIREBASE_PROJECT" usage:"Firebase project id that customer ID tokens are issued for" flag:"firebase-project"`
	CertsURL        string        `env:"CERTS_URL" usage:"Override for the ID token signing certificates endpoint" flag:"identity-certs-url"`
}

// PaymentConfig configures hosted checkout links and provider callbacks.
type PaymentConfig struct {
	ABAPayWayURL   string `env:"ABA_PAYWAY_URL" usage:"ABA PayWay checkout base URL" flag:"aba-payway-url"`
	KHQRURL        string `env:"KHQR_URL" usage:"KHQR checkout base URL" flag:"khqr-url"`
	CallbackSecret string `env:"CALLBACK_SECRET" usage:"HMAC secret that signs payment callbacks" flag:"payment-callback-secret"`
	ManualConfirm  bool   `default:"false" usage:"Allow admins to mark orders paid without a callback" flag:"payment-manual-confirm"`
}

// SearchConfig enables the Elasticsearch product index.
type SearchConfig struct {
	Addresses []string `usage:"Elasticsearch node URLs; empty disables search" flag:"es-addresses"`
	Username  string   `usage:"Elasticsearch username" flag:"es-username"`
	Password  string   `usage:"Elasticsearch password" flag:"es-password"`
	Index     string   `default:"products" usage:"Product index name" flag:"es-index"`
}

// CDNConfig enables admin image uploads.
type CDNConfig struct {
	UploadURL string `env:"UPLOAD_URL" usage:"Unsigned upload endpoint; empty disables uploads" flag:"cdn-upload-url"`
	Preset    string `usage:"Upload preset" flag:"cdn-preset"`
	Folder    string `default:"products" usage:"Upload folder" flag:"cdn-folder"`
}

// NotifyConfig enables order notifications. Each channel is off until its
// address is set.
type NotifyConfig struct {
	Timeout time.Duration `default:"15s" usage:"Per-notification delivery timeout" flag:"notify-timeout"`
	SMTP    SMTPConfig
	Webhook WebhookConfig
	Kafka   KafkaConfig
}

// SMTPConfig configures the receipt mailer.
type SMTPConfig struct {
	Host      string `usage:"SMTP host" flag:"smtp-host"`
	Port      int    `default:"587" usage:"SMTP port" flag:"smtp-port"`
	Username  string `usage:"SMTP username" flag:"smtp-username"`
	Password  string `usage:"SMTP password" flag:"smtp-password"`
	From      string `usage:"Sender address" flag:"smtp-from"`
	StoreName string `default:"Angkor Mart" usage:"Store name used in receipts" flag:"store-name"`
}

// WebhookConfig configures the operations chat webhook.
type WebhookConfig struct {
	URL    string `usage:"Webhook URL, e.g. a Telegram sendMessage endpoint" flag:"webhook-url"`
	ChatID string `usage:"Chat id sent with each message" flag:"webhook-chat-id"`
}

// KafkaConfig configures order event publishing.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses; empty disables events" flag:"kafka-brokers"`
	Topic   string   `default:"orders" usage:"Order events topic" flag:"kafka-topic"`
}

// RateLimitConfig controls the per-client request budgets.
type RateLimitConfig struct {
	Max         int           `default:"100" env:"MAX" usage:"Max requests per window"`
	Window      time.Duration `default:"1m"  usage:"Rate limit window duration"`
	LoginMax    int           `default:"5"   env:"LOGIN_MAX" usage:"Max admin login attempts per window" flag:"ratelimit-login-max"`
	CheckoutMax int           `default:"10"  env:"CHECKOUT_MAX" usage:"Max order placements per window" flag:"ratelimit-checkout-max"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a .env file, environment variables and
// YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	case len(c.Auth.JWTSecret) < 16:
		return errors.New("jwt secret must be at least 16 bytes: set STORE_AUTH_JWT_SECRET")
	case c.Auth.FirebaseProject == "":
		return errors.New("firebase project is required: set STORE_AUTH_FIREBASE_PROJECT")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
