package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/pricing"
	pkgconfig "github.com/leduxro-prog/erp-dashboard-sub000/pkg/config"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the order engine.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort              int `env:"ORDER_HTTP_PORT" envDefault:"8004"`
	RequestTimeoutSeconds int `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`

	// Order store
	Store string `env:"ORDER_STORE" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"orders"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"orders_secret"`
	PostgresDB   string `env:"ORDER_DB_NAME" envDefault:"orders"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"500"`

	// Kafka
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"ecommerce"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Product snapshot cache; 0 disables it.
	ProductCacheTTLSeconds int `env:"PRODUCT_CACHE_TTL_SECONDS" envDefault:"60"`

	// Downstream services
	ProductServiceURL    string `env:"PRODUCT_SERVICE_URL" envDefault:"http://localhost:8001"`
	InventoryServiceURL  string `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8007"`
	AccountingServiceURL string `env:"ACCOUNTING_SERVICE_URL" envDefault:"http://localhost:8010"`
	DownstreamTimeoutSec int    `env:"DOWNSTREAM_TIMEOUT_SECONDS" envDefault:"10"`

	// Circuit breaker settings for downstream service calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Commercial settings
	TaxRate             decimal.Decimal `env:"ORDER_TAX_RATE" envDefault:"0.19"`
	Currency            string          `env:"ORDER_CURRENCY" envDefault:"RON"`
	NumberPrefix        string          `env:"ORDER_NUMBER_PREFIX" envDefault:"ORD"`
	DefaultPaymentTerms string          `env:"ORDER_DEFAULT_PAYMENT_TERMS" envDefault:"net_30"`
	DiscountTiers       string          `env:"ORDER_DISCOUNT_TIERS" envDefault:""`

	// Stock reservation retry consumer
	ReservationRetryEnabled  bool   `env:"RESERVATION_RETRY_ENABLED" envDefault:"true"`
	ReservationRetryGroup    string `env:"RESERVATION_RETRY_GROUP" envDefault:"order-engine-reservation-retry"`
	IdempotencyTTLMinutes    int    `env:"IDEMPOTENCY_TTL_MINUTES" envDefault:"1440"`
	ReservationRetryAttempts int    `env:"RESERVATION_RETRY_ATTEMPTS" envDefault:"3"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Per-actor API rate limit; 0 disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Browser origins allowed by CORS; "*" allows any.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	tiers pricing.TierPolicy
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants and parses the tier table.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.Store {
	case StorePostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("ORDER_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("ORDER_TAX_RATE must be between 0 and 1, got %s", c.TaxRate)
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if len(c.Currency) != 3 {
		return fmt.Errorf("ORDER_CURRENCY must be a 3-letter code, got %q", c.Currency)
	}
	if strings.TrimSpace(c.NumberPrefix) == "" {
		return fmt.Errorf("ORDER_NUMBER_PREFIX is required")
	}
	if c.ProductCacheTTLSeconds < 0 {
		return fmt.Errorf("PRODUCT_CACHE_TTL_SECONDS must not be negative, got %d", c.ProductCacheTTLSeconds)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSeconds)
	}
	if c.DownstreamTimeoutSec <= 0 {
		return fmt.Errorf("DOWNSTREAM_TIMEOUT_SECONDS must be positive, got %d", c.DownstreamTimeoutSec)
	}
	if c.ReservationRetryAttempts < 1 {
		return fmt.Errorf("RESERVATION_RETRY_ATTEMPTS must be at least 1, got %d", c.ReservationRetryAttempts)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for name, rawURL := range map[string]string{
		"PRODUCT_SERVICE_URL":    c.ProductServiceURL,
		"INVENTORY_SERVICE_URL":  c.InventoryServiceURL,
		"ACCOUNTING_SERVICE_URL": c.AccountingServiceURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}

	tiers, err := pricing.ParseTierPolicy(c.DiscountTiers)
	if err != nil {
		return fmt.Errorf("invalid ORDER_DISCOUNT_TIERS: %w", err)
	}
	c.tiers = tiers
	return nil
}

// Tiers returns the parsed customer tier discount table.
func (c *Config) Tiers() pricing.TierPolicy {
	return c.tiers
}

// RequestTimeout bounds the handling of one API request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ProductCacheTTL returns the product cache entry lifetime.
func (c *Config) ProductCacheTTL() time.Duration {
	return time.Duration(c.ProductCacheTTLSeconds) * time.Second
}

// IdempotencyTTL returns how long consumed event ids are remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLMinutes) * time.Minute
}
