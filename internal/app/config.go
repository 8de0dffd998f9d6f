package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-order-api/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SALES_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SALES_APIKEYPEPPER)" flag:"api-key-pepper"`
	Database     DatabaseConfig
	Orders       OrdersConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// DatabaseConfig controls the PostgreSQL pool.
type DatabaseConfig struct {
	URL          string        `usage:"PostgreSQL connection URL (SALES_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxConns     int32         `default:"10" usage:"Maximum pool connections"`
	QueryTimeout time.Duration `default:"5s" usage:"Deadline applied to every API request"`
}

// OrdersConfig holds the order engine settings.
type OrdersConfig struct {
	VATRate         string `default:"0.15" usage:"VAT rate applied to order subtotals"`
	MoneyScale      int32  `default:"2" usage:"Fractional digits VAT is rounded to and amounts are rendered with"`
	TimeZone        string `default:"UTC" usage:"IANA zone for date filters and formatted dates"`
	DefaultPageSize int    `default:"20" usage:"Page size when none is requested"`
	MaxPageSize     int    `default:"200" usage:"Upper bound for requested page sizes"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SALES",
		Files:     []string{"config.yaml", "/etc/sales/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.Database.URL == "" {
		return nil, errors.New("database URL is required: set SALES_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Orders.engine(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// engine converts the raw settings into an order.Config.
func (c OrdersConfig) engine() (order.Config, error) {
	rate, err := decimal.NewFromString(c.VATRate)
	if err != nil {
		return order.Config{}, errors.Wrapf(err, "parse vat rate %q", c.VATRate)
	}
	if rate.IsNegative() {
		return order.Config{}, errors.Errorf("vat rate must not be negative, got %s", rate)
	}
	if c.MoneyScale < 0 {
		return order.Config{}, errors.Errorf("money scale must not be negative, got %d", c.MoneyScale)
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return order.Config{}, errors.Wrapf(err, "load time zone %q", c.TimeZone)
	}
	return order.Config{
		VATRate:         rate,
		Scale:           c.MoneyScale,
		Location:        loc,
		DefaultPageSize: c.DefaultPageSize,
		MaxPageSize:     c.MaxPageSize,
	}, nil
}
