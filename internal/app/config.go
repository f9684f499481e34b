package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (DINEIN_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string        `usage:"PostgreSQL connection URL (DINEIN_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string        `usage:"HMAC pepper for staff API key hashing (DINEIN_API_KEY_PEPPER)" flag:"api-key-pepper"`
	UTCOffset    time.Duration `default:"7h" usage:"Business time zone offset used for order number dates" flag:"utc-offset"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	VNPay        VNPayConfig
	Tax          TaxConfig
	AMQP         AMQPConfig
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// VNPayConfig is the merchant account at the payment gateway. Gateway
// checkout and callbacks are disabled while TmnCode is empty.
type VNPayConfig struct {
	TmnCode      string `usage:"Merchant terminal code" flag:"vnpay-tmn-code"`
	HashSecret   string `usage:"Merchant hash secret (DINEIN_VNPAY_HASH_SECRET)" flag:"vnpay-hash-secret"`
	PaymentURL   string `default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html" usage:"Gateway payment URL" flag:"vnpay-payment-url"`
	ReturnURL    string `usage:"Browser return URL registered with the gateway" flag:"vnpay-return-url"`
	ExchangeRate string `default:"1" usage:"Settlement currency units per display currency unit" flag:"vnpay-exchange-rate"`
	Locale       string `default:"vn" usage:"Default gateway page locale (vn or en)" flag:"vnpay-locale"`
}

// Enabled reports whether the gateway is configured.
func (c VNPayConfig) Enabled() bool { return c.TmnCode != "" }

// TaxConfig sets the flat tax applied to order subtotals.
type TaxConfig struct {
	Percent string `default:"0" usage:"Tax percent applied to order subtotals" flag:"tax-percent"`
}

// AMQPConfig controls the order event publisher. Events are dropped while
// URL is empty.
type AMQPConfig struct {
	URL              string        `usage:"RabbitMQ URL (DINEIN_AMQP_URL)" flag:"amqp-url"`
	Exchange         string        `default:"dinein.events" usage:"Topic exchange for order events" flag:"amqp-exchange"`
	PublishTimeout   time.Duration `default:"5s" usage:"Timeout for one publish" flag:"amqp-publish-timeout"`
	FailureThreshold uint32        `default:"5" usage:"Consecutive failures that open the circuit breaker" flag:"amqp-failure-threshold"`
	OpenTimeout      time.Duration `default:"30s" usage:"How long the circuit breaker stays open" flag:"amqp-open-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DINEIN",
		Files:     []string{"config.yaml", "/etc/dinein/config.yaml"},
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
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set DINEIN_DATABASE_URL or DATABASE_URL")
	}
	if c.VNPay.Enabled() && c.VNPay.HashSecret == "" {
		return errors.New("vnpay hash secret is required when a tmn code is set")
	}
	if _, err := decimal.NewFromString(c.VNPay.ExchangeRate); err != nil {
		return errors.Wrapf(err, "parse vnpay exchange rate %q", c.VNPay.ExchangeRate)
	}
	if _, err := decimal.NewFromString(c.Tax.Percent); err != nil {
		return errors.Wrapf(err, "parse tax percent %q", c.Tax.Percent)
	}
	return nil
}

// Location is the business time zone.
func (c *Config) Location() *time.Location {
	return time.FixedZone("business", int(c.UTCOffset/time.Second))
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's DINEIN_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
