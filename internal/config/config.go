package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config holds all configuration required by the API process.
// All values come from the environment; nothing below reads os.Getenv directly.
type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	DB       DBConfig       `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Auth     AuthConfig     `envPrefix:"JWT_"`
	Twilio   TwilioConfig   `envPrefix:"TWILIO_"`
	Stripe   StripeConfig   `envPrefix:"STRIPE_"`
	Rates    RatesConfig    `envPrefix:"RATES_"`
	Billing  BillingConfig  `envPrefix:"BILLING_"`
	Alerting AlertingConfig `envPrefix:"ALERT_"`
}

type AppConfig struct {
	Env  string `env:"ENV"`
	Port int    `env:"PORT" envDefault:"8080"`
}

type DBConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME"`

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"SSLMODE"`

	MaxOpenConns int  `env:"MAX_OPEN_CONNS" envDefault:"25"`
	AutoMigrate  bool `env:"AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
}

type AuthConfig struct {
	JWTSecret       string        `env:"SECRET"`
	JWTIssuer       string        `env:"ISSUER"`
	JWTAudience     string        `env:"AUDIENCE"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TTL"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TTL"`
}

type TwilioConfig struct {
	AccountSID string `env:"ACCOUNT_SID"`
	AuthToken  string `env:"AUTH_TOKEN"`
	// CallerID is the verified number presented on outbound calls.
	CallerID string `env:"CALLER_ID"`
	// PublicBaseURL is the externally reachable origin Twilio posts webhooks to.
	// Signature validation is computed against it.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
}

type StripeConfig struct {
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type RatesConfig struct {
	File        string          `env:"FILE" envDefault:"data/rates.csv"`
	DefaultRate decimal.Decimal `env:"DEFAULT_RATE" envDefault:"0.50"`
	CacheTTL    time.Duration   `env:"CACHE_TTL" envDefault:"10m"`
	// Cache is "redis" (shared across instances) or "memory" (per process).
	Cache string `env:"CACHE" envDefault:"redis"`
}

type BillingConfig struct {
	StartingBalance decimal.Decimal `env:"STARTING_BALANCE" envDefault:"5.00"`
	StoreTimeout    time.Duration   `env:"STORE_TIMEOUT" envDefault:"3s"`
	DebitRetries    uint64          `env:"DEBIT_RETRIES" envDefault:"5"`
	RetryBaseDelay  time.Duration   `env:"RETRY_BASE_DELAY" envDefault:"200ms"`
	MaxConcurrent   int             `env:"MAX_CONCURRENT_CALLS" envDefault:"2"`
}

type AlertingConfig struct {
	// Backend is one of log, kafka, amqp.
	Backend      string   `env:"BACKEND" envDefault:"log"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"zkypee.billing.alerts"`
	AMQPURL      string   `env:"AMQP_URL"`
	AMQPQueue    string   `env:"AMQP_QUEUE" envDefault:"zkypee.billing.alerts"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every configuration problem at once and fills environment-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Rates.DefaultRate.IsNegative() {
		errs = append(errs, errors.New("RATES_DEFAULT_RATE must not be negative"))
	}
	switch c.Rates.Cache {
	case "":
		c.Rates.Cache = "redis"
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("RATES_CACHE must be one of redis, memory, got %q", c.Rates.Cache))
	}
	if c.Billing.StartingBalance.IsNegative() {
		errs = append(errs, errors.New("BILLING_STARTING_BALANCE must not be negative"))
	}
	if c.Billing.StoreTimeout <= 0 {
		c.Billing.StoreTimeout = 3 * time.Second
	}
	if c.Billing.MaxConcurrent <= 0 {
		c.Billing.MaxConcurrent = 1
	}

	switch c.Alerting.Backend {
	case "", "log":
		c.Alerting.Backend = "log"
	case "kafka":
		if len(c.Alerting.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("ALERT_KAFKA_BROKERS is required when ALERT_BACKEND=kafka"))
		}
	case "amqp":
		if c.Alerting.AMQPURL == "" {
			errs = append(errs, errors.New("ALERT_AMQP_URL is required when ALERT_BACKEND=amqp"))
		}
	default:
		errs = append(errs, fmt.Errorf("ALERT_BACKEND must be one of log, kafka, amqp, got %q", c.Alerting.Backend))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
