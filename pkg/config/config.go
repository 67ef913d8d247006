package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "VOLTCART"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "VOLTCART_APP_ENV"
	EnvPort   = "VOLTCART_APP_PORT"
	EnvDBDSN  = "VOLTCART_DB_DSN"
	EnvDBHost = "VOLTCART_DB_HOST"
	EnvDBUser = "VOLTCART_DB_USER"
	EnvDBName = "VOLTCART_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Lightning LightningConfig
	Checkout  CheckoutConfig
	Pricing   PricingConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VOLTCART_APP_ENV" required:"true"`
	Port         string `envconfig:"VOLTCART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VOLTCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VOLTCART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"VOLTCART_DB_DSN"`
	Driver string `envconfig:"VOLTCART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VOLTCART_DB_HOST"`
	LegacyPort     int    `envconfig:"VOLTCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VOLTCART_DB_USER"`
	LegacyPassword string `envconfig:"VOLTCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"VOLTCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"VOLTCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VOLTCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOLTCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOLTCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOLTCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"VOLTCART_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VOLTCART_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"VOLTCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOLTCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOLTCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOLTCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOLTCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LightningConfig points at the wallet provider's GraphQL API.
type LightningConfig struct {
	Endpoint      string        `envconfig:"VOLTCART_LIGHTNING_ENDPOINT" required:"true"`
	APIKey        string        `envconfig:"VOLTCART_LIGHTNING_API_KEY" required:"true"`
	WalletID      string        `envconfig:"VOLTCART_LIGHTNING_WALLET_ID" required:"true"`
	Timeout       time.Duration `envconfig:"VOLTCART_LIGHTNING_TIMEOUT" default:"15s"`
	WebhookSecret string        `envconfig:"VOLTCART_LIGHTNING_WEBHOOK_SECRET"`
}

// CheckoutConfig carries the TTLs the processor applies to soft locks and
// invoices. These are explicit parameters rather than a mutable settings row.
type CheckoutConfig struct {
	SoftLockMinutes           int `envconfig:"VOLTCART_CHECKOUT_SOFT_LOCK_MINUTES" default:"15"`
	InvoiceExpiryMinutes      int `envconfig:"VOLTCART_CHECKOUT_INVOICE_EXPIRY_MINUTES" default:"10"`
	DomainReservationSeconds  int `envconfig:"VOLTCART_CHECKOUT_DOMAIN_RESERVATION_SECONDS" default:"900"`
	WebhookIdempotencyTTLHrs  int `envconfig:"VOLTCART_CHECKOUT_WEBHOOK_IDEMPOTENCY_TTL_HOURS" default:"72"`
}

func (c CheckoutConfig) SoftLockTTL() time.Duration {
	return time.Duration(c.SoftLockMinutes) * time.Minute
}

func (c CheckoutConfig) InvoiceExpiry() time.Duration {
	return time.Duration(c.InvoiceExpiryMinutes) * time.Minute
}

func (c CheckoutConfig) DomainReservationTTL() time.Duration {
	return time.Duration(c.DomainReservationSeconds) * time.Second
}

func (c CheckoutConfig) WebhookIdempotencyTTL() time.Duration {
	return time.Duration(c.WebhookIdempotencyTTLHrs) * time.Hour
}

// PricingConfig pins BTC prices per fiat currency. A market feed can replace
// the static table without touching the quoting code.
type PricingConfig struct {
	StaticRates map[string]string `envconfig:"VOLTCART_PRICING_STATIC_RATES" default:"USD:65000"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VOLTCART_CRON_INTERVAL" default:"1m"`
	LockKey  string        `envconfig:"VOLTCART_CRON_LOCK_KEY" default:"voltcart:cron:lock"`
	LockTTL  time.Duration `envconfig:"VOLTCART_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
