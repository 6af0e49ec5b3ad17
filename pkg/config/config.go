package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "VENDIQUE"

	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Env var names shared with tests and error messages.
const (
	EnvAppEnv   = "VENDIQUE_APP_ENV"
	EnvPort     = "VENDIQUE_APP_PORT"
	EnvDBDSN    = "VENDIQUE_DB_DSN"
	EnvDBHost   = "VENDIQUE_DB_HOST"
	EnvDBUser   = "VENDIQUE_DB_USER"
	EnvDBName   = "VENDIQUE_DB_NAME"
	EnvRedisURL = "VENDIQUE_REDIS_URL"

	EnvGCPProjectID         = "VENDIQUE_GCP_PROJECT_ID"
	EnvPubSubInventoryTopic = "VENDIQUE_PUBSUB_INVENTORY_TOPIC"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Inventory    InventoryConfig
	Cron         CronConfig
}

// Load reads the process environment into a Config and normalizes the
// database DSN before anything else touches it.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VENDIQUE_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDIQUE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENDIQUE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENDIQUE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VENDIQUE_SERVICE_KIND" default:"inventory-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"VENDIQUE_DB_DSN"`
	Driver string `envconfig:"VENDIQUE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENDIQUE_DB_HOST"`
	LegacyPort     int    `envconfig:"VENDIQUE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENDIQUE_DB_USER"`
	LegacyPassword string `envconfig:"VENDIQUE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENDIQUE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENDIQUE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDIQUE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENDIQUE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENDIQUE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDIQUE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// ensureDSN assembles DSN from the discrete DB_* fields when no full DSN was
// given, so manifests written before the DSN variable keep working.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	if db.LegacyHost == "" {
		missing = append(missing, EnvDBHost)
	}
	if db.LegacyUser == "" {
		missing = append(missing, EnvDBUser)
	}
	if db.LegacyName == "" {
		missing = append(missing, EnvDBName)
	}
	if len(missing) > 0 {
		return fmt.Errorf("set %s or the discrete fields (missing %s)", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   "/" + db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDIQUE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENDIQUE_REDIS_ADDR"`
	Password     string        `envconfig:"VENDIQUE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDIQUE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDIQUE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENDIQUE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENDIQUE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDIQUE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDIQUE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VENDIQUE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VENDIQUE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VENDIQUE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"VENDIQUE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VENDIQUE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	InventoryTopic string `envconfig:"VENDIQUE_PUBSUB_INVENTORY_TOPIC" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VENDIQUE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VENDIQUE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VENDIQUE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"VENDIQUE_OUTBOX_RETENTION_DAYS" default:"30"`
}

// InventoryConfig tunes the stock reservation subsystem. Retry settings feed
// the optimistic-concurrency coordinator; they are operational knobs, not
// business rules.
type InventoryConfig struct {
	MaxStockQuantity    int           `envconfig:"VENDIQUE_INVENTORY_MAX_STOCK" default:"1000000"`
	ReservationTTL      time.Duration `envconfig:"VENDIQUE_INVENTORY_RESERVATION_TTL" default:"30m"`
	MaxReservationItems int           `envconfig:"VENDIQUE_INVENTORY_MAX_RESERVATION_ITEMS" default:"100"`
	MaxBulkItems        int           `envconfig:"VENDIQUE_INVENTORY_MAX_BULK_ITEMS" default:"1000"`

	RetryMaxAttempts    int           `envconfig:"VENDIQUE_INVENTORY_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff time.Duration `envconfig:"VENDIQUE_INVENTORY_RETRY_INITIAL_BACKOFF" default:"25ms"`
	RetryMaxBackoff     time.Duration `envconfig:"VENDIQUE_INVENTORY_RETRY_MAX_BACKOFF" default:"250ms"`

	SweepGrace          time.Duration `envconfig:"VENDIQUE_INVENTORY_SWEEP_GRACE" default:"0s"`
	AlertPreferenceTTL  time.Duration `envconfig:"VENDIQUE_INVENTORY_ALERT_PREFERENCE_TTL" default:"5m"`
	AlertThrottleWindow time.Duration `envconfig:"VENDIQUE_INVENTORY_ALERT_THROTTLE_WINDOW" default:"1h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VENDIQUE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"VENDIQUE_CRON_LOCK_TTL" default:"5m"`
}
