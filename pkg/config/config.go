package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
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
	Couriers     CouriersConfig
	Webhooks     WebhooksConfig
	Cron         CronConfig
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
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`

	// CORSOrigins is a comma separated list of operator console origins.
	CORSOrigins []string `envconfig:"PACKFINDERZ_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKFINDERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
	// CourierPush disables outbound courier calls when false (staging without sandbox keys).
	CourierPush bool `envconfig:"PACKFINDERZ_FEATURE_COURIER_PUSH" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	FulfillmentTopic string `envconfig:"PACKFINDERZ_PUBSUB_FULFILLMENT_TOPIC" default:"fulfillment"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKFINDERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PACKFINDERZ_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CouriersConfig struct {
	HTTPTimeout  time.Duration `envconfig:"PACKFINDERZ_COURIER_HTTP_TIMEOUT" default:"15s"`
	MappingsPath string        `envconfig:"PACKFINDERZ_COURIER_STATUS_MAPPINGS_PATH"`
	Steadfast    SteadfastConfig
	Pathao       PathaoConfig
	RedX         RedXConfig
}

type SteadfastConfig struct {
	BaseURL      string `envconfig:"PACKFINDERZ_STEADFAST_BASE_URL" default:"https://portal.packzy.com/api/v1"`
	APIKey       string `envconfig:"PACKFINDERZ_STEADFAST_API_KEY"`
	SecretKey    string `envconfig:"PACKFINDERZ_STEADFAST_SECRET_KEY"`
	WebhookToken string `envconfig:"PACKFINDERZ_STEADFAST_WEBHOOK_TOKEN"`
}

type PathaoConfig struct {
	BaseURL       string `envconfig:"PACKFINDERZ_PATHAO_BASE_URL" default:"https://api-hermes.pathao.com"`
	AccessToken   string `envconfig:"PACKFINDERZ_PATHAO_ACCESS_TOKEN"`
	StoreID       int    `envconfig:"PACKFINDERZ_PATHAO_STORE_ID"`
	WebhookSecret string `envconfig:"PACKFINDERZ_PATHAO_WEBHOOK_SECRET"`
}

type RedXConfig struct {
	BaseURL       string `envconfig:"PACKFINDERZ_REDX_BASE_URL" default:"https://openapi.redx.com.bd"`
	APIToken      string `envconfig:"PACKFINDERZ_REDX_API_TOKEN"`
	WebhookSecret string `envconfig:"PACKFINDERZ_REDX_WEBHOOK_SECRET"`
}

type WebhooksConfig struct {
	DedupTTL          time.Duration `envconfig:"PACKFINDERZ_WEBHOOK_DEDUP_TTL" default:"72h"`
	MaxReplayAttempts int           `envconfig:"PACKFINDERZ_WEBHOOK_MAX_REPLAY_ATTEMPTS" default:"8"`
	ReplayBatchSize   int           `envconfig:"PACKFINDERZ_WEBHOOK_REPLAY_BATCH_SIZE" default:"50"`
	ReplayBaseBackoff time.Duration `envconfig:"PACKFINDERZ_WEBHOOK_REPLAY_BASE_BACKOFF" default:"1m"`
}

type CronConfig struct {
	Schedule              string        `envconfig:"PACKFINDERZ_CRON_SCHEDULE" default:"@every 5m"`
	LockKey               string        `envconfig:"PACKFINDERZ_CRON_LOCK_KEY" default:"pf:cron:fulfillment"`
	LockTTL               time.Duration `envconfig:"PACKFINDERZ_CRON_LOCK_TTL" default:"4m"`
	CourierSyncStaleAfter time.Duration `envconfig:"PACKFINDERZ_CRON_COURIER_SYNC_STALE_AFTER" default:"6h"`
	CourierSyncBatchSize  int           `envconfig:"PACKFINDERZ_CRON_COURIER_SYNC_BATCH_SIZE" default:"100"`
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
