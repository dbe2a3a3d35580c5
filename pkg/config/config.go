package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "carshare"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CARSHARE_DB_DSN"
	EnvDBHost = "CARSHARE_DB_HOST"
	EnvDBUser = "CARSHARE_DB_USER"
	EnvDBName = "CARSHARE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Outbox  OutboxConfig
	Retry   RetryConfig
	Relay   RelayConfig
	Cron    CronConfig
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
	Env          string `envconfig:"CARSHARE_APP_ENV" required:"true"`
	Port         string `envconfig:"CARSHARE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CARSHARE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARSHARE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"CARSHARE_APP_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARSHARE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARSHARE_DB_DSN"`
	Driver string `envconfig:"CARSHARE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARSHARE_DB_HOST"`
	LegacyPort     int    `envconfig:"CARSHARE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARSHARE_DB_USER"`
	LegacyPassword string `envconfig:"CARSHARE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARSHARE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARSHARE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARSHARE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARSHARE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARSHARE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARSHARE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARSHARE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARSHARE_REDIS_ADDR"`
	Password     string        `envconfig:"CARSHARE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARSHARE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARSHARE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARSHARE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARSHARE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARSHARE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARSHARE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CARSHARE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CARSHARE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CARSHARE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RentalsTopic      string        `envconfig:"CARSHARE_PUBSUB_RENTALS_TOPIC" default:"cs-rental-events"`
	VehiclesTopic     string        `envconfig:"CARSHARE_PUBSUB_VEHICLES_TOPIC" default:"cs-vehicle-events"`
	RelaySubscription string        `envconfig:"CARSHARE_PUBSUB_RELAY_SUBSCRIPTION" required:"true"`
	SourceService     string        `envconfig:"CARSHARE_PUBSUB_SOURCE_SERVICE" default:"carshare-backend"`
	IdempotencyTTL    time.Duration `envconfig:"CARSHARE_PUBSUB_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	Enabled        bool `envconfig:"CARSHARE_OUTBOX_ENABLED" default:"true"`
	BatchSize      int  `envconfig:"CARSHARE_OUTBOX_PUBLISH_BATCH_SIZE" default:"100"`
	PollIntervalMS int  `envconfig:"CARSHARE_OUTBOX_PUBLISH_POLL_MS" default:"5000"`
	InitialDelayMS int  `envconfig:"CARSHARE_OUTBOX_PUBLISH_INITIAL_DELAY_MS" default:"10000"`
	MaxAttempts    int  `envconfig:"CARSHARE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int  `envconfig:"CARSHARE_OUTBOX_RETENTION_DAYS" default:"30"`
}

type RetryConfig struct {
	MaxAttempts      int     `envconfig:"CARSHARE_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialBackoffMS int     `envconfig:"CARSHARE_RETRY_INITIAL_BACKOFF_MS" default:"100"`
	Multiplier       float64 `envconfig:"CARSHARE_RETRY_MULTIPLIER" default:"2.0"`
}

// InitialBackoff returns the first retry delay.
func (r RetryConfig) InitialBackoff() time.Duration {
	if r.InitialBackoffMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(r.InitialBackoffMS) * time.Millisecond
}

type RelayConfig struct {
	HeartbeatInterval time.Duration `envconfig:"CARSHARE_RELAY_HEARTBEAT_INTERVAL" default:"25s"`
	SendTimeout       time.Duration `envconfig:"CARSHARE_RELAY_SEND_TIMEOUT" default:"5s"`
	BufferSize        int           `envconfig:"CARSHARE_RELAY_BUFFER_SIZE" default:"16"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"CARSHARE_CRON_INTERVAL" default:"24h"`
	LockKey    string        `envconfig:"CARSHARE_CRON_LOCK_KEY" default:"cron:worker"`
	LockTTL    time.Duration `envconfig:"CARSHARE_CRON_LOCK_TTL" default:"25h"`
	JobTimeout time.Duration `envconfig:"CARSHARE_CRON_JOB_TIMEOUT" default:"15m"`
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
