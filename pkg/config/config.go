package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Terminal TerminalConfig
	Sync     SyncConfig
	Fiscal   FiscalConfig
	PRA      PRAConfig
	Outbox   OutboxConfig
	PubSub   PubSubConfig
	GCP      GCPConfig
	Cron     CronConfig
	Pin      PinConfig
	Flags    FeatureFlagsConfig
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
	Env          string `envconfig:"TILLPOINT_APP_ENV" required:"true"`
	Port         string `envconfig:"TILLPOINT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TILLPOINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TILLPOINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TILLPOINT_DB_DSN"`
	Driver string `envconfig:"TILLPOINT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TILLPOINT_DB_HOST"`
	Port     int    `envconfig:"TILLPOINT_DB_PORT" default:"5432"`
	User     string `envconfig:"TILLPOINT_DB_USER"`
	Password string `envconfig:"TILLPOINT_DB_PASSWORD"`
	Name     string `envconfig:"TILLPOINT_DB_NAME"`
	SSLMode  string `envconfig:"TILLPOINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TILLPOINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TILLPOINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TILLPOINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TILLPOINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TILLPOINT_REDIS_URL"`
	Address      string        `envconfig:"TILLPOINT_REDIS_ADDR"`
	Password     string        `envconfig:"TILLPOINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TILLPOINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TILLPOINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TILLPOINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TILLPOINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TILLPOINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TILLPOINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TILLPOINT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TILLPOINT_JWT_ISSUER" default:"tillpoint"`
	ExpirationMinutes int    `envconfig:"TILLPOINT_JWT_EXPIRATION_MINUTES" default:"720"`
}

// TerminalConfig configures the on-device process (SQLite store + sync engine).
type TerminalConfig struct {
	DeviceID    string `envconfig:"TILLPOINT_TERMINAL_DEVICE_ID"`
	BranchID    string `envconfig:"TILLPOINT_TERMINAL_BRANCH_ID"`
	SQLitePath  string `envconfig:"TILLPOINT_TERMINAL_SQLITE_PATH" default:"tillpoint.db"`
	ServerURL   string `envconfig:"TILLPOINT_TERMINAL_SERVER_URL" default:"http://localhost:8080"`
	DeviceToken string `envconfig:"TILLPOINT_TERMINAL_DEVICE_TOKEN"`
}

type SyncConfig struct {
	Interval       time.Duration `envconfig:"TILLPOINT_SYNC_INTERVAL" default:"30s"`
	RequestTimeout time.Duration `envconfig:"TILLPOINT_SYNC_REQUEST_TIMEOUT" default:"15s"`
	MaxRetries     int           `envconfig:"TILLPOINT_SYNC_MAX_RETRIES" default:"3"`
}

type FiscalConfig struct {
	MaxAttempts   int           `envconfig:"TILLPOINT_FISCAL_MAX_ATTEMPTS" default:"5"`
	PollInterval  time.Duration `envconfig:"TILLPOINT_FISCAL_POLL_INTERVAL" default:"5s"`
	BatchSize     int           `envconfig:"TILLPOINT_FISCAL_BATCH_SIZE" default:"20"`
	SubmitTimeout time.Duration `envconfig:"TILLPOINT_FISCAL_SUBMIT_TIMEOUT" default:"30s"`
	StaleClaimAge time.Duration `envconfig:"TILLPOINT_FISCAL_STALE_CLAIM_AGE" default:"15m"`
}

// PinConfig tunes the Argon2id parameters for manager PIN hashes.
type PinConfig struct {
	ArgonMemoryKB    int `envconfig:"TILLPOINT_PIN_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TILLPOINT_PIN_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TILLPOINT_PIN_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TILLPOINT_PIN_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TILLPOINT_PIN_ARGON_KEY_LEN" default:"32"`
}

// PRAConfig points at the fiscal authority integration service.
type PRAConfig struct {
	BaseURL  string        `envconfig:"TILLPOINT_PRA_BASE_URL" default:"https://ims.pral.com.pk/ims/v1"`
	Token    string        `envconfig:"TILLPOINT_PRA_TOKEN"`
	POSID    string        `envconfig:"TILLPOINT_PRA_POS_ID"`
	NTN      string        `envconfig:"TILLPOINT_PRA_NTN"`
	Timeout  time.Duration `envconfig:"TILLPOINT_PRA_TIMEOUT" default:"30s"`
	TestMode bool          `envconfig:"TILLPOINT_PRA_TEST_MODE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TILLPOINT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TILLPOINT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TILLPOINT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"TILLPOINT_PUBSUB_EVENTS_TOPIC" default:"tillpoint-domain-events"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TILLPOINT_GCP_PROJECT_ID"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TILLPOINT_CRON_INTERVAL" default:"1m"`
	LockKey  string        `envconfig:"TILLPOINT_CRON_LOCK_KEY" default:"tillpoint:cron:lock"`
	LockTTL  time.Duration `envconfig:"TILLPOINT_CRON_LOCK_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TILLPOINT_AUTO_MIGRATE" default:"false"`
	UseSQLite   bool `envconfig:"TILLPOINT_USE_SQLITE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
