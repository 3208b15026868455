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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Engine       EngineConfig
	Admin        AdminConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"REFERRAL_APP_ENV" required:"true"`
	Port         string `envconfig:"REFERRAL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"REFERRAL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"REFERRAL_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string      `envconfig:"REFERRAL_CORS_ALLOWED_ORIGINS"`
	ShutdownTimeout    time.Duration `envconfig:"REFERRAL_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"REFERRAL_DB_DSN"`
	Driver string `envconfig:"REFERRAL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REFERRAL_DB_HOST"`
	LegacyPort     int    `envconfig:"REFERRAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REFERRAL_DB_USER"`
	LegacyPassword string `envconfig:"REFERRAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"REFERRAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"REFERRAL_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"REFERRAL_DB_SQLITE_PATH" default:"file:referral.db?_foreign_keys=on"`

	MaxOpenConns    int           `envconfig:"REFERRAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REFERRAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REFERRAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REFERRAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets the embedded SQLite store.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"REFERRAL_REDIS_URL"`
	Address      string        `envconfig:"REFERRAL_REDIS_ADDR"`
	Password     string        `envconfig:"REFERRAL_REDIS_PASSWORD"`
	DB           int           `envconfig:"REFERRAL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REFERRAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REFERRAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REFERRAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REFERRAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REFERRAL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"REFERRAL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"REFERRAL_AUTO_MIGRATE" default:"false"`
}

// EngineConfig tunes the placement, distribution and tree components.
type EngineConfig struct {
	PlacementMaxAttempts int           `envconfig:"REFERRAL_PLACEMENT_MAX_ATTEMPTS" default:"5"`
	PlacementMaxDepth    int           `envconfig:"REFERRAL_PLACEMENT_MAX_DEPTH" default:"64"`
	PlacementMaxVisited  int           `envconfig:"REFERRAL_PLACEMENT_MAX_VISITED" default:"100000"`
	PlacementBackoff     time.Duration `envconfig:"REFERRAL_PLACEMENT_BACKOFF" default:"15ms"`

	DistributionMaxLevels int   `envconfig:"REFERRAL_DISTRIBUTION_MAX_LEVELS" default:"32"`
	AmountScale           int32 `envconfig:"REFERRAL_DISTRIBUTION_AMOUNT_SCALE" default:"4"`

	TreeDefaultDepth int           `envconfig:"REFERRAL_TREE_DEFAULT_DEPTH" default:"3"`
	TreeCacheTTL     time.Duration `envconfig:"REFERRAL_TREE_CACHE_TTL" default:"0s"`
}

func (e EngineConfig) validate() error {
	if e.PlacementMaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvPlacementMaxAttempts)
	}
	if e.DistributionMaxLevels <= 0 {
		return fmt.Errorf("%s must be positive", EnvDistributionMaxLevels)
	}
	if e.AmountScale < 1 || e.AmountScale > 8 {
		return fmt.Errorf("%s must be between 1 and 8", EnvAmountScale)
	}
	return nil
}

type AdminConfig struct {
	APIKey string `envconfig:"REFERRAL_ADMIN_API_KEY"`
}

type RateLimitConfig struct {
	Window        time.Duration `envconfig:"REFERRAL_RATE_LIMIT_WINDOW" default:"1m"`
	RegisterLimit int           `envconfig:"REFERRAL_RATE_LIMIT_REGISTER" default:"20"`
	PurchaseLimit int           `envconfig:"REFERRAL_RATE_LIMIT_PURCHASE" default:"60"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.IsSQLite() {
		if db.SQLitePath == "" {
			return fmt.Errorf("%s is required when using sqlite", EnvDBSQLitePath)
		}
		return nil
	}
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
