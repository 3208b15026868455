package config

// EnvPrefix is handed to envconfig; every field carries an explicit name so it is informational only.
const EnvPrefix = "REFERRAL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "REFERRAL_APP_ENV"
	EnvPort     = "REFERRAL_APP_PORT"
	EnvLogLevel = "REFERRAL_LOG_LEVEL"

	EnvDBDSN        = "REFERRAL_DB_DSN"
	EnvDBDriver     = "REFERRAL_DB_DRIVER"
	EnvDBHost       = "REFERRAL_DB_HOST"
	EnvDBUser       = "REFERRAL_DB_USER"
	EnvDBName       = "REFERRAL_DB_NAME"
	EnvDBSQLitePath = "REFERRAL_DB_SQLITE_PATH"

	EnvRedisURL  = "REFERRAL_REDIS_URL"
	EnvUseSQLite = "REFERRAL_USE_SQLITE"

	EnvPlacementMaxAttempts  = "REFERRAL_PLACEMENT_MAX_ATTEMPTS"
	EnvDistributionMaxLevels = "REFERRAL_DISTRIBUTION_MAX_LEVELS"
	EnvAmountScale           = "REFERRAL_DISTRIBUTION_AMOUNT_SCALE"
	EnvTreeCacheTTL          = "REFERRAL_TREE_CACHE_TTL"

	EnvAdminAPIKey        = "REFERRAL_ADMIN_API_KEY"
	EnvCORSAllowedOrigins = "REFERRAL_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
