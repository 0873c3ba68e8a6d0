package config

const EnvPrefix = "MIRAVO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv = "MIRAVO_APP_ENV"
	EnvPort   = "MIRAVO_APP_PORT"

	EnvDBDSN  = "MIRAVO_DB_DSN"
	EnvDBHost = "MIRAVO_DB_HOST"
	EnvDBUser = "MIRAVO_DB_USER"
	EnvDBName = "MIRAVO_DB_NAME"

	EnvRedisURL = "MIRAVO_REDIS_URL"

	EnvSupabaseURL       = "MIRAVO_SUPABASE_URL"
	EnvSupabaseAnonKey   = "MIRAVO_SUPABASE_ANON_KEY"
	EnvSupabaseJWTSecret = "MIRAVO_SUPABASE_JWT_SECRET"

	EnvShopifyStoreDomain     = "MIRAVO_SHOPIFY_STORE_DOMAIN"
	EnvShopifyStorefrontToken = "MIRAVO_SHOPIFY_STOREFRONT_TOKEN"
	EnvShopifyAdminToken      = "MIRAVO_SHOPIFY_ADMIN_TOKEN"
	EnvShopifyAPIVersion      = "MIRAVO_SHOPIFY_API_VERSION"

	EnvUseSQLite = "MIRAVO_USE_SQLITE"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
