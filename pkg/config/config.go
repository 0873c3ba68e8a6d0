package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Supabase      SupabaseConfig
	Shopify       ShopifyConfig
	Storefront    StorefrontConfig
	HTTPClient    HTTPClientConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	EmailCapture  EmailCaptureConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Shopify.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"MIRAVO_APP_ENV" required:"true"`
	Port           string   `envconfig:"MIRAVO_APP_PORT" default:"8080"`
	LogLevel       string   `envconfig:"MIRAVO_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"MIRAVO_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"MIRAVO_ALLOWED_ORIGINS" default:"http://localhost:8080,http://localhost:5173"`
	// SiteURL is where OAuth and password recovery flows land after the provider redirect.
	SiteURL string `envconfig:"MIRAVO_SITE_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MIRAVO_DB_DSN"`
	Driver string `envconfig:"MIRAVO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MIRAVO_DB_HOST"`
	Port     int    `envconfig:"MIRAVO_DB_PORT" default:"5432"`
	User     string `envconfig:"MIRAVO_DB_USER"`
	Password string `envconfig:"MIRAVO_DB_PASSWORD"`
	Name     string `envconfig:"MIRAVO_DB_NAME"`
	SSLMode  string `envconfig:"MIRAVO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MIRAVO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MIRAVO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MIRAVO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MIRAVO_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MIRAVO_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MIRAVO_REDIS_URL"`
	Address      string        `envconfig:"MIRAVO_REDIS_ADDR"`
	Password     string        `envconfig:"MIRAVO_REDIS_PASSWORD"`
	DB           int           `envconfig:"MIRAVO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MIRAVO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIRAVO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MIRAVO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MIRAVO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MIRAVO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured. Without one the
// storefront falls back to in-process storage.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type SupabaseConfig struct {
	URL       string `envconfig:"MIRAVO_SUPABASE_URL" required:"true"`
	AnonKey   string `envconfig:"MIRAVO_SUPABASE_ANON_KEY" required:"true"`
	JWTSecret string `envconfig:"MIRAVO_SUPABASE_JWT_SECRET"`
	// AvatarBucket must be public: profiles store the object's public URL.
	AvatarBucket string `envconfig:"MIRAVO_SUPABASE_AVATAR_BUCKET" default:"avatars"`
}

type ShopifyConfig struct {
	StoreDomain     string `envconfig:"MIRAVO_SHOPIFY_STORE_DOMAIN" required:"true"`
	StorefrontToken string `envconfig:"MIRAVO_SHOPIFY_STOREFRONT_TOKEN" required:"true"`
	// AdminToken is optional; customer sync is skipped when it is empty.
	AdminToken string `envconfig:"MIRAVO_SHOPIFY_ADMIN_TOKEN"`
	APIVersion string `envconfig:"MIRAVO_SHOPIFY_API_VERSION" default:"2025-01"`
}

// StorefrontEndpoint returns the Storefront GraphQL endpoint for the shop.
func (s ShopifyConfig) StorefrontEndpoint() string {
	return fmt.Sprintf("https://%s/api/%s/graphql.json", s.host(), s.APIVersion)
}

// AdminEndpoint returns the Admin GraphQL endpoint for the shop.
func (s ShopifyConfig) AdminEndpoint() string {
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", s.host(), s.APIVersion)
}

func (s ShopifyConfig) host() string {
	host := strings.TrimSpace(s.StoreDomain)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

func (s ShopifyConfig) validate() error {
	if s.host() == "" {
		return fmt.Errorf("%s is required", EnvShopifyStoreDomain)
	}
	if strings.TrimSpace(s.APIVersion) == "" {
		return fmt.Errorf("%s must not be blank", EnvShopifyAPIVersion)
	}
	return nil
}

// StorefrontConfig sizes the per-tab client runtimes the API hosts.
type StorefrontConfig struct {
	ClientCacheSize   int           `envconfig:"MIRAVO_STOREFRONT_CLIENT_CACHE_SIZE" default:"4096"`
	TabSessionTTL     time.Duration `envconfig:"MIRAVO_STOREFRONT_TAB_SESSION_TTL" default:"12h"`
	LocalStateTTL     time.Duration `envconfig:"MIRAVO_STOREFRONT_LOCAL_STATE_TTL" default:"720h"`
	DispatchQueueSize int           `envconfig:"MIRAVO_STOREFRONT_DISPATCH_QUEUE_SIZE" default:"64"`
}

type HTTPClientConfig struct {
	Timeout             time.Duration `envconfig:"MIRAVO_HTTP_CLIENT_TIMEOUT" default:"15s"`
	MaxRetries          int           `envconfig:"MIRAVO_HTTP_CLIENT_MAX_RETRIES" default:"2"`
	RetryWaitMin        time.Duration `envconfig:"MIRAVO_HTTP_CLIENT_RETRY_WAIT_MIN" default:"200ms"`
	RetryWaitMax        time.Duration `envconfig:"MIRAVO_HTTP_CLIENT_RETRY_WAIT_MAX" default:"2s"`
	BreakerTimeout      time.Duration `envconfig:"MIRAVO_HTTP_CLIENT_BREAKER_TIMEOUT" default:"30s"`
	BreakerFailureRatio float64       `envconfig:"MIRAVO_HTTP_CLIENT_BREAKER_FAILURE_RATIO" default:"0.5"`
	BreakerMinRequests  uint32        `envconfig:"MIRAVO_HTTP_CLIENT_BREAKER_MIN_REQUESTS" default:"5"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MIRAVO_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"MIRAVO_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"MIRAVO_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	LoginDeviceLimit   int           `envconfig:"MIRAVO_AUTH_RATE_LIMIT_LOGIN_DEVICE_LIMIT" default:"10"`
	RegisterWindow     time.Duration `envconfig:"MIRAVO_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"MIRAVO_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"MIRAVO_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	CaptureWindow      time.Duration `envconfig:"MIRAVO_AUTH_RATE_LIMIT_CAPTURE_WINDOW" default:"10m"`
	CaptureEmailLimit  int           `envconfig:"MIRAVO_AUTH_RATE_LIMIT_CAPTURE_EMAIL_LIMIT" default:"3"`
	CaptureIPLimit     int           `envconfig:"MIRAVO_AUTH_RATE_LIMIT_CAPTURE_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MIRAVO_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MIRAVO_AUTO_MIGRATE" default:"false"`
}

type EmailCaptureConfig struct {
	DiscountPrefix string `envconfig:"MIRAVO_EMAIL_CAPTURE_DISCOUNT_PREFIX" default:"MIRAVO15"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = "file:miravo.db?cache=shared"
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
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
