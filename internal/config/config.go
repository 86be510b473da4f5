package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultFieldMapping maps directory fields to identity provider fields.
const DefaultFieldMapping = "id=sub,email=email,username=preferred_username,fullName=name,phoneNumber=phone_number"

// Config holds application configuration
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Keycloak    KeycloakConfig
	UserService UserServiceConfig
	Sync        SyncConfig
	Token       TokenConfig
	RateLimit   RateLimitConfig
	// APIAuth protects /api/v1 with Keycloak-issued bearer tokens.
	APIAuth bool
	// APIServiceRole is the realm or client role that lets a caller read other
	// users' access tokens.
	APIServiceRole string
	// AllowInsecureToken accepts API bearer tokens without signature checks. Integration tests only.
	AllowInsecureToken bool
	FieldMapping       FieldMapping
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type KeycloakConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
}

// Issuer returns the realm issuer URL.
func (k KeycloakConfig) Issuer() string {
	return strings.TrimRight(k.BaseURL, "/") + "/realms/" + k.Realm
}

// TokenURL returns the realm token endpoint.
func (k KeycloakConfig) TokenURL() string {
	return k.Issuer() + "/protocol/openid-connect/token"
}

// IntrospectURL returns the realm token introspection endpoint.
func (k KeycloakConfig) IntrospectURL() string {
	return k.TokenURL() + "/introspect"
}

// Configured reports whether enough is set to talk to the realm.
func (k KeycloakConfig) Configured() bool {
	return k.BaseURL != "" && k.Realm != "" && k.ClientID != ""
}

type UserServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

const (
	SyncModeQueue  = "queue"
	SyncModeInline = "inline"
)

type SyncConfig struct {
	Enabled             bool
	Mode                string
	Queue               string
	RetryAttempts       int
	RetryDelay          time.Duration
	Workers             int
	RegistrationEnabled bool
	// InProcessWorker runs queue consumers inside the API process.
	InProcessWorker bool
}

// Queued reports whether syncs are deferred to the work queue.
func (s SyncConfig) Queued() bool { return s.Mode == SyncModeQueue }

type TokenConfig struct {
	Store       string
	CachePrefix string
	CacheTTL    time.Duration
	Buffer      time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("MONGODB_DATABASE", "usersync")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("USER_SERVICE_TIMEOUT", 30)
	viper.SetDefault("USER_SERVICE_SYNC_ENABLED", true)
	viper.SetDefault("USER_SERVICE_SYNC_MODE", SyncModeQueue)
	viper.SetDefault("USER_SERVICE_SYNC_QUEUE", "default")
	viper.SetDefault("USER_SERVICE_SYNC_RETRY", 3)
	viper.SetDefault("USER_SERVICE_SYNC_RETRY_DELAY", 60)
	viper.SetDefault("USER_SERVICE_SYNC_WORKERS", 2)
	viper.SetDefault("USER_SERVICE_REGISTRATION_ENABLED", true)
	viper.SetDefault("USER_SERVICE_SYNC_INPROCESS_WORKER", true)
	viper.SetDefault("USER_SERVICE_TOKEN_CACHE_PREFIX", "user_service_tokens")
	viper.SetDefault("USER_SERVICE_TOKEN_CACHE_TTL", 60*60*24*30)
	viper.SetDefault("USER_SERVICE_TOKEN_BUFFER_SECONDS", 30)
	viper.SetDefault("USER_SERVICE_FIELD_MAPPING", DefaultFieldMapping)
	viper.SetDefault("API_SERVICE_ROLE", "usersync-service")
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 20.0)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			BaseURL:      viper.GetString("KEYCLOAK_BASE_URL"),
			Realm:        viper.GetString("KEYCLOAK_REALM"),
			ClientID:     viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: os.Getenv("KEYCLOAK_CLIENT_SECRET"),
		},
		UserService: UserServiceConfig{
			BaseURL: strings.TrimRight(viper.GetString("USER_SERVICE_URL"), "/"),
			Timeout: time.Duration(viper.GetInt("USER_SERVICE_TIMEOUT")) * time.Second,
		},
		Sync: SyncConfig{
			Enabled:             viper.GetBool("USER_SERVICE_SYNC_ENABLED"),
			Mode:                strings.ToLower(strings.TrimSpace(viper.GetString("USER_SERVICE_SYNC_MODE"))),
			Queue:               viper.GetString("USER_SERVICE_SYNC_QUEUE"),
			RetryAttempts:       viper.GetInt("USER_SERVICE_SYNC_RETRY"),
			RetryDelay:          time.Duration(viper.GetInt("USER_SERVICE_SYNC_RETRY_DELAY")) * time.Second,
			Workers:             viper.GetInt("USER_SERVICE_SYNC_WORKERS"),
			RegistrationEnabled: viper.GetBool("USER_SERVICE_REGISTRATION_ENABLED"),
			InProcessWorker:     viper.GetBool("USER_SERVICE_SYNC_INPROCESS_WORKER"),
		},
		Token: TokenConfig{
			Store:       strings.ToLower(strings.TrimSpace(viper.GetString("TOKEN_STORE"))),
			CachePrefix: viper.GetString("USER_SERVICE_TOKEN_CACHE_PREFIX"),
			CacheTTL:    time.Duration(viper.GetInt("USER_SERVICE_TOKEN_CACHE_TTL")) * time.Second,
			Buffer:      time.Duration(viper.GetInt("USER_SERVICE_TOKEN_BUFFER_SECONDS")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	if cfg.Token.Store == "" {
		cfg.Token.Store = "memory"
		if cfg.Redis.Host != "" {
			cfg.Token.Store = "redis"
		}
	}
	cfg.APIAuth = cfg.Keycloak.Configured()
	if viper.IsSet("API_AUTH_ENABLED") {
		cfg.APIAuth = viper.GetBool("API_AUTH_ENABLED")
	}
	cfg.APIServiceRole = strings.TrimSpace(viper.GetString("API_SERVICE_ROLE"))
	cfg.AllowInsecureToken = viper.GetBool("ALLOW_INSECURE_TOKEN")

	mapping, err := ParseFieldMapping(viper.GetString("USER_SERVICE_FIELD_MAPPING"))
	if err != nil {
		return nil, err
	}
	cfg.FieldMapping = mapping

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Sync.Mode {
	case SyncModeQueue, SyncModeInline:
	default:
		return fmt.Errorf("USER_SERVICE_SYNC_MODE must be %q or %q, got %q", SyncModeQueue, SyncModeInline, c.Sync.Mode)
	}
	switch c.Token.Store {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("TOKEN_STORE must be memory, redis or mongo, got %q", c.Token.Store)
	}
	if c.Token.Store == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("TOKEN_STORE=redis requires REDIS_HOST")
	}
	if c.Token.Store == "mongo" && c.MongoDB.URI == "" {
		return fmt.Errorf("TOKEN_STORE=mongo requires MONGODB_URI")
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("USER_SERVICE_SYNC_RETRY must be at least 1")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("USER_SERVICE_SYNC_WORKERS must be at least 1")
	}
	if c.Token.Buffer < 0 {
		return fmt.Errorf("USER_SERVICE_TOKEN_BUFFER_SECONDS must not be negative")
	}
	if c.Token.CacheTTL <= 0 {
		return fmt.Errorf("USER_SERVICE_TOKEN_CACHE_TTL must be positive")
	}
	return nil
}
