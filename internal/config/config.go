package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Identity    IdentityConfig
	Integration IntegrationConfig
	Session     SessionConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token signing and password parameters.
type AuthConfig struct {
	PrivateKeyPEM         string
	PrivateKeyPath        string
	KeyID                 string
	Issuer                string
	Audience              string
	AccessTokenTTLMinutes int
	RefreshTokenTTLHours  int
	BcryptCost            int
	MinPasswordLength     int
	// ServiceToken gates the service-to-service endpoints.
	ServiceToken string
}

// IdentityConfig describes how customer identity assertions are verified.
type IdentityConfig struct {
	Issuer        string
	Audience      string
	PublicKeyPEM  string
	PublicKeyPath string
	KeyID         string
}

// IntegrationConfig points at the external roles and profile services.
type IntegrationConfig struct {
	RolesEnabled      bool
	RolesServiceURL   string
	RolesFailOpen     bool
	ProfileServiceURL string
	ServiceToken      string
	TimeoutSeconds    int
}

// SessionConfig tunes background session maintenance.
type SessionConfig struct {
	SweepIntervalMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "auth-core"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "auth"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			PrivateKeyPEM:         os.Getenv("AUTH_JWT_PRIVATE_KEY"),
			PrivateKeyPath:        os.Getenv("AUTH_JWT_PRIVATE_KEY_PATH"),
			KeyID:                 getEnv("AUTH_JWT_KEY_ID", "auth-core-1"),
			Issuer:                getEnv("AUTH_JWT_ISSUER", "auth-core"),
			Audience:              getEnv("AUTH_JWT_AUDIENCE", "platform"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLHours:  getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 720),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			MinPasswordLength:     getEnvAsInt("AUTH_MIN_PASSWORD_LENGTH", 8),
			ServiceToken:          os.Getenv("AUTH_SERVICE_TOKEN"),
		},
		Identity: IdentityConfig{
			Issuer:        os.Getenv("IDENTITY_ISSUER"),
			Audience:      os.Getenv("IDENTITY_AUDIENCE"),
			PublicKeyPEM:  os.Getenv("IDENTITY_PUBLIC_KEY"),
			PublicKeyPath: os.Getenv("IDENTITY_PUBLIC_KEY_PATH"),
			KeyID:         os.Getenv("IDENTITY_KEY_ID"),
		},
		Integration: IntegrationConfig{
			RolesEnabled:      getEnvAsBool("ROLES_SERVICE_ENABLED", false),
			RolesServiceURL:   os.Getenv("ROLES_SERVICE_URL"),
			RolesFailOpen:     getEnvAsBool("ROLES_FAIL_OPEN", true),
			ProfileServiceURL: os.Getenv("PROFILE_SERVICE_URL"),
			ServiceToken:      os.Getenv("INTEGRATION_SERVICE_TOKEN"),
			TimeoutSeconds:    getEnvAsInt("INTEGRATION_TIMEOUT_SECONDS", 5),
		},
		Session: SessionConfig{
			SweepIntervalMinutes: getEnvAsInt("SESSION_SWEEP_INTERVAL_MINUTES", 60),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// IsDevelopment reports whether the service runs with development defaults.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "test"
}

// AccessTokenTTL returns the access token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime, which also bounds the active-session pointer.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	if a.RefreshTokenTTLHours <= 0 {
		return 720 * time.Hour
	}
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// Timeout returns the outbound call timeout for integrations.
func (i IntegrationConfig) Timeout() time.Duration {
	if i.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// SweepInterval returns how often expired sessions are purged; zero disables the sweeper.
func (s SessionConfig) SweepInterval() time.Duration {
	if s.SweepIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
