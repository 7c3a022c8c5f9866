package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minJWTSecretLength = 32

type Config struct {
	AppEnv                   string
	ServerPort               string
	ServerReadHeaderTimeout  time.Duration
	ServerWriteTimeout       time.Duration
	ServerIdleTimeout        time.Duration
	RequestTimeout           time.Duration
	DatabaseURL              string
	DBMaxConns               int32
	DBMinConns               int32
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	JWTSecret                string
	JWTIssuer                string
	JWTAccessTTL             time.Duration
	JWTRefreshTTL            time.Duration
	JWTRefreshRememberTTL    time.Duration
	BcryptCost               int
	CORSOrigins              []string
	RateLimitWindow          time.Duration
	RateLimitMax             int
	AuthRateLimitMax         int
	TrustProxy               bool
	LockoutMaxAttempts       int
	LockoutWindow            time.Duration
	SessionInactivityTimeout time.Duration
	MaintenanceInterval      time.Duration
	AuthLogRetention         time.Duration
	FailedAttemptRetention   time.Duration
	PasswordResetTTL         time.Duration
	BootstrapAdminEmail      string
	BootstrapAdminPassword   string
	LogLevel                 string
	LogFormat                string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:                   strings.ToLower(getEnv("APP_ENV", "production")),
		ServerPort:               getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout:  getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:       getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:        getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:           getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseURL:              databaseURL(),
		DBMaxConns:               int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:               int32(getInt("DB_MIN_CONNS", 2)),
		RedisAddr:                getEnv("REDIS_ADDR", ""),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getInt("REDIS_DB", 0),
		JWTSecret:                strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:                getEnv("JWT_ISSUER", "geotech-lab-api"),
		JWTAccessTTL:             getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:            getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		JWTRefreshRememberTTL:    getDuration("JWT_REFRESH_REMEMBER_TTL", 30*24*time.Hour),
		BcryptCost:               getInt("BCRYPT_COST", 12),
		CORSOrigins:              splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitWindow:          getDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMax:             getInt("RATE_LIMIT_MAX", 100),
		AuthRateLimitMax:         getInt("AUTH_RATE_LIMIT_MAX", 10),
		TrustProxy:               getBool("TRUST_PROXY", false),
		LockoutMaxAttempts:       getInt("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutWindow:            getDuration("LOCKOUT_WINDOW", 15*time.Minute),
		SessionInactivityTimeout: getDuration("SESSION_INACTIVITY_TIMEOUT", 2*time.Hour),
		MaintenanceInterval:      getDuration("MAINTENANCE_INTERVAL", 10*time.Minute),
		AuthLogRetention:         getDuration("AUTH_LOG_RETENTION", 90*24*time.Hour),
		FailedAttemptRetention:   getDuration("FAILED_ATTEMPT_RETENTION", 30*24*time.Hour),
		PasswordResetTTL:         getDuration("PASSWORD_RESET_TTL", time.Hour),
		BootstrapAdminEmail:      strings.ToLower(getEnv("BOOTSTRAP_ADMIN_EMAIL", "")),
		BootstrapAdminPassword:   os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate refuses configurations that would let the service issue weak
// tokens or run without a database.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL or DB_HOST/DB_NAME is required")
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.JWTRefreshTTL <= c.JWTAccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL must be longer than JWT_ACCESS_TTL")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}

	if c.LockoutMaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}

	if c.LockoutWindow <= 0 {
		return fmt.Errorf("LOCKOUT_WINDOW must be positive")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.BootstrapAdminEmail != "" && len(c.BootstrapAdminPassword) < 8 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the
// discrete DB_* variables.
func databaseURL() string {
	if raw := strings.TrimSpace(os.Getenv("DATABASE_URL")); raw != "" {
		return raw
	}

	host := getEnv("DB_HOST", "")
	name := getEnv("DB_NAME", "")
	if host == "" || name == "" {
		return ""
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, getEnv("DB_PORT", "5432")),
		Path:   "/" + name,
	}
	if user := getEnv("DB_USER", ""); user != "" {
		u.User = url.UserPassword(user, os.Getenv("DB_PASSWORD"))
	}
	u.RawQuery = url.Values{"sslmode": []string{getEnv("DB_SSLMODE", "disable")}}.Encode()

	return u.String()
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
