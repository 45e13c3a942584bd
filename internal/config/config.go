package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const minSecretBytes = 32

type Config struct {
	Env         string            `yaml:"env"`
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Admin       AdminConfig       `yaml:"admin"`
	Logging     LoggingConfig     `yaml:"logging"`
	Sentry      SentryConfig      `yaml:"sentry"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type HTTPConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	RunMigrations   bool          `yaml:"run_migrations"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
}

// AdminConfig seeds an admin identity at start-up when all fields are set.
type AdminConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

type MaintenanceConfig struct {
	CronSecret     string `yaml:"cron_secret"`
	PurgeBatchSize int    `yaml:"purge_batch_size"`
}

func Default() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			RunMigrations:   true,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  5 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
			BcryptCost:      12,
		},
		Logging:     LoggingConfig{Level: "info"},
		Maintenance: MaintenanceConfig{PurgeBatchSize: 500},
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, then environment variables. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(env{getenv: getenv})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv(e env) {
	c.Env = e.stringOr("APP_ENV", c.Env)

	c.HTTP.Port = e.stringOr("PORT", c.HTTP.Port)
	c.HTTP.ReadTimeout = e.durationOr("HTTP_READ_TIMEOUT_SECONDS", time.Second, c.HTTP.ReadTimeout)
	c.HTTP.WriteTimeout = e.durationOr("HTTP_WRITE_TIMEOUT_SECONDS", time.Second, c.HTTP.WriteTimeout)
	c.HTTP.IdleTimeout = e.durationOr("HTTP_IDLE_TIMEOUT_SECONDS", time.Second, c.HTTP.IdleTimeout)

	c.Database.URL = e.stringOr("DATABASE_URL", c.Database.URL)
	c.Database.RunMigrations = e.boolOr("RUN_MIGRATIONS", c.Database.RunMigrations)
	c.Database.MaxOpenConns = e.intOr("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = e.intOr("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = e.durationOr("DB_CONN_MAX_LIFETIME_MINUTES", time.Minute, c.Database.ConnMaxLifetime)
	c.Database.ConnMaxIdleTime = e.durationOr("DB_CONN_MAX_IDLE_TIME_MINUTES", time.Minute, c.Database.ConnMaxIdleTime)

	c.Auth.JWTSecret = e.stringOr("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AccessTokenTTL = e.durationOr("ACCESS_TOKEN_TTL_MINUTES", time.Minute, c.Auth.AccessTokenTTL)
	c.Auth.RefreshTokenTTL = e.durationOr("REFRESH_TOKEN_TTL_HOURS", time.Hour, c.Auth.RefreshTokenTTL)
	c.Auth.BcryptCost = e.intOr("BCRYPT_COST", c.Auth.BcryptCost)

	c.Admin.Username = e.stringOr("ADMIN_USERNAME", c.Admin.Username)
	c.Admin.Email = e.stringOr("ADMIN_EMAIL", c.Admin.Email)
	c.Admin.Password = e.stringOr("ADMIN_PASSWORD", c.Admin.Password)

	c.Logging.Level = e.stringOr("LOG_LEVEL", c.Logging.Level)
	c.Sentry.DSN = e.stringOr("SENTRY_DSN", c.Sentry.DSN)

	c.Maintenance.CronSecret = e.stringOr("CRON_SECRET", c.Maintenance.CronSecret)
	c.Maintenance.PurgeBatchSize = e.intOr("BLACKLIST_PURGE_BATCH_SIZE", c.Maintenance.PurgeBatchSize)
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.Auth.JWTSecret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretBytes))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	} else if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		errs = append(errs, errors.New("access token lifetime must be shorter than refresh token lifetime"))
	}

	admin := []string{c.Admin.Username, c.Admin.Email, c.Admin.Password}
	set := 0
	for _, v := range admin {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 0 && set != len(admin) {
		errs = append(errs, errors.New("ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

type env struct {
	getenv func(string) string
}

func (e env) stringOr(name, fallback string) string {
	value := strings.TrimSpace(e.getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func (e env) intOr(name string, fallback int) int {
	value := strings.TrimSpace(e.getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (e env) durationOr(name string, unit time.Duration, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(e.getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * unit
}

func (e env) boolOr(name string, fallback bool) bool {
	return parseBool(e.getenv(name), fallback)
}

// parseBool accepts 1/0, true/false, yes/no and on/off.
func parseBool(value string, fallback bool) bool {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
