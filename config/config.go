package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	API      APIConfig
	Session  SessionConfig
	Database DatabaseConfig
	Table    TableConfig
	Catalog  CatalogConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port string
	Mode string
	// AllowedOrigins lists the origins allowed to open the notification websocket.
	AllowedOrigins []string
}

// APIConfig points at the marketplace backend the dashboard manages.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	Secret      string
	SealKey     string
	Expiration  string
	IdleTimeout time.Duration
}

func (c *SessionConfig) ExpirationDuration() time.Duration {
	d, err := time.ParseDuration(c.Expiration)
	if err != nil {
		return 12 * time.Hour
	}
	return d
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type TableConfig struct {
	PageSize int
	Locale   string
}

// CatalogConfig locates the resource catalog. An empty path selects the embedded default.
type CatalogConfig struct {
	Path string
}

type LogConfig struct {
	Development bool
}

// change here only as it populates both defaults and env aware configs
var defaults = map[string]string{
	"SERVER_PORT":            "8080",
	"GIN_MODE":               "release",
	"SERVER_ALLOWED_ORIGINS": "",

	"API_BASE_URL": "http://localhost:9090",
	"API_TIMEOUT":  "30s",

	"SESSION_SECRET":       "",
	"SESSION_SEAL_KEY":     "",
	"SESSION_EXPIRATION":   "12h",
	"SESSION_IDLE_TIMEOUT": "1h",

	"DATABASE_ENABLED":     "false",
	"DB_HOST":              "localhost",
	"DB_PORT":              "5432",
	"DB_USER":              "postgres",
	"DB_PASSWORD":          "",
	"DB_NAME":              "dashboard",
	"DB_SSL_MODE":          "disable",
	"DB_MAX_OPEN_CONNS":    "25",
	"DB_MAX_IDLE_CONNS":    "5",
	"DB_CONN_MAX_LIFETIME": "5m",

	"TABLE_PAGE_SIZE": "10",
	"TABLE_LOCALE":    "en",
	"CATALOG_PATH":    "",
	"LOG_DEVELOPMENT": "false",
}

// Default returns a configuration built from the defaults only, bypassing the environment.
func Default() *Config {
	cfg, _ := build(func(key string) string { return defaults[key] })
	return cfg
}

// Load reads configuration from environment variables, an optional ".env" file in the
// working directory and finally the defaults.
func Load() (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		if !os.IsNotExist(errors.Unwrap(err)) {
			return nil, err
		}
	}

	return build(func(key string) string { return getEnv(key, defaults[key]) })
}

func build(get func(string) string) (*Config, error) {
	apiTimeout, err := time.ParseDuration(get("API_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("config error: API_TIMEOUT: %w", err)
	}

	dbEnabled, err := strconv.ParseBool(get("DATABASE_ENABLED"))
	if err != nil {
		return nil, fmt.Errorf(`config error: DATABASE_ENABLED should be "true" or "false"`)
	}

	maxOpen, err := strconv.Atoi(get("DB_MAX_OPEN_CONNS"))
	if err != nil {
		return nil, fmt.Errorf("config error: DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdle, err := strconv.Atoi(get("DB_MAX_IDLE_CONNS"))
	if err != nil {
		return nil, fmt.Errorf("config error: DB_MAX_IDLE_CONNS: %w", err)
	}

	lifetime, err := time.ParseDuration(get("DB_CONN_MAX_LIFETIME"))
	if err != nil {
		return nil, fmt.Errorf("config error: DB_CONN_MAX_LIFETIME: %w", err)
	}

	idle, err := time.ParseDuration(get("SESSION_IDLE_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("config error: SESSION_IDLE_TIMEOUT: %w", err)
	}

	pageSize, err := strconv.Atoi(get("TABLE_PAGE_SIZE"))
	if err != nil || pageSize <= 0 {
		return nil, fmt.Errorf("config error: TABLE_PAGE_SIZE must be a positive integer")
	}

	development, err := strconv.ParseBool(get("LOG_DEVELOPMENT"))
	if err != nil {
		return nil, fmt.Errorf(`config error: LOG_DEVELOPMENT should be "true" or "false"`)
	}

	return &Config{
		Server: ServerConfig{
			Port:           get("SERVER_PORT"),
			Mode:           get("GIN_MODE"),
			AllowedOrigins: splitList(get("SERVER_ALLOWED_ORIGINS")),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(get("API_BASE_URL"), "/"),
			Timeout: apiTimeout,
		},
		Session: SessionConfig{
			Secret:      get("SESSION_SECRET"),
			SealKey:     get("SESSION_SEAL_KEY"),
			Expiration:  get("SESSION_EXPIRATION"),
			IdleTimeout: idle,
		},
		Database: DatabaseConfig{
			Enabled:         dbEnabled,
			Host:            get("DB_HOST"),
			Port:            get("DB_PORT"),
			User:            get("DB_USER"),
			Password:        get("DB_PASSWORD"),
			Name:            get("DB_NAME"),
			SSLMode:         get("DB_SSL_MODE"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: lifetime,
		},
		Table: TableConfig{
			PageSize: pageSize,
			Locale:   get("TABLE_LOCALE"),
		},
		Catalog: CatalogConfig{
			Path: get("CATALOG_PATH"),
		},
		Log: LogConfig{
			Development: development,
		},
	}, nil
}

// getEnv returns the value of an environment var or the default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadEnvFile reads KEY=VALUE pairs from filename and exports the ones not already set.
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("could not open env file %s: %w", filename, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid line %d in %s: %s", lineNum, filename, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s: %w", filename, err)
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
