// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first when present, then the
// process environment is parsed into Config. Real environment variables win
// over .env entries.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sakif/career-connect/internal/repository/mongodb"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Config holds every setting the server reads.
type Config struct {
	Port     int    `env:"PORT" envDefault:"5000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`

	// MongoDB. MONGODB_URI wins; otherwise an Atlas URI is built from the parts.
	MongoURI     string `env:"MONGODB_URI"`
	DBUser       string `env:"DB_USER"`
	DBPassword   string `env:"DB_PASSWORD"`
	DBHost       string `env:"DB_HOST" envDefault:"cluster0.tjauch4.mongodb.net"`
	DBName       string `env:"DB_NAME" envDefault:"career_connect"`
	DBCollection string `env:"DB_COLLECTION" envDefault:"users"`

	// SQLite
	DBPath string `env:"DB_PATH" envDefault:"data/career_connect.db"`

	StoreTimeout        time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	StoreConnectTimeout time.Duration `env:"STORE_CONNECT_TIMEOUT" envDefault:"30s"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	ExposeInternalErrors bool     `env:"EXPOSE_INTERNAL_ERRORS" envDefault:"false"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"career-connect"`
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// FromMap parses cfg from an explicit variable set instead of the process
// environment.
func FromMap(vars map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: vars})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks combinations env tags cannot express.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" && (c.DBUser == "" || c.DBPassword == "") {
			errs = append(errs, errors.New("mongo store needs MONGODB_URI or DB_USER and DB_PASSWORD"))
		}
		if c.DBName == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q (want %q or %q)", c.StoreDriver, DriverMongo, DriverSQLite))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.StoreConnectTimeout <= 0 {
		errs = append(errs, errors.New("STORE_CONNECT_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// MongoConnectionURI returns MONGODB_URI or the Atlas URI built from
// DB_USER, DB_PASSWORD and DB_HOST.
func (c Config) MongoConnectionURI() string {
	if c.MongoURI != "" {
		return c.MongoURI
	}
	return mongodb.AtlasURI(c.DBUser, c.DBPassword, c.DBHost)
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
