// Package config parses server configuration from the environment and
// command-line flags. Flags override environment values.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr        string        `env:"BATTLESHIP_HTTP_ADDR"        envDefault:":9090"`
	StaticDir       string        `env:"BATTLESHIP_STATIC_DIR"       envDefault:"./public/frontend/dist"`
	ResultsDB       string        `env:"BATTLESHIP_RESULTS_DB"`
	JWTSecret       string        `env:"BATTLESHIP_JWT_SECRET"`
	LogLevel        string        `env:"BATTLESHIP_LOG_LEVEL"        envDefault:"info"`
	LogFormat       string        `env:"BATTLESHIP_LOG_FORMAT"       envDefault:"text"`
	SendBuffer      int           `env:"BATTLESHIP_SEND_BUFFER"      envDefault:"32"`
	OTelEndpoint    string        `env:"BATTLESHIP_OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"BATTLESHIP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ParseEnv loads environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Parse reads the environment, then applies flag overrides from args.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory of the built web client")
	fs.StringVar(&cfg.ResultsDB, "results-db", cfg.ResultsDB, "SQLite path for match results (empty disables history)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	fs.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "outbound frames queued per connection")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint (empty disables tracing)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send buffer must be positive, got %d", c.SendBuffer))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Level returns the configured slog level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
