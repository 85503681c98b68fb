// Package config содержит логику чтения конфигурации витрины и сервиса заказов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/pickup-storefront/internal/availability"
)

// Config содержит параметры конфигурации.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	OrderEndpoint       string `env:"ORDER_ENDPOINT"`
	DatabaseURI         string `env:"DATABASE_URI"`
	OrderOpaqueResponse bool   `env:"ORDER_OPAQUE_RESPONSE"`

	SessionSecret         string        `env:"SESSION_SECRET"`
	SessionTTL            time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	MaxSessions           int           `env:"MAX_SESSIONS" envDefault:"10000"`
	CountsRefreshInterval time.Duration `env:"COUNTS_REFRESH_INTERVAL" envDefault:"1m"`

	MinLeadDays     int            `env:"MIN_LEAD_DAYS" envDefault:"1"`
	MaxLeadDays     int            `env:"MAX_LEAD_DAYS" envDefault:"60"`
	BlockedWeekdays []string       `env:"BLOCKED_WEEKDAYS" envDefault:"sunday" envSeparator:","`
	Holidays        []string       `env:"HOLIDAYS" envSeparator:","`
	BlackoutLimits  map[string]int `env:"BLACKOUT_LIMITS" envSeparator:"," envKeyValSeparator:"="`
	DailyLimit      int            `env:"DAILY_LIMIT" envDefault:"8"`
	Timezone        string         `env:"TIMEZONE" envDefault:"Local"`
}

// Rules возвращает правила доступности дат в строковом виде.
func (c *Config) Rules() availability.RulesConfig {
	return availability.RulesConfig{
		MinLeadDays:     c.MinLeadDays,
		MaxLeadDays:     c.MaxLeadDays,
		BlockedWeekdays: c.BlockedWeekdays,
		Holidays:        c.Holidays,
		Overrides:       c.BlackoutLimits,
		DailyLimit:      c.DailyLimit,
		Timezone:        c.Timezone,
	}
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envOrderEndpoint := cfg.OrderEndpoint
	envDatabaseURI := cfg.DatabaseURI

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.OrderEndpoint, "e", "", "order and counts endpoint")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envOrderEndpoint != "" {
		cfg.OrderEndpoint = envOrderEndpoint
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
