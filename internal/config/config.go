// Package config содержит логику чтения конфигурации сервиса расчёта заработной платы.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// DotEnvFile указывает файл с переменными окружения, который читается при старте, если существует.
// Уже заданные переменные окружения он не перезаписывает.
var DotEnvFile = ".env"

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	ReceiptServiceURL string `env:"RECEIPT_SERVICE_URL"`

	EPFRate decimal.Decimal `env:"EPF_RATE" envDefault:"0.08"`
	ETFRate decimal.Decimal `env:"ETF_RATE" envDefault:"0.12"`

	SMTP SMTPConfig `envPrefix:"SMTP_"`

	// CORSAllowedOrigins перечисляет источники браузерного клиента. Если список пуст,
	// кросс-доменные запросы запрещены; "*" разрешает любой источник.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SMTPConfig содержит параметры почтового сервера для отправки квитанций.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DotEnvFile, err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envReceiptServiceURL := cfg.ReceiptServiceURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ReceiptServiceURL, "r", "", "receipt delivery service address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envReceiptServiceURL != "" {
		cfg.ReceiptServiceURL = envReceiptServiceURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	one := decimal.NewFromInt(1)
	if c.EPFRate.IsNegative() || c.EPFRate.GreaterThan(one) {
		return fmt.Errorf("EPF_RATE must be between 0 and 1, got %s", c.EPFRate)
	}
	if c.ETFRate.IsNegative() || c.ETFRate.GreaterThan(one) {
		return fmt.Errorf("ETF_RATE must be between 0 and 1, got %s", c.ETFRate)
	}
	return nil
}
