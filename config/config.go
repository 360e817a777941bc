package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Trading.Mode == "live" && (cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "") {
		return errors.New("invalid config: live mode requires exchange api key and secret")
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.User == "" {
		return errors.New("invalid config: postgres requires a database user")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Exchange.APIKey, "BINANCE_API_KEY")
	setString(&cfg.Exchange.SecretKey, "BINANCE_SECRET_KEY")
	setString(&cfg.Exchange.QuoteAsset, "QUOTE_ASSET")
	setString(&cfg.Exchange.BaseURL, "BINANCE_BASE_URL")
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.Host, "DB_HOST")
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = EnvtoInt(v)
	}
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.DBName, "DB_NAME")
	setString(&cfg.Database.SQLitePath, "DB_SQLITE_PATH")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	setString(&cfg.Trading.Mode, "BOT_MODE")
	if v := os.Getenv("TRADING_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = splitList(v)
	}
	if v := os.Getenv("TOTAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.TotalCapital = f
		}
	}
}

// helper env(string) to int
func EnvtoInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
