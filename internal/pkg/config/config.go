package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	HTTP       HTTPConfig       `yaml:"http"`
	Calculator CalculatorConfig `yaml:"calculator"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"` // how long a scan snapshot is served from cache
}

type LoggingConfig struct {
	Level    string `yaml:"level"`     // DEBUG, INFO, WARN, ERROR
	JSONFile string `yaml:"json_file"` // optional: also write JSON records to this file
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

type CalculatorConfig struct {
	ParserURL        string        `yaml:"parser_url"`         // URL of parser service exposing /matches
	TotalStake       float64       `yaml:"total_stake"`        // stake split across legs of every scanned surebet
	RoundingUnit     float64       `yaml:"rounding_unit"`      // stakes are rounded to a multiple of this
	MinProfitPercent float64       `yaml:"min_profit_percent"` // surebets below this are ignored by the scanner
	KeepTop          int           `yaml:"keep_top"`
	LiveMaxAge       time.Duration `yaml:"live_max_age"` // matches older than this are not "live"

	// Async processing settings
	AsyncEnabled         bool          `yaml:"async_enabled"`
	AsyncInterval        time.Duration `yaml:"async_interval"`
	AlertThreshold       float64       `yaml:"alert_threshold"`        // profit percent that triggers a Telegram alert (0 disables)
	AlertCooldownMinutes int           `yaml:"alert_cooldown_minutes"` // minutes before re-alerting on the same market
	AlertMinIncrease     float64       `yaml:"alert_min_increase"`     // profit percent increase that re-alerts inside the cooldown
	CleanOnStart         bool          `yaml:"clean_on_start"`         // truncate stored surebets on startup
	TelegramBotToken     string        `yaml:"telegram_bot_token"`
	TelegramChatID       int64         `yaml:"telegram_chat_id"`
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file, then applies environment overrides and defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Parse decodes YAML without touching the environment.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("PARSER_URL"); v != "" {
		c.Calculator.ParserURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Calculator.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		c.Calculator.TelegramChatID = id
	}
	return nil
}

func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		c.HTTP.ReadHeaderTimeout = 5 * time.Second
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.Redis.SnapshotTTL <= 0 {
		c.Redis.SnapshotTTL = time.Minute
	}

	calc := &c.Calculator
	if calc.TotalStake <= 0 {
		calc.TotalStake = 100000
	}
	if calc.RoundingUnit <= 0 {
		calc.RoundingUnit = 1
	}
	if calc.KeepTop <= 0 {
		calc.KeepTop = 100
	}
	if calc.LiveMaxAge <= 0 {
		calc.LiveMaxAge = 3 * time.Hour
	}
	if calc.AsyncInterval <= 0 {
		calc.AsyncInterval = 30 * time.Second
	}
	if calc.AlertCooldownMinutes <= 0 {
		calc.AlertCooldownMinutes = 60
	}
	if calc.AlertMinIncrease <= 0 {
		calc.AlertMinIncrease = 0.5
	}
}
