// Package config собирает конфигурацию сервиса один раз при старте.
// Компоненты получают свои секции через конструкторы и окружение сами не читают.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix: PROCUREMENT_IMAP_POLL_INTERVAL -> imap.poll_interval
const EnvPrefix = "PROCUREMENT_"

const maxConfigFileSize = 1024 * 1024

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	LLM      LLMConfig      `koanf:"llm"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	IMAP     IMAPConfig     `koanf:"imap"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Ranking  RankingConfig  `koanf:"ranking"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL         string `koanf:"url"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type LLMConfig struct {
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	Temperature float64       `koanf:"temperature"`
	MaxRetries  uint64        `koanf:"max_retries"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	FromName string `koanf:"from_name"`
	// LogFile: если задан, каждое исходящее письмо дополнительно пишется в файл
	LogFile string `koanf:"log_file"`
}

type IMAPConfig struct {
	Enabled            bool          `koanf:"enabled"`
	Host               string        `koanf:"host"`
	Port               int           `koanf:"port"`
	Username           string        `koanf:"username"`
	Password           string        `koanf:"password"`
	Mailbox            string        `koanf:"mailbox"`
	PollInterval       time.Duration `koanf:"poll_interval"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
}

type DispatchConfig struct {
	Concurrency int           `koanf:"concurrency"`
	Timeout     time.Duration `koanf:"timeout"`
}

type RankingConfig struct {
	PersistScores bool `koanf:"persist_scores"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load читает YAML (если путь задан), затем переменные окружения, затем
// проставляет значения по умолчанию и валидирует результат.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadUnchecked - Load без валидации, для служебных команд, которым нужна
// только часть секций (например, migrate).
func LoadUnchecked(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// envKey делит имя по первому подчёркиванию: секция.поле_с_подчёркиваниями
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "0.0.0.0:8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1048576
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	// Одна корректирующая попытка, если явно не задано иначе
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 1
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = 500 * time.Millisecond
	}

	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if cfg.SMTP.FromName == "" {
		cfg.SMTP.FromName = "Procurement AI"
	}

	// По умолчанию ящик читается той же учёткой, что и отправляет письма
	if cfg.IMAP.Username == "" {
		cfg.IMAP.Username = cfg.SMTP.Username
	}
	if cfg.IMAP.Password == "" {
		cfg.IMAP.Password = cfg.SMTP.Password
	}
	if cfg.IMAP.Host == "" {
		cfg.IMAP.Host = "imap.gmail.com"
	}
	if cfg.IMAP.Port == 0 {
		cfg.IMAP.Port = 993
	}
	if cfg.IMAP.Mailbox == "" {
		cfg.IMAP.Mailbox = "INBOX"
	}
	if cfg.IMAP.PollInterval == 0 {
		cfg.IMAP.PollInterval = 30 * time.Second
	}

	if cfg.Dispatch.Concurrency <= 0 {
		cfg.Dispatch.Concurrency = 8
	}
	if cfg.Dispatch.Timeout == 0 {
		cfg.Dispatch.Timeout = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required"))
	}
	if c.IMAP.Enabled && (c.IMAP.Username == "" || c.IMAP.Password == "") {
		errs = append(errs, errors.New("imap credentials are required when imap.enabled is set"))
	}
	if c.IMAP.PollInterval < time.Second {
		errs = append(errs, errors.New("imap.poll_interval must be at least 1s"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
