// Package config loads famsync settings from flags, FAMSYNC_* environment
// variables and an optional YAML/TOML/JSON file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides: FAMSYNC_SERVER_URL, FAMSYNC_LOG_LEVEL...
const EnvPrefix = "FAMSYNC"

// LogConfig выбирает формат логов и необязательный файл с ротацией
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug | info | warn | error
	Format     string `mapstructure:"format"` // text | json
	File       string `mapstructure:"file"`   // пусто - только stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// RateLimitConfig ограничивает частоту запросов одного устройства
type RateLimitConfig struct {
	Window   time.Duration `mapstructure:"window"`
	Requests int           `mapstructure:"requests"` // 0 - без ограничения
}

// RedisConfig включает рассылку nudge между репликами сервера
type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // пусто - только локальный hub
	Password string `mapstructure:"password"`
	Channel  string `mapstructure:"channel"`
	DB       int    `mapstructure:"db"`
}

// RetentionConfig задает сроки хранения tombstone и журнала конфликтов
type RetentionConfig struct {
	Schedule   string        `mapstructure:"schedule"`
	Tombstones time.Duration `mapstructure:"tombstones"`
	Conflicts  time.Duration `mapstructure:"conflicts"`
}

// TelemetryConfig включает экспорт трассировок по OTLP/gRPC
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // пусто - трассировка выключена
}

// Server is the configuration of famsync-server.
type Server struct {
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Retention RetentionConfig `mapstructure:"retention"`
	Addr      string          `mapstructure:"addr"`
	DBPath    string          `mapstructure:"db_path"`
	JWTSecret string          `mapstructure:"jwt_secret"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
}

// SyncConfig настраивает координатор синхронизации клиента
type SyncConfig struct {
	Schedule       string        `mapstructure:"schedule"` // cron-расписание фоновой синхронизации
	BatchSize      int           `mapstructure:"batch_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Nudges         bool          `mapstructure:"nudges"` // слушать /api/v1/nudge в режиме daemon
}

// Client is the configuration of the famsync device client.
type Client struct {
	Log       LogConfig  `mapstructure:"log"`
	ServerURL string     `mapstructure:"server_url"`
	DataPath  string     `mapstructure:"data_path"`
	Sync      SyncConfig `mapstructure:"sync"`
	Encrypt   bool       `mapstructure:"encrypt"` // шифровать payload в локальной базе
}

// New creates a viper instance with the env prefix and, when path is not
// empty, the given config file loaded.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

func setLogDefaults(v *viper.Viper, file string) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", file)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// SetServerDefaults registers every server key so env overrides apply to it.
func SetServerDefaults(v *viper.Viper) {
	setLogDefaults(v, "")
	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "famsync.db")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", time.Duration(0))
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "famsync:nudge")
	v.SetDefault("retention.schedule", "@daily")
	v.SetDefault("retention.tombstones", 30*24*time.Hour)
	v.SetDefault("retention.conflicts", 90*24*time.Hour)
	v.SetDefault("telemetry.service_name", "famsync-server")
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// SetClientDefaults registers every client key so env overrides apply to it.
func SetClientDefaults(v *viper.Viper) {
	setLogDefaults(v, "")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("data_path", "famsync-client.db")
	v.SetDefault("encrypt", false)
	v.SetDefault("sync.schedule", "@every 5m")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.request_timeout", 30*time.Second)
	v.SetDefault("sync.initial_backoff", time.Second)
	v.SetDefault("sync.max_backoff", 5*time.Minute)
	v.SetDefault("sync.nudges", true)
}

// LoadServer decodes and validates the server configuration.
func LoadServer(v *viper.Viper) (*Server, error) {
	SetServerDefaults(v)

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Server) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("jwt_secret must be at least 16 characters"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, errors.New("rate_limit.requests cannot be negative"))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if err := validateLog(c.Log); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadClient decodes and validates the client configuration.
func LoadClient(v *viper.Viper) (*Client, error) {
	SetClientDefaults(v)

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the client settings.
func (c *Client) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		errs = append(errs, fmt.Errorf("server_url must be an http(s) URL, got %q", c.ServerURL))
	}
	if c.DataPath == "" {
		errs = append(errs, errors.New("data_path is required"))
	}
	if c.Sync.BatchSize < 0 {
		errs = append(errs, errors.New("sync.batch_size cannot be negative"))
	}
	if err := validateLog(c.Log); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateLog(c LogConfig) error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Format)
	}
	return nil
}
