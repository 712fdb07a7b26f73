// Package config loads service configuration from defaults, an optional YAML file,
// an optional .env.<env> file and EXTENSAO_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "EXTENSAO"

// Config is the full service configuration.
type Config struct {
	Env       string          `mapstructure:"env"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Hours     HoursConfig     `mapstructure:"hours"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type RateLimitConfig struct {
	Burst     int `mapstructure:"burst"`
	PerSecond int `mapstructure:"per_second"`
}

// DatabaseConfig configures PostgreSQL. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// RedisConfig configures the permission-set cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HoursConfig struct {
	ProgramQuota        int  `mapstructure:"program_quota"`
	EnforceProgramQuota bool `mapstructure:"enforce_program_quota"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// IsDevelopment reports whether relaxed defaults (such as a generated auth secret) apply.
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "test"
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("ratelimit.burst and ratelimit.per_second must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if !c.IsDevelopment() && len(strings.TrimSpace(c.Auth.Secret)) < 32 {
		errs = append(errs, errors.New("auth.secret must be at least 32 characters outside development"))
	}
	if c.Hours.ProgramQuota <= 0 {
		errs = append(errs, errors.New("hours.program_quota must be positive"))
	}
	if c.Database.TxTimeout <= 0 {
		errs = append(errs, errors.New("database.tx_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Load reads configuration. configPath may be empty to search the default locations.
func Load(configPath string) (*Config, error) {
	env := strings.TrimSpace(os.Getenv(envPrefix + "_ENV"))
	if env == "" {
		env = "development"
	}
	// .env files never override variables already present in the environment.
	if err := godotenv.Load(".env." + env); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env.%s: %w", env, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetDefault("env", env)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/extensao")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// bindEnvVars binds nested keys explicitly; AutomaticEnv alone does not reach them during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"env",
		"http.addr", "http.max_body_bytes", "http.read_timeout",
		"grpc.addr",
		"ratelimit.burst", "ratelimit.per_second",
		"database.dsn", "database.max_open_conns", "database.max_idle_conns", "database.tx_timeout",
		"auth.secret", "auth.issuer", "auth.token_ttl",
		"redis.addr", "redis.password", "redis.db", "redis.ttl",
		"hours.program_quota", "hours.enforce_program_quota",
		"log.level",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.read_timeout", "15s")

	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.per_second", 10)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.tx_timeout", "5s")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "extensao")
	v.SetDefault("auth.token_ttl", "1h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("hours.program_quota", 350)
	v.SetDefault("hours.enforce_program_quota", true)

	v.SetDefault("log.level", "info")
}
