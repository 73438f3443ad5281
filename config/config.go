package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Minio    MinioConfig    `mapstructure:"minio"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Comments CommentsConfig `mapstructure:"comments"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	Mode       string `mapstructure:"mode"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

func (s ServerConfig) Development() bool {
	return s.Mode == ModeDevelopment
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CountTTL time.Duration `mapstructure:"count_ttl"`
}

type MinioConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
}

type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type CommentsConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

const devSecret = "noteflow-dev-secret-change-me"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", ModeDevelopment)
	v.SetDefault("server.cors_origin", "http://localhost:5173")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "root:123456@tcp(127.0.0.1:3306)/noteflow?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("jwt.secret", devSecret)
	v.SetDefault("jwt.ttl", 7*24*time.Hour)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.count_ttl", 10*time.Minute)
	v.SetDefault("minio.enabled", true)
	v.SetDefault("minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("minio.access_key", "admin")
	v.SetDefault("minio.secret_key", "password123")
	v.SetDefault("minio.bucket", "noteflow")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.public_url", "http://127.0.0.1:9000")
	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("comments.retention", 30*24*time.Hour)
}

// Load reads defaults, then the optional file at path, then NOTEFLOW_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("noteflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of mysql, postgres, sqlite", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Server.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("server.mode %q is not one of development, production", c.Server.Mode))
	}
	if c.JWT.Secret == "" || (c.Server.Mode == ModeProduction && c.JWT.Secret == devSecret) {
		errs = append(errs, errors.New("jwt.secret must be set in production"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("jwt.ttl must be positive"))
	}
	if c.Redis.Enabled && c.Redis.CountTTL <= 0 {
		errs = append(errs, errors.New("redis.count_ttl must be positive"))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if c.Comments.Retention <= 0 {
		errs = append(errs, errors.New("comments.retention must be positive"))
	}
	return errors.Join(errs...)
}
