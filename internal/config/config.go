package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"taskflow/internal/analytics"
	"taskflow/pkg/circuitbreaker"
	pkgconfig "taskflow/pkg/config"
)

// AppConfig 业务配置
type AppConfig struct {
	// IANA 时区，用于按自然日统计
	Timezone string `yaml:"timezone"`
	// calendar | legacy
	WeeklyAverage string `yaml:"weekly_average"`
	// CAS 冲突后的最大尝试次数
	MaxUpdateAttempts int `yaml:"max_update_attempts"`
}

// CacheConfig 分析结果缓存
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// OutboxConfig outbox 派发器配置
type OutboxConfig struct {
	Interval   time.Duration         `yaml:"interval"`
	BatchSize  int                   `yaml:"batch_size"`
	MaxRetries int                   `yaml:"max_retries"`
	Breaker    circuitbreaker.Config `yaml:"breaker"`
}

// ConsumerConfig MQ 消费者配置
type ConsumerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxRetries int64         `yaml:"max_retries"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	RetryTTL   time.Duration `yaml:"retry_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	DB       pkgconfig.DBConfig     `yaml:"db"`
	MQ       pkgconfig.MQConfig     `yaml:"mq"`
	Redis    pkgconfig.RedisConfig  `yaml:"redis"`
	JWT      pkgconfig.JWTConfig    `yaml:"jwt"`
	Server   pkgconfig.ServerConfig `yaml:"server"`
	Log      LogConfig              `yaml:"log"`
	App      AppConfig              `yaml:"app"`
	Cache    CacheConfig            `yaml:"cache"`
	Outbox   OutboxConfig           `yaml:"outbox"`
	Consumer ConsumerConfig         `yaml:"consumer"`
}

// Default 返回未配置时使用的默认值
func Default() Config {
	return Config{
		DB: pkgconfig.DBConfig{
			Host:               "localhost",
			Port:               5432,
			SSLMode:            "disable",
			MaxConns:           10,
			MinConns:           1,
			SlowQueryThreshold: 200 * time.Millisecond,
		},
		Redis:  pkgconfig.RedisConfig{Addr: "localhost:6379"},
		Server: pkgconfig.ServerConfig{Port: ":8080", ShutdownTimeout: 30 * time.Second},
		Log:    LogConfig{Level: "info"},
		App: AppConfig{
			Timezone:          "UTC",
			WeeklyAverage:     "calendar",
			MaxUpdateAttempts: 3,
		},
		Cache: CacheConfig{Enabled: true, TTL: 5 * time.Minute},
		Outbox: OutboxConfig{
			Interval:   time.Second,
			BatchSize:  100,
			MaxRetries: 5,
			Breaker:    circuitbreaker.DefaultConfig(),
		},
		Consumer: ConsumerConfig{
			Enabled:    true,
			MaxRetries: 3,
			DedupTTL:   24 * time.Hour,
			RetryTTL:   time.Hour,
		},
	}
}

// Load 读取 {dir}/base.yaml + {dir}/{env}.yaml，再用环境变量覆盖
func Load(env, dir string) (*Config, error) {
	raw, err := pkgconfig.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := pkgconfig.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	overrideAppFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideAppFromEnv(cfg *Config) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if tz := os.Getenv("APP_TIMEZONE"); tz != "" {
		cfg.App.Timezone = tz
	}
	if enabled := os.Getenv("CACHE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Cache.Enabled = b
		}
	}
}

// Validate 检查启动前必须正确的配置项
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || unresolved(c.JWT.Secret) {
		return fmt.Errorf("jwt.secret is required")
	}
	// 可选的密码没有提供时按空处理
	if unresolved(c.DB.Password) {
		c.DB.Password = ""
	}
	if unresolved(c.Redis.Password) {
		c.Redis.Password = ""
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.WeeklyAveragePolicy(); err != nil {
		return err
	}
	if c.App.MaxUpdateAttempts <= 0 {
		c.App.MaxUpdateAttempts = 3
	}
	return nil
}

func unresolved(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

// Location 解析 app.timezone
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

func (c *Config) WeeklyAveragePolicy() (analytics.WeeklyAveragePolicy, error) {
	return analytics.ParseWeeklyAverage(c.App.WeeklyAverage)
}
