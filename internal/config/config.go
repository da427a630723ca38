package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 描述 bothubd 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metrics_address"`
}

// StorageConfig 描述数据存储后端的连接信息。
type StorageConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `yaml:"conn_max_idle_time_seconds"`
}

// AuthConfig 配置身份认证服务。
type AuthConfig struct {
	Mode  string       `yaml:"mode"`
	JWT   JWTConfig    `yaml:"jwt"`
	Seeds []SeedConfig `yaml:"seeds"`
}

// JWTConfig 包含本地 JWT 签发所需的参数。
type JWTConfig struct {
	Secret            string   `yaml:"secret"`
	Issuer            string   `yaml:"issuer"`
	Audience          []string `yaml:"audience"`
	AccessTTLSeconds  int64    `yaml:"access_ttl_seconds"`
	RefreshTTLSeconds int64    `yaml:"refresh_ttl_seconds"`
}

// SeedConfig 定义启动时需要保证存在的账号。
type SeedConfig struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Kind        string `yaml:"kind"`
	DisplayName string `yaml:"display_name"`
	Superuser   bool   `yaml:"superuser"`
	Disabled    bool   `yaml:"disabled"`
}

// RateLimitConfig 配置按调用方类型区分的限流参数。
type RateLimitConfig struct {
	Driver         string      `yaml:"driver"`
	HumanPerMinute int         `yaml:"human_per_minute"`
	AgentPerMinute int         `yaml:"agent_per_minute"`
	Redis          RedisConfig `yaml:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// WebhookConfig 配置 Webhook 投递通道与启动时注册的订阅。
type WebhookConfig struct {
	Driver         string               `yaml:"driver"`
	TimeoutSeconds int                  `yaml:"timeout_seconds"`
	Workers        int                  `yaml:"workers"`
	RabbitMQ       RabbitMQConfig       `yaml:"rabbitmq"`
	Subscriptions  []SubscriptionConfig `yaml:"subscriptions"`
}

// SubscriptionConfig 定义启动时需要保证存在的 webhook 订阅。
type SubscriptionConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// LoggingConfig 控制日志输出行为。
type LoggingConfig struct {
	Level   string         `yaml:"level"`
	Format  string         `yaml:"format"`
	Outputs []string       `yaml:"outputs"`
	Audit   AuditLogConfig `yaml:"audit"`
}

// AuditLogConfig 控制审计日志文件的滚动策略。
type AuditLogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load 解析指定路径的 YAML 配置文件，并应用默认值与环境变量覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnvOverrides 允许通过环境变量注入敏感配置，避免写入文件。
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOTHUB_MYSQL_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("BOTHUB_JWT_SECRET"); v != "" {
		c.Auth.JWT.Secret = v
	}
	if v := os.Getenv("BOTHUB_REDIS_ADDR"); v != "" {
		c.RateLimit.Redis.Address = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "jwt"
	}
	if c.Auth.JWT.AccessTTLSeconds <= 0 {
		c.Auth.JWT.AccessTTLSeconds = 3600
	}
	if c.Auth.JWT.RefreshTTLSeconds <= 0 {
		c.Auth.JWT.RefreshTTLSeconds = 86400
	}

	if c.RateLimit.Driver == "" {
		c.RateLimit.Driver = "memory"
	}
	if c.RateLimit.HumanPerMinute <= 0 {
		c.RateLimit.HumanPerMinute = 120
	}
	if c.RateLimit.AgentPerMinute <= 0 {
		c.RateLimit.AgentPerMinute = 1200
	}
	if c.RateLimit.Redis.KeyPrefix == "" {
		c.RateLimit.Redis.KeyPrefix = "bothub:ratelimit"
	}

	if c.Webhooks.Driver == "" {
		c.Webhooks.Driver = "memory"
	}
	if c.Webhooks.TimeoutSeconds <= 0 {
		c.Webhooks.TimeoutSeconds = 5
	}
	if c.Webhooks.Workers <= 0 {
		c.Webhooks.Workers = 2
	}
	if c.Webhooks.RabbitMQ.Queue == "" {
		c.Webhooks.RabbitMQ.Queue = "bothub.webhooks"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
