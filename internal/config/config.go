package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"SignalProof-Chain/internal/auth"
	"SignalProof-Chain/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "SIGNAL_CONFIG"

// DefaultPath 是未设置 SIGNAL_CONFIG 时读取的配置文件。
var DefaultPath = filepath.Join("configs", "signald.json")

// Config 描述了 signald 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   logger.Config   `json:"logging"`
	Web3      Web3Config      `json:"web3"`
	Storage   StorageConfig   `json:"storage"`
	JobQueue  JobQueueConfig  `json:"job_queue"`
	Processor ProcessorConfig `json:"processor"`
	Metrics   MetricsConfig   `json:"metrics"`
	Alerting  AlertingConfig  `json:"alerting"`
	Auth      auth.Config     `json:"auth"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address              string `json:"address"`
	ReadTimeoutSeconds   int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds  int    `json:"write_timeout_seconds"`
	ShutdownGraceSeconds int    `json:"shutdown_grace_seconds"`
}

// ReadTimeout 返回读超时。
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout 返回写超时。
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// ShutdownGrace 返回优雅退出的等待时间。
func (s ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSeconds) * time.Second
}

// Web3Config 包含访问区块链节点所需的 RPC 地址与链定义文件。
type Web3Config struct {
	RPCURL        string `json:"rpc_url"`
	ChainConfig   string `json:"chain_config"`
	DefaultChain  string `json:"default_chain"`
	SignalService string `json:"signal_service"`
	Confirmations uint64 `json:"confirmations"`
}

// StorageConfig 描述证明任务的持久化后端。
type StorageConfig struct {
	JobStore JobStoreConfig `json:"job_store"`
}

// JobStoreConfig 支持 memory 与 mysql 两种驱动。
type JobStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// JobQueueConfig 支持 memory、redis 与 rabbitmq 三种驱动。
type JobQueueConfig struct {
	Driver   string         `json:"driver"`
	Buffer   int            `json:"buffer"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// ProcessorConfig 控制证明任务的并发与重试。
type ProcessorConfig struct {
	Workers            int `json:"workers"`
	MaxRetries         int `json:"max_retries"`
	RetryBackoffMillis int `json:"retry_backoff_millis"`
	MemoLimit          int `json:"memo_limit"`
}

// RetryBackoff 返回重投前的等待时间。
func (p ProcessorConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMillis) * time.Millisecond
}

// MetricsConfig 控制 Prometheus 指标的暴露。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Runtime bool   `json:"runtime"`
}

// AlertingConfig 配置任务终态失败时的告警渠道。
type AlertingConfig struct {
	Log        bool   `json:"log"`
	WebhookURL string `json:"webhook_url"`
}

// Path 返回配置文件路径：优先读取 SIGNAL_CONFIG。
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查驱动名称等枚举取值。
func (c *Config) Validate() error {
	switch c.Storage.JobStore.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Storage.JobStore.DSN) == "" {
			return errors.New("mysql 任务存储需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的任务存储驱动: %s", c.Storage.JobStore.Driver)
	}
	switch c.JobQueue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.JobQueue.Driver)
	}
	if strings.TrimSpace(c.Web3.RPCURL) == "" && strings.TrimSpace(c.Web3.ChainConfig) == "" {
		return errors.New("需要配置 web3.rpc_url 或 web3.chain_config")
	}
	switch c.Auth.Mode {
	case auth.ModeDisabled, auth.ModeToken:
	default:
		return fmt.Errorf("未知的认证模式: %s", c.Auth.Mode)
	}
	return nil
}

// applyEnv 允许通过环境变量覆盖部署相关的字段。
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("SIGNAL_SERVER_ADDRESS")); v != "" {
		c.Server.Address = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNAL_RPC_URL")); v != "" {
		c.Web3.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNAL_JOB_STORE_DSN")); v != "" {
		c.Storage.JobStore.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNAL_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNAL_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Processor.Workers = n
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Server.ShutdownGraceSeconds <= 0 {
		c.Server.ShutdownGraceSeconds = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path)
	}

	if c.Web3.ChainConfig != "" {
		c.Web3.ChainConfig = resolve(baseDir, c.Web3.ChainConfig)
	}

	if c.Storage.JobStore.Driver == "" {
		c.Storage.JobStore.Driver = "memory"
	}
	if c.Storage.JobStore.MaxOpenConns <= 0 {
		c.Storage.JobStore.MaxOpenConns = 10
	}
	if c.Storage.JobStore.MaxIdleConns <= 0 {
		c.Storage.JobStore.MaxIdleConns = 5
	}
	if c.Storage.JobStore.ConnMaxLifetimeSeconds <= 0 {
		c.Storage.JobStore.ConnMaxLifetimeSeconds = 300
	}
	if c.Storage.JobStore.ConnMaxIdleTimeSeconds <= 0 {
		c.Storage.JobStore.ConnMaxIdleTimeSeconds = 60
	}

	if c.JobQueue.Driver == "" {
		c.JobQueue.Driver = "memory"
	}
	if c.JobQueue.Buffer <= 0 {
		c.JobQueue.Buffer = 1024
	}
	if c.JobQueue.Redis.BlockWaitSeconds <= 0 {
		c.JobQueue.Redis.BlockWaitSeconds = 5
	}

	if c.Processor.Workers <= 0 {
		c.Processor.Workers = 4
	}
	if c.Processor.MaxRetries <= 0 {
		c.Processor.MaxRetries = 3
	}
	if c.Processor.RetryBackoffMillis <= 0 {
		c.Processor.RetryBackoffMillis = 500
	}
	if c.Processor.MemoLimit <= 0 {
		c.Processor.MemoLimit = 4096
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	c.Auth.Mode = auth.Mode(strings.ToLower(strings.TrimSpace(string(c.Auth.Mode))))
	if c.Auth.Mode == "" {
		c.Auth.Mode = auth.ModeDisabled
	}
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
