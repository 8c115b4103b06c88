package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	postgres_wrapper "github.com/joripage/exchange-core/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/exchange-core/pkg/infra/redis"
	"github.com/joripage/exchange-core/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName    string                           `yaml:"service_name"`
	LogLevel       string                           `yaml:"log_level"`
	Pairs          []model.Pair                     `yaml:"pairs"`
	CoreDB         *postgres_wrapper.PostgresConfig `yaml:"core_db"`
	Redis          *redis_wrapper.RedisConfig       `yaml:"redis"`
	Kafka          KafkaConfig                      `yaml:"kafka"`
	WriteBuffer    WriteBufferConfig                `yaml:"write_buffer"`
	CircuitBreaker CircuitBreakerConfig             `yaml:"circuit_breaker"`
	Retry          RetryConfig                      `yaml:"retry"`
	Fees           FeeConfig                        `yaml:"fees"`
	MetricsAddr    string                           `yaml:"metrics_addr"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	OrderTopic  string   `yaml:"order_topic"`
	TradeTopic  string   `yaml:"trade_topic"`
	DLQTopic    string   `yaml:"dlq_topic"`
	GroupID     string   `yaml:"group_id"`
	WorkerCount int      `yaml:"worker_count"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type WriteBufferConfig struct {
	MaxBufferSize   int    `yaml:"max_buffer_size"`
	FlushIntervalMs int64  `yaml:"flush_interval_ms"`
	MaxRetries      int    `yaml:"max_retries"`
	Mode            string `yaml:"mode"`
}

func (c WriteBufferConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

type CircuitBreakerConfig struct {
	FailureThreshold int   `yaml:"failure_threshold"`
	SuccessThreshold int   `yaml:"success_threshold"`
	OpenTimeoutMs    int64 `yaml:"open_timeout_ms"`
}

func (c CircuitBreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMs) * time.Millisecond
}

type RetryConfig struct {
	MaxRetries  int     `yaml:"max_retries"`
	BaseDelayMs int64   `yaml:"base_delay_ms"`
	MaxDelayMs  int64   `yaml:"max_delay_ms"`
	Jitter      float64 `yaml:"jitter"`
}

func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

type FeeConfig struct {
	MakerRate decimal.Decimal `yaml:"maker_rate"`
	TakerRate decimal.Decimal `yaml:"taker_rate"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}

	cfg, err := Parse(configBytes)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}

// Parse expands environment variables in raw, decodes it and fills in
// defaults.
func Parse(raw []byte) (*AppConfig, error) {
	raw = []byte(os.ExpandEnv(string(raw)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "exchange-core"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i, p := range c.Pairs {
		c.Pairs[i] = model.NewPair(p.Coin, p.Currency)
	}

	wb := &c.WriteBuffer
	if wb.MaxBufferSize == 0 {
		wb.MaxBufferSize = 1000
	}
	if wb.FlushIntervalMs == 0 {
		wb.FlushIntervalMs = 1000
	}
	if wb.MaxRetries == 0 {
		wb.MaxRetries = 3
	}
	if wb.Mode == "" {
		wb.Mode = "batch"
	}

	cb := &c.CircuitBreaker
	if cb.FailureThreshold == 0 {
		cb.FailureThreshold = 5
	}
	if cb.SuccessThreshold == 0 {
		cb.SuccessThreshold = 3
	}
	if cb.OpenTimeoutMs == 0 {
		cb.OpenTimeoutMs = 30000
	}

	r := &c.Retry
	if r.MaxRetries == 0 {
		r.MaxRetries = wb.MaxRetries
	}
	if r.BaseDelayMs == 0 {
		r.BaseDelayMs = 100
	}
	if r.MaxDelayMs == 0 {
		r.MaxDelayMs = 30000
	}
	if r.Jitter == 0 {
		r.Jitter = 0.1
	}

	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = c.ServiceName
	}
}

func (c *AppConfig) Validate() error {
	var errs []error
	if len(c.Pairs) == 0 {
		errs = append(errs, errors.New("pairs: at least one trading pair is required"))
	}
	seen := make(map[model.Pair]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.IsZero() {
			errs = append(errs, fmt.Errorf("pairs: %q is missing a side", p.String()))
		}
		if seen[p] {
			errs = append(errs, fmt.Errorf("pairs: %s listed twice", p))
		}
		seen[p] = true
	}
	if c.WriteBuffer.MaxBufferSize < 0 || c.WriteBuffer.FlushIntervalMs < 0 || c.WriteBuffer.MaxRetries < 0 {
		errs = append(errs, errors.New("write_buffer: sizes and intervals must not be negative"))
	}
	if c.WriteBuffer.Mode != "batch" && c.WriteBuffer.Mode != "sync" {
		errs = append(errs, fmt.Errorf("write_buffer.mode: unknown mode %q", c.WriteBuffer.Mode))
	}
	if c.CircuitBreaker.FailureThreshold < 0 || c.CircuitBreaker.SuccessThreshold < 0 || c.CircuitBreaker.OpenTimeoutMs < 0 {
		errs = append(errs, errors.New("circuit_breaker: values must not be negative"))
	}
	if c.Retry.MaxRetries < 0 || c.Retry.BaseDelayMs < 0 || c.Retry.MaxDelayMs < 0 {
		errs = append(errs, errors.New("retry: values must not be negative"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("retry.jitter: %v is outside [0, 1)", c.Retry.Jitter))
	}
	if c.Fees.MakerRate.IsNegative() || c.Fees.TakerRate.IsNegative() {
		errs = append(errs, errors.New("fees: rates must not be negative"))
	}
	if c.Kafka.Enabled() && c.Kafka.OrderTopic == "" {
		errs = append(errs, errors.New("kafka.order_topic: required when brokers are set"))
	}
	if c.Kafka.Enabled() && c.Kafka.DLQTopic == "" {
		errs = append(errs, errors.New("kafka.dlq_topic: required when brokers are set"))
	}
	return errors.Join(errs...)
}
