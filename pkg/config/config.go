package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Exchange struct {
		BaseURL        string        `yaml:"base_url"`
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		APISecret      string        `yaml:"api_secret"`
		Quote          string        `yaml:"quote"`
		MaxRetries     int           `yaml:"max_retries"`
		RequestsPerSec float64       `yaml:"requests_per_sec"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"exchange"`
	Trading struct {
		Assets      []string      `yaml:"assets"`
		Interval    time.Duration `yaml:"interval"`
		CandleCount int           `yaml:"candle_count"`
		Granularity string        `yaml:"granularity"`
		MinOrderUSD float64       `yaml:"min_order_usd"`
	} `yaml:"trading"`
	Engine struct {
		MinConfidence   float64 `yaml:"min_confidence"`
		ExplorationRate float64 `yaml:"exploration_rate"`
	} `yaml:"engine"`
	Indicators struct {
		RSIPeriod     int `yaml:"rsi_period"`
		SRWindow      int `yaml:"sr_window"`
		VolumeWindow  int `yaml:"volume_window"`
		ShortMAPeriod int `yaml:"short_ma_period"`
		LongMAPeriod  int `yaml:"long_ma_period"`
	} `yaml:"indicators"`
	Learning struct {
		Backend string `yaml:"backend"` // file or redis
		DataDir string `yaml:"data_dir"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"learning"`
	Intel struct {
		BaseURL  string        `yaml:"base_url"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"intel"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Progression struct {
		StatePath string `yaml:"state_path"`
	} `yaml:"progression"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("ASSETS"); v != "" {
		c.Trading.Assets = strings.Split(v, ",")
	}
	if v := os.Getenv("LEARNING_BACKEND"); v != "" {
		c.Learning.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Learning.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Trading.Assets) == 0 {
		return fmt.Errorf("trading.assets cannot be empty")
	}
	switch c.Learning.Backend {
	case "", "file":
	case "redis":
		if c.Learning.Redis.Addr == "" {
			return fmt.Errorf("learning.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("learning.backend must be 'file' or 'redis', got '%s'", c.Learning.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return fmt.Errorf("engine.min_confidence must be within [0,1]")
	}
	if c.Engine.ExplorationRate < 0 || c.Engine.ExplorationRate > 1 {
		return fmt.Errorf("engine.exploration_rate must be within [0,1]")
	}
	return nil
}
