package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
		RateLimit       struct {
			PerMinute int `yaml:"per_minute" default:"30" validate:"gte=0"`
			Burst     int `yaml:"burst" default:"5" validate:"gte=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		Digest struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			MaxUnique int           `yaml:"max_unique" default:"100"`
			Topic     string        `yaml:"topic" default:"research.errors"`
		} `yaml:"digest"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Research Research `yaml:"research"`

	Binance struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		APIKey          string        `yaml:"api_key"`
		SecretKey       string        `yaml:"secret_key"`
		Testnet         bool          `yaml:"testnet"`
		RequestsPerSec  int           `yaml:"requests_per_sec" default:"10" validate:"gt=0"`
		Retries         int           `yaml:"retries" default:"1" validate:"gte=0,lte=3"`
		LiquidationFeed bool          `yaml:"liquidation_feed"`
		LiquidationURL  string        `yaml:"liquidation_url" default:"wss://fstream.binance.com/ws/!forceOrder@arr"`
		LiqWindow       time.Duration `yaml:"liquidation_window" default:"1h"`
		ReconnectDelay  time.Duration `yaml:"reconnect_delay" default:"5s"`
	} `yaml:"binance"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		CandleTable      string        `yaml:"candle_table" default:"rt_candles"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		ResultTopic  string   `yaml:"result_topic" default:"research.results"`
		RequestTopic string   `yaml:"request_topic" default:"research.requests"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"deep-research"`
			Workers    int           `yaml:"workers" default:"4" validate:"gt=0"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Sink struct {
		Backend     string        `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
		Table       string        `yaml:"table" default:"research_results"`
		BufferSize  int           `yaml:"buffer_size" default:"256"`
		MinInterval time.Duration `yaml:"min_interval" default:"5s"`
	} `yaml:"sink"`

	Analytics struct {
		SentimentURL string        `yaml:"sentiment_url"`
		MLServiceURL string        `yaml:"ml_service_url"`
		Timeout      time.Duration `yaml:"timeout" default:"3s"`
	} `yaml:"analytics"`
}

// Research tunes the orchestration engine.
type Research struct {
	Deadline   time.Duration `yaml:"deadline" default:"10s"`
	Primary    string        `yaml:"primary_timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Timeframes struct {
		Short  string `yaml:"short" default:"5m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
		Medium string `yaml:"medium" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
		Long   string `yaml:"long" default:"4h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	} `yaml:"timeframes"`
	CandleLimit      int `yaml:"candle_limit" default:"200" validate:"gte=60,lte=1500"`
	MinCandles       int `yaml:"min_candles" default:"60" validate:"gte=60"`
	MinSecondary     int `yaml:"min_secondary_candles" default:"40" validate:"gt=0"`
	OrderbookDepth   int `yaml:"orderbook_depth" default:"20" validate:"gt=0"`
	Timeouts         struct {
		Candles     time.Duration `yaml:"candles" default:"2500ms"`
		Orderbook   time.Duration `yaml:"orderbook" default:"1500ms"`
		Ticker      time.Duration `yaml:"ticker" default:"1200ms"`
		Derivatives time.Duration `yaml:"derivatives" default:"2s"`
		Sentiment   time.Duration `yaml:"sentiment" default:"1500ms"`
		ML          time.Duration `yaml:"ml" default:"2s"`
	} `yaml:"timeouts"`
	ResultTTL time.Duration `yaml:"result_ttl" default:"15s"`
	Memory    struct {
		MaxEntries int           `yaml:"max_entries" default:"10000" validate:"gt=0"`
		TTL        time.Duration `yaml:"ttl" default:"24h"`
	} `yaml:"memory"`
}

var validate = validator.New()

// Default returns a config populated only from struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse fills defaults, decodes YAML bytes over them and validates.
// Defaults go first so an explicit `false` in the file survives.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
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
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Binance.SecretKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SINK_BACKEND"); v != "" {
		c.Sink.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("ML_SERVICE_URL"); v != "" {
		c.Analytics.MLServiceURL = v
	}
	if v := os.Getenv("SENTIMENT_URL"); v != "" {
		c.Analytics.SentimentURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Sink.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("sink.backend is kafka but kafka.brokers is empty")
	}
	if c.Sink.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("sink.backend is clickhouse but clickhouse is disabled")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.consumer.enabled requires kafka.brokers")
	}
	if c.Research.MinCandles > c.Research.CandleLimit {
		return fmt.Errorf("research.min_candles (%d) exceeds research.candle_limit (%d)",
			c.Research.MinCandles, c.Research.CandleLimit)
	}
	return nil
}
