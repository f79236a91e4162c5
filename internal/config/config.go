package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Hook      HookConfig      `yaml:"hook"`
	Engine    EngineConfig    `yaml:"engine"`
	AVS       AVSConfig       `yaml:"avs"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// HookConfig carries the protocol constants; zero values fall back to defaults in the hook constructor
type HookConfig struct {
	HistoryCap           int           `yaml:"history_cap"`
	VolatilityWindow     time.Duration `yaml:"volatility_window"`
	MinSamples           int           `yaml:"min_samples"`
	MinSlippageBps       uint64        `yaml:"min_slippage_bps"`
	MaxSlippageBps       uint64        `yaml:"max_slippage_bps"`
	VolatilityMultiplier uint64        `yaml:"volatility_multiplier"`
	BatchInterval        time.Duration `yaml:"batch_interval"`
	MaxBatchSize         int           `yaml:"max_batch_size"`
	CommitDuration       time.Duration `yaml:"commit_duration"`
	RevealDuration       time.Duration `yaml:"reveal_duration"`
	MinRevealDelay       time.Duration `yaml:"min_reveal_delay"`
	Owner                string        `yaml:"owner"`
	Executors            []string      `yaml:"executors"`
	SnapshotKey          string        `yaml:"snapshot_key"`
}

type EngineConfig struct {
	RPCURL    string `yaml:"rpc_url"`
	StateView string `yaml:"state_view"`
	FeePips   uint32 `yaml:"fee_pips"`
}

type AVSConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Operators []string `yaml:"operators"`
	Quorum    int      `yaml:"quorum"`
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucketConfig struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled bool             `yaml:"enabled"`
	ByJWT   RateBucketConfig `yaml:"by_jwt"`
	ByIP    RateBucketConfig `yaml:"by_ip"`
}

type BloomConfig struct {
	Enabled  bool    `yaml:"enabled"` // needs the RedisBloom module
	Key      string  `yaml:"key"`
	Capacity int64   `yaml:"capacity"`
	ErrRate  float64 `yaml:"err_rate"`
}

type DedupeConfig struct {
	Backend string        `yaml:"backend"` // redis|memory
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
	Janitor time.Duration `yaml:"janitor"`
	Bloom   BloomConfig   `yaml:"bloom"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Table   string                 `yaml:"table"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	Name            string `yaml:"name"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
	InboundSubject  string `yaml:"inbound_subject"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	GzipLevel    int           `yaml:"gzip_level"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Namespace string          `yaml:"namespace"`
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// ${VAR} references are resolved from the environment (.env is preloaded by cmd)
	b = []byte(os.ExpandEnv(string(b)))

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects values no constructor default can repair
func (c *Config) Validate() error {
	h := c.Hook
	if h.MinSlippageBps > 0 && h.MaxSlippageBps > 0 && h.MinSlippageBps > h.MaxSlippageBps {
		return errors.New("hook.min_slippage_bps must not exceed hook.max_slippage_bps")
	}
	if h.Owner != "" && !common.IsHexAddress(h.Owner) {
		return fmt.Errorf("hook.owner is not a hex address: %q", h.Owner)
	}
	for _, e := range h.Executors {
		if !common.IsHexAddress(e) {
			return fmt.Errorf("hook.executors contains a non-hex address: %q", e)
		}
	}
	if c.AVS.Enabled {
		if len(c.AVS.Operators) == 0 {
			return errors.New("avs.operators is required when avs is enabled")
		}
		for _, op := range c.AVS.Operators {
			if !common.IsHexAddress(op) {
				return fmt.Errorf("avs.operators contains a non-hex address: %q", op)
			}
		}
	}

	switch c.Dedupe.Backend {
	case "", "redis", "memory":
	default:
		return fmt.Errorf("unknown dedupe.backend %q", c.Dedupe.Backend)
	}

	return nil
}
