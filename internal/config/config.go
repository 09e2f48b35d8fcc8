package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"curvefeed/internal/common"
	"curvefeed/pkg/models"
)

type ChainConfig struct {
	WsURL                string `yaml:"ws_url"`
	ChainID              uint64 `yaml:"chain_id"`
	PingIntervalSec      int    `yaml:"ping_interval_sec"`
	ReconnectIntervalSec int    `yaml:"reconnect_interval_sec"`
	MaxReconnectDelaySec int    `yaml:"max_reconnect_delay_sec"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type NATSConfig struct {
	URL              string `yaml:"url"`
	ReconnectWaitSec int    `yaml:"reconnect_wait_sec"`
	MaxReconnects    int    `yaml:"max_reconnects"`
}

type EngineConfig struct {
	Intervals          []string `yaml:"intervals"`
	SnapshotWindowHour int      `yaml:"snapshot_window_hours"`
	RetainBuckets      int      `yaml:"retain_buckets"`
	LaneQueueSize      int      `yaml:"lane_queue_size"`
	FanoutQueueSize    int      `yaml:"fanout_queue_size"`
	FlushIntervalSec   int      `yaml:"flush_interval_sec"`
	IdlePairTimeoutSec int      `yaml:"idle_pair_timeout_sec"`
}

type Config struct {
	Chain    ChainConfig  `yaml:"chain"`
	Redis    RedisConfig  `yaml:"redis"`
	NATS     NATSConfig   `yaml:"nats"`
	Engine   EngineConfig `yaml:"engine"`
	LogLevel string       `yaml:"log_level"`
}

// Load reads the YAML file if present, then applies environment overrides.
// The result is immutable from the core's viewpoint.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		d := yaml.NewDecoder(file)
		if err := d.Decode(cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			WsURL:   "ws://127.0.0.1:8545",
			ChainID: common.DefaultChainID,
		},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0"},
		NATS:     NATSConfig{URL: "nats://localhost:4222"},
		LogLevel: "info",
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHAIN_WS_URL"); v != "" {
		c.Chain.WsURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

// GetIntervals parses the configured interval names; an empty list enables
// every supported interval.
func (c *Config) GetIntervals() ([]models.Interval, error) {
	if len(c.Engine.Intervals) == 0 {
		return models.AllIntervals(), nil
	}
	out := make([]models.Interval, 0, len(c.Engine.Intervals))
	for _, name := range c.Engine.Intervals {
		iv, err := models.ParseInterval(name)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func (c *Config) GetSnapshotWindow() time.Duration {
	if c.Engine.SnapshotWindowHour <= 0 {
		return common.DefaultSnapshotWindowHours * time.Hour
	}
	return time.Duration(c.Engine.SnapshotWindowHour) * time.Hour
}

func (c *Config) GetRetainBuckets() int {
	if c.Engine.RetainBuckets <= 0 {
		return common.DefaultRetainBuckets
	}
	return c.Engine.RetainBuckets
}

func (c *Config) GetLaneQueueSize() int {
	if c.Engine.LaneQueueSize <= 0 {
		return common.DefaultLaneQueueSize
	}
	return c.Engine.LaneQueueSize
}

func (c *Config) GetFanoutQueueSize() int {
	if c.Engine.FanoutQueueSize <= 0 {
		return common.DefaultFanoutQueueSize
	}
	return c.Engine.FanoutQueueSize
}

func (c *Config) GetFlushInterval() time.Duration {
	if c.Engine.FlushIntervalSec <= 0 {
		return common.DefaultFlushIntervalSec * time.Second
	}
	return time.Duration(c.Engine.FlushIntervalSec) * time.Second
}

func (c *Config) GetIdlePairTimeout() time.Duration {
	if c.Engine.IdlePairTimeoutSec <= 0 {
		return common.DefaultIdlePairTimeoutSec * time.Second
	}
	return time.Duration(c.Engine.IdlePairTimeoutSec) * time.Second
}

func (c *Config) GetPingInterval() time.Duration {
	if c.Chain.PingIntervalSec <= 0 {
		return common.DefaultPingIntervalSec * time.Second
	}
	return time.Duration(c.Chain.PingIntervalSec) * time.Second
}

func (c *Config) GetReconnectInterval() time.Duration {
	if c.Chain.ReconnectIntervalSec <= 0 {
		return common.DefaultReconnectIntervalSec * time.Second
	}
	return time.Duration(c.Chain.ReconnectIntervalSec) * time.Second
}

func (c *Config) GetMaxReconnectDelay() time.Duration {
	if c.Chain.MaxReconnectDelaySec <= 0 {
		return common.DefaultMaxReconnectDelaySec * time.Second
	}
	return time.Duration(c.Chain.MaxReconnectDelaySec) * time.Second
}

func (c *Config) GetNATSReconnectWait() time.Duration {
	if c.NATS.ReconnectWaitSec <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.NATS.ReconnectWaitSec) * time.Second
}
