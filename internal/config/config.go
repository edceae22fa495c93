package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model. It captures the client
// listener, the operational sidecar, the reward economy, persistence, and
// the reward-announcement multicast group.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Ops         OpsConfig         `yaml:"ops"`
	Rewards     RewardsConfig     `yaml:"rewards"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Multicast   MulticastConfig   `yaml:"multicast"`
}

type ServerConfig struct {
	// Bind is the client listener address, e.g. "0.0.0.0:6734".
	Bind string `yaml:"bind"`
	// Workers bounds the pool executing router dispatch off the event loop.
	Workers int `yaml:"workers"`
	// ReadChunk is the per-read buffer size in bytes.
	ReadChunk int `yaml:"readChunk"`
	// AcceptRate limits accepted connections per second. 0 disables.
	AcceptRate float64 `yaml:"acceptRate"`
	// AcceptBurst is the throttle burst when AcceptRate is set.
	AcceptBurst int `yaml:"acceptBurst"`
}

type OpsConfig struct {
	// Bind is the metrics/health sidecar address. Empty disables it.
	Bind string `yaml:"bind"`
}

type RewardsConfig struct {
	Interval   Duration `yaml:"interval"`
	AuthorCut  float64  `yaml:"authorCut"`
	CuratorCut float64  `yaml:"curatorCut"`
	// Normalization scales a post's per-cycle score into wallet currency.
	Normalization float64 `yaml:"normalization"`
}

type PersistenceConfig struct {
	Interval Duration `yaml:"interval"`
	// ArchiveDSN is a postgres DSN for the snapshot archive. If empty,
	// no GROVE_ARCHIVE_DSN is set either, snapshots are not archived.
	ArchiveDSN string `yaml:"archiveDSN"`
}

type MulticastConfig struct {
	Group string `yaml:"group"`
	Port  int    `yaml:"port"`
}

// Duration wraps time.Duration so YAML can carry values like "5m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:        "0.0.0.0:6734",
			Workers:     8,
			ReadChunk:   4096,
			AcceptRate:  0,
			AcceptBurst: 32,
		},
		Ops: OpsConfig{Bind: ":9091"},
		Rewards: RewardsConfig{
			Interval:      Duration(5 * time.Minute),
			AuthorCut:     0.7,
			CuratorCut:    0.3,
			Normalization: 1.0,
		},
		Persistence: PersistenceConfig{
			Interval:   Duration(10 * time.Minute),
			ArchiveDSN: "",
		},
		Multicast: MulticastConfig{Group: "239.255.32.32", Port: 44444},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("GROVE_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("GROVE_OPS_BIND"); v != "" {
		c.Ops.Bind = v
	}
	if c.Persistence.ArchiveDSN == "" {
		c.Persistence.ArchiveDSN = os.Getenv("GROVE_ARCHIVE_DSN")
	}
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if c.Server.Workers < 1 {
		return errors.New("server.workers must be at least 1")
	}
	if c.Server.ReadChunk < 1 {
		return errors.New("server.readChunk must be positive")
	}
	if c.Rewards.Interval <= 0 || c.Persistence.Interval <= 0 {
		return errors.New("rewards.interval and persistence.interval must be positive")
	}
	if c.Rewards.AuthorCut < 0 || c.Rewards.CuratorCut < 0 {
		return errors.New("reward cuts must be non-negative")
	}
	if math.Abs(c.Rewards.AuthorCut+c.Rewards.CuratorCut-1.0) > 1e-9 {
		return fmt.Errorf("authorCut (%v) + curatorCut (%v) must equal 1.0",
			c.Rewards.AuthorCut, c.Rewards.CuratorCut)
	}
	if c.Rewards.Normalization <= 0 {
		return errors.New("rewards.normalization must be positive")
	}
	return nil
}

// Load reads YAML config from path and applies the env overlay.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
