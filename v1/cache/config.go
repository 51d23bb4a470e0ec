package cache

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file representation of the cache options. Durations are
// strings understood by ParseDuration.
//
// In YAML a plain scalar is shorthand for a config holding only Expire:
//
//	cache: 10 minutes
//
// is the same as
//
//	cache:
//	  expire: 10 minutes
type Config struct {
	Name     string `yaml:"name" json:"name"`
	Expire   string `yaml:"expire" json:"expire"`
	Interval string `yaml:"interval" json:"interval"`
	Manually bool   `yaml:"manually" json:"manually"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (cfg *Config) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*cfg = Config{Expire: node.Value}
		return nil
	}
	type plain Config
	return node.Decode((*plain)(cfg))
}

// ParseConfig decodes a YAML document into a Config.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse cache config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and decodes the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read cache config: %w", err)
	}
	return ParseConfig(data)
}

// Options converts cfg into cache options. Empty durations keep the defaults;
// durations that do not parse become zero and are reported with slog.
func (cfg Config) Options() []Option {
	var opts []Option
	if cfg.Name != "" {
		opts = append(opts, WithName(cfg.Name))
	}
	if cfg.Expire != "" {
		opts = append(opts, WithDefaultTTL(parseConfigDuration("expire", cfg.Expire)))
	}
	if cfg.Interval != "" {
		opts = append(opts, WithSweepInterval(parseConfigDuration("interval", cfg.Interval)))
	}
	if cfg.Manually {
		opts = append(opts, WithManualStart())
	}
	return opts
}

func parseConfigDuration(field, value string) time.Duration {
	d := ParseDuration(value)
	if d == 0 {
		slog.Warn("expirable: unparseable duration in config, using 0", "field", field, "value", value)
	}
	return d
}

// NewFromConfig builds a cache from cfg. opts are applied after the options
// derived from cfg.
func NewFromConfig[T any](cfg Config, opts ...Option) *Expiring[T] {
	return New[T](append(cfg.Options(), opts...)...)
}
