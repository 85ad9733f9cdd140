// Package config provides configuration loading and hot reload.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/jassus213/go-window-limiter/store"
	"gopkg.in/yaml.v3"
)

// ErrUnknownPolicy is returned when a policy name is not configured.
var ErrUnknownPolicy = errors.New("unknown policy")

// Config is the root configuration.
type Config struct {
	Redis    RedisConfig                   `yaml:"redis"`
	Limiter  LimiterConfig                 `yaml:"limiter"`
	Policies map[string][]ratelimiter.Rule `yaml:"policies"`
	Server   ServerConfig                  `yaml:"server"`
	Logging  LoggingConfig                 `yaml:"logging"`
}

// RedisConfig describes the Redis deployment holding the counters.
type RedisConfig struct {
	Addrs       []string      `yaml:"addrs"`
	Username    string        `yaml:"username,omitempty"`
	Password    string        `yaml:"password,omitempty"`
	DB          int           `yaml:"db"`
	TLS         bool          `yaml:"tls"`
	Cluster     bool          `yaml:"cluster"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LimiterConfig controls how decisions are made.
type LimiterConfig struct {
	Strategy string        `yaml:"strategy"` // "auto", "script", "pipeline" or "memory"
	Timeout  time.Duration `yaml:"timeout"`
	FailOpen bool          `yaml:"fail_open"`
	// KeyHeader names the header identifying clients; empty means remote address.
	KeyHeader string `yaml:"key_header"`
	// Policy is applied by the demo API served by `windowlimit serve`.
	Policy string `yaml:"policy"`
}

// ServerConfig holds the listen addresses.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	AdminListen  string        `yaml:"admin_listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies WINDOWLIMIT_* overrides and
// defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies WINDOWLIMIT_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WINDOWLIMIT_REDIS_ADDRS"); v != "" {
		cfg.Redis.Addrs = splitList(v)
	}
	if v := os.Getenv("WINDOWLIMIT_REDIS_USERNAME"); v != "" {
		cfg.Redis.Username = v
	}
	if v := os.Getenv("WINDOWLIMIT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WINDOWLIMIT_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("WINDOWLIMIT_REDIS_CLUSTER"); v != "" {
		cfg.Redis.Cluster = parseBool(v)
	}

	if v := os.Getenv("WINDOWLIMIT_STRATEGY"); v != "" {
		cfg.Limiter.Strategy = v
	}
	if v := os.Getenv("WINDOWLIMIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Limiter.Timeout = d
		}
	}
	if v := os.Getenv("WINDOWLIMIT_FAIL_OPEN"); v != "" {
		cfg.Limiter.FailOpen = parseBool(v)
	}

	if v := os.Getenv("WINDOWLIMIT_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("WINDOWLIMIT_ADMIN_LISTEN"); v != "" {
		cfg.Server.AdminListen = v
	}

	if v := os.Getenv("WINDOWLIMIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WINDOWLIMIT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func setDefaults(cfg *Config) {
	if len(cfg.Redis.Addrs) == 0 {
		cfg.Redis.Addrs = []string{"localhost:6379"}
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Limiter.Strategy == "" {
		cfg.Limiter.Strategy = string(store.StrategyAuto)
	}
	if cfg.Limiter.Timeout == 0 {
		cfg.Limiter.Timeout = 250 * time.Millisecond
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.AdminListen == "" {
		cfg.Server.AdminListen = ":9090"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration. Every policy is normalized, so a
// malformed rule surfaces here as a *ratelimiter.ConfigError rather than on
// the first request.
func (c *Config) Validate() error {
	if _, err := store.ParseStrategy(c.Limiter.Strategy); err != nil {
		return err
	}
	if c.Limiter.Timeout < 0 {
		return errors.New("limiter.timeout must not be negative")
	}
	if len(c.Policies) == 0 {
		return errors.New("at least one policy is required")
	}
	for _, name := range c.PolicyNames() {
		if strings.TrimSpace(name) == "" {
			return errors.New("policy names must not be empty")
		}
		if _, err := ratelimiter.Normalize(c.Policies[name]...); err != nil {
			return fmt.Errorf("policy %q: %w", name, err)
		}
	}
	if c.Limiter.Policy != "" {
		if _, ok := c.Policies[c.Limiter.Policy]; !ok {
			return fmt.Errorf("limiter.policy: %w: %q", ErrUnknownPolicy, c.Limiter.Policy)
		}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// Policy returns the rules configured under name.
func (c *Config) Policy(name string) ([]ratelimiter.Rule, error) {
	rules, ok := c.Policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return rules, nil
}

// PolicyNames returns the configured policy names in sorted order.
func (c *Config) PolicyNames() []string {
	names := make([]string, 0, len(c.Policies))
	for name := range c.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Strategy returns the parsed limiter strategy.
func (c *Config) Strategy() store.Strategy {
	s, _ := store.ParseStrategy(c.Limiter.Strategy)
	return s
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
