package cacheproxy

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the core: the two cache size bounds, the
// concurrency permit count, the read/connect/write timeouts spec.md §5
// suggests adding, and an optional Prometheus exposition address. None of
// this is reachable from the CLI's single positional port argument
// (spec.md §6.1) — it is loaded, if present, from a YAML file named by
// $PROXY_CONFIG, with environment-variable substitution applied first.
type Config struct {
	MaxEntryBytes int64 `yaml:"max_entry_bytes"`
	MaxTotalBytes int64 `yaml:"max_total_bytes"`

	MaxClients int `yaml:"max_clients"`

	ClientReadTimeout  time.Duration `yaml:"client_read_timeout"`
	ClientWriteTimeout time.Duration `yaml:"client_write_timeout"`
	UpstreamTimeout    time.Duration `yaml:"upstream_timeout"`

	DNSCacheTTL time.Duration `yaml:"dns_cache_ttl"`

	EnableMetrics bool   `yaml:"enable_metrics"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// DefaultConfig returns spec.md's stated defaults: 10 KiB per entry,
// 200 MiB aggregate, 10 concurrent workers, 30s timeouts.
func DefaultConfig() *Config {
	return &Config{
		MaxEntryBytes:      10 * 1024,
		MaxTotalBytes:      200 * 1024 * 1024,
		MaxClients:         10,
		ClientReadTimeout:  30 * time.Second,
		ClientWriteTimeout: 30 * time.Second,
		UpstreamTimeout:    30 * time.Second,
		DNSCacheTTL:        60 * time.Second,
		EnableMetrics:      true,
	}
}

// LoadConfig returns the defaults, optionally overridden by the YAML file
// at $PROXY_CONFIG. It is not an error for that environment variable to
// be unset or empty — the proxy runs fine on defaults alone, matching
// spec.md's CLI contract of "port, and nothing else, is required".
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("PROXY_CONFIG")
	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	substituted := substituteEnvVars(string(raw))
	if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default} occurrences in a
// YAML config file's raw text before it is parsed.
func substituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// Validate rejects nonsensical tunables before they reach the Cache Store
// or Acceptor.
func (c *Config) Validate() error {
	var problems []string

	if c.MaxEntryBytes <= 0 {
		problems = append(problems, fmt.Sprintf("max_entry_bytes must be positive, got %d", c.MaxEntryBytes))
	}
	if c.MaxTotalBytes <= 0 {
		problems = append(problems, fmt.Sprintf("max_total_bytes must be positive, got %d", c.MaxTotalBytes))
	}
	if c.MaxEntryBytes > 0 && c.MaxTotalBytes > 0 && c.MaxEntryBytes > c.MaxTotalBytes {
		problems = append(problems, "max_entry_bytes must not exceed max_total_bytes")
	}
	if c.MaxClients <= 0 {
		problems = append(problems, fmt.Sprintf("max_clients must be positive, got %d", c.MaxClients))
	}
	if c.ClientReadTimeout <= 0 {
		problems = append(problems, "client_read_timeout must be positive")
	}
	if c.ClientWriteTimeout <= 0 {
		problems = append(problems, "client_write_timeout must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		problems = append(problems, "upstream_timeout must be positive")
	}
	if c.DNSCacheTTL <= 0 {
		problems = append(problems, "dns_cache_ttl must be positive")
	}

	if len(problems) == 0 {
		return nil
	}

	err := fmt.Errorf("%s", problems[0])
	for _, p := range problems[1:] {
		err = fmt.Errorf("%w; %s", err, p)
	}
	return err
}
