package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMetricsAddr = ":9090"
	defaultLogLevel    = "info"
	defaultLogEnv      = "prod"
)

type Config struct {
	SyncInterval time.Duration `yaml:"syncInterval"`
	MetricsAddr  string        `yaml:"metricsAddr"`
	Log          Log           `yaml:"log"`
	DNS          DNS           `yaml:"dns"`
	Endpoints    Endpoints     `yaml:"endpoints"`
	Reconcile    Reconcile     `yaml:"reconcile"`
}

type DNS struct {
	ZoneID string   `yaml:"zoneId"`
	Token  string   `yaml:"token"`
	Hosts  []string `yaml:"hosts"`
}

// Endpoints are the external IP discovery URLs, one per address family.
// Each must return the bare textual address of its family.
type Endpoints struct {
	IPv4 string `yaml:"ipv4"`
	IPv6 string `yaml:"ipv6"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type Reconcile struct {
	CreateMissing bool `yaml:"createMissing"`
	DryRun        bool `yaml:"dryRun"`
}

// Load reads the optional config file and applies environment
// overrides. A missing file is fine, the environment alone can carry
// the full configuration; a malformed file or environment value is not.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Default().Warn("fail find config file, using environment only", "path", path)
	case err != nil:
		return nil, err
	default:
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			f.Close()
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = defaultMetricsAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if zoneID := os.Getenv("DDNS_SYNC_ZONE_ID"); zoneID != "" {
		c.DNS.ZoneID = zoneID
	}
	if token := os.Getenv("DDNS_SYNC_API_TOKEN"); token != "" {
		c.DNS.Token = token
	}
	if hosts := os.Getenv("DDNS_SYNC_HOSTS"); hosts != "" {
		c.DNS.Hosts = SplitHosts(hosts)
	}
	if endpoint := os.Getenv("DDNS_SYNC_IPV4_ENDPOINT"); endpoint != "" {
		c.Endpoints.IPv4 = endpoint
	}
	if endpoint := os.Getenv("DDNS_SYNC_IPV6_ENDPOINT"); endpoint != "" {
		c.Endpoints.IPv6 = endpoint
	}
	if interval := os.Getenv("DDNS_SYNC_INTERVAL_SECONDS"); interval != "" {
		secs, err := strconv.Atoi(interval)
		if err != nil || secs < 0 {
			return fmt.Errorf("parse DDNS_SYNC_INTERVAL_SECONDS %q: want a non-negative integer", interval)
		}
		c.SyncInterval = time.Duration(secs) * time.Second
	}
	if create := os.Getenv("DDNS_SYNC_CREATE_MISSING"); create != "" {
		b, err := strconv.ParseBool(create)
		if err != nil {
			return fmt.Errorf("parse DDNS_SYNC_CREATE_MISSING %q: %w", create, err)
		}
		c.Reconcile.CreateMissing = b
	}
	if dryRun := os.Getenv("DDNS_SYNC_DRYRUN"); dryRun != "" {
		b, err := strconv.ParseBool(dryRun)
		if err != nil {
			return fmt.Errorf("parse DDNS_SYNC_DRYRUN %q: %w", dryRun, err)
		}
		c.Reconcile.DryRun = b
	}
	if addr := os.Getenv("DDNS_SYNC_METRICS_ADDR"); addr != "" {
		c.MetricsAddr = addr
	}
	if level := os.Getenv("DDNS_SYNC_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if env := os.Getenv("DDNS_SYNC_LOG_ENV"); env != "" {
		c.Log.Env = env
	}
	return nil
}

// Validate enforces the settings without which no reconciliation can
// run. It also collapses duplicate host names so the engine reconciles
// each host once per family per pass.
func (c *Config) Validate() error {
	if c.DNS.ZoneID == "" {
		return errors.New("dns zone id is required")
	}
	if c.DNS.Token == "" {
		return errors.New("dns api token is required")
	}
	c.DNS.Hosts = dedupeHosts(c.DNS.Hosts)
	if len(c.DNS.Hosts) == 0 {
		return errors.New("at least one host is required")
	}
	if c.Endpoints.IPv4 == "" && c.Endpoints.IPv6 == "" {
		return errors.New("at least one IP discovery endpoint must be configured")
	}
	return nil
}

// SplitHosts parses the `;`-separated host list form used by the
// environment. Empty entries are dropped.
func SplitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ";") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// dedupeHosts drops duplicates while keeping first-seen order, so
// per-pass iteration stays stable.
func dedupeHosts(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	var out []string
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
