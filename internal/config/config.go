package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/packsync/internal/fsutil"
)

const appName = "packsync"

// Config represents the complete packsync configuration
type Config struct {
	Source SourceConfig `yaml:"source" toml:"source"`
	Paths  PathsConfig  `yaml:"paths" toml:"paths"`
	Sync   SyncConfig   `yaml:"sync" toml:"sync"`
	Serve  ServeConfig  `yaml:"serve" toml:"serve"`
}

// SourceConfig configures where releases come from and how bundles are laid out
type SourceConfig struct {
	ReleaseURL string `yaml:"release_url" toml:"release_url"`
	UserAgent  string `yaml:"user_agent" toml:"user_agent"`
	TokenFile  string `yaml:"token_file" toml:"token_file"`
	BundleExt  string `yaml:"bundle_ext" toml:"bundle_ext"`
	PayloadExt string `yaml:"payload_ext" toml:"payload_ext"`
	IndexName  string `yaml:"index_name" toml:"index_name"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	StateFile string `yaml:"state_file" toml:"state_file"`
	CacheDir  string `yaml:"cache_dir" toml:"cache_dir"`
}

// SyncConfig configures worker pools and network behavior
type SyncConfig struct {
	HashWorkers     int    `yaml:"hash_workers" toml:"hash_workers"`
	ExtractWorkers  int    `yaml:"extract_workers" toml:"extract_workers"`
	DownloadWorkers int    `yaml:"download_workers" toml:"download_workers"`
	DigestCacheSize int    `yaml:"digest_cache_size" toml:"digest_cache_size"`
	RequestTimeout  string `yaml:"request_timeout" toml:"request_timeout"`
}

// ServeConfig configures the long-running webhook/poll mode
type ServeConfig struct {
	ListenAddr              string   `yaml:"listen_addr" toml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file" toml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types" toml:"allowed_event_types"`
	AllowedActions          []string `yaml:"allowed_actions" toml:"allowed_actions"`
	PollInterval            string   `yaml:"poll_interval" toml:"poll_interval"`
	// SocketName selects the systemd activated socket by FileDescriptorName=
	SocketName string `yaml:"socket_name" toml:"socket_name"`
}

// DefaultPath returns $XDG_CONFIG_HOME/packsync/config.yaml
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// Load reads and parses the configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg to path in the format implied by its extension
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if _, err := fsutil.WriteFileAtomic(path, bytes.NewReader(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// New returns a configuration for releaseURL with every default applied
func New(releaseURL string) *Config {
	cfg := &Config{Source: SourceConfig{ReleaseURL: releaseURL}}
	cfg.applyDefaults()
	return cfg
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Source.ReleaseURL = os.ExpandEnv(c.Source.ReleaseURL)
	c.Source.TokenFile = os.ExpandEnv(c.Source.TokenFile)
	c.Paths.StateFile = os.ExpandEnv(c.Paths.StateFile)
	c.Paths.CacheDir = os.ExpandEnv(c.Paths.CacheDir)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = appName
	}
	if c.Source.BundleExt == "" {
		c.Source.BundleExt = ".zip"
	}
	if c.Source.PayloadExt == "" {
		c.Source.PayloadExt = ".mrpack"
	}
	if c.Source.IndexName == "" {
		c.Source.IndexName = "modrinth.index.json"
	}
	if c.Paths.StateFile == "" {
		c.Paths.StateFile = filepath.Join(xdg.StateHome, appName, "state.json")
	}
	if c.Paths.CacheDir == "" {
		c.Paths.CacheDir = filepath.Join(xdg.CacheHome, appName)
	}
	if c.Sync.HashWorkers == 0 {
		c.Sync.HashWorkers = 8
	}
	if c.Sync.ExtractWorkers == 0 {
		c.Sync.ExtractWorkers = 4
	}
	if c.Sync.DownloadWorkers == 0 {
		c.Sync.DownloadWorkers = 4
	}
	if c.Sync.DigestCacheSize == 0 {
		c.Sync.DigestCacheSize = 4096
	}
	if c.Sync.RequestTimeout == "" {
		c.Sync.RequestTimeout = "5m"
	}
	if len(c.Serve.AllowedEventTypes) == 0 {
		c.Serve.AllowedEventTypes = []string{"release"}
	}
	if len(c.Serve.AllowedActions) == 0 {
		c.Serve.AllowedActions = []string{"published", "released"}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Source.ReleaseURL == "" {
		return fmt.Errorf("source.release_url is required")
	}
	if !strings.HasPrefix(c.Source.ReleaseURL, "https://") && !strings.HasPrefix(c.Source.ReleaseURL, "http://") {
		return fmt.Errorf("source.release_url must be an http(s) URL: %s", c.Source.ReleaseURL)
	}
	if !strings.HasPrefix(c.Source.BundleExt, ".") || !strings.HasPrefix(c.Source.PayloadExt, ".") {
		return fmt.Errorf("source.bundle_ext and source.payload_ext must start with a dot")
	}

	if !filepath.IsAbs(c.Paths.StateFile) {
		return fmt.Errorf("paths.state_file must be an absolute path: %s", c.Paths.StateFile)
	}
	if !filepath.IsAbs(c.Paths.CacheDir) {
		return fmt.Errorf("paths.cache_dir must be an absolute path: %s", c.Paths.CacheDir)
	}

	if c.Sync.HashWorkers < 0 || c.Sync.ExtractWorkers < 0 || c.Sync.DownloadWorkers < 0 {
		return fmt.Errorf("sync worker counts must not be negative")
	}
	if c.Sync.DigestCacheSize < 0 {
		return fmt.Errorf("sync.digest_cache_size must not be negative")
	}
	if _, err := time.ParseDuration(c.Sync.RequestTimeout); err != nil {
		return fmt.Errorf("invalid sync.request_timeout: %w", err)
	}

	if c.Serve.PollInterval != "" {
		d, err := time.ParseDuration(c.Serve.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid serve.poll_interval: %w", err)
		}
		if d < time.Minute {
			return fmt.Errorf("serve.poll_interval must be at least 1m, got %s", d)
		}
	}

	return nil
}

// ValidateServe checks the settings only serve mode needs
func (c *Config) ValidateServe() error {
	if c.Serve.ListenAddr == "" && c.Serve.PollInterval == "" {
		return fmt.Errorf("serve needs serve.listen_addr, serve.poll_interval, or both")
	}
	if c.Serve.ListenAddr != "" && c.Serve.GitHubWebhookSecretFile == "" {
		return fmt.Errorf("serve.github_webhook_secret_file is required when serve.listen_addr is set")
	}
	return nil
}

// RequestTimeout returns the parsed per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Sync.RequestTimeout)
	return d
}

// PollInterval returns the parsed poll interval, or 0 when polling is off
func (c *Config) PollInterval() time.Duration {
	if c.Serve.PollInterval == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Serve.PollInterval)
	return d
}
