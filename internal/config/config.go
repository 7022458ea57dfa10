// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Fetch policy fallbacks applied by Normalize. Malformed policy values
// degrade to these instead of failing startup; a broken config must never
// stop the site build.
const (
	defaultFetchTimeout       = 168 * time.Hour
	defaultMaxEntriesPerBatch = 10
	defaultProxyRotations     = 3
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Scholar      ScholarConfig      `mapstructure:"scholar"`
	Proxy        ProxyConfig        `mapstructure:"proxy"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Bibliography BibliographyConfig `mapstructure:"bibliography"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ScholarConfig governs the citation fetch pipeline.
type ScholarConfig struct {
	Active             bool          `mapstructure:"active"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	MaxEntriesPerBatch int           `mapstructure:"max_entries_per_batch"`
	PauseMin           time.Duration `mapstructure:"pause_min"`
	PauseMax           time.Duration `mapstructure:"pause_max"`
	AuthorPrefetch     bool          `mapstructure:"author_prefetch"`
	HeadlessFallback   bool          `mapstructure:"headless_fallback"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	// BaseURL overrides the citation source endpoint, empty means the
	// real one. Used by integration tests pointing at a local server.
	BaseURL string `mapstructure:"base_url"`
}

// ProxyConfig describes the egress path pool and its pacing.
type ProxyConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URLs        []string      `mapstructure:"urls"`
	Rotations   int           `mapstructure:"rotations"`
	PerPathRate time.Duration `mapstructure:"per_path_rate"`
	Burst       int           `mapstructure:"burst"`
}

// CacheConfig sets where the citation cache lives on disk.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

// BibliographyConfig sets where the publication list is read from.
type BibliographyConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// RefreshInterval schedules background refresh runs while serving.
	// Zero disables the ticker; runs then only happen via the CLI.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCHOLAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scholar.active", true)
	v.SetDefault("scholar.fetch_timeout", "168h")
	v.SetDefault("scholar.max_entries_per_batch", 10)
	v.SetDefault("scholar.pause_min", "10s")
	v.SetDefault("scholar.pause_max", "60s")
	v.SetDefault("scholar.author_prefetch", true)
	v.SetDefault("scholar.headless_fallback", true)
	v.SetDefault("scholar.request_timeout", "30s")
	v.SetDefault("scholar.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.urls", []string{})
	v.SetDefault("proxy.rotations", 3)
	v.SetDefault("proxy.per_path_rate", "10s")
	v.SetDefault("proxy.burst", 1)
	v.SetDefault("cache.path", "google_scholar_cache.yaml")
	v.SetDefault("bibliography.path", "publications.yaml")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8077)
	v.SetDefault("server.refresh_interval", "0s")
	v.SetDefault("logging.development", true)
}

// Validate enforces the structural values the process cannot run without.
// Fetch policy values are never validated here; Normalize degrades them.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scholar.RequestTimeout <= 0 {
		return fmt.Errorf("scholar.request_timeout must be > 0")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path must be set")
	}
	if c.Bibliography.Path == "" {
		return fmt.Errorf("bibliography.path must be set")
	}
	return nil
}

// Normalize degrades malformed fetch policy settings to safe defaults
// instead of failing the whole startup. It returns the adjusted copy and
// logs every change.
func (c Config) Normalize(logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}

	if c.Scholar.FetchTimeout <= 0 {
		logger.Warn("Non-positive scholar.fetch_timeout, using default",
			zap.Duration("fetch_timeout", c.Scholar.FetchTimeout),
			zap.Duration("default", defaultFetchTimeout))
		c.Scholar.FetchTimeout = defaultFetchTimeout
	}
	if c.Scholar.MaxEntriesPerBatch <= 0 {
		logger.Warn("Non-positive scholar.max_entries_per_batch, using default",
			zap.Int("max_entries_per_batch", c.Scholar.MaxEntriesPerBatch),
			zap.Int("default", defaultMaxEntriesPerBatch))
		c.Scholar.MaxEntriesPerBatch = defaultMaxEntriesPerBatch
	}
	if c.Scholar.PauseMin < 0 {
		logger.Warn("Negative scholar.pause_min, using zero",
			zap.Duration("pause_min", c.Scholar.PauseMin))
		c.Scholar.PauseMin = 0
	}
	if c.Scholar.PauseMax < c.Scholar.PauseMin {
		logger.Warn("scholar.pause_max below pause_min, raising it",
			zap.Duration("pause_min", c.Scholar.PauseMin),
			zap.Duration("pause_max", c.Scholar.PauseMax))
		c.Scholar.PauseMax = c.Scholar.PauseMin
	}

	if c.Proxy.Enabled && len(trimNonEmpty(c.Proxy.URLs)) == 0 {
		logger.Warn("Proxy use requested without proxy URLs, falling back to direct fetching")
		c.Proxy.Enabled = false
	}
	if c.Proxy.Rotations <= 0 {
		logger.Warn("Non-positive proxy.rotations, using default",
			zap.Int("rotations", c.Proxy.Rotations),
			zap.Int("default", defaultProxyRotations))
		c.Proxy.Rotations = defaultProxyRotations
	}

	return c
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
