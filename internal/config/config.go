// Package config loads the application configuration from an optional
// YAML file, CONTACT_-prefixed environment variables, and defaults.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`
	Website  WebsiteConfig  `yaml:"website" mapstructure:"website"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ResolverConfig controls the resolution pipeline.
type ResolverConfig struct {
	MaxRetries            int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelaySecs        int     `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	EnableSimilarSearch   bool    `yaml:"enable_similar_search" mapstructure:"enable_similar_search"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	EnableWebsiteScraping bool    `yaml:"enable_website_scraping" mapstructure:"enable_website_scraping"`
	PreservePhoneFormat   bool    `yaml:"preserve_phone_format" mapstructure:"preserve_phone_format"`
	DefaultRegion         string  `yaml:"default_region" mapstructure:"default_region"`
	UseCache              bool    `yaml:"use_cache" mapstructure:"use_cache"`
	CacheDays             int     `yaml:"cache_days" mapstructure:"cache_days"`
}

// CacheConfig configures the result cache backend.
type CacheConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	Path        string     `yaml:"path" mapstructure:"path"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// SearchConfig configures the listing and alternative search surfaces.
type SearchConfig struct {
	MapsBaseURL   string `yaml:"maps_base_url" mapstructure:"maps_base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IdentityConfig configures outbound identity rotation.
type IdentityConfig struct {
	UseRotatingIdentities bool   `yaml:"use_rotating_identities" mapstructure:"use_rotating_identities"`
	UseProxies            bool   `yaml:"use_proxies" mapstructure:"use_proxies"`
	ProxyListURL          string `yaml:"proxy_list_url" mapstructure:"proxy_list_url"`
}

// WebsiteConfig configures website enrichment.
type WebsiteConfig struct {
	MaxPages          int    `yaml:"max_pages" mapstructure:"max_pages"`
	KnownContactsPath string `yaml:"known_contacts_path" mapstructure:"known_contacts_path"`
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	SnapshotDir          string `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`
	SnapshotItems        int    `yaml:"snapshot_items" mapstructure:"snapshot_items"`
	SnapshotIntervalSecs int    `yaml:"snapshot_interval_secs" mapstructure:"snapshot_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resolver.max_retries", 3)
	v.SetDefault("resolver.retry_delay_secs", 2)
	v.SetDefault("resolver.enable_similar_search", true)
	v.SetDefault("resolver.similarity_threshold", 0.6)
	v.SetDefault("resolver.enable_website_scraping", true)
	v.SetDefault("resolver.preserve_phone_format", false)
	v.SetDefault("resolver.default_region", "ID")
	v.SetDefault("resolver.use_cache", true)
	v.SetDefault("resolver.cache_days", 30)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", "contact_cache.db")
	v.SetDefault("cache.pool.max_conns", 4)
	v.SetDefault("cache.pool.min_conns", 1)
	v.SetDefault("search.maps_base_url", "https://www.google.com/maps/search/")
	v.SetDefault("search.search_base_url", "https://www.google.com/search")
	v.SetDefault("search.timeout_secs", 20)
	v.SetDefault("identity.use_rotating_identities", true)
	v.SetDefault("identity.use_proxies", false)
	v.SetDefault("identity.proxy_list_url", "https://free-proxy-list.net/")
	v.SetDefault("website.max_pages", 3)
	v.SetDefault("batch.snapshot_items", 10)
	v.SetDefault("batch.snapshot_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Resolver.MaxRetries < 1 {
		return eris.Errorf("config: resolver.max_retries must be >= 1, got %d", c.Resolver.MaxRetries)
	}
	if t := c.Resolver.SimilarityThreshold; t < 0 || t > 1 {
		return eris.Errorf("config: resolver.similarity_threshold must be in [0, 1], got %v", t)
	}
	if c.Resolver.CacheDays < 1 {
		return eris.Errorf("config: resolver.cache_days must be >= 1, got %d", c.Resolver.CacheDays)
	}
	switch c.Cache.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown cache.driver %q", c.Cache.Driver)
	}
	if c.Cache.Driver == "postgres" && c.Cache.DatabaseURL == "" {
		return eris.New("config: cache.database_url is required with the postgres driver")
	}
	if c.Website.MaxPages < 1 {
		return eris.Errorf("config: website.max_pages must be >= 1, got %d", c.Website.MaxPages)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
