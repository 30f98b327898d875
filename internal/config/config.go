// Package config is the configuration shared by the server and the cli,
// read from config.json5 with config.local.json5 overrides.
package config

import (
	"path/filepath"
	"time"

	"pys-backend/internal/notify"
	"pys-backend/internal/pull"
	"pys-backend/internal/scrapers/pys"
	"pys-backend/internal/scrapers/satcatalog"
	"pys-backend/internal/service"
	"pys-backend/pkg/configutil"
	"pys-backend/pkg/migrations"
)

const DefaultPort = 8000

type PullConfig struct {
	// ArtifactPath is the persisted JSON tree, its ".lock" sibling is the
	// in-progress marker.
	ArtifactPath string `json:"artifact_path"`
	XmlPath      string `json:"xml_path"`
	// StalenessHours is how long an artifact blocks unforced pulls.
	StalenessHours int `json:"staleness_hours" validate:"gte=0"`
	// MarkerTimeoutMinutes expires abandoned markers, 0 never expires them.
	MarkerTimeoutMinutes int `json:"marker_timeout_minutes" validate:"gte=0"`
	// Schedule is a cron spec for unforced pulls, empty disables it.
	Schedule string `json:"schedule"`
	OnStart  bool   `json:"on_start"`
}

type ScraperConfig struct {
	FormUrl           string  `json:"form_url" validate:"omitempty,url"`
	TimeoutSeconds    int     `json:"timeout_seconds" validate:"gte=0"`
	UserAgent         string  `json:"user_agent"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	RequestsPerSecond float64 `json:"requests_per_second" validate:"gte=0"`
}

type CatalogConfig struct {
	Enabled bool `json:"enabled"`
	// UrlTemplate contains a {date} placeholder.
	UrlTemplate  string `json:"url_template"`
	CacheDir     string `json:"cache_dir"`
	LookbackDays int    `json:"lookback_days" validate:"gte=0"`
	Schedule     string `json:"schedule"`
	OnStart      bool   `json:"on_start"`
}

type SearchConfig struct {
	CacheSize       int `json:"cache_size" validate:"gte=0"`
	CacheTTLMinutes int `json:"cache_ttl_minutes" validate:"gte=0"`
}

type Config struct {
	Port           int                 `json:"port" validate:"gte=0,lte=65535"`
	AllowedOrigins []string            `json:"allowed_origins"`
	Database       migrations.Config   `json:"database"`
	Pull           PullConfig          `json:"pull"`
	Scraper        ScraperConfig       `json:"scraper"`
	Catalog        CatalogConfig       `json:"catalog"`
	Search         SearchConfig        `json:"search"`
	Minio          *notify.MinioConfig `json:"minio" validate:"omitempty"`
	Amqp           *notify.AmqpConfig  `json:"amqp" validate:"omitempty"`
}

// ApplyDefaults fills every unset field that has a default, relative paths
// are left untouched.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Database.Driver == "" {
		c.Database.Driver = migrations.DriverSqlite
	}
	if c.Database.Driver == migrations.DriverSqlite && c.Database.File == "" {
		c.Database.File = "pys.db"
	}
	if c.Pull.ArtifactPath == "" {
		c.Pull.ArtifactPath = "output.json"
	}
	if c.Pull.XmlPath == "" {
		c.Pull.XmlPath = filepath.Join(filepath.Dir(c.Pull.ArtifactPath), "output.xml")
	}
	if c.Pull.StalenessHours == 0 {
		c.Pull.StalenessHours = int(pull.DefaultStaleness / time.Hour)
	}
	if c.Scraper.FormUrl == "" {
		c.Scraper.FormUrl = pys.DefaultFormUrl
	}
	if c.Catalog.UrlTemplate == "" {
		c.Catalog.UrlTemplate = satcatalog.DefaultUrlTemplate
	}
	if c.Catalog.LookbackDays == 0 {
		c.Catalog.LookbackDays = satcatalog.DefaultLookbackDays
	}
	if c.Catalog.CacheDir == "" {
		c.Catalog.CacheDir = "catalog_cache"
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = service.DefaultCacheSize
	}
	if c.Search.CacheTTLMinutes == 0 {
		c.Search.CacheTTLMinutes = int(service.DefaultCacheTTL / time.Minute)
	}
}

func (c Config) Staleness() time.Duration {
	return time.Duration(c.Pull.StalenessHours) * time.Hour
}

func (c Config) MarkerTimeout() time.Duration {
	return time.Duration(c.Pull.MarkerTimeoutMinutes) * time.Minute
}

func (c Config) ScraperTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Search.CacheTTLMinutes) * time.Minute
}

// Read loads the config at path, applies defaults and validates it.
func Read(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	err = configutil.Validate(cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
