// Package config loads and validates docwatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCWATCH_SERVER_PORT.
const EnvPrefix = "DOCWATCH"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Records   RecordsConfig   `mapstructure:"records"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Wayback   WaybackConfig   `mapstructure:"wayback"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// StorageConfig locates the crawl log shards.
type StorageConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=local gcs"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	// Root is the directory below the store holding <job>/<launch>/ logs.
	Root      string `mapstructure:"root"`
	MediaType string `mapstructure:"media_type" validate:"required"`
}

// RecordsConfig selects the PublishRecord backend.
type RecordsConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory local postgres redis gcs"`
	BaseDir string `mapstructure:"base_dir"`

	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
	KeyPrefix     string `mapstructure:"key_prefix"`

	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// FeedConfig points at the catalog's target list.
type FeedConfig struct {
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	File     string `mapstructure:"file"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// CatalogConfig configures document submission.
type CatalogConfig struct {
	SubmitURL      string `mapstructure:"submit_url" validate:"omitempty,url"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=1"`
}

// WaybackConfig configures the availability poller.
type WaybackConfig struct {
	Prefix         string `mapstructure:"prefix" validate:"omitempty,url"`
	CheckAvailable bool   `mapstructure:"check_available"`
	PageSize       int    `mapstructure:"page_size" validate:"gte=1"`
	MaxPages       int    `mapstructure:"max_pages" validate:"gte=0"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=1"`
}

// PipelineConfig governs the worker pool and launch fan-out.
type PipelineConfig struct {
	Workers             int      `mapstructure:"workers" validate:"gte=1"`
	QueueSize           int      `mapstructure:"queue_size" validate:"gte=0"`
	RequireAvailability bool     `mapstructure:"require_availability"`
	LaunchConcurrency   int      `mapstructure:"launch_concurrency" validate:"gte=1"`
	RejectPatterns      []string `mapstructure:"reject_patterns"`
}

// PubSubConfig holds metadata for outcome notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications are configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicName != ""
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gte=1,lte=65535"`
	// APIKey, when set, is required on every /v1 request.
	APIKey string `mapstructure:"api_key"`
	// RunsBackend stores the run history served under /v1/runs.
	RunsBackend string `mapstructure:"runs_backend" validate:"oneof=memory postgres"`
	RunsDSN     string `mapstructure:"runs_dsn"`
	RunsTable   string `mapstructure:"runs_table"`
	// MaxRuns bounds the in-memory run history.
	MaxRuns int `mapstructure:"max_runs" validate:"gte=1"`
	// ShutdownSeconds bounds graceful shutdown.
	ShutdownSeconds int `mapstructure:"shutdown_seconds" validate:"gte=1"`
}

// RateLimitConfig throttles calls to the wayback index and the catalog.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" validate:"gte=0"`
	Burst int     `mapstructure:"burst" validate:"gte=0"`
	// Hosts is a list rather than a map because viper splits keys on dots.
	Hosts []HostLimit `mapstructure:"hosts" validate:"dive"`
}

// HostLimit overrides the request rate for one host.
type HostLimit struct {
	Host string  `mapstructure:"host" validate:"required"`
	RPS  float64 `mapstructure:"rps" validate:"gte=0"`
}

// HostRates returns the overrides keyed by host.
func (c RateLimitConfig) HostRates() map[string]float64 {
	if len(c.Hosts) == 0 {
		return nil
	}
	out := make(map[string]float64, len(c.Hosts))
	for _, h := range c.Hosts {
		out[strings.ToLower(h.Host)] = h.RPS
	}
	return out
}

// Load builds a Config from disk/environment. An empty path searches for
// docwatch.yaml in ., /etc/docwatch and $HOME/.docwatch; none found is fine.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("docwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/docwatch/")
		v.AddConfigPath("$HOME/.docwatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.root", "")
	v.SetDefault("storage.media_type", "application/pdf")
	v.SetDefault("records.backend", "local")
	v.SetDefault("records.base_dir", "records")
	v.SetDefault("records.dsn", "")
	v.SetDefault("records.table", "publish_records")
	v.SetDefault("records.max_conns", 4)
	v.SetDefault("records.redis_addr", "")
	v.SetDefault("records.redis_password", "")
	v.SetDefault("records.redis_db", 0)
	v.SetDefault("records.key_prefix", "docwatch:records:")
	v.SetDefault("records.gcs_bucket", "")
	v.SetDefault("records.gcs_prefix", "")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.file", "")
	v.SetDefault("feed.user", "")
	v.SetDefault("feed.password", "")
	v.SetDefault("catalog.submit_url", "")
	v.SetDefault("catalog.user", "")
	v.SetDefault("catalog.password", "")
	v.SetDefault("catalog.timeout_seconds", 30)
	v.SetDefault("wayback.prefix", "")
	v.SetDefault("wayback.check_available", false)
	v.SetDefault("wayback.page_size", 10000)
	v.SetDefault("wayback.max_pages", 0)
	v.SetDefault("wayback.user_agent", "docwatch/0.1")
	v.SetDefault("wayback.timeout_seconds", 15)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.require_availability", false)
	v.SetDefault("pipeline.launch_concurrency", 1)
	v.SetDefault("pipeline.reject_patterns", []string{})
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.runs_backend", "memory")
	v.SetDefault("server.runs_dsn", "")
	v.SetDefault("server.runs_table", "docwatch_runs")
	v.SetDefault("server.max_runs", 200)
	v.SetDefault("server.shutdown_seconds", 30)
	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 1)
}

// Validate runs the struct tag rules, then the rules that span fields.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			errs = append(errs, errors.New("storage.base_dir is required for the local backend"))
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs backend"))
		}
	}
	switch c.Records.Backend {
	case "local":
		if c.Records.BaseDir == "" {
			errs = append(errs, errors.New("records.base_dir is required for the local backend"))
		}
	case "postgres":
		if c.Records.DSN == "" {
			errs = append(errs, errors.New("records.dsn is required for the postgres backend"))
		}
	case "redis":
		if c.Records.RedisAddr == "" {
			errs = append(errs, errors.New("records.redis_addr is required for the redis backend"))
		}
	case "gcs":
		if c.Records.GCSBucket == "" {
			errs = append(errs, errors.New("records.gcs_bucket is required for the gcs backend"))
		}
	}
	if c.Server.RunsBackend == "postgres" && c.RunsDSN() == "" {
		errs = append(errs, errors.New("server.runs_dsn (or records.dsn) is required for the postgres run history"))
	}
	if c.Feed.URL != "" && c.Feed.File != "" {
		errs = append(errs, errors.New("feed.url and feed.file are mutually exclusive"))
	}
	if c.Pipeline.RequireAvailability && c.Wayback.Prefix == "" {
		errs = append(errs, errors.New("wayback.prefix must be set when pipeline.require_availability is enabled"))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic_name must be set together"))
	}
	return errors.Join(errs...)
}

// WaybackTimeout converts the poller timeout to a duration.
func (c Config) WaybackTimeout() time.Duration {
	return time.Duration(c.Wayback.TimeoutSeconds) * time.Second
}

// CatalogTimeout converts the catalog client timeout to a duration.
func (c Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// ShutdownTimeout converts the graceful shutdown budget to a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// RunsDSN returns the run history DSN, falling back to the records DSN so a
// single database can hold both tables.
func (c Config) RunsDSN() string {
	if c.Server.RunsDSN != "" {
		return c.Server.RunsDSN
	}
	return c.Records.DSN
}
