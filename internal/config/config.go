// Package config loads and validates kidssmart configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/kidssmart/internal/auth"
	"github.com/JakeFAU/kidssmart/internal/spider"
)

// EnvPrefix is prepended to every environment override, e.g. KIDSSMART_DB_DSN.
const EnvPrefix = "KIDSSMART"

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Spiders  spider.Config  `mapstructure:"spiders"`
}

// ServerConfig controls the web server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

// SessionConfig signs login cookies.
type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	TTL        time.Duration `mapstructure:"ttl"`
	CookieName string        `mapstructure:"cookie_name"`
}

// CrawlerConfig governs the worker pool and outbound politeness.
type CrawlerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	QueueDepth   int           `mapstructure:"queue_depth"`
	UserAgent    string        `mapstructure:"user_agent"`
	IgnoreRobots bool          `mapstructure:"ignore_robots"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	RateLimitRPS float64       `mapstructure:"rate_limit_rps"`
	RateBurst    int           `mapstructure:"rate_burst"`
	BlockedHosts []string      `mapstructure:"blocked_hosts"`

	// Snapshots writes every fetched page to the blob store.
	Snapshots bool `mapstructure:"snapshots"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the chromedp renderer.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleMs      int  `mapstructure:"settle_ms"`
	MaxPages      int  `mapstructure:"max_pages"`

	// Promote re-fetches plain HTTP responses that look like JavaScript shells in the browser.
	Promote          bool `mapstructure:"promote"`
	PromoteThreshold int  `mapstructure:"promote_threshold"`
}

// StorageConfig selects where page snapshots go.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	LocalDir string `mapstructure:"local_dir"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory stores.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig names the topic activity events are published to.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RedisConfig enables the facet cache when Address is set.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEnabled     bool          `mapstructure:"log_enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level overrides the mode's default level (debug in development, info otherwise).
	Level string `mapstructure:"level"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`

	// Exporter is "stdout" or "gcp". gcp falls back to pubsub.project_id.
	Exporter  string `mapstructure:"exporter"`
	ProjectID string `mapstructure:"project_id"`
}

// TraceProject is the Cloud Trace project for the gcp exporter.
func (c Config) TraceProject() string {
	if c.Tracing.ProjectID != "" {
		return c.Tracing.ProjectID
	}
	return c.PubSub.ProjectID
}

// ScheduleConfig maps spider names to cron expressions.
type ScheduleConfig struct {
	Spiders   map[string]string `mapstructure:"spiders"`
	PruneSpec string            `mapstructure:"prune"`
	Retention time.Duration     `mapstructure:"retention"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

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

// bindAliases lets the conventional variable names stand in for the prefixed ones.
func bindAliases(v *viper.Viper) error {
	aliases := map[string]string{
		"spiders.geoapify.api_key": "GEOAPIFY_API_KEY",
		"spiders.serpapi.api_key":  "SERPAPI_API_KEY",
		"server.port":              "PORT",
		"db.dsn":                   "DATABASE_URL",
	}
	for key, alias := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// DefaultBlockedHosts are social networks whose pages need a login and whose
// links spiders pick up as "websites".
var DefaultBlockedHosts = []string{
	"*.facebook.com",
	"*.fb.com",
	"*.instagram.com",
	"*.twitter.com",
	"*.x.com",
	"*.tiktok.com",
	"*.linkedin.com",
	"*.pinterest.com",
	"*.youtube.com",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", auth.DefaultTTL)
	v.SetDefault("session.cookie_name", "kidssmart_session")
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; kidssmart/1.0; +https://kidssmart.com.au/bot)")
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.run_timeout", 30*time.Minute)
	v.SetDefault("crawler.rate_limit_rps", 1.0)
	v.SetDefault("crawler.rate_burst", 1)
	v.SetDefault("crawler.blocked_hosts", DefaultBlockedHosts)
	v.SetDefault("crawler.snapshots", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.max_body_bytes", 5<<20)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.settle_ms", 500)
	v.SetDefault("headless.max_pages", 20)
	v.SetDefault("headless.promote", true)
	v.SetDefault("headless.promote_threshold", 2048)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "kidssmart")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("schedule.prune", "")
	v.SetDefault("schedule.retention", 30*24*time.Hour)
	v.SetDefault("spiders.serpapi.min_delay", 1500*time.Millisecond)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Crawler.RateLimitRPS < 0 {
		return fmt.Errorf("crawler.rate_limit_rps must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q must be one of memory, local, gcs", c.Storage.Backend)
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < auth.MinSecretLength {
		return fmt.Errorf("session.secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be > 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl must be >= 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout":
		case "gcp":
			if c.TraceProject() == "" {
				return fmt.Errorf("tracing.project_id is required for the gcp exporter")
			}
		default:
			return fmt.Errorf("tracing.exporter %q must be one of stdout, gcp", c.Tracing.Exporter)
		}
	}
	if c.Schedule.PruneSpec != "" && c.Schedule.Retention <= 0 {
		return fmt.Errorf("schedule.retention must be > 0 when schedule.prune is set")
	}
	return nil
}

// FetchTimeout is the per-request HTTP timeout.
func (c HTTPConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c HTTPConfig) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond, time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// NavTimeout is the headless navigation budget.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// Settle is the pause after each headless navigation.
func (c HeadlessConfig) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}
