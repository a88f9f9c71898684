// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/blogi-collector/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Env          string             `mapstructure:"env"`
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Browser      BrowserConfig      `mapstructure:"browser"`
	Fallback     FallbackConfig     `mapstructure:"fallback"`
	ContentStore ContentStoreConfig `mapstructure:"content_store"`
	Naver        NaverConfig        `mapstructure:"naver"`
	Kakao        KakaoConfig        `mapstructure:"kakao"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
	Collect      CollectConfig      `mapstructure:"collect"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Progress     ProgressConfig     `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig holds the shared secret expected in X-Internal-Secret.
type AuthConfig struct {
	InternalSecret string `mapstructure:"internal_secret"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SchedulerConfig drives the collection cycle loop.
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	// Schedule is a robfig/cron expression ("@every 6h", "0 */6 * * *").
	Schedule    string        `mapstructure:"schedule"`
	MaxJitter   time.Duration `mapstructure:"max_jitter"`
	PausePoll   time.Duration `mapstructure:"pause_poll"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// BrowserConfig configures the shared headless browser and its context pool.
type BrowserConfig struct {
	MaxContexts     int           `mapstructure:"max_contexts"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	LoadTimeout     time.Duration `mapstructure:"load_timeout"`
	SelectorTimeout time.Duration `mapstructure:"selector_timeout"`
	ExecPath        string        `mapstructure:"exec_path"`
	Prewarm         bool          `mapstructure:"prewarm"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// FallbackConfig bounds the progressive query search.
type FallbackConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	ImageCount  int `mapstructure:"image_count"`
}

// ContentStoreConfig points at the content store's internal API.
type ContentStoreConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// NaverConfig holds Naver Search Open API credentials.
type NaverConfig struct {
	ClientID     string  `mapstructure:"client_id"`
	ClientSecret string  `mapstructure:"client_secret"`
	BaseURL      string  `mapstructure:"base_url"`
	RPS          float64 `mapstructure:"rps"`
}

// KakaoConfig holds Kakao search API credentials.
type KakaoConfig struct {
	RestAPIKey string  `mapstructure:"rest_api_key"`
	BaseURL    string  `mapstructure:"base_url"`
	RPS        float64 `mapstructure:"rps"`
}

// JobsConfig bounds the in-memory job registry.
type JobsConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// CategoryConfig maps a keyword category to a source kind and the display
// name used when scraping trending keywords for it.
type CategoryConfig struct {
	Kind    string `mapstructure:"kind"`
	Display string `mapstructure:"display"`
}

// CollectConfig tunes the collection services.
type CollectConfig struct {
	Timezone         string                    `mapstructure:"timezone"`
	CategoryPause    time.Duration             `mapstructure:"category_pause"`
	MinContentLength int                       `mapstructure:"min_content_length"`
	Categories       map[string]CategoryConfig `mapstructure:"categories"`
}

// DatabaseConfig controls the optional collection run ledger.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ProgressConfig tunes the run event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
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
	v.SetDefault("env", "local")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("auth.internal_secret", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.initial_delay", 180*time.Second)
	v.SetDefault("scheduler.schedule", "@every 6h")
	v.SetDefault("scheduler.max_jitter", 30*time.Second)
	v.SetDefault("scheduler.pause_poll", 200*time.Millisecond)
	v.SetDefault("scheduler.stop_timeout", 5*time.Second)
	v.SetDefault("browser.max_contexts", 3)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.load_timeout", 10*time.Second)
	v.SetDefault("browser.selector_timeout", 5*time.Second)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.prewarm", false)
	v.SetDefault("browser.shutdown_timeout", 10*time.Second)
	v.SetDefault("fallback.max_attempts", 4)
	v.SetDefault("fallback.image_count", 3)
	v.SetDefault("content_store.base_url", "http://localhost:8000")
	v.SetDefault("content_store.secret", "")
	v.SetDefault("content_store.timeout", 20*time.Second)
	v.SetDefault("content_store.max_retries", 3)
	v.SetDefault("naver.base_url", "https://openapi.naver.com")
	v.SetDefault("naver.rps", 5.0)
	v.SetDefault("kakao.base_url", "https://dapi.kakao.com")
	v.SetDefault("kakao.rps", 5.0)
	v.SetDefault("jobs.ttl", time.Hour)
	v.SetDefault("jobs.max_entries", 256)
	v.SetDefault("collect.timezone", "Asia/Seoul")
	v.SetDefault("collect.category_pause", time.Second)
	v.SetDefault("collect.min_content_length", 300)
	v.SetDefault("collect.categories", defaultCategories())
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait", 500*time.Millisecond)
}

func defaultCategories() map[string]any {
	return map[string]any{
		"연예":  map[string]any{"kind": "news", "display": "엔터 종합"},
		"경제":  map[string]any{"kind": "news", "display": "경제 종합"},
		"스포츠": map[string]any{"kind": "news", "display": "스포츠 종합"},
		"자동차": map[string]any{"kind": "news", "display": "카테크 종합"},
		"패션":  map[string]any{"kind": "blog", "display": "패션뷰티 종합"},
		"여행":  map[string]any{"kind": "blog", "display": "여행맛집 종합"},
		"맛집":  map[string]any{"kind": "blog", "display": "맛집/카페"},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Browser.MaxContexts <= 0 {
		return fmt.Errorf("browser.max_contexts must be > 0")
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if c.Fallback.MaxAttempts <= 0 {
		return fmt.Errorf("fallback.max_attempts must be > 0")
	}
	if c.Fallback.ImageCount <= 0 {
		return fmt.Errorf("fallback.image_count must be > 0")
	}
	if c.Jobs.MaxEntries <= 0 {
		return fmt.Errorf("jobs.max_entries must be > 0")
	}
	if c.Jobs.TTL <= 0 {
		return fmt.Errorf("jobs.ttl must be > 0")
	}
	u, err := url.Parse(c.ContentStore.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("content_store.base_url must be an absolute URL")
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("scheduler.schedule: %w", err)
		}
	}
	for name, cat := range c.Collect.Categories {
		if !pipeline.SourceKind(cat.Kind).Valid() {
			return fmt.Errorf("collect.categories.%s.kind %q must be news or blog", name, cat.Kind)
		}
	}
	return nil
}

// IsProduction reports whether the service runs in a production environment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// CategoryKinds returns the category → source kind lookup used by article collection.
func (c Config) CategoryKinds() map[string]pipeline.SourceKind {
	out := make(map[string]pipeline.SourceKind, len(c.Collect.Categories))
	for name, cat := range c.Collect.Categories {
		out[name] = pipeline.SourceKind(cat.Kind)
	}
	return out
}

// CategoryDisplays returns the category → trending display name lookup used
// by keyword collection. Categories without a display name are omitted.
func (c Config) CategoryDisplays() map[string]string {
	out := make(map[string]string, len(c.Collect.Categories))
	for name, cat := range c.Collect.Categories {
		if cat.Display != "" {
			out[name] = cat.Display
		}
	}
	return out
}

// Location resolves the collection timezone, falling back to a fixed KST offset.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Collect.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("KST", 9*60*60)
}
