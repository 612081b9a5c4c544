package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Providers ProvidersConfig `mapstructure:"providers"`
	SLO       SLOConfig       `mapstructure:"slo"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type SyncConfig struct {
	MaxPages        int           `mapstructure:"max_pages"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
}

type RetryConfig struct {
	Attempts   int           `mapstructure:"attempts"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

type QueueConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig carries per-provider base URLs so adapters can be pointed
// at sandboxes in staging.
type ProvidersConfig struct {
	GongBaseURL       string `mapstructure:"gong_base_url"`
	FirefliesBaseURL  string `mapstructure:"fireflies_base_url"`
	HubspotBaseURL    string `mapstructure:"hubspot_base_url"`
	SalesforceBaseURL string `mapstructure:"salesforce_base_url"`
}

type SLOConfig struct {
	WarnFailureRate     float64       `mapstructure:"warn_failure_rate"`
	CriticalFailureRate float64       `mapstructure:"critical_failure_rate"`
	StaleAfter          time.Duration `mapstructure:"stale_after"`
	WarnStaleCount      int           `mapstructure:"warn_stale_count"`
	CriticalStaleCount  int           `mapstructure:"critical_stale_count"`
}

type SchedulerConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	ReconcileAfter time.Duration `mapstructure:"reconcile_after"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type RateLimitConfig struct {
	OpsReadPerMinute  int `mapstructure:"ops_read_per_minute"`
	OpsWritePerMinute int `mapstructure:"ops_write_per_minute"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("sync.max_pages", 50)
	viper.SetDefault("sync.provider_timeout", 30*time.Second)
	viper.SetDefault("retry.attempts", 4)
	viper.SetDefault("retry.base_delay", 500*time.Millisecond)
	viper.SetDefault("retry.max_elapsed", 2*time.Minute)
	viper.SetDefault("slo.warn_failure_rate", 0.10)
	viper.SetDefault("slo.critical_failure_rate", 0.25)
	viper.SetDefault("slo.stale_after", 24*time.Hour)
	viper.SetDefault("slo.warn_stale_count", 1)
	viper.SetDefault("slo.critical_stale_count", 5)
	viper.SetDefault("scheduler.interval", 15*time.Minute)
	viper.SetDefault("scheduler.reconcile_after", time.Hour)
}
