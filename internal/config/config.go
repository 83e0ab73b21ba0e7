package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Phases     PhasesConfig     `yaml:"phases" mapstructure:"phases"`
	Trigger    TriggerConfig    `yaml:"trigger" mapstructure:"trigger"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PollConfig tunes the per-workspace poll loop and the inference thresholds.
type PollConfig struct {
	IntervalSecs           int     `yaml:"interval_secs" mapstructure:"interval_secs"`
	StaleAfterMins         int     `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
	CompletionThreshold    float64 `yaml:"completion_threshold" mapstructure:"completion_threshold"`
	FetchFailureWindowSecs int     `yaml:"fetch_failure_window_secs" mapstructure:"fetch_failure_window_secs"`
	QueryTimeoutSecs       int     `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	WakeRatePerSec         float64 `yaml:"wake_rate_per_sec" mapstructure:"wake_rate_per_sec"`
	WakeBurst              int     `yaml:"wake_burst" mapstructure:"wake_burst"`
}

// Interval is the poll period.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSecs) * time.Second
}

// StaleAfter is how long a non-terminal job may stay silent.
func (p PollConfig) StaleAfter() time.Duration {
	return time.Duration(p.StaleAfterMins) * time.Minute
}

// FetchFailureWindow is how long status reads may fail before the view warns.
func (p PollConfig) FetchFailureWindow() time.Duration {
	return time.Duration(p.FetchFailureWindowSecs) * time.Second
}

// QueryTimeout bounds each sub-query of a snapshot.
func (p PollConfig) QueryTimeout() time.Duration {
	return time.Duration(p.QueryTimeoutSecs) * time.Second
}

// PhasesConfig points at an optional phase table file.
type PhasesConfig struct {
	OverridePath string `yaml:"override_path" mapstructure:"override_path"`
}

// TriggerConfig configures how stage-start calls are delivered.
type TriggerConfig struct {
	Transport           string `yaml:"transport" mapstructure:"transport"`
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CallbackBaseURL     string `yaml:"callback_base_url" mapstructure:"callback_base_url"`
	TimeoutSecs         int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts       int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerThreshold    int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int    `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Timeout bounds one stage-start call including retries.
func (t TriggerConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSecs) * time.Second
}

// TemporalConfig holds Temporal client settings for the temporal transport.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// NotifyConfig selects the push wake-up source.
type NotifyConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisChannel  string `yaml:"redis_channel" mapstructure:"redis_channel"`
	PGChannel     string `yaml:"pg_channel" mapstructure:"pg_channel"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures alerting.
type MonitoringConfig struct {
	AlertWebhookURL      string  `yaml:"alert_webhook_url" mapstructure:"alert_webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinTracks            int     `yaml:"min_tracks" mapstructure:"min_tracks"`
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
	v.SetEnvPrefix("ONBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("poll.interval_secs", 3)
	v.SetDefault("poll.stale_after_mins", 10)
	v.SetDefault("poll.completion_threshold", 0.99)
	v.SetDefault("poll.fetch_failure_window_secs", 30)
	v.SetDefault("poll.query_timeout_secs", 5)
	v.SetDefault("poll.wake_rate_per_sec", 1.0)
	v.SetDefault("poll.wake_burst", 1)
	v.SetDefault("phases.override_path", "")
	v.SetDefault("trigger.transport", "webhook")
	v.SetDefault("trigger.webhook_url", "")
	v.SetDefault("trigger.callback_base_url", "")
	v.SetDefault("trigger.timeout_secs", 15)
	v.SetDefault("trigger.retry_attempts", 3)
	v.SetDefault("trigger.breaker_threshold", 5)
	v.SetDefault("trigger.breaker_cooldown_secs", 30)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "onboarding")
	v.SetDefault("notify.driver", "none")
	v.SetDefault("notify.redis_addr", "localhost:6379")
	v.SetDefault("notify.redis_password", "")
	v.SetDefault("notify.redis_db", 0)
	v.SetDefault("notify.redis_channel", "onboard:changes")
	v.SetDefault("notify.pg_channel", "onboard_changes")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.alert_webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 60)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_tracks", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "serve", "watch",
// "status", "trigger" or "migrate".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}

	if mode == "serve" || mode == "watch" || mode == "trigger" {
		if c.Poll.IntervalSecs <= 0 {
			return eris.New("config: poll.interval_secs must be positive")
		}
		if c.Poll.CompletionThreshold <= 0 || c.Poll.CompletionThreshold > 1 {
			return eris.Errorf("config: poll.completion_threshold %.2f out of range (0,1]", c.Poll.CompletionThreshold)
		}
		switch c.Trigger.Transport {
		case "webhook":
			if c.Trigger.WebhookURL == "" {
				missing = append(missing, "trigger.webhook_url")
			}
		case "temporal":
			if c.Temporal.HostPort == "" {
				missing = append(missing, "temporal.host_port")
			}
			if c.Temporal.TaskQueue == "" {
				missing = append(missing, "temporal.task_queue")
			}
		case "none":
		default:
			return eris.Errorf("config: unknown trigger.transport %q", c.Trigger.Transport)
		}
	}

	if mode == "serve" {
		switch c.Notify.Driver {
		case "none", "":
		case "redis":
			if c.Notify.RedisAddr == "" {
				missing = append(missing, "notify.redis_addr")
			}
		case "postgres":
			if c.Store.Driver != "postgres" {
				return eris.New("config: notify.driver postgres requires store.driver postgres")
			}
		default:
			return eris.Errorf("config: unknown notify.driver %q", c.Notify.Driver)
		}
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings for %s: %s", mode, strings.Join(missing, ", "))
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
