// Package config loads application configuration via viper and owns the
// global zap logger.
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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Vapi      VapiConfig      `yaml:"vapi" mapstructure:"vapi"`
	LocalData LocalDataConfig `yaml:"localdata" mapstructure:"localdata"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Call      CallConfig      `yaml:"call" mapstructure:"call"`
	Overnight OvernightConfig `yaml:"overnight" mapstructure:"overnight"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`

	// IndustriesFile optionally points at a YAML document overriding the
	// built-in industry registry (search queries + availability keywords).
	IndustriesFile string `yaml:"industries_file" mapstructure:"industries_file"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// VapiConfig holds Vapi.ai call provider settings.
type VapiConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	PhoneID     string `yaml:"phone_id" mapstructure:"phone_id"`
	AssistantID string `yaml:"assistant_id" mapstructure:"assistant_id"`
	PollSecs    int    `yaml:"poll_secs" mapstructure:"poll_secs"`
	CallCapSecs int    `yaml:"call_cap_secs" mapstructure:"call_cap_secs"`
	RequestSecs int    `yaml:"request_secs" mapstructure:"request_secs"`
}

// LocalDataConfig holds RapidAPI local-business-data scraper settings.
type LocalDataConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Host    string `yaml:"host" mapstructure:"host"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// ScrapeConfig configures the scrape orchestrator.
type ScrapeConfig struct {
	MaxAttempts       int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMillis     int `yaml:"backoff_millis" mapstructure:"backoff_millis"`
	MaxConcurrent     int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	PerTargetPauseSec int `yaml:"per_target_pause_secs" mapstructure:"per_target_pause_secs"`
}

// CallConfig configures the call orchestrator.
type CallConfig struct {
	DelaySecs    int `yaml:"delay_secs" mapstructure:"delay_secs"`         // inter-call delay
	CooldownHrs  int `yaml:"cooldown_hours" mapstructure:"cooldown_hours"` // re-call cooldown window
	MaxBatchSize int `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// OvernightConfig configures the resumable overnight runner.
type OvernightConfig struct {
	CheckpointDir    string `yaml:"checkpoint_dir" mapstructure:"checkpoint_dir"`
	MaxCalls         int    `yaml:"max_calls" mapstructure:"max_calls"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// ClassifyConfig configures call outcome classification.
type ClassifyConfig struct {
	// Priority selects which signal wins when both are present:
	// "status-first" (default) or "transcript-first".
	Priority string `yaml:"priority" mapstructure:"priority"`
}

// ServerConfig configures the read-only lead API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("NIGHTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "nightline.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("vapi.base_url", "https://api.vapi.ai")
	v.SetDefault("vapi.poll_secs", 3)
	v.SetDefault("vapi.call_cap_secs", 90)
	v.SetDefault("vapi.request_secs", 15)
	v.SetDefault("localdata.host", "local-business-data.p.rapidapi.com")
	v.SetDefault("localdata.base_url", "https://local-business-data.p.rapidapi.com")
	v.SetDefault("localdata.limit", 50)
	v.SetDefault("scrape.max_attempts", 3)
	v.SetDefault("scrape.backoff_millis", 2000)
	v.SetDefault("scrape.max_concurrent", 2)
	v.SetDefault("scrape.per_target_pause_secs", 2)
	v.SetDefault("call.delay_secs", 3)
	v.SetDefault("call.cooldown_hours", 72)
	v.SetDefault("call.max_batch_size", 100)
	v.SetDefault("overnight.checkpoint_dir", "data")
	v.SetDefault("overnight.max_calls", 100)
	v.SetDefault("overnight.breaker_threshold", 3)
	v.SetDefault("classify.priority", "status-first")

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
