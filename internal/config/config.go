package config

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"cellar-service/internal/ai"
	"cellar-service/internal/reconcile/model"
	"cellar-service/internal/storage"
)

// Config is flat: every key is read from cellar.yaml and overridden by the
// environment variable of the same name in upper case (PORT, S3_BUCKET...).
type Config struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	LogLevel     string   `mapstructure:"log_level"`
	LogFile      string   `mapstructure:"log_file"`
	MaxUploadMB  int      `mapstructure:"max_upload_mb"`

	StoreDriver string `mapstructure:"store_driver"`
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	MatchThreshold    float64 `mapstructure:"match_threshold"`
	MatchStripYears   bool    `mapstructure:"match_strip_years"`
	CommitWorkers     int     `mapstructure:"commit_workers"`
	SessionTTLMinutes int     `mapstructure:"session_ttl_minutes"`

	AIProvider          string `mapstructure:"ai_provider"`
	AnthropicAPIKey     string `mapstructure:"anthropic_api_key"`
	AnthropicModel      string `mapstructure:"anthropic_model"`
	GeminiAPIKey        string `mapstructure:"gemini_api_key"`
	GeminiModel         string `mapstructure:"gemini_model"`
	AIRequestsPerMinute int    `mapstructure:"ai_requests_per_minute"`

	StorageDriver   string `mapstructure:"storage_driver"`
	StorageDir      string `mapstructure:"storage_dir"`
	S3Endpoint      string `mapstructure:"s3_endpoint"`
	S3Region        string `mapstructure:"s3_region"`
	S3Bucket        string `mapstructure:"s3_bucket"`
	S3AccessKey     string `mapstructure:"s3_access_key"`
	S3SecretKey     string `mapstructure:"s3_secret_key"`
	S3PublicBaseURL string `mapstructure:"s3_public_base_url"`
}

var defaults = map[string]any{
	"host":          "127.0.0.1",
	"port":          8082,
	"allow_origins": []string{"*"},
	"log_level":     "info",
	"log_file":      "logs/cellar-service.log",
	"max_upload_mb": 32,

	"store_driver": "sqlite",
	"database_url": "",
	"sqlite_path":  "data/cellar.db",

	"match_threshold":     model.Threshold,
	"match_strip_years":   true,
	"commit_workers":      4,
	"session_ttl_minutes": 60,

	"ai_provider":            "",
	"anthropic_api_key":      "",
	"anthropic_model":        "",
	"gemini_api_key":         "",
	"gemini_model":           "",
	"ai_requests_per_minute": 20,

	"storage_driver":     "local",
	"storage_dir":        "data/files",
	"s3_endpoint":        "",
	"s3_region":          "auto",
	"s3_bucket":          "",
	"s3_access_key":      "",
	"s3_secret_key":      "",
	"s3_public_base_url": "",
}

// Load reads defaults, then cellar.yaml from the working directory (optional),
// then the environment.
func Load() (Config, error) {
	v := viper.New()

	v.SetConfigName("cellar")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return eris.Errorf("config: invalid PORT %d", c.Port)
	}
	if !model.ValidThreshold(c.MatchThreshold) {
		return eris.Errorf("config: MATCH_THRESHOLD must be in (0, 1], got %v", c.MatchThreshold)
	}
	switch c.StoreDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return eris.New("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return eris.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// StoreDSN returns the catalog driver and its data source.
func (c Config) StoreDSN() (string, string) {
	if c.StoreDriver == "postgres" {
		return c.StoreDriver, c.DatabaseURL
	}
	return c.StoreDriver, c.SQLitePath
}

func (c Config) MatchOptions() model.Options {
	return model.Options{Threshold: c.MatchThreshold, StripYears: c.MatchStripYears}
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c Config) AI() ai.Config {
	return ai.Config{
		Provider:          c.AIProvider,
		AnthropicAPIKey:   c.AnthropicAPIKey,
		AnthropicModel:    c.AnthropicModel,
		GeminiAPIKey:      c.GeminiAPIKey,
		GeminiModel:       c.GeminiModel,
		RequestsPerMinute: c.AIRequestsPerMinute,
	}
}

func (c Config) Storage() storage.Config {
	return storage.Config{
		Driver:        c.StorageDriver,
		Dir:           c.StorageDir,
		Endpoint:      c.S3Endpoint,
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		PublicBaseURL: c.S3PublicBaseURL,
	}
}
