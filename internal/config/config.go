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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Esri       EsriConfig       `yaml:"esri" mapstructure:"esri"`
	Nearby     NearbyConfig     `yaml:"nearby" mapstructure:"nearby"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeocodeConfig configures the Census/Google geocoding cascade.
type GeocodeConfig struct {
	GoogleKey        string  `yaml:"google_key" mapstructure:"google_key"`
	RatePerSecond    float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	BatchConcurrency int     `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// EsriConfig configures the drive-time polygon provider.
type EsriConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Username      string  `yaml:"username" mapstructure:"username"`
	Password      string  `yaml:"password" mapstructure:"password"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// NearbyConfig configures nearby-schools batch processing.
type NearbyConfig struct {
	BatchSize    int              `yaml:"batch_size" mapstructure:"batch_size"`
	PauseSeconds int              `yaml:"pause_seconds" mapstructure:"pause_seconds"`
	Thresholds   ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
}

// ThresholdsConfig holds the run-level success-rate classification cutoffs,
// expressed as percentages of attempted locations.
type ThresholdsConfig struct {
	Complete float64 `yaml:"complete" mapstructure:"complete"`
	Partial  float64 `yaml:"partial" mapstructure:"partial"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background coverage alerting. Alerts are
// disabled unless a webhook URL is set.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	DataYear                int     `yaml:"data_year" mapstructure:"data_year"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	ProcessingRateThreshold float64 `yaml:"processing_rate_threshold" mapstructure:"processing_rate_threshold"`
	EsriRateThreshold       float64 `yaml:"esri_rate_threshold" mapstructure:"esri_rate_threshold"`
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
	v.SetEnvPrefix("EDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys need a default registered for AutomaticEnv to
	// surface them through Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("geocode.rate_per_second", 50)
	v.SetDefault("geocode.batch_concurrency", 10)
	v.SetDefault("esri.base_url", "https://www.arcgis.com")
	v.SetDefault("esri.username", "")
	v.SetDefault("esri.password", "")
	v.SetDefault("esri.rate_per_second", 2)
	v.SetDefault("nearby.batch_size", 10)
	v.SetDefault("nearby.pause_seconds", 1)
	v.SetDefault("nearby.thresholds.complete", 95)
	v.SetDefault("nearby.thresholds.partial", 50)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.data_year", 0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.processing_rate_threshold", 90)
	v.SetDefault("monitoring.esri_rate_threshold", 75)

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
