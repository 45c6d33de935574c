package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service and pipeline configuration
type Config struct {
	Port      string `mapstructure:"port"`
	DBPath    string `mapstructure:"db_path"`
	JWTSecret string `mapstructure:"jwt_secret"`
	MaxMemory int64  `mapstructure:"max_memory"` // multipart upload memory limit in bytes

	Log      LogConfig      `mapstructure:"log"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// PipelineConfig holds the analysis parameters of a run
type PipelineConfig struct {
	HeatThresholdDefaultC float64            `mapstructure:"heat_threshold_default_c" json:"heat_threshold_default_c"`
	HeatWindowHours       int                `mapstructure:"heat_window_hours" json:"heat_window_hours"`
	ClusteringEpsKm       float64            `mapstructure:"clustering_eps_km" json:"clustering_eps_km"`
	ClusteringMinSamples  int                `mapstructure:"clustering_min_samples" json:"clustering_min_samples"`
	TimeToleranceMinutes  int                `mapstructure:"time_tolerance_minutes" json:"time_tolerance_minutes"`
	AutoThresholdQuantile float64            `mapstructure:"auto_threshold_quantile" json:"auto_threshold_quantile"`
	LabelRadiusKm         float64            `mapstructure:"label_radius_km" json:"label_radius_km"`
	MaxSpeedMPS           float64            `mapstructure:"max_speed_mps" json:"max_speed_mps"`
	MinFixIntervalS       float64            `mapstructure:"min_fix_interval_s" json:"min_fix_interval_s"`
	MaxMissingRate        float64            `mapstructure:"max_missing_rate" json:"max_missing_rate"`
	SpeciesThresholds     map[string]float64 `mapstructure:"species_thresholds" json:"species_thresholds,omitempty"`
	RequireSpecies        bool               `mapstructure:"require_species" json:"require_species"`
	SpeciesFallback       string             `mapstructure:"species_fallback" json:"species_fallback,omitempty"`
	Workers               int                `mapstructure:"workers" json:"workers"`
	SensitivityDeltas     []float64          `mapstructure:"sensitivity_deltas" json:"sensitivity_deltas"`
	ProbabilityThreshold  float64            `mapstructure:"refugia_probability_threshold" json:"refugia_probability_threshold"`
}

// TimeTolerance returns the alignment tolerance as a duration
func (p PipelineConfig) TimeTolerance() time.Duration {
	return time.Duration(p.TimeToleranceMinutes) * time.Minute
}

// EnvPrefix prefixes every environment override, e.g. REFUGIA_PIPELINE_HEAT_WINDOW_HOURS
const EnvPrefix = "REFUGIA"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", ":8080")
	v.SetDefault("db_path", "./data/refugia/refugia.db")
	v.SetDefault("jwt_secret", "your-secret-key-change-in-production")
	v.SetDefault("max_memory", 1024*1024*800) // 800MB

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("pipeline.heat_threshold_default_c", 35.0)
	v.SetDefault("pipeline.heat_window_hours", 3)
	v.SetDefault("pipeline.clustering_eps_km", 2.0)
	v.SetDefault("pipeline.clustering_min_samples", 5)
	v.SetDefault("pipeline.time_tolerance_minutes", 60)
	v.SetDefault("pipeline.auto_threshold_quantile", 0.9)
	v.SetDefault("pipeline.label_radius_km", 3.0)
	v.SetDefault("pipeline.max_speed_mps", 35.0)
	v.SetDefault("pipeline.min_fix_interval_s", 30.0)
	v.SetDefault("pipeline.max_missing_rate", 0.1)
	v.SetDefault("pipeline.species_thresholds", map[string]float64{})
	v.SetDefault("pipeline.require_species", false)
	v.SetDefault("pipeline.species_fallback", "")
	v.SetDefault("pipeline.workers", runtime.NumCPU())
	v.SetDefault("pipeline.sensitivity_deltas", []float64{-2, -1, 0, 1, 2})
	v.SetDefault("pipeline.refugia_probability_threshold", 0.7)
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing precedence. An empty path searches for
// config.yaml in the working directory and ./config; a missing file is
// not an error unless path names it explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names kept for existing deployments
	_ = v.BindEnv("port", EnvPrefix+"_PORT", "PORT")
	_ = v.BindEnv("db_path", EnvPrefix+"_DB_PATH", "DB_PATH")
	_ = v.BindEnv("jwt_secret", EnvPrefix+"_JWT_SECRET", "JWT_SECRET")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects parameters the pipeline cannot run with
func (c *Config) Validate() error {
	return c.Pipeline.Validate()
}

// Validate rejects non-positive stage parameters
func (p PipelineConfig) Validate() error {
	var errs []error
	if p.HeatWindowHours <= 0 {
		errs = append(errs, fmt.Errorf("heat_window_hours must be positive, got %d", p.HeatWindowHours))
	}
	if p.ClusteringEpsKm <= 0 {
		errs = append(errs, fmt.Errorf("clustering_eps_km must be positive, got %g", p.ClusteringEpsKm))
	}
	if p.ClusteringMinSamples <= 0 {
		errs = append(errs, fmt.Errorf("clustering_min_samples must be positive, got %d", p.ClusteringMinSamples))
	}
	if p.TimeToleranceMinutes <= 0 {
		errs = append(errs, fmt.Errorf("time_tolerance_minutes must be positive, got %d", p.TimeToleranceMinutes))
	}
	if p.AutoThresholdQuantile < 0 || p.AutoThresholdQuantile > 1 {
		errs = append(errs, fmt.Errorf("auto_threshold_quantile must be within [0, 1], got %g", p.AutoThresholdQuantile))
	}
	if p.ProbabilityThreshold < 0 || p.ProbabilityThreshold > 1 {
		errs = append(errs, fmt.Errorf("refugia_probability_threshold must be within [0, 1], got %g", p.ProbabilityThreshold))
	}
	if p.LabelRadiusKm < 0 {
		errs = append(errs, fmt.Errorf("label_radius_km must not be negative, got %g", p.LabelRadiusKm))
	}
	return errors.Join(errs...)
}

// Default returns the configuration with every default applied
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}
