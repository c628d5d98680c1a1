package config

import (
	"os"
	"strconv"
	"strings"

	"causalscore/internal/errors"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config represents the complete scorer configuration
type Config struct {
	Scorer     ScorerConfig     `yaml:"scorer"`
	Propensity PropensityConfig `yaml:"propensity"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
}

// ScorerConfig holds the metric thresholds and seeds
type ScorerConfig struct {
	SDThreshold     float64 `yaml:"sd_threshold" validate:"gte=0"`
	Clip            float64 `yaml:"clip" validate:"gt=0,lt=0.5"`
	Quantiles       int     `yaml:"quantiles" validate:"gte=2"`
	CODECSeed       uint64  `yaml:"codec_seed"`
	EruptIterations int     `yaml:"erupt_iterations" validate:"gte=1"`
	EruptSeed       uint64  `yaml:"erupt_seed"`
}

// PropensityConfig holds the logistic propensity fit settings
type PropensityConfig struct {
	L2            float64 `yaml:"l2" validate:"gt=0"`
	MaxIterations int     `yaml:"max_iterations" validate:"gte=1"`
}

// RuntimeConfig holds concurrency, caching and logging settings
type RuntimeConfig struct {
	Parallelism int    `yaml:"parallelism" validate:"gte=1"`
	CacheSize   int    `yaml:"cache_size" validate:"gte=1"`
	LogLevel    string `yaml:"log_level" validate:"required,oneof=error warn info debug trace"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Scorer: ScorerConfig{
			SDThreshold:     0.01,
			Clip:            0.05,
			Quantiles:       200,
			CODECSeed:       42,
			EruptIterations: 100,
			EruptSeed:       42,
		},
		Propensity: PropensityConfig{
			L2:            1e-3,
			MaxIterations: 500,
		},
		Runtime: RuntimeConfig{
			Parallelism: 4,
			CacheSize:   16,
			LogLevel:    "info",
		},
	}
}

// Load starts from Default, overlays SCORER_CONFIG_FILE when set, applies
// environment variables and validates the result
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv("SCORER_CONFIG_FILE"); path != "" {
		if err := loadConfigFile(path, config); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	loadScorerConfig(&config.Scorer)
	loadPropensityConfig(&config.Propensity)
	loadRuntimeConfig(&config.Runtime)

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Validate checks the struct tags of every section
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

func loadScorerConfig(c *ScorerConfig) {
	c.SDThreshold = getEnvFloatOrDefault("SCORER_SD_THRESHOLD", c.SDThreshold)
	c.Clip = getEnvFloatOrDefault("SCORER_CLIP", c.Clip)
	c.Quantiles = getEnvIntOrDefault("SCORER_QUANTILES", c.Quantiles)
	c.CODECSeed = getEnvUintOrDefault("SCORER_CODEC_SEED", c.CODECSeed)
	c.EruptIterations = getEnvIntOrDefault("SCORER_ERUPT_ITERATIONS", c.EruptIterations)
	c.EruptSeed = getEnvUintOrDefault("SCORER_ERUPT_SEED", c.EruptSeed)
}

func loadPropensityConfig(c *PropensityConfig) {
	c.L2 = getEnvFloatOrDefault("PROPENSITY_L2", c.L2)
	c.MaxIterations = getEnvIntOrDefault("PROPENSITY_MAX_ITER", c.MaxIterations)
}

func loadRuntimeConfig(c *RuntimeConfig) {
	c.Parallelism = getEnvIntOrDefault("SCORER_PARALLELISM", c.Parallelism)
	c.CacheSize = getEnvIntOrDefault("SCORER_CACHE_SIZE", c.CacheSize)
	c.LogLevel = strings.ToLower(getEnvOrDefault("LOG_LEVEL", c.LogLevel))
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUintOrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
