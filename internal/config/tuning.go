package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/canbus.report/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Event detection params
	AccelThresholdKmhS   *float64 `json:"accel_threshold_kmh_s,omitempty"`
	SteeringThresholdDeg *float64 `json:"steering_threshold_deg,omitempty"`

	// Aggregation params
	BucketSeconds       *float64 `json:"bucket_seconds,omitempty"`
	LatestBucketSeconds *float64 `json:"latest_bucket_seconds,omitempty"`

	// Quality tracker params
	QualityWindowSeconds *float64 `json:"quality_window_seconds,omitempty"`
	DefaultPeriodMs      *float64 `json:"default_period_ms,omitempty"`

	// Pipeline params
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "5s"
	BatchSize     *int    `json:"batch_size,omitempty"`

	// Signal dictionary override; empty uses the embedded dictionary.
	DictionaryPath *string `json:"dictionary_path,omitempty"`

	// Timezone used to bucket daily stats; empty means UTC.
	Timezone *string `json:"timezone,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.AccelThresholdKmhS != nil && *c.AccelThresholdKmhS <= 0 {
		return fmt.Errorf("accel_threshold_kmh_s must be positive, got %f", *c.AccelThresholdKmhS)
	}
	if c.SteeringThresholdDeg != nil && *c.SteeringThresholdDeg <= 0 {
		return fmt.Errorf("steering_threshold_deg must be positive, got %f", *c.SteeringThresholdDeg)
	}
	if c.BucketSeconds != nil && *c.BucketSeconds <= 0 {
		return fmt.Errorf("bucket_seconds must be positive, got %f", *c.BucketSeconds)
	}
	if c.LatestBucketSeconds != nil && *c.LatestBucketSeconds <= 0 {
		return fmt.Errorf("latest_bucket_seconds must be positive, got %f", *c.LatestBucketSeconds)
	}
	if c.QualityWindowSeconds != nil && *c.QualityWindowSeconds <= 0 {
		return fmt.Errorf("quality_window_seconds must be positive, got %f", *c.QualityWindowSeconds)
	}
	if c.DefaultPeriodMs != nil && *c.DefaultPeriodMs <= 0 {
		return fmt.Errorf("default_period_ms must be positive, got %f", *c.DefaultPeriodMs)
	}
	if c.BatchSize != nil && *c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", *c.BatchSize)
	}

	// Validate FlushInterval can be parsed if set
	if c.FlushInterval != nil && *c.FlushInterval != "" {
		if _, err := time.ParseDuration(*c.FlushInterval); err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
	}

	// Validate Timezone against the tz database if set
	if c.Timezone != nil && *c.Timezone != "" && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone '%s' (examples: %s)", *c.Timezone, units.GetValidTimezonesString())
	}

	return nil
}

// GetAccelThresholdKmhS returns the accel_threshold_kmh_s value or the default.
func (c *TuningConfig) GetAccelThresholdKmhS() float64 {
	if c.AccelThresholdKmhS == nil {
		return 35.0 // default
	}
	return *c.AccelThresholdKmhS
}

// GetSteeringThresholdDeg returns the steering_threshold_deg value or the default.
func (c *TuningConfig) GetSteeringThresholdDeg() float64 {
	if c.SteeringThresholdDeg == nil {
		return 20.0 // default
	}
	return *c.SteeringThresholdDeg
}

// GetBucketSeconds returns the bucket_seconds value or the default.
func (c *TuningConfig) GetBucketSeconds() float64 {
	if c.BucketSeconds == nil {
		return 0.1 // default: 100ms aggregation buckets
	}
	return *c.BucketSeconds
}

// GetLatestBucketSeconds returns the latest_bucket_seconds value or the default.
func (c *TuningConfig) GetLatestBucketSeconds() float64 {
	if c.LatestBucketSeconds == nil {
		return 1.0 // default: 1s latest-signals view
	}
	return *c.LatestBucketSeconds
}

// GetQualityWindowSeconds returns the quality_window_seconds value or the default.
func (c *TuningConfig) GetQualityWindowSeconds() float64 {
	if c.QualityWindowSeconds == nil {
		return 60.0 // default
	}
	return *c.QualityWindowSeconds
}

// GetDefaultPeriodMs returns the default_period_ms value or the default.
func (c *TuningConfig) GetDefaultPeriodMs() float64 {
	if c.DefaultPeriodMs == nil {
		return 100.0 // default expected message period
	}
	return *c.DefaultPeriodMs
}

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *TuningConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetBatchSize returns the batch_size value or the default.
func (c *TuningConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 500 // default insert batch
	}
	return *c.BatchSize
}

// GetDictionaryPath returns the dictionary_path value or empty for the
// embedded dictionary.
func (c *TuningConfig) GetDictionaryPath() string {
	if c.DictionaryPath == nil {
		return ""
	}
	return *c.DictionaryPath
}

// GetTimezone returns the timezone value or "UTC".
func (c *TuningConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return "UTC"
	}
	return *c.Timezone
}
