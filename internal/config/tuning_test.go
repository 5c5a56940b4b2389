package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTuningConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Write test config with flat schema
	testJSON := `{
  "accel_threshold_kmh_s": 25.0,
  "steering_threshold_deg": 15.0,
  "bucket_seconds": 0.05,
  "quality_window_seconds": 30.0,
  "flush_interval": "2s",
  "batch_size": 100
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Load the config
	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.AccelThresholdKmhS == nil || *cfg.AccelThresholdKmhS != 25.0 {
		t.Errorf("Expected AccelThresholdKmhS 25.0, got %v", cfg.AccelThresholdKmhS)
	}
	if cfg.SteeringThresholdDeg == nil || *cfg.SteeringThresholdDeg != 15.0 {
		t.Errorf("Expected SteeringThresholdDeg 15.0, got %v", cfg.SteeringThresholdDeg)
	}
	if cfg.BucketSeconds == nil || *cfg.BucketSeconds != 0.05 {
		t.Errorf("Expected BucketSeconds 0.05, got %v", cfg.BucketSeconds)
	}
	if cfg.QualityWindowSeconds == nil || *cfg.QualityWindowSeconds != 30.0 {
		t.Errorf("Expected QualityWindowSeconds 30.0, got %v", cfg.QualityWindowSeconds)
	}
	if cfg.FlushInterval == nil || *cfg.FlushInterval != "2s" {
		t.Errorf("Expected FlushInterval '2s', got %v", cfg.FlushInterval)
	}
	if cfg.BatchSize == nil || *cfg.BatchSize != 100 {
		t.Errorf("Expected BatchSize 100, got %v", cfg.BatchSize)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "accel_threshold_kmh_s": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "negative accel threshold",
			cfg: &TuningConfig{
				AccelThresholdKmhS: ptrFloat64(-5),
			},
			wantErr: true,
		},
		{
			name: "zero steering threshold",
			cfg: &TuningConfig{
				SteeringThresholdDeg: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "zero bucket seconds",
			cfg: &TuningConfig{
				BucketSeconds: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "invalid flush interval",
			cfg: &TuningConfig{
				FlushInterval: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "zero batch size",
			cfg: &TuningConfig{
				BatchSize: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "valid overrides",
			cfg: &TuningConfig{
				AccelThresholdKmhS:   ptrFloat64(40),
				SteeringThresholdDeg: ptrFloat64(25),
				BucketSeconds:        ptrFloat64(0.2),
				FlushInterval:        ptrString("10s"),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetFlushInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{
			name: "5 seconds",
			cfg: &TuningConfig{
				FlushInterval: ptrString("5s"),
			},
			want: 5 * time.Second,
		},
		{
			name: "2 minutes",
			cfg: &TuningConfig{
				FlushInterval: ptrString("2m"),
			},
			want: 2 * time.Minute,
		},
		{
			name: "nil pointer returns default",
			cfg:  &TuningConfig{},
			want: 5 * time.Second,
		},
		{
			name: "empty string returns default",
			cfg: &TuningConfig{
				FlushInterval: ptrString(""),
			},
			want: 5 * time.Second,
		},
		{
			name: "invalid duration returns default",
			cfg: &TuningConfig{
				FlushInterval: ptrString("invalid"),
			},
			want: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetFlushInterval()
			if got != tt.want {
				t.Errorf("GetFlushInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetAccelThresholdKmhS() != 35.0 {
		t.Errorf("Expected 35.0, got %f", cfg.GetAccelThresholdKmhS())
	}
	if cfg.GetSteeringThresholdDeg() != 20.0 {
		t.Errorf("Expected 20.0, got %f", cfg.GetSteeringThresholdDeg())
	}
	if cfg.GetBucketSeconds() != 0.1 {
		t.Errorf("Expected 0.1, got %f", cfg.GetBucketSeconds())
	}
	if cfg.GetQualityWindowSeconds() != 60.0 {
		t.Errorf("Expected 60.0, got %f", cfg.GetQualityWindowSeconds())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override the accel threshold; everything
	// else should keep defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "accel_threshold_kmh_s": 50.0
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetAccelThresholdKmhS() != 50.0 {
		t.Errorf("Expected overridden AccelThresholdKmhS 50.0, got %f", cfg.GetAccelThresholdKmhS())
	}
	// Default values should be preserved
	if cfg.GetSteeringThresholdDeg() != 20.0 {
		t.Errorf("Expected default SteeringThresholdDeg 20.0, got %f", cfg.GetSteeringThresholdDeg())
	}
	if cfg.GetFlushInterval() != 5*time.Second {
		t.Errorf("Expected default FlushInterval 5s, got %v", cfg.GetFlushInterval())
	}
	if cfg.GetBatchSize() != 500 {
		t.Errorf("Expected default BatchSize 500, got %d", cfg.GetBatchSize())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestGetterDefaults(t *testing.T) {
	// Test that getter methods return expected defaults when pointers are nil
	cfg := &TuningConfig{} // empty config

	if cfg.GetAccelThresholdKmhS() != 35.0 {
		t.Errorf("GetAccelThresholdKmhS() = %f, want 35.0", cfg.GetAccelThresholdKmhS())
	}
	if cfg.GetSteeringThresholdDeg() != 20.0 {
		t.Errorf("GetSteeringThresholdDeg() = %f, want 20.0", cfg.GetSteeringThresholdDeg())
	}
	if cfg.GetBucketSeconds() != 0.1 {
		t.Errorf("GetBucketSeconds() = %f, want 0.1", cfg.GetBucketSeconds())
	}
	if cfg.GetLatestBucketSeconds() != 1.0 {
		t.Errorf("GetLatestBucketSeconds() = %f, want 1.0", cfg.GetLatestBucketSeconds())
	}
	if cfg.GetQualityWindowSeconds() != 60.0 {
		t.Errorf("GetQualityWindowSeconds() = %f, want 60.0", cfg.GetQualityWindowSeconds())
	}
	if cfg.GetDefaultPeriodMs() != 100.0 {
		t.Errorf("GetDefaultPeriodMs() = %f, want 100.0", cfg.GetDefaultPeriodMs())
	}
	if cfg.GetFlushInterval() != 5*time.Second {
		t.Errorf("GetFlushInterval() = %v, want 5s", cfg.GetFlushInterval())
	}
	if cfg.GetBatchSize() != 500 {
		t.Errorf("GetBatchSize() = %d, want 500", cfg.GetBatchSize())
	}
	if cfg.GetDictionaryPath() != "" {
		t.Errorf("GetDictionaryPath() = %q, want empty", cfg.GetDictionaryPath())
	}
}

func TestTimezoneOption(t *testing.T) {
	t.Run("default is UTC", func(t *testing.T) {
		cfg := &TuningConfig{}
		assert.Equal(t, "UTC", cfg.GetTimezone())
		require.NoError(t, cfg.Validate())
	})

	t.Run("valid zone accepted", func(t *testing.T) {
		cfg := &TuningConfig{Timezone: ptrString("America/Chicago")}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "America/Chicago", cfg.GetTimezone())
	})

	t.Run("invalid zone rejected", func(t *testing.T) {
		cfg := &TuningConfig{Timezone: ptrString("Mars/Olympus_Mons")}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timezone")
	})

	t.Run("empty string means UTC", func(t *testing.T) {
		cfg := &TuningConfig{Timezone: ptrString("")}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "UTC", cfg.GetTimezone())
	})
}
