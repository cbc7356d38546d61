package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Stability detector params
	MovementTolerance    *float64 `json:"movement_tolerance,omitempty"`     // meters
	RequiredHoldDuration *string  `json:"required_hold_duration,omitempty"` // duration string like "2s"
	InitialGraceDuration *string  `json:"initial_grace_duration,omitempty"` // duration string like "1s"
	SampleTimeout        *string  `json:"sample_timeout,omitempty"`         // duration string like "500ms"

	// Tracing lifecycle params
	ProximityThreshold *float64 `json:"proximity_threshold,omitempty"`  // meters from observer
	ForwardMinDistance *float64 `json:"forward_min_distance,omitempty"` // meters from observer
	RevealDuration     *string  `json:"reveal_duration,omitempty"`      // duration string like "10s"
	MinRecordSpacing   *float64 `json:"min_record_spacing,omitempty"`   // meters between recorded trace points

	// Path generation params
	PointSpacing   *float64 `json:"point_spacing,omitempty"` // meters between guide points
	MaxPathPoints  *int     `json:"max_path_points,omitempty"`
	StepPathLength *float64 `json:"step_path_length,omitempty"` // meters start to end

	// Zig-zag params
	ZigzagBeginnerAmplitude *float64 `json:"zigzag_beginner_amplitude,omitempty"`
	ZigzagBeginnerFrequency *float64 `json:"zigzag_beginner_frequency,omitempty"`
	ZigzagAdvancedAmplitude *float64 `json:"zigzag_advanced_amplitude,omitempty"`
	ZigzagAdvancedFrequency *float64 `json:"zigzag_advanced_frequency,omitempty"`

	// Session params
	AttemptsPerStep *int `json:"attempts_per_step,omitempty"`
}

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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
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
	if c.MovementTolerance != nil && *c.MovementTolerance <= 0 {
		return fmt.Errorf("movement_tolerance must be positive, got %f", *c.MovementTolerance)
	}
	if c.ProximityThreshold != nil && *c.ProximityThreshold <= 0 {
		return fmt.Errorf("proximity_threshold must be positive, got %f", *c.ProximityThreshold)
	}
	if c.PointSpacing != nil && *c.PointSpacing <= 0 {
		return fmt.Errorf("point_spacing must be positive, got %f", *c.PointSpacing)
	}
	if c.MaxPathPoints != nil && *c.MaxPathPoints < 2 {
		return fmt.Errorf("max_path_points must be at least 2, got %d", *c.MaxPathPoints)
	}
	if c.AttemptsPerStep != nil && *c.AttemptsPerStep < 1 {
		return fmt.Errorf("attempts_per_step must be at least 1, got %d", *c.AttemptsPerStep)
	}

	// Duration strings must parse if set
	for name, v := range map[string]*string{
		"required_hold_duration": c.RequiredHoldDuration,
		"initial_grace_duration": c.InitialGraceDuration,
		"sample_timeout":         c.SampleTimeout,
		"reveal_duration":        c.RevealDuration,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	return nil
}

func durationOrDefault(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetMovementTolerance returns the movement_tolerance value or the default.
func (c *TuningConfig) GetMovementTolerance() float64 {
	if c.MovementTolerance == nil {
		return 0.05
	}
	return *c.MovementTolerance
}

// GetRequiredHoldDuration parses and returns the required_hold_duration as a time.Duration.
func (c *TuningConfig) GetRequiredHoldDuration() time.Duration {
	return durationOrDefault(c.RequiredHoldDuration, 2*time.Second)
}

// GetInitialGraceDuration parses and returns the initial_grace_duration as a time.Duration.
func (c *TuningConfig) GetInitialGraceDuration() time.Duration {
	return durationOrDefault(c.InitialGraceDuration, time.Second)
}

// GetSampleTimeout parses and returns the sample_timeout as a time.Duration.
func (c *TuningConfig) GetSampleTimeout() time.Duration {
	return durationOrDefault(c.SampleTimeout, 500*time.Millisecond)
}

// GetProximityThreshold returns the proximity_threshold value or the default.
func (c *TuningConfig) GetProximityThreshold() float64 {
	if c.ProximityThreshold == nil {
		return 0.30
	}
	return *c.ProximityThreshold
}

// GetForwardMinDistance returns the forward_min_distance value or the default.
func (c *TuningConfig) GetForwardMinDistance() float64 {
	if c.ForwardMinDistance == nil {
		return 0.40
	}
	return *c.ForwardMinDistance
}

// GetRevealDuration parses and returns the reveal_duration as a time.Duration.
func (c *TuningConfig) GetRevealDuration() time.Duration {
	return durationOrDefault(c.RevealDuration, 10*time.Second)
}

// GetMinRecordSpacing returns the min_record_spacing value or the default.
func (c *TuningConfig) GetMinRecordSpacing() float64 {
	if c.MinRecordSpacing == nil {
		return 0.003
	}
	return *c.MinRecordSpacing
}

// GetPointSpacing returns the point_spacing value or the default.
func (c *TuningConfig) GetPointSpacing() float64 {
	if c.PointSpacing == nil {
		return 0.001
	}
	return *c.PointSpacing
}

// GetMaxPathPoints returns the max_path_points value or the default.
func (c *TuningConfig) GetMaxPathPoints() int {
	if c.MaxPathPoints == nil {
		return 1000
	}
	return *c.MaxPathPoints
}

// GetStepPathLength returns the step_path_length value or the default.
func (c *TuningConfig) GetStepPathLength() float64 {
	if c.StepPathLength == nil {
		return 0.30
	}
	return *c.StepPathLength
}

// GetZigzagBeginnerAmplitude returns the zigzag_beginner_amplitude value or the default.
func (c *TuningConfig) GetZigzagBeginnerAmplitude() float64 {
	if c.ZigzagBeginnerAmplitude == nil {
		return 0.05
	}
	return *c.ZigzagBeginnerAmplitude
}

// GetZigzagBeginnerFrequency returns the zigzag_beginner_frequency value or the default.
func (c *TuningConfig) GetZigzagBeginnerFrequency() float64 {
	if c.ZigzagBeginnerFrequency == nil {
		return 2.0
	}
	return *c.ZigzagBeginnerFrequency
}

// GetZigzagAdvancedAmplitude returns the zigzag_advanced_amplitude value or the default.
func (c *TuningConfig) GetZigzagAdvancedAmplitude() float64 {
	if c.ZigzagAdvancedAmplitude == nil {
		return 0.08
	}
	return *c.ZigzagAdvancedAmplitude
}

// GetZigzagAdvancedFrequency returns the zigzag_advanced_frequency value or the default.
func (c *TuningConfig) GetZigzagAdvancedFrequency() float64 {
	if c.ZigzagAdvancedFrequency == nil {
		return 4.0
	}
	return *c.ZigzagAdvancedFrequency
}

// GetAttemptsPerStep returns the attempts_per_step value or the default.
func (c *TuningConfig) GetAttemptsPerStep() int {
	if c.AttemptsPerStep == nil {
		return 10
	}
	return *c.AttemptsPerStep
}
