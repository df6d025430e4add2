// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, which tunes the pointer glide
// used when the engine moves the mouse. The glide follows a curved path whose
// duration is derived from Fitts's law.
package config

import (
	"fmt"
	"time"
)

// HumanoidConfig controls the pointer glide model.
type HumanoidConfig struct {
	// FittsA is the fixed reaction cost of a movement.
	FittsA time.Duration `mapstructure:"fitts_a" yaml:"fitts_a"`
	// FittsB scales the index of difficulty.
	FittsB time.Duration `mapstructure:"fitts_b" yaml:"fitts_b"`
	// TargetWidth is the assumed target size in pixels for the Fitts index.
	TargetWidth float64 `mapstructure:"target_width" yaml:"target_width"`
	// CurveSpread bounds how far the control points stray from the straight line,
	// as a fraction of the distance travelled.
	CurveSpread float64 `mapstructure:"curve_spread" yaml:"curve_spread"`
	// StepInterval is the pause between intermediate pointer events.
	StepInterval time.Duration `mapstructure:"step_interval" yaml:"step_interval"`
	MaxSteps     int           `mapstructure:"max_steps" yaml:"max_steps"`
}

// Validate checks the glide parameters.
func (h *HumanoidConfig) Validate() error {
	if h.TargetWidth <= 0 {
		return fmt.Errorf("humanoid.target_width must be positive")
	}
	if h.CurveSpread < 0 || h.CurveSpread > 1 {
		return fmt.Errorf("humanoid.curve_spread must be between 0.0 and 1.0")
	}
	if h.MaxSteps <= 0 {
		return fmt.Errorf("humanoid.max_steps must be a positive integer")
	}
	return nil
}

func setHumanoidDefaults(setDefault func(string, interface{})) {
	setDefault("execution.humanoid.fitts_a", "60ms")
	setDefault("execution.humanoid.fitts_b", "120ms")
	setDefault("execution.humanoid.target_width", 20.0)
	setDefault("execution.humanoid.curve_spread", 0.2)
	setDefault("execution.humanoid.step_interval", "8ms")
	setDefault("execution.humanoid.max_steps", 60)
}
