package plan

import (
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// ErrConfig marks invalid planner configuration. Config errors fail a run
// before any delivery is processed.
var ErrConfig = errors.New("invalid planner config")

// Config carries the route-model constants. Both are deliberate
// simplifications standing in for a real routing backend and must stay
// injectable so one can replace the estimator without touching the solver.
type Config struct {
	// DetourFactor scales straight-line distance to an estimated road
	// distance. Must be > 1.0.
	DetourFactor float64 `yaml:"detourFactor" json:"detourFactor"`
	// AvgSpeedKmh converts distance to duration. Must be > 0.
	AvgSpeedKmh float64 `yaml:"avgSpeedKmh" json:"avgSpeedKmh"`
}

// DefaultConfig returns the urban defaults.
func DefaultConfig() Config {
	return Config{DetourFactor: 1.3, AvgSpeedKmh: 30}
}

func (c Config) Validate() error {
	if c.DetourFactor <= 1.0 {
		return fmt.Errorf("%w: detourFactor must be > 1.0, got %v", ErrConfig, c.DetourFactor)
	}
	if c.AvgSpeedKmh <= 0 {
		return fmt.Errorf("%w: avgSpeedKmh must be > 0, got %v", ErrConfig, c.AvgSpeedKmh)
	}
	return nil
}

// LoadConfigFile reads planner defaults from a YAML file. Fields left zero
// in the file keep the built-in defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load planner config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("load planner config %s: %w", path, err)
	}
	if cfg.DetourFactor == 0 {
		cfg.DetourFactor = DefaultConfig().DetourFactor
	}
	if cfg.AvgSpeedKmh == 0 {
		cfg.AvgSpeedKmh = DefaultConfig().AvgSpeedKmh
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
