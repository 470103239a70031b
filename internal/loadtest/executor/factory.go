package executor

import (
	"context"
	"fmt"

	"github.com/wesleyorama2/formload/internal/config"
)

// NewExecutor creates a new executor of the specified type.
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type) (Executor, error) {
	switch executorType {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	case TypePerVUIterations:
		return NewPerVUIterations(), nil
	case TypeSharedIterations:
		return NewSharedIterations(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}
	return exec, nil
}

// CreateExecutorFromScenarioConfig creates and initializes an executor from a
// scenario group of the file configuration.
func CreateExecutorFromScenarioConfig(ctx context.Context, name string, sc *config.ScenarioConfig) (Executor, *Config, error) {
	execConfig, err := ConvertScenarioConfig(name, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert scenario config: %w", err)
	}

	exec, err := CreateAndInitExecutor(ctx, execConfig)
	if err != nil {
		return nil, nil, err
	}
	return exec, execConfig, nil
}

// ConvertScenarioConfig converts a config.ScenarioConfig to an executor Config,
// parsing all duration strings.
func ConvertScenarioConfig(name string, sc *config.ScenarioConfig) (*Config, error) {
	cfg := &Config{
		Name:       name,
		Type:       Type(sc.Executor),
		VUs:        sc.VUs,
		Iterations: sc.Iterations,
	}

	var err error
	if cfg.Duration, err = config.ParseDurationString(sc.Duration); err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}
	if cfg.GracefulStop, err = config.ParseDurationString(sc.GracefulStop); err != nil {
		return nil, fmt.Errorf("invalid gracefulStop: %w", err)
	}

	for _, stage := range sc.Stages {
		d, err := config.ParseDurationString(stage.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid stage duration: %w", err)
		}
		cfg.Stages = append(cfg.Stages, Stage{Duration: d, Target: stage.Target, Name: stage.Name})
	}

	if sc.Pacing != nil {
		cfg.Pacing = &PacingConfig{Type: PacingType(sc.Pacing.Type)}
		if cfg.Pacing.Type == "" {
			cfg.Pacing.Type = PacingNone
		}
		if cfg.Pacing.Duration, err = config.ParseDurationString(sc.Pacing.Duration); err != nil {
			return nil, fmt.Errorf("invalid pacing duration: %w", err)
		}
		if cfg.Pacing.Min, err = config.ParseDurationString(sc.Pacing.Min); err != nil {
			return nil, fmt.Errorf("invalid pacing min: %w", err)
		}
		if cfg.Pacing.Max, err = config.ParseDurationString(sc.Pacing.Max); err != nil {
			return nil, fmt.Errorf("invalid pacing max: %w", err)
		}
	}

	return cfg, nil
}

// IsValidExecutorType returns true if the type is a valid executor type.
func IsValidExecutorType(executorType string) bool {
	switch Type(executorType) {
	case TypeConstantVUs, TypeRampingVUs, TypePerVUIterations, TypeSharedIterations:
		return true
	default:
		return false
	}
}

// GetSupportedExecutors returns a list of all supported executor types.
func GetSupportedExecutors() []Type {
	return []Type{
		TypeConstantVUs,
		TypeRampingVUs,
		TypePerVUIterations,
		TypeSharedIterations,
	}
}

// ExecutorDescription provides documentation for an executor type.
type ExecutorDescription struct {
	Type        Type
	Name        string
	Description string
}

// GetExecutorDescription returns documentation for an executor type.
func GetExecutorDescription(executorType Type) *ExecutorDescription {
	switch executorType {
	case TypeConstantVUs:
		return &ExecutorDescription{
			Type:        TypeConstantVUs,
			Name:        "Constant VUs",
			Description: "Runs a fixed number of users for a duration. Each user runs iterations back to back in its own session.",
		}
	case TypeRampingVUs:
		return &ExecutorDescription{
			Type:        TypeRampingVUs,
			Name:        "Ramping VUs",
			Description: "Ramps the number of users up and down according to stages.",
		}
	case TypePerVUIterations:
		return &ExecutorDescription{
			Type:        TypePerVUIterations,
			Name:        "Per-VU Iterations",
			Description: "Every user runs the same fixed number of iterations.",
		}
	case TypeSharedIterations:
		return &ExecutorDescription{
			Type:        TypeSharedIterations,
			Name:        "Shared Iterations",
			Description: "A total number of iterations is shared between a pool of users.",
		}
	default:
		return nil
	}
}

// CalculateMaxVUs returns the maximum number of VUs, and therefore sessions,
// the executor may use at once.
func CalculateMaxVUs(cfg *Config) int {
	switch cfg.Type {
	case TypeRampingVUs:
		maxVUs := 0
		for _, stage := range cfg.Stages {
			if stage.Target > maxVUs {
				maxVUs = stage.Target
			}
		}
		return maxVUs
	case TypeSharedIterations:
		if int64(cfg.VUs) > cfg.Iterations {
			return int(cfg.Iterations)
		}
		return cfg.VUs
	default:
		return cfg.VUs
	}
}
