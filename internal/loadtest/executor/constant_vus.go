package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/formload/internal/loadtest"
	"github.com/wesleyorama2/formload/internal/metrics"
)

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// Each VU runs iterations back to back (closed model), optionally with pacing
// between them. When the duration is over no new iterations start and running
// ones get the graceful stop period to finish.
type ConstantVUs struct {
	base
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.init(config)
	return nil
}

// Run starts the executor and blocks until completion.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx := e.begin(ctx, scheduler, metricsEngine)
	defer e.end()

	// No ramp: all VUs start at once.
	metricsEngine.SetPhase(metrics.PhaseSteady)
	for i := 0; i < e.config.VUs; i++ {
		e.startVU(runCtx, scheduler.SpawnVU(), nil)
	}

	timer := time.NewTimer(e.config.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-e.stopRequested():
	case <-ctx.Done():
	}

	e.drain()
	return ctx.Err()
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	return e.progress(e.config.Duration)
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	return e.stats()
}

// Stop gracefully stops the executor.
func (e *ConstantVUs) Stop(ctx context.Context) error {
	e.requestStop()
	return e.waitStopped(ctx)
}

// Ensure ConstantVUs implements Executor
var _ Executor = (*ConstantVUs)(nil)
