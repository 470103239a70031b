package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/formload/internal/loadtest"
	"github.com/wesleyorama2/formload/internal/metrics"
)

// rampTick is how often the VU controller re-evaluates the target.
const rampTick = 100 * time.Millisecond

// RampingVUs ramps VU count up and down according to stages.
//
// The target is interpolated linearly within each stage, so VUs join and
// leave one at a time instead of in steps. VUs asked to leave finish their
// current iteration first; a VU re-joining later reuses its session.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	base

	targetVUs    atomic.Int32
	currentStage atomic.Int32
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.init(config)
	return nil
}

// Run starts the executor and blocks until completion.
func (e *RampingVUs) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx := e.begin(ctx, scheduler, metricsEngine)
	defer e.end()

	deadline := time.NewTimer(e.config.TotalDuration())
	defer deadline.Stop()
	ticker := time.NewTicker(rampTick)
	defer ticker.Stop()

	e.adjust(runCtx)
	for loop := true; loop; {
		select {
		case <-ticker.C:
			e.adjust(runCtx)
		case <-deadline.C:
			loop = false
		case <-e.stopRequested():
			loop = false
		case <-ctx.Done():
			loop = false
		}
	}

	e.drain()
	return ctx.Err()
}

func (e *RampingVUs) adjust(ctx context.Context) {
	target := e.calculateTargetVUs(time.Since(e.startTime))
	e.targetVUs.Store(int32(target))
	e.scheduler.ScaleVUs(target, func(vu *loadtest.VirtualUser) {
		e.startVU(ctx, vu, nil)
	})
	e.updatePhase()
}

// calculateTargetVUs calculates the target VU count after elapsed time.
func (e *RampingVUs) calculateTargetVUs(elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := 0

	for i, stage := range e.config.Stages {
		stageEnd := stageStart + stage.Duration
		if elapsed < stageEnd {
			e.currentStage.Store(int32(i))

			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress < 0 {
				progress = 0
			}
			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5)
		}
		prevTarget = stage.Target
		stageStart = stageEnd
	}

	if n := len(e.config.Stages); n > 0 {
		e.currentStage.Store(int32(n - 1))
		return e.config.Stages[n-1].Target
	}
	return 0
}

// updatePhase derives the metrics phase from the current stage.
func (e *RampingVUs) updatePhase() {
	idx := int(e.currentStage.Load())
	if idx >= len(e.config.Stages) {
		return
	}

	prev := 0
	if idx > 0 {
		prev = e.config.Stages[idx-1].Target
	}
	switch target := e.config.Stages[idx].Target; {
	case target > prev:
		e.metrics.SetPhase(metrics.PhaseRampUp)
	case target < prev:
		e.metrics.SetPhase(metrics.PhaseRampDown)
	default:
		e.metrics.SetPhase(metrics.PhaseSteady)
	}
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	return e.progress(e.config.TotalDuration())
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	s := e.stats()
	idx := int(e.currentStage.Load())
	s.TargetVUs = int(e.targetVUs.Load())
	s.CurrentStage = idx
	s.TotalStages = len(e.config.Stages)
	if idx < len(e.config.Stages) {
		s.CurrentStageName = e.config.Stages[idx].Name
	}
	return s
}

// Stop gracefully stops the executor.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.requestStop()
	return e.waitStopped(ctx)
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
