package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/formload/internal/loadtest"
	"github.com/wesleyorama2/formload/internal/metrics"
)

// PerVUIterations runs a fixed number of iterations on every VU.
//
// The run ends when every VU has finished its iterations or the maximum
// duration has passed, whichever comes first.
type PerVUIterations struct {
	base
}

// NewPerVUIterations creates a new per-VU iterations executor.
func NewPerVUIterations() *PerVUIterations {
	return &PerVUIterations{}
}

// Type returns the executor type.
func (e *PerVUIterations) Type() Type {
	return TypePerVUIterations
}

// Init initializes the executor with configuration.
func (e *PerVUIterations) Init(ctx context.Context, config *Config) error {
	if config.Type != TypePerVUIterations {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypePerVUIterations, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.init(config)
	return nil
}

// Run starts the executor and blocks until completion.
func (e *PerVUIterations) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx := e.begin(ctx, scheduler, metricsEngine)
	defer e.end()

	metricsEngine.SetPhase(metrics.PhaseSteady)
	for i := 0; i < e.config.VUs; i++ {
		var left atomic.Int64
		left.Store(e.config.Iterations)
		e.startVU(runCtx, scheduler.SpawnVU(), func() bool { return left.Add(-1) >= 0 })
	}

	return e.await(ctx)
}

// GetProgress returns the share of iterations done.
func (e *PerVUIterations) GetProgress() float64 {
	return iterationProgress(&e.base, int64(e.config.VUs)*e.config.Iterations)
}

// GetStats returns executor statistics.
func (e *PerVUIterations) GetStats() *Stats {
	s := e.stats()
	s.TotalIterations = int64(e.config.VUs) * e.config.Iterations
	return s
}

// Stop gracefully stops the executor.
func (e *PerVUIterations) Stop(ctx context.Context) error {
	e.requestStop()
	return e.waitStopped(ctx)
}

// SharedIterations spreads a total iteration count over a pool of VUs. Faster
// VUs run more of the iterations.
type SharedIterations struct {
	base

	remaining atomic.Int64
}

// NewSharedIterations creates a new shared iterations executor.
func NewSharedIterations() *SharedIterations {
	return &SharedIterations{}
}

// Type returns the executor type.
func (e *SharedIterations) Type() Type {
	return TypeSharedIterations
}

// Init initializes the executor with configuration.
func (e *SharedIterations) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeSharedIterations {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeSharedIterations, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.init(config)
	return nil
}

// Run starts the executor and blocks until completion.
func (e *SharedIterations) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx := e.begin(ctx, scheduler, metricsEngine)
	defer e.end()

	e.remaining.Store(e.config.Iterations)
	metricsEngine.SetPhase(metrics.PhaseSteady)

	vus := e.config.VUs
	if int64(vus) > e.config.Iterations {
		vus = int(e.config.Iterations)
	}
	next := func() bool { return e.remaining.Add(-1) >= 0 }
	for i := 0; i < vus; i++ {
		e.startVU(runCtx, scheduler.SpawnVU(), next)
	}

	return e.await(ctx)
}

// GetProgress returns the share of iterations done.
func (e *SharedIterations) GetProgress() float64 {
	return iterationProgress(&e.base, e.config.Iterations)
}

// GetStats returns executor statistics.
func (e *SharedIterations) GetStats() *Stats {
	s := e.stats()
	s.TotalIterations = e.config.Iterations
	return s
}

// Stop gracefully stops the executor.
func (e *SharedIterations) Stop(ctx context.Context) error {
	e.requestStop()
	return e.waitStopped(ctx)
}

// await blocks until all VUs ran out of iterations, the maximum duration
// passed, Stop was called or ctx ended.
func (b *base) await(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(b.config.TotalDuration())
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	case <-b.stopRequested():
	case <-ctx.Done():
	}

	b.drain()
	return ctx.Err()
}

func iterationProgress(b *base, total int64) float64 {
	if b.finished.Load() {
		return 1.0
	}
	if total <= 0 {
		return 0.0
	}
	p := float64(b.iterations.Load()) / float64(total)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

var (
	_ Executor = (*PerVUIterations)(nil)
	_ Executor = (*SharedIterations)(nil)
)
