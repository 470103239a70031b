// Package executor provides load generation strategies: how many virtual
// users run a workload and for how long.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/formload/internal/loadtest"
	"github.com/wesleyorama2/formload/internal/metrics"
	"github.com/wesleyorama2/formload/internal/random"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"

	// TypePerVUIterations runs a fixed number of iterations per VU.
	TypePerVUIterations Type = "per-vu-iterations"

	// TypeSharedIterations shares a total iteration count across VUs.
	TypeSharedIterations Type = "shared-iterations"
)

// DefaultGracefulStop bounds how long running iterations may finish after
// an executor decides to stop.
const DefaultGracefulStop = 30 * time.Second

// DefaultMaxDuration caps iteration-based executors without a duration.
const DefaultMaxDuration = 10 * time.Minute

// Executor defines the interface for load generation strategies.
//
// Executors control how many virtual users run and when they stop. Every
// VU runs iterations of the scheduler's workload in its own session.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until completion.
	// Cancelling ctx interrupts running iterations.
	Run(ctx context.Context, scheduler *loadtest.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop asks the executor to stop starting iterations and waits for
	// running ones, up to the graceful stop timeout.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	VUs        int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration   time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Iterations int64         `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// Stages (for ramping executors)
	Stages []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop timeout
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Pacing between iterations
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// Stage defines a stage in ramping executors.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// PacingConfig controls time between iterations.
type PacingConfig struct {
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random pacing, [Min, Max)
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// Wait returns the pause after one iteration. src is used for random pacing.
func (p *PacingConfig) Wait(src *random.Source) time.Duration {
	if p == nil {
		return 0
	}
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		if src == nil {
			return p.Min
		}
		return src.Duration(p.Min, p.Max)
	default:
		return 0
	}
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	Iterations      int64 `json:"iterations"`
	TotalIterations int64 `json:"totalIterations"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		for _, s := range c.Stages {
			if s.Duration <= 0 {
				return &ValidationError{Field: "stages", Message: "stage duration must be > 0"}
			}
			if s.Target < 0 {
				return &ValidationError{Field: "stages", Message: "stage target must be >= 0"}
			}
		}

	case TypePerVUIterations, TypeSharedIterations:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Iterations <= 0 {
			return &ValidationError{Field: "iterations", Message: "iterations must be > 0"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.Pacing != nil && c.Pacing.Type == PacingRandom && c.Pacing.Min > c.Pacing.Max {
		return &ValidationError{Field: "pacing", Message: "min must be <= max"}
	}
	return nil
}

// TotalDuration calculates the planned duration for this executor. For
// iteration-based executors it is the maximum duration.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs:
		return c.Duration

	case TypeRampingVUs:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total

	case TypePerVUIterations, TypeSharedIterations:
		if c.Duration > 0 {
			return c.Duration
		}
		return DefaultMaxDuration

	default:
		return 0
	}
}

func (c *Config) gracefulStop() time.Duration {
	if c.GracefulStop > 0 {
		return c.GracefulStop
	}
	return DefaultGracefulStop
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}

// base carries the state every executor shares: VU accounting, the hard
// cancel for running iterations, and the graceful stop sequence.
type base struct {
	config    *Config
	scheduler *loadtest.VUScheduler
	metrics   *metrics.Engine

	startTime  time.Time
	activeVUs  atomic.Int32
	iterations atomic.Int64
	running    atomic.Bool
	finished   atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func (b *base) init(config *Config) {
	b.config = config
	b.stopCh = make(chan struct{})
}

// begin records the start and returns the context running iterations use.
func (b *base) begin(ctx context.Context, scheduler *loadtest.VUScheduler, m *metrics.Engine) context.Context {
	b.scheduler = scheduler
	b.metrics = m
	b.startTime = time.Now()
	b.running.Store(true)

	runCtx, cancel := context.WithCancel(ctx)
	b.cancelMu.Lock()
	b.cancel = cancel
	b.cancelMu.Unlock()
	return runCtx
}

// end releases the run context and marks the executor finished.
func (b *base) end() {
	b.cancelMu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.cancelMu.Unlock()
	b.running.Store(false)
	b.finished.Store(true)
}

// startVU runs vu in its own goroutine through the scheduler loop.
func (b *base) startVU(ctx context.Context, vu *loadtest.VirtualUser, next func() bool) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		b.activeVUs.Add(1)
		b.metrics.AddActiveVUs(1)
		defer func() {
			b.activeVUs.Add(-1)
			b.metrics.AddActiveVUs(-1)
		}()

		src := b.scheduler.Workload().Source
		b.scheduler.RunVU(ctx, vu, loadtest.RunOptions{
			Next:        next,
			Pacing:      func() time.Duration { return b.config.Pacing.Wait(src) },
			OnIteration: func() { b.iterations.Add(1) },
		})
	}()
}

// stopRequested is closed by Stop.
func (b *base) stopRequested() <-chan struct{} {
	return b.stopCh
}

// drain stops all VUs and waits up to the graceful stop for their current
// iterations; after that running iterations are cancelled.
func (b *base) drain() {
	b.scheduler.StopAllVUs()
	if !waitTimeout(&b.wg, b.config.gracefulStop()) {
		b.cancelMu.Lock()
		if b.cancel != nil {
			b.cancel()
		}
		b.cancelMu.Unlock()
		b.wg.Wait()
	}
}

func (b *base) requestStop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *base) waitStopped(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	graceful := b.config.gracefulStop() + time.Second
	t := time.NewTimer(graceful)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return &StopTimeoutError{After: graceful}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetActiveVUs returns current active VU count.
func (b *base) GetActiveVUs() int {
	return int(b.activeVUs.Load())
}

func (b *base) progress(total time.Duration) float64 {
	if b.finished.Load() {
		return 1.0
	}
	if !b.running.Load() || total <= 0 {
		return 0.0
	}
	p := float64(time.Since(b.startTime)) / float64(total)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

func (b *base) stats() *Stats {
	var elapsed time.Duration
	if !b.startTime.IsZero() {
		elapsed = time.Since(b.startTime)
	}
	return &Stats{
		StartTime:     b.startTime,
		CurrentTime:   time.Now(),
		Elapsed:       elapsed,
		TotalDuration: b.config.TotalDuration(),
		ActiveVUs:     int(b.activeVUs.Load()),
		TargetVUs:     b.config.VUs,
		Iterations:    b.iterations.Load(),
	}
}

// StopTimeoutError reports VUs still running after the graceful stop.
type StopTimeoutError struct {
	After time.Duration
}

func (e *StopTimeoutError) Error() string {
	return "graceful stop timeout after " + e.After.String()
}

// waitTimeout waits for wg and reports whether it finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
