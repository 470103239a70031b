// Package loadtest drives virtual users through scenario iterations. Each
// virtual user acts as one actor and therefore always reuses the same
// application session.
package loadtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/random"
	"github.com/wesleyorama2/formload/internal/scenario"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IterationObserver receives every completed iteration.
type IterationObserver interface {
	ObserveIteration(group string, res scenario.Result)
}

// ObserverFunc adapts a function to IterationObserver.
type ObserverFunc func(group string, res scenario.Result)

// ObserveIteration calls f.
func (f ObserverFunc) ObserveIteration(group string, res scenario.Result) { f(group, res) }

// Workload is what every VU of one scenario group executes.
type Workload struct {
	// Group is the configured group name; actors are named after it.
	Group string

	// Scenario is the library scenario name.
	Scenario string

	Func     scenario.Func
	Runner   *scenario.Runner
	Observer IterationObserver

	// Source feeds random pacing.
	Source *random.Source

	Logger *zap.Logger
}

// ActorName returns the actor identity of VU id in group.
func ActorName(group string, id int) string {
	return fmt.Sprintf("%s/vu-%d", group, id)
}

// VirtualUser represents a single simulated user executing scenario
// iterations under a fixed actor identity.
type VirtualUser struct {
	// Unique identifier for this VU within its group
	ID int

	// Actor keys the session the VU works in
	Actor string

	workload *Workload

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64

	last atomic.Pointer[scenario.Result]
}

// NewVirtualUser creates a new Virtual User.
func NewVirtualUser(id int, w *Workload) *VirtualUser {
	return &VirtualUser{
		ID:       id,
		Actor:    ActorName(w.Group, id),
		workload: w,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// LastResult returns the result of the most recent completed iteration.
func (vu *VirtualUser) LastResult() (scenario.Result, bool) {
	r := vu.last.Load()
	if r == nil {
		return scenario.Result{}, false
	}
	return *r, true
}

// RunIteration runs the workload scenario once.
//
// An iteration cut short by ctx is not reported to the observer; its error
// is the context error.
func (vu *VirtualUser) RunIteration(ctx context.Context) (scenario.Result, error) {
	switch vu.GetState() {
	case VUStateStopping, VUStateStopped:
		return scenario.Result{}, fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}
	if err := ctx.Err(); err != nil {
		return scenario.Result{}, err
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	n := vu.iteration.Add(1)

	w := vu.workload
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tc := scenario.NewTestContext(w.Scenario, logger.With(
		zap.String("actor", vu.Actor),
		zap.Int64("iteration", n)))

	res := w.Runner.Run(ctx, vu.Actor, tc, w.Func)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	vu.last.Store(&res)
	if w.Observer != nil {
		w.Observer.ObserveIteration(w.Group, res)
	}
	return res, nil
}

// Sleep waits for d, returning false early when the VU is stopped or ctx ends.
func (vu *VirtualUser) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// Stopping reports whether a stop was requested.
func (vu *VirtualUser) Stopping() bool {
	select {
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-vu.doneCh:
		return true
	case <-t.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Called by the goroutine that ran the VU when it exits.
func (vu *VirtualUser) MarkStopped() {
	prev := VUState(vu.state.Swap(int32(VUStateStopped)))
	if prev != VUStateStopping && prev != VUStateStopped {
		close(vu.stopCh)
	}
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
