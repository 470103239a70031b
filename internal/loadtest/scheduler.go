package loadtest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// VUScheduler manages the lifecycle of the Virtual Users of one workload.
//
// It provides:
//   - VU pool management (spawning and stopping VUs)
//   - the iteration loop shared by all executors
//   - graceful shutdown coordination
type VUScheduler struct {
	workload *Workload
	logger   *zap.Logger

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownWg   sync.WaitGroup
}

// NewVUScheduler creates a scheduler for w.
func NewVUScheduler(w *Workload) *VUScheduler {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VUScheduler{
		workload:   w,
		logger:     logger,
		vus:        make(map[int]*VirtualUser),
		shutdownCh: make(chan struct{}),
	}
}

// Workload returns the workload the scheduler runs.
func (s *VUScheduler) Workload() *Workload {
	return s.workload
}

// SpawnVU creates and registers a new Virtual User. The id of a stopped VU is
// reused before a new one is allocated, so a re-spawned VU continues in the
// session of its predecessor. The caller is responsible for running the VU.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	id := 0
	for vid, vu := range s.vus {
		if vu.GetState() == VUStateStopped && (id == 0 || vid < id) {
			id = vid
		}
	}
	if id == 0 {
		id = int(s.nextVUID.Add(1))
	}

	vu := NewVirtualUser(id, s.workload)
	s.vus[id] = vu
	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// GetActiveVUs returns all VUs that have not stopped, ordered by id.
func (s *VUScheduler) GetActiveVUs() []*VirtualUser {
	s.vusMu.RLock()
	result := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			result = append(result, vu)
		}
	}
	s.vusMu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetActiveVUCount returns the count of non-stopped VUs.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// StopVU requests a specific VU to stop.
func (s *VUScheduler) StopVU(id int) {
	if vu := s.GetVU(id); vu != nil {
		vu.RequestStop()
	}
}

// StopAllVUs requests all VUs to stop after their current iteration.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// WaitForAllVUs waits for all VUs to stop with a timeout.
//
// Returns the number of VUs that did not stop within the timeout.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		remaining := time.Until(deadline)
		if remaining <= 0 || !vu.WaitForStop(remaining) {
			notStopped++
		}
	}
	return notStopped
}

// RunOptions shape the iteration loop of RunVU.
type RunOptions struct {
	// Next is consulted before each iteration; false ends the loop. Nil
	// means unlimited.
	Next func() bool

	// Pacing returns the pause after each iteration. Nil means none.
	Pacing func() time.Duration

	// OnIteration is called after every finished iteration.
	OnIteration func()
}

// RunVU runs iterations on vu until it is stopped, ctx is cancelled, the
// scheduler shuts down or opts.Next declines. It marks the VU stopped on
// return.
func (s *VUScheduler) RunVU(ctx context.Context, vu *VirtualUser, opts RunOptions) {
	s.shutdownWg.Add(1)
	defer s.shutdownWg.Done()
	defer vu.MarkStopped()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		default:
		}
		if vu.Stopping() {
			return
		}
		if opts.Next != nil && !opts.Next() {
			return
		}

		if _, err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.Stopping() {
				return
			}
			s.logger.Debug("iteration not run", zap.String("actor", vu.Actor), zap.Error(err))
		}
		if opts.OnIteration != nil {
			opts.OnIteration()
		}

		if opts.Pacing != nil {
			if !vu.Sleep(ctx, opts.Pacing()) {
				return
			}
		}
	}
}

// ScaleVUs adjusts the VU count to target, spawning new VUs through onSpawn
// or asking the highest-numbered running VUs to stop.
//
// Returns the VU count after adjustment.
func (s *VUScheduler) ScaleVUs(target int, onSpawn func(*VirtualUser)) int {
	active := s.GetActiveVUs()
	running := make([]*VirtualUser, 0, len(active))
	for _, vu := range active {
		if !vu.Stopping() {
			running = append(running, vu)
		}
	}

	switch {
	case target > len(running):
		for i := len(running); i < target; i++ {
			vu := s.SpawnVU()
			if onSpawn != nil {
				onSpawn(vu)
			}
		}
	case target < len(running):
		for i := len(running) - 1; i >= target; i-- {
			running[i].RequestStop()
		}
	}
	return target
}

// Shutdown stops all VUs and waits up to timeout for their loops to exit.
//
// Returns false if some loops were still running at the deadline.
func (s *VUScheduler) Shutdown(timeout time.Duration) bool {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	s.StopAllVUs()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
