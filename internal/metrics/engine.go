// Package metrics aggregates timed transactions and scenario iterations using
// HDR histograms.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/formload/internal/transaction"
)

// Engine collects and aggregates transaction metrics.
//
// Key features:
// - HDR histogram for accurate latency percentiles (O(1) calculation)
// - Per-transaction-name histograms and outcome counters
// - Lock-free counter updates for high concurrency
// - Phase tracking
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms use mutex protection. Engine implements transaction.Sink.
type Engine struct {
	// HDR Histogram for latency measurement
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	// Per-transaction histograms and counters
	named   map[string]*namedStats
	namedMu sync.Mutex

	transactions outcomeCounters
	iterations   outcomeCounters

	activeVUs atomic.Int32

	// Phase tracking
	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time

	config EngineConfig
}

type namedStats struct {
	hist     *hdrhistogram.Histogram
	outcomes OutcomeCounts
}

type outcomeCounters struct {
	total, passed, failed, inconclusive atomic.Int64
}

func (c *outcomeCounters) add(o transaction.Outcome) {
	c.total.Add(1)
	switch o {
	case transaction.OutcomePass:
		c.passed.Add(1)
	case transaction.OutcomeInconclusive:
		c.inconclusive.Add(1)
	default:
		c.failed.Add(1)
	}
}

func (c *outcomeCounters) load() OutcomeCounts {
	return OutcomeCounts{
		Total:        c.total.Load(),
		Passed:       c.passed.Load(),
		Failed:       c.failed.Load(),
		Inconclusive: c.inconclusive.Load(),
	}
}

func (c *outcomeCounters) reset() {
	c.total.Store(0)
	c.passed.Store(0)
	c.failed.Store(0)
	c.inconclusive.Store(0)
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	return &Engine{
		latencyHist:  hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		named:        make(map[string]*namedStats),
		currentPhase: PhaseInit,
		phaseHistory: make([]PhaseChange, 0),
		startTime:    time.Now(),
		config:       config,
	}
}

// Record records one timed transaction.
func (e *Engine) Record(m transaction.Measurement) {
	latencyMicros := e.clamp(m.Duration)

	// HDR histogram RecordValue is not thread-safe
	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	e.namedMu.Lock()
	ns, ok := e.named[m.Name]
	if !ok {
		ns = &namedStats{hist: hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)}
		e.named[m.Name] = ns
	}
	_ = ns.hist.RecordValue(latencyMicros)
	ns.outcomes.Total++
	switch m.Outcome {
	case transaction.OutcomePass:
		ns.outcomes.Passed++
	case transaction.OutcomeInconclusive:
		ns.outcomes.Inconclusive++
	default:
		ns.outcomes.Failed++
	}
	e.namedMu.Unlock()

	e.transactions.add(m.Outcome)
}

// RecordIteration counts one finished scenario iteration.
func (e *Engine) RecordIteration(outcome transaction.Outcome) {
	e.iterations.add(outcome)
}

func (e *Engine) clamp(d time.Duration) int64 {
	v := d.Microseconds()
	if v < e.config.HistogramMin {
		v = e.config.HistogramMin
	}
	if v > e.config.HistogramMax {
		v = e.config.HistogramMax
	}
	return v
}

// SetPhase updates the current test phase.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:        phase,
		Timestamp:    time.Now(),
		Transactions: e.transactions.total.Load(),
	})
}

// GetPhase returns the current test phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// AddActiveVUs adjusts the active VU count by delta.
func (e *Engine) AddActiveVUs(delta int) {
	e.activeVUs.Add(int32(delta))
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := statsOf(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	tx := e.transactions.load()

	tps := 0.0
	if elapsed.Seconds() > 0 {
		tps = float64(tx.Total) / elapsed.Seconds()
	}

	failureRate := 0.0
	if tx.Total > 0 {
		failureRate = float64(tx.Failed) / float64(tx.Total)
	}

	return &Snapshot{
		Transactions: tx,
		Iterations:   e.iterations.load(),
		Latency:      latency,
		TPS:          tps,
		FailureRate:  failureRate,
		ActiveVUs:    e.GetActiveVUs(),
		CurrentPhase: e.GetPhase(),
		Elapsed:      elapsed,
		StartTime:    e.startTime,
		Timestamp:    time.Now(),
	}
}

// GetTransactionStats returns per-name statistics sorted by name.
func (e *Engine) GetTransactionStats() []TransactionStats {
	e.namedMu.Lock()
	defer e.namedMu.Unlock()

	result := make([]TransactionStats, 0, len(e.named))
	for name, ns := range e.named {
		result = append(result, TransactionStats{
			Name:     name,
			Outcomes: ns.outcomes,
			Latency:  statsOf(ns.hist),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Reset resets all metrics to initial state.
func (e *Engine) Reset() {
	e.latencyHistMu.Lock()
	e.latencyHist.Reset()
	e.latencyHistMu.Unlock()

	e.namedMu.Lock()
	e.named = make(map[string]*namedStats)
	e.namedMu.Unlock()

	e.transactions.reset()
	e.iterations.reset()
	e.activeVUs.Store(0)

	e.phaseMu.Lock()
	e.currentPhase = PhaseInit
	e.phaseHistory = make([]PhaseChange, 0)
	e.phaseMu.Unlock()

	e.startTime = time.Now()
}

func statsOf(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}

var _ transaction.Sink = (*Engine)(nil)
