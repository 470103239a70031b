package metrics

import "time"

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the initialization phase before the test starts
	PhaseInit Phase = "init"

	// PhaseRampUp is the ramp-up phase when virtual users are being added
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is the steady-state phase at target load
	PhaseSteady Phase = "steady"

	// PhaseRampDown is the phase when virtual users are being removed
	PhaseRampDown Phase = "ramp-down"

	// PhaseTeardown is the phase in which sessions are being closed
	PhaseTeardown Phase = "teardown"

	// PhaseDone indicates the test has completed
	PhaseDone Phase = "done"
)

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	// Transactions counts timed transactions by outcome.
	Transactions OutcomeCounts `json:"transactions"`

	// Iterations counts scenario iterations by outcome.
	Iterations OutcomeCounts `json:"iterations"`

	// Latency contains transaction latency statistics across all names.
	Latency LatencyStats `json:"latency"`

	// TPS is transactions per second since start.
	TPS float64 `json:"tps"`

	// FailureRate is the fraction of failed transactions (0.0 to 1.0).
	FailureRate float64 `json:"failureRate"`

	ActiveVUs    int           `json:"activeVUs"`
	CurrentPhase Phase         `json:"currentPhase"`
	Elapsed      time.Duration `json:"elapsed"`
	StartTime    time.Time     `json:"startTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// OutcomeCounts is a pass/fail/inconclusive tally.
type OutcomeCounts struct {
	Total        int64 `json:"total"`
	Passed       int64 `json:"passed"`
	Failed       int64 `json:"failed"`
	Inconclusive int64 `json:"inconclusive"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// TransactionStats is the per-name breakdown of a transaction.
type TransactionStats struct {
	Name     string        `json:"name"`
	Outcomes OutcomeCounts `json:"outcomes"`
	Latency  LatencyStats  `json:"latency"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase        Phase     `json:"phase"`
	Timestamp    time.Time `json:"timestamp"`
	Transactions int64     `json:"transactions"`
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}
