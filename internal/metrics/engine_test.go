package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wesleyorama2/formload/internal/transaction"
)

func measurement(name string, d time.Duration, o transaction.Outcome) transaction.Measurement {
	return transaction.Measurement{Name: name, Duration: d, Outcome: o}
}

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}

	snapshot := engine.GetSnapshot()
	if snapshot.Transactions.Total != 0 {
		t.Errorf("Initial Transactions.Total = %d, want 0", snapshot.Transactions.Total)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
}

func TestEngine_Record(t *testing.T) {
	engine := NewEngine()

	engine.Record(measurement("Post", 10*time.Millisecond, transaction.OutcomePass))
	engine.Record(measurement("Post", 20*time.Millisecond, transaction.OutcomeFail))
	engine.Record(measurement("OpenPostedInvoice", 30*time.Millisecond, transaction.OutcomeInconclusive))

	snapshot := engine.GetSnapshot()
	want := OutcomeCounts{Total: 3, Passed: 1, Failed: 1, Inconclusive: 1}
	if snapshot.Transactions != want {
		t.Errorf("Transactions = %+v, want %+v", snapshot.Transactions, want)
	}
	if snapshot.FailureRate < 0.33 || snapshot.FailureRate > 0.34 {
		t.Errorf("FailureRate = %v, want ~0.333", snapshot.FailureRate)
	}

	stats := engine.GetTransactionStats()
	if len(stats) != 2 {
		t.Fatalf("len(GetTransactionStats()) = %d, want 2", len(stats))
	}
	if stats[0].Name != "OpenPostedInvoice" || stats[1].Name != "Post" {
		t.Errorf("stats not sorted by name: %q, %q", stats[0].Name, stats[1].Name)
	}
	if stats[1].Outcomes.Total != 2 || stats[1].Latency.Count != 2 {
		t.Errorf("Post stats = %+v", stats[1])
	}
}

func TestEngine_LatencyPercentiles(t *testing.T) {
	engine := NewEngine()

	for i := 1; i <= 100; i++ {
		engine.Record(measurement("step", time.Duration(i)*time.Millisecond, transaction.OutcomePass))
	}

	latency := engine.GetSnapshot().Latency
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"P50", latency.P50, 50 * time.Millisecond},
		{"P90", latency.P90, 90 * time.Millisecond},
		{"P99", latency.P99, 99 * time.Millisecond},
		{"Max", latency.Max, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := tt.got - tt.want
			if diff < 0 {
				diff = -diff
			}
			if diff > tt.want/100+time.Millisecond {
				t.Errorf("%s = %v, want ~%v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestEngine_ClampsOutOfRange(t *testing.T) {
	engine := NewEngine()
	engine.Record(measurement("zero", 0, transaction.OutcomePass))
	engine.Record(measurement("huge", 2*time.Hour, transaction.OutcomePass))

	if got := engine.GetSnapshot().Latency.Count; got != 2 {
		t.Errorf("Latency.Count = %d, want 2", got)
	}
}

func TestEngine_Iterations(t *testing.T) {
	engine := NewEngine()
	engine.RecordIteration(transaction.OutcomePass)
	engine.RecordIteration(transaction.OutcomeInconclusive)

	got := engine.GetSnapshot().Iterations
	if got.Total != 2 || got.Passed != 1 || got.Inconclusive != 1 {
		t.Errorf("Iterations = %+v", got)
	}
}

func TestEngine_Phases(t *testing.T) {
	engine := NewEngine()
	engine.SetPhase(PhaseSteady)
	engine.SetPhase(PhaseSteady)
	engine.SetPhase(PhaseDone)

	if engine.GetPhase() != PhaseDone {
		t.Errorf("GetPhase() = %v, want %v", engine.GetPhase(), PhaseDone)
	}
	if n := len(engine.GetPhaseHistory()); n != 2 {
		t.Errorf("len(GetPhaseHistory()) = %d, want 2", n)
	}
}

func TestEngine_ConcurrentRecord(t *testing.T) {
	engine := NewEngine()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				engine.Record(measurement("step", time.Millisecond, transaction.OutcomePass))
			}
		}()
	}
	wg.Wait()

	if got := engine.GetSnapshot().Transactions.Total; got != 4000 {
		t.Errorf("Transactions.Total = %d, want 4000", got)
	}
}

func TestEngine_Reset(t *testing.T) {
	engine := NewEngine()
	engine.Record(measurement("step", time.Millisecond, transaction.OutcomePass))
	engine.AddActiveVUs(3)
	engine.SetPhase(PhaseSteady)

	engine.Reset()

	snapshot := engine.GetSnapshot()
	if snapshot.Transactions.Total != 0 || snapshot.ActiveVUs != 0 || snapshot.CurrentPhase != PhaseInit {
		t.Errorf("snapshot after Reset = %+v", snapshot)
	}
	if len(engine.GetTransactionStats()) != 0 {
		t.Error("per-name stats survived Reset")
	}
}

func TestPrometheusSink(t *testing.T) {
	sink := NewPrometheusSink()
	sink.Record(measurement("Post", 50*time.Millisecond, transaction.OutcomePass))
	sink.Record(measurement("Post", 70*time.Millisecond, transaction.OutcomeInconclusive))
	sink.RecordIteration("create-and-post-sales-order", transaction.OutcomePass)

	if got := testutil.ToFloat64(sink.transactions.WithLabelValues("Post", "pass")); got != 1 {
		t.Errorf("pass counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.iterations.WithLabelValues("create-and-post-sales-order", "pass")); got != 1 {
		t.Errorf("iteration counter = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `formload_transaction_duration_seconds_count{transaction="Post"} 2`) {
		t.Errorf("exposition missing histogram count:\n%s", rec.Body.String())
	}
}
