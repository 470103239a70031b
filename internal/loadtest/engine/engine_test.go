package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/formload/internal/config"
	"github.com/wesleyorama2/formload/internal/loadtest"
	"github.com/wesleyorama2/formload/internal/metrics"
	"github.com/wesleyorama2/formload/internal/scenario"
	"github.com/wesleyorama2/formload/internal/transaction"
	"github.com/wesleyorama2/formload/internal/uiclient"
	"github.com/wesleyorama2/formload/internal/uiclient/memapp"
)

// countingClient counts opened sessions.
type countingClient struct {
	uiclient.Client
	opened atomic.Int64
}

func (c *countingClient) OpenSession(ctx context.Context, creds uiclient.Credentials) (uiclient.Session, error) {
	c.opened.Add(1)
	return c.Client.OpenSession(ctx, creds)
}

func newApp() *memapp.App {
	opts := memapp.DefaultOptions()
	opts.Latency = 0
	return memapp.New(opts)
}

func baseConfig(scenarios map[string]*config.ScenarioConfig) *config.TestConfig {
	return &config.TestConfig{
		Name: "engine test",
		Target: config.TargetConfig{
			Auth: config.AuthConfig{Username: "admin"},
		},
		Settings: config.GlobalSettings{
			Timeout:    config.Duration(5 * time.Second),
			WriteDelay: config.Duration(time.Millisecond),
			Seed:       7,
		},
		Scenarios: scenarios,
	}
}

func smallOrder() *config.OrderConfig {
	return &config.OrderConfig{MinLines: 1, MaxLines: 2, MinQuantity: 1, MaxQuantity: 3, ThinkTime: "0s"}
}

func runEngine(t *testing.T, cfg *config.TestConfig, client uiclient.Client, opts ...Option) *TestResult {
	t.Helper()
	engine, err := NewEngine(cfg, client, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := engine.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestEngine_ConstantVUs(t *testing.T) {
	app := newApp()
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"browse": {
			Scenario: "open-customer-list",
			Executor: "constant-vus",
			VUs:      2,
			Duration: "300ms",
		},
	})

	result := runEngine(t, cfg, app)

	assert.Equal(t, "engine test", result.Name)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.Passed)
	assert.Greater(t, result.Metrics.Transactions.Total, int64(0))
	assert.Greater(t, result.Metrics.Iterations.Passed, int64(0))
	assert.Equal(t, metrics.PhaseDone, result.Metrics.CurrentPhase)

	browse := result.Scenarios["browse"]
	require.NotNil(t, browse)
	assert.Equal(t, "constant-vus", browse.Executor)
	assert.Equal(t, "open-customer-list", browse.Scenario)
	assert.Equal(t, 2, browse.MaxVUs)
	assert.Equal(t, result.Metrics.Iterations.Total, browse.Iterations.Total)

	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "OpenCustomerList", result.Transactions[0].Name)

	assert.Equal(t, 0, app.OpenSessions(), "all sessions closed after the run")
}

func TestEngine_SessionPerActor(t *testing.T) {
	client := &countingClient{Client: newApp()}
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"browse": {
			Scenario:   "open-item-list",
			Executor:   "per-vu-iterations",
			VUs:        2,
			Iterations: 3,
		},
	})

	result := runEngine(t, cfg, client)

	assert.Equal(t, int64(6), result.Scenarios["browse"].Iterations.Total)
	assert.Equal(t, int64(6), result.Metrics.Iterations.Passed)
	assert.Equal(t, int64(2), client.opened.Load(), "one session per actor")
}

func TestEngine_SharedIterations(t *testing.T) {
	app := newApp()
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"orders": {
			Scenario:   "create-and-post-sales-order",
			Executor:   "shared-iterations",
			VUs:        2,
			Iterations: 3,
			Order:      smallOrder(),
		},
	})

	result := runEngine(t, cfg, app)

	orders := result.Scenarios["orders"]
	require.NotNil(t, orders)
	assert.Equal(t, int64(3), orders.Iterations.Total)
	assert.Equal(t, int64(3), orders.Iterations.Passed)
	assert.Len(t, app.PostedOrders(), 3)
	assert.Equal(t, 0, app.OpenSessions())

	names := make([]string, 0, len(result.Transactions))
	for _, tx := range result.Transactions {
		names = append(names, tx.Name)
	}
	for _, name := range []string{"NewSalesOrder", "LookupCustomer", "AddLine", "LookupItem", "ValidateOrder",
		"Post", "ConfirmShipAndInvoice", "OpenPostedInvoice"} {
		assert.Contains(t, names, name)
	}
}

func TestEngine_RampingVUs(t *testing.T) {
	app := newApp()
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"ramp": {
			Scenario: "open-sales-order-list",
			Executor: "ramping-vus",
			Stages: []config.StageConfig{
				{Duration: "200ms", Target: 3},
				{Duration: "200ms", Target: 0},
			},
		},
	})

	result := runEngine(t, cfg, app)

	ramp := result.Scenarios["ramp"]
	require.NotNil(t, ramp)
	assert.Equal(t, 3, ramp.MaxVUs)
	assert.Greater(t, ramp.Iterations.Total, int64(0))

	var sawRampUp bool
	for _, p := range result.Phases {
		if p.Phase == metrics.PhaseRampUp {
			sawRampUp = true
		}
	}
	assert.True(t, sawRampUp)
	assert.Equal(t, 0, app.OpenSessions())
}

func TestEngine_MultiScenario(t *testing.T) {
	for _, sequential := range []bool{false, true} {
		app := newApp()
		cfg := baseConfig(map[string]*config.ScenarioConfig{
			"customers": {Scenario: "lookup-random-customer", Executor: "per-vu-iterations", VUs: 1, Iterations: 2},
			"items":     {Scenario: "open-item-list", Executor: "per-vu-iterations", VUs: 2, Iterations: 1},
		})
		cfg.Options = &config.ExecutionOptions{Sequential: sequential}

		result := runEngine(t, cfg, app)

		require.Len(t, result.Scenarios, 2, "sequential=%v", sequential)
		assert.Equal(t, int64(2), result.Scenarios["customers"].Iterations.Total)
		assert.Equal(t, int64(2), result.Scenarios["items"].Iterations.Total)
		assert.Equal(t, int64(4), result.Metrics.Iterations.Total)
		assert.Equal(t, 0, app.OpenSessions())
	}
}

func TestEngine_ObserverAndSink(t *testing.T) {
	var mu sync.Mutex
	actors := make(map[string]int)
	observer := loadtest.ObserverFunc(func(group string, res scenario.Result) {
		mu.Lock()
		actors[res.Actor]++
		mu.Unlock()
		assert.Equal(t, "browse", group)
	})
	sink := &transaction.MemorySink{}

	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"browse": {Scenario: "open-customer-list", Executor: "per-vu-iterations", VUs: 2, Iterations: 2},
	})
	runEngine(t, cfg, newApp(), WithObserver(observer), WithSink(sink))

	assert.Equal(t, map[string]int{"browse/vu-1": 2, "browse/vu-2": 2}, actors)
	assert.Len(t, sink.Named("OpenCustomerList"), 4)
}

func TestEngine_Prometheus(t *testing.T) {
	prom := metrics.NewPrometheusSink()
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"browse": {Scenario: "open-item-list", Executor: "per-vu-iterations", VUs: 1, Iterations: 2},
	})
	runEngine(t, cfg, newApp(), WithPrometheus(prom))

	families, err := prom.Registry().Gather()
	require.NoError(t, err)

	var iterations float64
	for _, f := range families {
		if f.GetName() != "formload_scenario_iterations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			iterations += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), iterations)
}

func TestEngine_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		thresholds *config.Thresholds
		wantPassed bool
	}{
		{
			name: "passing",
			thresholds: &config.Thresholds{
				TransactionDuration: []string{"p95 < 10s"},
				TransactionFailed:   []string{"rate < 0.5"},
				Iterations:          []string{"count >= 2"},
			},
			wantPassed: true,
		},
		{
			name: "failing latency",
			thresholds: &config.Thresholds{
				TransactionDuration: []string{"max < 1ns"},
			},
			wantPassed: false,
		},
		{
			name: "failing count",
			thresholds: &config.Thresholds{
				Iterations: []string{"count > 1000"},
			},
			wantPassed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(map[string]*config.ScenarioConfig{
				"browse": {Scenario: "open-item-list", Executor: "per-vu-iterations", VUs: 1, Iterations: 2},
			})
			cfg.Thresholds = tt.thresholds

			result := runEngine(t, cfg, newApp())

			assert.Equal(t, tt.wantPassed, result.Passed)
			for _, tr := range result.Thresholds {
				if !tr.Passed {
					assert.NotEmpty(t, tr.Message)
				}
			}
		})
	}
}

func TestEngine_ContextCancellation(t *testing.T) {
	app := newApp()
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"browse": {
			Scenario:     "open-customer-list",
			Executor:     "constant-vus",
			VUs:          2,
			Duration:     "1m",
			GracefulStop: "100ms",
		},
	})

	engine, err := NewEngine(cfg, app)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := engine.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 0, app.OpenSessions(), "sessions closed despite cancellation")
}

func TestEngine_Stop(t *testing.T) {
	app := newApp()
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"browse": {Scenario: "open-customer-list", Executor: "constant-vus", VUs: 1, Duration: "1m"},
	})

	engine, err := NewEngine(cfg, app)
	require.NoError(t, err)

	done := make(chan *TestResult, 1)
	go func() {
		result, _ := engine.Run(context.Background())
		done <- result
	}()

	require.Eventually(t, func() bool {
		m := engine.GetMetrics()
		return m != nil && m.Iterations.Total > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, engine.IsRunning())
	assert.Contains(t, engine.GetScenarioStats(), "browse")

	require.NoError(t, engine.Stop(context.Background()))

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.NoError(t, result.Error)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.False(t, engine.IsRunning())
	assert.Equal(t, 0, app.OpenSessions())
}

func TestEngine_AlreadyRunning(t *testing.T) {
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"browse": {Scenario: "open-customer-list", Executor: "constant-vus", VUs: 1, Duration: "500ms"},
	})
	engine, err := NewEngine(cfg, newApp())
	require.NoError(t, err)

	go func() { _, _ = engine.Run(context.Background()) }()
	require.Eventually(t, engine.IsRunning, time.Second, time.Millisecond)

	_, err = engine.Run(context.Background())
	assert.Error(t, err)
}

func TestNewEngine_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *config.TestConfig
		client uiclient.Client
	}{
		{
			name:   "nil config",
			client: newApp(),
		},
		{
			name:   "nil client",
			cfg:    baseConfig(map[string]*config.ScenarioConfig{"a": {Scenario: "open-item-list", VUs: 1, Duration: "1s"}}),
			client: nil,
		},
		{
			name:   "no scenarios",
			cfg:    baseConfig(nil),
			client: newApp(),
		},
		{
			name:   "unknown scenario",
			cfg:    baseConfig(map[string]*config.ScenarioConfig{"a": {Scenario: "fly-to-the-moon", VUs: 1, Duration: "1s"}}),
			client: newApp(),
		},
		{
			name:   "unknown executor",
			cfg:    baseConfig(map[string]*config.ScenarioConfig{"a": {Scenario: "open-item-list", Executor: "warp", VUs: 1, Duration: "1s"}}),
			client: newApp(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg, tt.client)
			assert.Error(t, err)
		})
	}
}

func TestEngine_MaxDuration(t *testing.T) {
	cfg := baseConfig(map[string]*config.ScenarioConfig{
		"a": {Scenario: "open-item-list", Executor: "constant-vus", VUs: 1, Duration: "2s"},
		"b": {Scenario: "open-item-list", Executor: "constant-vus", VUs: 1, Duration: "3s"},
	})
	engine, err := NewEngine(cfg, newApp())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, engine.MaxDuration())

	cfg.Options = &config.ExecutionOptions{Sequential: true}
	assert.Equal(t, 5*time.Second, engine.MaxDuration())
}

func TestOrderOptions(t *testing.T) {
	opts, err := orderOptions(config.GlobalSettings{
		Pages:  config.PagesConfig{RoleCenter: 1, CustomerList: 2, ItemList: 3, SalesOrderList: 4, SalesOrder: 5},
		Policy: config.PolicyConfig{MissingConfirmation: "fail"},
	}, &config.OrderConfig{MinLines: 3, MaxLines: 4, ThinkTime: "250ms"})
	require.NoError(t, err)

	assert.Equal(t, scenario.Pages{RoleCenter: 1, CustomerList: 2, ItemList: 3, SalesOrderList: 4, SalesOrder: 5}, opts.Pages)
	assert.Equal(t, scenario.MissingConfirmationFail, opts.MissingConfirmation)
	assert.Equal(t, 3, opts.MinLines)
	assert.Equal(t, 4, opts.MaxLines)
	assert.Equal(t, 250*time.Millisecond, opts.ThinkTime)

	def := scenario.DefaultOrderOptions()
	assert.Equal(t, def.MinQuantity, opts.MinQuantity)
	assert.Equal(t, def.MaxQuantity, opts.MaxQuantity)

	_, err = orderOptions(config.GlobalSettings{}, &config.OrderConfig{ThinkTime: "soon"})
	assert.Error(t, err)
}
