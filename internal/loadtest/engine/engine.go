// Package engine provides the main orchestrator for load test runs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/formload/internal/config"
	"github.com/wesleyorama2/formload/internal/interaction"
	"github.com/wesleyorama2/formload/internal/loadtest"
	"github.com/wesleyorama2/formload/internal/loadtest/executor"
	"github.com/wesleyorama2/formload/internal/logging"
	"github.com/wesleyorama2/formload/internal/metrics"
	"github.com/wesleyorama2/formload/internal/random"
	"github.com/wesleyorama2/formload/internal/scenario"
	"github.com/wesleyorama2/formload/internal/session"
	"github.com/wesleyorama2/formload/internal/transaction"
	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Engine is the main orchestrator for a load test.
//
// It coordinates:
//   - Configuration defaults and validation
//   - One executor and VU scheduler per scenario group
//   - The session manager shared by every group of a run
//   - Metrics collection and threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	engine, _ := NewEngine(cfg, memapp.New(memapp.DefaultOptions()))
//	result, _ := engine.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config *config.TestConfig
	client uiclient.Client
	auth   session.Authenticator

	dispatch interaction.Config
	retry    scenario.RetryPolicy

	logger    *zap.Logger
	prom      *metrics.PrometheusSink
	sinks     []transaction.Sink
	observers []loadtest.IterationObserver

	mu            sync.RWMutex
	running       bool
	runID         string
	startTime     time.Time
	metricsEngine *metrics.Engine
	groups        map[string]*group
}

// group is one scenario group of a run.
type group struct {
	name       string
	config     *config.ScenarioConfig
	execConfig *executor.Config
	executor   executor.Executor
	scheduler  *loadtest.VUScheduler
	counts     outcomeCounters
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithPrometheus exports transactions and iterations to p as well.
func WithPrometheus(p *metrics.PrometheusSink) Option {
	return func(e *Engine) { e.prom = p }
}

// WithSink adds a transaction sink that receives every measurement.
func WithSink(s transaction.Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// WithObserver adds an observer that receives every completed iteration.
func WithObserver(o loadtest.IterationObserver) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// ScenarioResult contains the results of a single scenario group.
type ScenarioResult struct {
	Name         string                `json:"name"`
	Scenario     string                `json:"scenario"`
	Executor     string                `json:"executor"`
	Duration     time.Duration         `json:"duration"`
	Iterations   metrics.OutcomeCounts `json:"iterations"`
	MaxVUs       int                   `json:"maxVUs"`
	Error        error                 `json:"-"`
	ErrorMessage string                `json:"error,omitempty"`
}

// TestResult contains the complete test results.
type TestResult struct {
	// Test metadata
	RunID       string        `json:"runId"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	// Scenario group results
	Scenarios map[string]*ScenarioResult `json:"scenarios"`

	// Aggregated metrics across all groups
	Metrics      *metrics.Snapshot          `json:"metrics"`
	Transactions []metrics.TransactionStats `json:"transactions"`
	Phases       []metrics.PhaseChange      `json:"phases,omitempty"`

	// Threshold evaluation
	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	// Error if the run was interrupted or a group failed to run
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// NewEngine creates an engine that drives client.
//
// Defaults are applied to cfg before it is validated. Every group must name
// a scenario of the order-processor library.
func NewEngine(cfg *config.TestConfig, client uiclient.Client, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if client == nil {
		return nil, errors.New("client is required")
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	names := scenario.Names()
	for name, sc := range cfg.Scenarios {
		if !slices.Contains(names, sc.Scenario) {
			return nil, fmt.Errorf("scenario group %s: unknown scenario %q (known: %v)", name, sc.Scenario, names)
		}
	}

	auth, err := session.NewAuthenticator(credentials(cfg.Target.Auth))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:   cfg,
		client:   client,
		auth:     auth,
		dispatch: dispatcherConfig(cfg.Settings),
		retry: scenario.RetryPolicy{
			MaxAttempts: cfg.Settings.Retry.MaxAttempts,
			Backoff:     cfg.Settings.Retry.Backoff.GetDuration(0),
		},
		logger: zap.NewNop(),
		groups: make(map[string]*group),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes all scenario groups and returns the test results.
//
// By default, all groups run concurrently. If Options.Sequential is true,
// groups run one at a time in name order. All groups share one session
// manager; every session it opened is closed exactly once before Run
// returns, even when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.runID = uuid.NewString()
	e.startTime = time.Now()
	e.metricsEngine = metrics.NewEngine()
	e.groups = make(map[string]*group)
	runID, startTime, m := e.runID, e.startTime, e.metricsEngine
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger := e.logger.With(zap.String("run", runID))
	m.SetPhase(metrics.PhaseInit)
	logger.Info("load test starting",
		zap.String("name", e.config.Name),
		zap.Int("groups", len(e.config.Scenarios)))

	manager := session.NewManager(e.client, e.auth, logger)
	dispatcher := interaction.NewDispatcher(e.dispatch, logger)
	sinks := transaction.MultiSink{m}
	if e.prom != nil {
		sinks = append(sinks, e.prom)
	}
	sinks = append(sinks, e.sinks...)
	recorder := transaction.NewRecorder(sinks)
	runner := scenario.NewRunner(manager, dispatcher, e.retry, logger)
	source := random.NewSource(e.config.Settings.Seed)

	groups, err := e.initializeGroups(ctx, m, dispatcher, recorder, runner, source, logger)
	if err != nil {
		e.closeSessions(ctx, manager, logger)
		return nil, fmt.Errorf("failed to initialize scenarios: %w", err)
	}

	e.mu.Lock()
	for _, g := range groups {
		e.groups[g.name] = g
	}
	e.mu.Unlock()

	var results map[string]*ScenarioResult
	var runErr error
	if e.config.Options != nil && e.config.Options.Sequential {
		results, runErr = e.runSequentially(ctx, groups, m)
	} else {
		results, runErr = e.runConcurrently(ctx, groups, m)
	}

	m.SetPhase(metrics.PhaseTeardown)
	e.closeSessions(ctx, manager, logger)
	m.SetPhase(metrics.PhaseDone)

	snapshot := m.GetSnapshot()
	thresholds := evaluateThresholds(e.config.Thresholds, snapshot)
	passed := true
	for _, tr := range thresholds {
		if !tr.Passed {
			passed = false
			break
		}
	}

	endTime := time.Now()
	result := &TestResult{
		RunID:        runID,
		Name:         e.config.Name,
		Description:  e.config.Description,
		StartTime:    startTime,
		EndTime:      endTime,
		Duration:     endTime.Sub(startTime),
		Scenarios:    results,
		Metrics:      snapshot,
		Transactions: m.GetTransactionStats(),
		Phases:       m.GetPhaseHistory(),
		Passed:       passed,
		Thresholds:   thresholds,
		Error:        runErr,
	}
	if runErr != nil {
		result.ErrorMessage = runErr.Error()
	}

	logger.Info("load test finished",
		zap.Bool("passed", passed),
		zap.Int64("transactions", snapshot.Transactions.Total),
		zap.Int64("iterations", snapshot.Iterations.Total),
		zap.Duration("duration", result.Duration),
		zap.Error(runErr))

	return result, runErr
}

// initializeGroups creates the workload, scheduler and executor of every
// group, in name order.
func (e *Engine) initializeGroups(
	ctx context.Context,
	m *metrics.Engine,
	d *interaction.Dispatcher,
	rec *transaction.Recorder,
	runner *scenario.Runner,
	src *random.Source,
	logger *zap.Logger,
) ([]*group, error) {
	names := make([]string, 0, len(e.config.Scenarios))
	for name := range e.config.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]*group, 0, len(names))
	for _, name := range names {
		sc := e.config.Scenarios[name]

		opts, err := orderOptions(e.config.Settings, sc.Order)
		if err != nil {
			return nil, fmt.Errorf("scenario group %s: %w", name, err)
		}
		library := scenario.NewOrderProcessor(opts, d, src, rec)
		fn, err := library.Lookup(sc.Scenario)
		if err != nil {
			return nil, fmt.Errorf("scenario group %s: %w", name, err)
		}

		exec, execConfig, err := executor.CreateExecutorFromScenarioConfig(ctx, name, sc)
		if err != nil {
			return nil, fmt.Errorf("failed to create executor for scenario group %s: %w", name, err)
		}

		g := &group{
			name:       name,
			config:     sc,
			execConfig: execConfig,
			executor:   exec,
		}

		fields := []zap.Field{zap.String("group", name)}
		for k, v := range sc.Tags {
			fields = append(fields, zap.String(k, v))
		}
		g.scheduler = loadtest.NewVUScheduler(&loadtest.Workload{
			Group:    name,
			Scenario: sc.Scenario,
			Func:     fn,
			Runner:   runner,
			Observer: e.observer(g, m),
			Source:   src,
			Logger:   logger.With(fields...),
		})
		groups = append(groups, g)
	}
	return groups, nil
}

// observer fans a completed iteration out to every collector of the run.
func (e *Engine) observer(g *group, m *metrics.Engine) loadtest.IterationObserver {
	return loadtest.ObserverFunc(func(name string, res scenario.Result) {
		m.RecordIteration(res.Outcome)
		if e.prom != nil {
			e.prom.RecordIteration(res.Scenario, res.Outcome)
		}
		g.counts.add(res.Outcome)
		for _, o := range e.observers {
			o.ObserveIteration(name, res)
		}
	})
}

// runConcurrently runs all groups in parallel. A failing group does not
// cancel the others.
func (e *Engine) runConcurrently(ctx context.Context, groups []*group, m *metrics.Engine) (map[string]*ScenarioResult, error) {
	results := make(map[string]*ScenarioResult, len(groups))
	var resultsMu sync.Mutex

	var eg errgroup.Group
	for _, g := range groups {
		eg.Go(func() error {
			result, err := e.runGroup(ctx, g, m)

			resultsMu.Lock()
			results[g.name] = result
			resultsMu.Unlock()

			if err != nil {
				return fmt.Errorf("scenario group %s failed: %w", g.name, err)
			}
			return nil
		})
	}

	return results, eg.Wait()
}

// runSequentially runs all groups one at a time.
func (e *Engine) runSequentially(ctx context.Context, groups []*group, m *metrics.Engine) (map[string]*ScenarioResult, error) {
	results := make(map[string]*ScenarioResult, len(groups))

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := e.runGroup(ctx, g, m)
		results[g.name] = result
		if err != nil {
			return results, fmt.Errorf("scenario group %s failed: %w", g.name, err)
		}
	}

	return results, nil
}

// runGroup runs a single group to completion.
func (e *Engine) runGroup(ctx context.Context, g *group, m *metrics.Engine) (*ScenarioResult, error) {
	startTime := time.Now()

	err := g.executor.Run(ctx, g.scheduler, m)

	result := &ScenarioResult{
		Name:       g.name,
		Scenario:   g.config.Scenario,
		Executor:   string(g.executor.Type()),
		Duration:   time.Since(startTime),
		Iterations: g.counts.load(),
		MaxVUs:     executor.CalculateMaxVUs(g.execConfig),
		Error:      err,
	}
	if err != nil {
		result.ErrorMessage = err.Error()
	}

	if !g.scheduler.Shutdown(g.execConfig.GracefulStop + time.Second) {
		e.logger.Warn("scenario group left running VUs behind", zap.String("group", g.name))
	}
	return result, err
}

// closeSessions closes every session of the run. It runs on a context that
// survives cancellation of ctx and is bounded by the interaction timeout.
func (e *Engine) closeSessions(ctx context.Context, manager *session.Manager, logger *zap.Logger) {
	open := manager.Len()
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dispatch.Timeout)
	defer cancel()

	if err := manager.CloseAll(cctx); err != nil {
		logger.Warn("closing sessions failed", zap.Int("sessions", open), zap.Error(err))
		return
	}
	logger.Debug("sessions closed", zap.Int("sessions", open))
}

// Stop gracefully stops all running groups.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	groups := make([]*group, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	e.mu.RUnlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, g := range groups {
		eg.Go(func() error {
			if err := g.executor.Stop(ctx); err != nil {
				return fmt.Errorf("scenario group %s: %w", g.name, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// IsRunning reports whether Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RunID returns the id of the current or last run.
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// GetMetrics returns a snapshot of the current or last run, or nil before
// the first run.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	m := e.metricsEngine
	e.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.GetSnapshot()
}

// GetTransactionStats returns the per-transaction breakdown of the current
// or last run.
func (e *Engine) GetTransactionStats() []metrics.TransactionStats {
	e.mu.RLock()
	m := e.metricsEngine
	e.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.GetTransactionStats()
}

// GetProgress returns the mean progress of all groups (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.groups) == 0 {
		return 0
	}
	var total float64
	for _, g := range e.groups {
		total += g.executor.GetProgress()
	}
	return total / float64(len(e.groups))
}

// GetScenarioStats returns executor statistics per group.
func (e *Engine) GetScenarioStats() map[string]*executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make(map[string]*executor.Stats, len(e.groups))
	for name, g := range e.groups {
		stats[name] = g.executor.GetStats()
	}
	return stats
}

// MaxDuration returns the longest planned group duration, or their sum when
// groups run sequentially.
func (e *Engine) MaxDuration() time.Duration {
	var longest, sum time.Duration
	for name, sc := range e.config.Scenarios {
		cfg, err := executor.ConvertScenarioConfig(name, sc)
		if err != nil {
			continue
		}
		d := cfg.TotalDuration()
		sum += d
		if d > longest {
			longest = d
		}
	}
	if e.config.Options != nil && e.config.Options.Sequential {
		return sum
	}
	return longest
}

func credentials(a config.AuthConfig) uiclient.Credentials {
	return uiclient.Credentials{
		Scheme:       uiclient.AuthScheme(a.Scheme),
		Username:     a.Username,
		Password:     a.Password,
		Tenant:       a.Tenant,
		RoleCenterID: a.RoleCenter,
	}
}

func dispatcherConfig(s config.GlobalSettings) interaction.Config {
	cfg := interaction.DefaultConfig()
	cfg.Timeout = s.Timeout.GetDuration(cfg.Timeout)
	cfg.WriteDelay = time.Duration(s.WriteDelay)
	if s.Policy.DismissWarnings != nil {
		dismiss := *s.Policy.DismissWarnings
		cfg.Policy.DismissWarnings = &dismiss
	}
	if s.Policy.WarningLabel != "" {
		cfg.Policy.WarningLabel = s.Policy.WarningLabel
	}
	if s.Policy.ConfirmLabel != "" {
		cfg.Policy.ConfirmLabel = s.Policy.ConfirmLabel
	}
	return cfg
}

func orderOptions(s config.GlobalSettings, oc *config.OrderConfig) (scenario.OrderOptions, error) {
	opts := scenario.DefaultOrderOptions()
	opts.Pages = scenario.Pages{
		RoleCenter:     s.Pages.RoleCenter,
		CustomerList:   s.Pages.CustomerList,
		ItemList:       s.Pages.ItemList,
		SalesOrderList: s.Pages.SalesOrderList,
		SalesOrder:     s.Pages.SalesOrder,
	}
	if s.Policy.MissingConfirmation != "" {
		opts.MissingConfirmation = scenario.MissingConfirmation(s.Policy.MissingConfirmation)
	}
	if oc == nil {
		return opts, nil
	}

	if oc.MaxLines > 0 {
		opts.MinLines, opts.MaxLines = oc.MinLines, oc.MaxLines
	}
	if oc.MaxQuantity > 0 {
		opts.MinQuantity, opts.MaxQuantity = oc.MinQuantity, oc.MaxQuantity
	}
	if oc.ThinkTime != "" {
		d, err := config.ParseDurationString(oc.ThinkTime)
		if err != nil {
			return opts, fmt.Errorf("invalid thinkTime: %w", err)
		}
		opts.ThinkTime = d
	}
	return opts, nil
}

// outcomeCounters counts iterations of one group by outcome.
type outcomeCounters struct {
	passed, failed, inconclusive atomic.Int64
}

func (c *outcomeCounters) add(o transaction.Outcome) {
	switch o {
	case transaction.OutcomePass:
		c.passed.Add(1)
	case transaction.OutcomeInconclusive:
		c.inconclusive.Add(1)
	default:
		c.failed.Add(1)
	}
}

func (c *outcomeCounters) load() metrics.OutcomeCounts {
	p, f, i := c.passed.Load(), c.failed.Load(), c.inconclusive.Load()
	return metrics.OutcomeCounts{Total: p + f + i, Passed: p, Failed: f, Inconclusive: i}
}
