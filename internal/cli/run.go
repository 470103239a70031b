package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/config"
	"github.com/wesleyorama2/formload/internal/loadtest/engine"
	"github.com/wesleyorama2/formload/internal/loadtest/executor"
	"github.com/wesleyorama2/formload/internal/metrics"
	"github.com/wesleyorama2/formload/internal/output"
	"github.com/wesleyorama2/formload/internal/uiclient"
	"github.com/wesleyorama2/formload/internal/uiclient/httpclient"
	"github.com/wesleyorama2/formload/internal/uiclient/memapp"
)

// ErrThresholdsFailed is returned by run when the test completed but at
// least one threshold was not met.
var ErrThresholdsFailed = errors.New("thresholds failed")

type runOptions struct {
	configFile  string
	endpoint    string
	seed        int64
	metricsAddr string
	reportPath  string
	format      string
	interval    time.Duration
	quiet       bool
	noColor     bool

	// Quick mode, single group
	scenario   string
	executor   string
	vus        int
	duration   string
	iterations int64
	stages     string
	username   string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test from a configuration file, or a single scenario group
built from flags.

Config file mode:
  formload run --config orders.yaml

Quick mode:
  formload run --scenario create-and-post-sales-order --vus 5 --duration 2m
  formload run --scenario open-customer-list --stages "30s:10,1m:10,30s:0"

Without a target endpoint the run uses the built-in simulator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, g, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Test configuration file (YAML or JSON)")
	f.StringVar(&opts.endpoint, "endpoint", "", "Base URL of the UI-client service (overrides config and "+config.EnvEndpoint+")")
	f.Int64Var(&opts.seed, "seed", 0, "Random seed (overrides config)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run, e.g. :9464")
	f.StringVarP(&opts.reportPath, "report", "o", "", "Write a report to this file")
	f.StringVar(&opts.format, "format", "", "Report format: text, json, yaml, junit (default: from the report extension)")
	f.DurationVar(&opts.interval, "interval", time.Second, "Progress update interval")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print PASSED or FAILED")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	f.StringVar(&opts.scenario, "scenario", "", "Scenario to run in quick mode")
	f.StringVar(&opts.executor, "executor", "", "Executor in quick mode (default: from the other flags)")
	f.IntVar(&opts.vus, "vus", 1, "Virtual users in quick mode")
	f.StringVar(&opts.duration, "duration", "", "Duration in quick mode (default: 30s)")
	f.Int64Var(&opts.iterations, "iterations", 0, "Iterations in quick mode")
	f.StringVar(&opts.stages, "stages", "", `Ramping stages in quick mode, e.g. "30s:10,2m:10,30s:0"`)
	f.StringVar(&opts.username, "username", "formload", "User name in quick mode (password from "+config.EnvPassword+")")

	cmd.MarkFlagsMutuallyExclusive("config", "scenario")

	return cmd
}

func runLoadTest(cmd *cobra.Command, g *globalOptions, opts *runOptions) error {
	logger := g.log()

	cfg, err := loadRunConfig(opts)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	prom := metrics.NewPrometheusSink()
	stopMetrics, err := serveMetrics(opts.metricsAddr, prom, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	eng, err := engine.NewEngine(cfg, client, engine.WithLogger(logger), engine.WithPrometheus(prom))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	totalDuration := eng.MaxDuration()
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:       cfg.Name,
		TotalDuration:  totalDuration,
		UpdateInterval: opts.interval,
		Writer:         cmd.OutOrStdout(),
		Quiet:          opts.quiet,
		NoColor:        opts.noColor,
	})
	console.PrintHeader(groupSummaries(cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		result *engine.TestResult
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = eng.Run(ctx)
	}()

	targetVUs := getTargetVUs(cfg)
	ticker := time.NewTicker(console.UpdateInterval())
	defer ticker.Stop()

progressLoop:
	for {
		select {
		case <-done:
			break progressLoop
		case <-ticker.C:
			if !eng.IsRunning() {
				continue
			}
			currentStage, totalStages := getStageInfo(eng.GetScenarioStats())
			console.Refresh(output.StatsFromMetrics(
				eng.GetMetrics(),
				eng.GetProgress(),
				totalDuration,
				targetVUs,
				currentStage,
				totalStages,
			))
		}
	}

	if result == nil {
		return fmt.Errorf("run test: %w", runErr)
	}

	console.PrintSummary(result)

	if opts.reportPath != "" {
		if err := writeReport(opts, result); err != nil {
			return err
		}
		if !opts.quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", opts.reportPath)
		}
	}

	switch {
	case runErr != nil:
		return fmt.Errorf("run test: %w", runErr)
	case !result.Passed:
		return ErrThresholdsFailed
	}
	return nil
}

// loadRunConfig loads the file or builds the quick-mode config, then applies
// environment and flag overrides.
func loadRunConfig(opts *runOptions) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	switch {
	case opts.configFile != "":
		c, err := config.LoadConfig(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	case opts.scenario != "":
		c, err := buildConfigFromFlags(opts)
		if err != nil {
			return nil, fmt.Errorf("build config: %w", err)
		}
		cfg = c
	default:
		return nil, errors.New("either --config or --scenario is required")
	}

	config.ApplyEnv(cfg, os.LookupEnv)
	if opts.endpoint != "" {
		cfg.Target.Endpoint = opts.endpoint
	}
	if opts.seed != 0 {
		cfg.Settings.Seed = opts.seed
	}
	return cfg, nil
}

// buildConfigFromFlags builds a single-group config from quick-mode flags.
func buildConfigFromFlags(opts *runOptions) (*config.TestConfig, error) {
	sc := &config.ScenarioConfig{
		Scenario:   opts.scenario,
		Executor:   opts.executor,
		VUs:        opts.vus,
		Duration:   opts.duration,
		Iterations: opts.iterations,
	}

	if opts.stages != "" {
		stages, err := parseStages(opts.stages)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		sc.Stages = stages
	}

	if sc.Executor == "" {
		switch {
		case len(sc.Stages) > 0:
			sc.Executor = string(executor.TypeRampingVUs)
		case sc.Iterations > 0:
			sc.Executor = string(executor.TypeSharedIterations)
		default:
			sc.Executor = string(executor.TypeConstantVUs)
		}
	}
	if sc.Executor == string(executor.TypeConstantVUs) && sc.Duration == "" {
		sc.Duration = "30s"
	}

	return &config.TestConfig{
		Name:        opts.scenario,
		Description: "Single group built from command line flags",
		Target:      config.TargetConfig{Auth: config.AuthConfig{Username: opts.username}},
		Scenarios:   map[string]*config.ScenarioConfig{opts.scenario: sc},
	}, nil
}

// parseStages parses stages from the "30s:10,2m:10,30s:0" form.
func parseStages(s string) ([]config.StageConfig, error) {
	var stages []config.StageConfig

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		d, target, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("stage %d: expected 'duration:target', got %q", i+1, part)
		}
		if _, err := config.ParseDurationString(d); err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration %q: %w", i+1, d, err)
		}
		n, err := strconv.Atoi(target)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("stage %d: invalid target %q", i+1, target)
		}

		stages = append(stages, config.StageConfig{
			Duration: d,
			Target:   n,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, errors.New("at least one stage is required")
	}
	return stages, nil
}

// newClient connects to the configured endpoint, or builds the simulator
// when there is none.
func newClient(cfg *config.TestConfig, logger *zap.Logger) (uiclient.Client, error) {
	t := cfg.Target
	if t.Endpoint == "" {
		logger.Info("no endpoint configured, using the built-in simulator")
		return memapp.New(simulatorOptions(t.Simulator)), nil
	}

	var options []httpclient.ClientOption
	if d := time.Duration(t.RequestTimeout); d > 0 {
		options = append(options, httpclient.WithTimeout(d))
	}
	for k, v := range t.Headers {
		options = append(options, httpclient.WithHeader(k, v))
	}

	client, err := httpclient.NewClient(t.Endpoint, options...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", t.Endpoint, err)
	}
	logger.Info("using remote endpoint", zap.String("endpoint", t.Endpoint))
	return client, nil
}

// simulatorOptions applies the config on top of the simulator defaults.
func simulatorOptions(sc *config.SimulatorConfig) memapp.Options {
	opts := memapp.DefaultOptions()
	if sc == nil {
		return opts
	}
	if sc.Customers > 0 || sc.Items > 0 {
		customers, items := len(opts.Catalog.Customers), len(opts.Catalog.Items)
		if sc.Customers > 0 {
			customers = sc.Customers
		}
		if sc.Items > 0 {
			items = sc.Items
		}
		opts.Catalog = memapp.DefaultCatalog(customers, items)
	}
	if sc.ViewportSize > 0 {
		opts.ViewportSize = sc.ViewportSize
	}
	opts.Latency = time.Duration(sc.Latency)
	return opts
}

// serveMetrics exposes the Prometheus registry on addr until the returned
// func is called. An empty addr serves nothing.
func serveMetrics(addr string, prom *metrics.PrometheusSink, logger *zap.Logger) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func writeReport(opts *runOptions, result *engine.TestResult) error {
	format := output.FormatFromPath(opts.reportPath)
	if opts.format != "" {
		f, err := output.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		format = f
	}
	return output.WriteReportFile(opts.reportPath, result, format)
}

// groupSummaries describes each group for the header.
func groupSummaries(cfg *config.TestConfig) map[string]string {
	groups := make(map[string]string, len(cfg.Scenarios))
	for name, sc := range cfg.Scenarios {
		groups[name] = fmt.Sprintf("%s (%s)", sc.Scenario, sc.Executor)
	}
	return groups
}

// getTargetVUs gets the peak VU count across all groups.
func getTargetVUs(cfg *config.TestConfig) int {
	total := 0
	for _, sc := range cfg.Scenarios {
		peak := sc.VUs
		for _, stage := range sc.Stages {
			if stage.Target > peak {
				peak = stage.Target
			}
		}
		total += peak
	}
	return total
}

// getStageInfo reports the furthest ramping stage across groups.
func getStageInfo(stats map[string]*executor.Stats) (current, total int) {
	for _, s := range stats {
		if s == nil {
			continue
		}
		if s.CurrentStage > current {
			current = s.CurrentStage
		}
		if s.TotalStages > total {
			total = s.TotalStages
		}
	}
	return current, total
}
