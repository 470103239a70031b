package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/config"
	"github.com/wesleyorama2/formload/internal/loadtest/executor"
	"github.com/wesleyorama2/formload/internal/scenario"
)

const browseConfig = `name: cli-orders
target:
  auth:
    username: admin
  simulator:
    latency: 1ms
settings:
  writeDelay: 1ms
  seed: 7
scenarios:
  browse:
    scenario: open-customer-list
    executor: shared-iterations
    vus: 1
    iterations: 3
thresholds:
  transaction_failed:
    - rate < 0.01
`

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvEndpoint, "")

	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCmd_Config(t *testing.T) {
	path := writeConfig(t, browseConfig)
	report := filepath.Join(t.TempDir(), "out", "report.json")

	out, err := executeCmd(t, "run", "--config", path, "--report", report, "--interval", "10ms", "--no-color")
	require.NoError(t, err, out)

	assert.Contains(t, out, "cli-orders - Completed ✓")
	assert.Contains(t, out, "Report: "+report)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "passed").Bool())
	assert.Equal(t, int64(3), gjson.GetBytes(data, "scenarios.browse.iterations.passed").Int())
	assert.Equal(t, int64(3), gjson.GetBytes(data, `transactions.#(name=="OpenCustomerList").outcomes.total`).Int())
}

func TestRunCmd_ThresholdsFailed(t *testing.T) {
	path := writeConfig(t, browseConfig+`  iterations:
    - count > 100
`)

	out, err := executeCmd(t, "run", "--config", path, "--quiet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrThresholdsFailed))
	assert.Equal(t, "FAILED\n", out)
}

func TestRunCmd_QuickMode(t *testing.T) {
	report := filepath.Join(t.TempDir(), "report.xml")

	out, err := executeCmd(t, "run", "--scenario", "open-item-list", "--iterations", "2", "--report", report, "--quiet")
	require.NoError(t, err, out)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<testcase name="open-item-list" classname="open-item-list"`)
}

func TestRunCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no mode", []string{"run"}, "either --config or --scenario is required"},
		{"missing file", []string{"run", "--config", "does-not-exist.yaml"}, "load config"},
		{"unknown scenario", []string{"run", "--scenario", "nope", "--iterations", "1"}, "unknown scenario"},
		{"bad stages", []string{"run", "--scenario", "open-item-list", "--stages", "30s"}, "invalid stages format"},
		{"bad format", []string{"run", "--scenario", "open-item-list", "--iterations", "1", "-q", "-o", filepath.Join(t.TempDir(), "r"), "--format", "html"}, "unknown report format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCmd(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCmd(t *testing.T) {
	out, err := executeCmd(t, "validate", writeConfig(t, browseConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "built-in simulator")
	assert.Contains(t, out, "group browse")

	invalid := strings.Replace(browseConfig, "open-customer-list", "open-vendor-list", 1)
	_, err = executeCmd(t, "validate", writeConfig(t, invalid))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open-vendor-list")
}

func TestScenariosCmd(t *testing.T) {
	out, err := executeCmd(t, "scenarios")
	require.NoError(t, err)

	for _, name := range scenario.Names() {
		assert.Contains(t, out, name)
		assert.NotEmpty(t, scenarioDescriptions[name], "description for %s", name)
	}
	assert.Contains(t, out, string(executor.TypeSharedIterations))
}

func TestParseStages(t *testing.T) {
	tests := []struct {
		input   string
		want    []config.StageConfig
		wantErr bool
	}{
		{
			input: "30s:10,2m:50, 30s:0",
			want: []config.StageConfig{
				{Duration: "30s", Target: 10, Name: "stage-1"},
				{Duration: "2m", Target: 50, Name: "stage-2"},
				{Duration: "30s", Target: 0, Name: "stage-3"},
			},
		},
		{input: "10:5", want: []config.StageConfig{{Duration: "10", Target: 5, Name: "stage-1"}}},
		{input: "", wantErr: true},
		{input: "30s", wantErr: true},
		{input: "abc:10", wantErr: true},
		{input: "30s:many", wantErr: true},
		{input: "30s:-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseStages(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStages(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildConfigFromFlags(t *testing.T) {
	tests := []struct {
		name         string
		opts         runOptions
		wantExecutor string
		wantDuration string
	}{
		{"constant by default", runOptions{scenario: "open-item-list", vus: 2}, "constant-vus", "30s"},
		{"iterations", runOptions{scenario: "open-item-list", vus: 1, iterations: 5}, "shared-iterations", ""},
		{"stages", runOptions{scenario: "open-item-list", stages: "1s:2"}, "ramping-vus", ""},
		{"explicit", runOptions{scenario: "open-item-list", executor: "per-vu-iterations", iterations: 1}, "per-vu-iterations", ""},
		{"explicit duration", runOptions{scenario: "open-item-list", duration: "2m"}, "constant-vus", "2m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.username = "admin"
			cfg, err := buildConfigFromFlags(&opts)
			require.NoError(t, err)

			sc := cfg.Scenarios[opts.scenario]
			require.NotNil(t, sc)
			assert.Equal(t, tt.wantExecutor, sc.Executor)
			assert.Equal(t, tt.wantDuration, sc.Duration)
			assert.Equal(t, "admin", cfg.Target.Auth.Username)
		})
	}
}

func TestLoadRunConfig_Overrides(t *testing.T) {
	t.Setenv(config.EnvEndpoint, "http://env.example:8080")
	t.Setenv(config.EnvUsername, "env-user")

	opts := &runOptions{configFile: writeConfig(t, browseConfig), seed: 42}
	cfg, err := loadRunConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example:8080", cfg.Target.Endpoint)
	assert.Equal(t, "env-user", cfg.Target.Auth.Username)
	assert.Equal(t, int64(42), cfg.Settings.Seed)

	opts.endpoint = "http://flag.example"
	cfg, err = loadRunConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example", cfg.Target.Endpoint)
}

func TestSimulatorOptions(t *testing.T) {
	def := simulatorOptions(nil)
	assert.NotEmpty(t, def.Catalog.Customers)

	opts := simulatorOptions(&config.SimulatorConfig{Customers: 3, ViewportSize: 4, Latency: config.Duration(time.Millisecond)})
	assert.Len(t, opts.Catalog.Customers, 3)
	assert.Len(t, opts.Catalog.Items, len(def.Catalog.Items))
	assert.Equal(t, 4, opts.ViewportSize)
	assert.Equal(t, time.Millisecond, opts.Latency)
}

func TestNewClient(t *testing.T) {
	cfg := &config.TestConfig{}
	client, err := newClient(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, client)

	cfg.Target.Endpoint = "http://127.0.0.1:1"
	cfg.Target.Headers = map[string]string{"X-Tenant": "cronus"}
	client, err = newClient(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestGetTargetVUs(t *testing.T) {
	cfg := &config.TestConfig{Scenarios: map[string]*config.ScenarioConfig{
		"a": {VUs: 3},
		"b": {Stages: []config.StageConfig{{Target: 2}, {Target: 6}, {Target: 0}}},
	}}
	assert.Equal(t, 9, getTargetVUs(cfg))
}

func TestGetStageInfo(t *testing.T) {
	current, total := getStageInfo(map[string]*executor.Stats{
		"a": {CurrentStage: 2, TotalStages: 3},
		"b": nil,
		"c": {CurrentStage: 1, TotalStages: 4},
	})
	assert.Equal(t, 2, current)
	assert.Equal(t, 4, total)
}

func TestServeMetrics(t *testing.T) {
	stop, err := serveMetrics("", nil, zap.NewNop())
	require.NoError(t, err)
	stop()
}

func TestServeSimulator(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- serveSimulator(ctx, ln, &serveOptions{}, zap.NewNop())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serveSimulator did not return after cancel")
	}
}
