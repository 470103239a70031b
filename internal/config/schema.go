// Package config provides the YAML/JSON configuration schema for formload
// load tests.
package config

import "time"

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "Order processor"
//	target:
//	  endpoint: "http://localhost:8080"
//	  auth:
//	    username: admin
//	    password: secret
//	settings:
//	  timeout: 60s
//	  seed: 42
//	scenarios:
//	  orders:
//	    scenario: create-and-post-sales-order
//	    executor: constant-vus
//	    vus: 10
//	    duration: 5m
type TestConfig struct {
	// Name is the name of the test
	Name string `json:"name" yaml:"name"`

	// Description is an optional description
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Target describes the application under test
	Target TargetConfig `json:"target" yaml:"target"`

	// Settings are global settings shared by all scenarios
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Scenarios define the workload groups, keyed by group name
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	// Thresholds define pass/fail criteria
	Thresholds *Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options are execution options
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// TargetConfig selects the application and how sessions authenticate.
type TargetConfig struct {
	// Endpoint is the base URL of the UI-client service. Empty runs against
	// the built-in simulator.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Headers are sent with every request to the endpoint
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// RequestTimeout bounds a single HTTP round trip (default: no limit
	// beyond the interaction timeout)
	RequestTimeout Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`

	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Simulator tunes the built-in application when Endpoint is empty
	Simulator *SimulatorConfig `json:"simulator,omitempty" yaml:"simulator,omitempty"`
}

// AuthConfig holds the credentials passed to session bootstrap.
type AuthConfig struct {
	// Scheme is "password" (default), "integrated" or "tenant"
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`

	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Tenant   string `json:"tenant,omitempty" yaml:"tenant,omitempty"`

	// RoleCenter is the landing page requested at login (default: pages.roleCenter)
	RoleCenter int `json:"roleCenter,omitempty" yaml:"roleCenter,omitempty"`
}

// SimulatorConfig configures the in-process application.
type SimulatorConfig struct {
	Customers    int      `json:"customers,omitempty" yaml:"customers,omitempty"`
	Items        int      `json:"items,omitempty" yaml:"items,omitempty"`
	ViewportSize int      `json:"viewportSize,omitempty" yaml:"viewportSize,omitempty"`
	Latency      Duration `json:"latency,omitempty" yaml:"latency,omitempty"`
}

// GlobalSettings contains settings that apply to all scenarios.
type GlobalSettings struct {
	// Timeout bounds every interaction with the application (default: 60s)
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// WriteDelay is the pause after delayed field writes (default: 100ms)
	WriteDelay Duration `json:"writeDelay,omitempty" yaml:"writeDelay,omitempty"`

	// Seed seeds the random source. Zero seeds from the clock.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	Policy PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`
	Retry  RetryConfig  `json:"retry,omitempty" yaml:"retry,omitempty"`
	Pages  PagesConfig  `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// PolicyConfig decides how dialogs are answered.
type PolicyConfig struct {
	// DismissWarnings allows warnings to be acknowledged where a step opts in
	// (default: true)
	DismissWarnings *bool `json:"dismissWarnings,omitempty" yaml:"dismissWarnings,omitempty"`

	WarningLabel string `json:"warningLabel,omitempty" yaml:"warningLabel,omitempty"`
	ConfirmLabel string `json:"confirmLabel,omitempty" yaml:"confirmLabel,omitempty"`

	// MissingConfirmation is "inconclusive" (default) or "fail"
	MissingConfirmation string `json:"missingConfirmation,omitempty" yaml:"missingConfirmation,omitempty"`
}

// RetryConfig controls scenario retries after a timeout.
type RetryConfig struct {
	MaxAttempts int      `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`
	Backoff     Duration `json:"backoff,omitempty" yaml:"backoff,omitempty"`
}

// PagesConfig holds the page ids the scenarios navigate. Zero values take the
// standard order-processor profile.
type PagesConfig struct {
	RoleCenter     int `json:"roleCenter,omitempty" yaml:"roleCenter,omitempty"`
	CustomerList   int `json:"customerList,omitempty" yaml:"customerList,omitempty"`
	ItemList       int `json:"itemList,omitempty" yaml:"itemList,omitempty"`
	SalesOrderList int `json:"salesOrderList,omitempty" yaml:"salesOrderList,omitempty"`
	SalesOrder     int `json:"salesOrder,omitempty" yaml:"salesOrder,omitempty"`
}

// ScenarioConfig defines one workload group.
type ScenarioConfig struct {
	// Scenario is the library scenario each iteration runs
	Scenario string `json:"scenario" yaml:"scenario"`

	// Executor type: constant-vus, ramping-vus, per-vu-iterations, shared-iterations
	Executor string `json:"executor" yaml:"executor"`

	// VUs is the number of virtual users
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run (e.g., "30s", "2m", "1h")
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations is the iteration count for iteration-based executors
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// Stages defines ramping stages (for ramping-vus)
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop is how long to wait for running iterations to finish
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Pacing controls time between iterations
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// Order tunes the sales order scenarios
	Order *OrderConfig `json:"order,omitempty" yaml:"order,omitempty"`

	// Tags are added to log lines of this group
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// StageConfig defines a stage in ramping executors.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls timing between iterations.
type PacingConfig struct {
	// Type is "none", "constant", or "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min is the minimum wait time for random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum wait time for random pacing
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// OrderConfig bounds the random sales order shape. Upper bounds are exclusive.
type OrderConfig struct {
	MinLines    int    `json:"minLines,omitempty" yaml:"minLines,omitempty"`
	MaxLines    int    `json:"maxLines,omitempty" yaml:"maxLines,omitempty"`
	MinQuantity int    `json:"minQuantity,omitempty" yaml:"minQuantity,omitempty"`
	MaxQuantity int    `json:"maxQuantity,omitempty" yaml:"maxQuantity,omitempty"`
	ThinkTime   string `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`
}

// Thresholds define pass/fail criteria for the test.
type Thresholds struct {
	// TransactionDuration thresholds on transaction latency,
	// e.g. ["p95 < 2s", "avg < 500ms"]
	TransactionDuration []string `json:"transaction_duration,omitempty" yaml:"transaction_duration,omitempty"`

	// TransactionFailed thresholds on the transaction failure rate,
	// e.g. ["rate < 0.01"]
	TransactionFailed []string `json:"transaction_failed,omitempty" yaml:"transaction_failed,omitempty"`

	// Iterations thresholds on completed scenario iterations,
	// e.g. ["count > 100"]
	Iterations []string `json:"iterations,omitempty" yaml:"iterations,omitempty"`
}

// ExecutionOptions contains execution-level options.
type ExecutionOptions struct {
	// Sequential runs scenario groups one after another instead of together
	Sequential bool `json:"sequential,omitempty" yaml:"sequential,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		s = ""
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
