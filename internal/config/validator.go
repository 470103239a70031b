package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all problems found.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}
	for name, sc := range c.Scenarios {
		if sc == nil {
			errs.Add("scenarios."+name, "scenario is empty")
			continue
		}
		validateScenario(name, sc, errs)
	}

	validateTarget(&c.Target, errs)
	validateSettings(&c.Settings, errs)

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateScenario(name string, sc *ScenarioConfig, errs *ValidationErrors) {
	prefix := fmt.Sprintf("scenarios.%s", name)

	if sc.Scenario == "" {
		errs.Add(prefix+".scenario", "scenario name is required")
	}

	validExecutors := map[string]bool{
		"constant-vus":      true,
		"ramping-vus":       true,
		"per-vu-iterations": true,
		"shared-iterations": true,
	}
	if sc.Executor == "" {
		errs.Add(prefix+".executor", "executor type is required")
	} else if !validExecutors[sc.Executor] {
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	}

	switch sc.Executor {
	case "constant-vus":
		if sc.VUs <= 0 {
			errs.Add(prefix+".vus", "vus must be greater than 0")
		}
		if sc.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant-vus executor")
		} else {
			validateDuration(prefix+".duration", sc.Duration, errs)
		}
	case "ramping-vus":
		if len(sc.Stages) == 0 {
			errs.Add(prefix+".stages", "at least one stage is required for ramping-vus executor")
		}
	case "per-vu-iterations", "shared-iterations":
		if sc.VUs <= 0 {
			errs.Add(prefix+".vus", "vus must be greater than 0")
		}
		if sc.Iterations <= 0 {
			errs.Add(prefix+".iterations", "iterations must be greater than 0")
		}
		if sc.Duration != "" {
			validateDuration(prefix+".duration", sc.Duration, errs)
		}
	}

	for i, stage := range sc.Stages {
		sp := fmt.Sprintf("%s.stages[%d]", prefix, i)
		if stage.Duration == "" {
			errs.Add(sp+".duration", "stage duration is required")
		} else {
			validateDuration(sp+".duration", stage.Duration, errs)
		}
		if stage.Target < 0 {
			errs.Add(sp+".target", "target cannot be negative")
		}
	}

	if sc.GracefulStop != "" {
		validateDuration(prefix+".gracefulStop", sc.GracefulStop, errs)
	}
	if sc.Pacing != nil {
		validatePacing(prefix+".pacing", sc.Pacing, errs)
	}
	if sc.Order != nil {
		validateOrder(prefix+".order", sc.Order, errs)
	}
}

func validateDuration(field, value string, errs *ValidationErrors) {
	d, err := ParseDurationString(value)
	if err != nil {
		errs.Add(field, fmt.Sprintf("invalid duration: %v", err))
		return
	}
	if d < 0 {
		errs.Add(field, "duration cannot be negative")
	}
}

func validatePacing(prefix string, p *PacingConfig, errs *ValidationErrors) {
	switch p.Type {
	case "", "none":
	case "constant":
		if p.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else {
			validateDuration(prefix+".duration", p.Duration, errs)
		}
	case "random":
		if p.Min == "" || p.Max == "" {
			errs.Add(prefix, "min and max are required for random pacing")
			return
		}
		minD, errMin := ParseDurationString(p.Min)
		maxD, errMax := ParseDurationString(p.Max)
		if errMin != nil {
			errs.Add(prefix+".min", fmt.Sprintf("invalid duration: %v", errMin))
		}
		if errMax != nil {
			errs.Add(prefix+".max", fmt.Sprintf("invalid duration: %v", errMax))
		}
		if errMin == nil && errMax == nil && minD > maxD {
			errs.Add(prefix, "min cannot be greater than max")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("unknown pacing type: %s", p.Type))
	}
}

func validateOrder(prefix string, o *OrderConfig, errs *ValidationErrors) {
	if o.MinLines < 0 || o.MinQuantity < 0 {
		errs.Add(prefix, "bounds cannot be negative")
	}
	if o.MaxLines != 0 && o.MaxLines <= o.MinLines {
		errs.Add(prefix+".maxLines", "maxLines must be greater than minLines")
	}
	if o.MaxLines != 0 && o.MinLines < 1 {
		errs.Add(prefix+".minLines", "an order needs at least one line")
	}
	if o.MaxQuantity != 0 && o.MaxQuantity <= o.MinQuantity {
		errs.Add(prefix+".maxQuantity", "maxQuantity must be greater than minQuantity")
	}
	if o.MaxQuantity != 0 && o.MinQuantity < 1 {
		errs.Add(prefix+".minQuantity", "quantity must be at least 1")
	}
	if o.ThinkTime != "" {
		validateDuration(prefix+".thinkTime", o.ThinkTime, errs)
	}
}

func validateTarget(t *TargetConfig, errs *ValidationErrors) {
	if t.Endpoint != "" {
		u, err := url.Parse(t.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.Add("target.endpoint", fmt.Sprintf("invalid endpoint URL: %s", t.Endpoint))
		}
	}

	switch t.Auth.Scheme {
	case "", "password":
		if t.Auth.Username == "" {
			errs.Add("target.auth.username", "username is required for password authentication")
		}
	case "integrated":
	case "tenant":
		if t.Auth.Tenant == "" {
			errs.Add("target.auth.tenant", "tenant is required for tenant authentication")
		}
		if t.Auth.Username == "" {
			errs.Add("target.auth.username", "username is required for tenant authentication")
		}
	default:
		errs.Add("target.auth.scheme", fmt.Sprintf("unknown authentication scheme: %s", t.Auth.Scheme))
	}

	if sim := t.Simulator; sim != nil {
		if sim.Customers < 0 || sim.Items < 0 || sim.ViewportSize < 0 {
			errs.Add("target.simulator", "counts cannot be negative")
		}
	}
}

func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout cannot be negative")
	}
	if s.WriteDelay < 0 {
		errs.Add("settings.writeDelay", "writeDelay cannot be negative")
	}
	switch s.Policy.MissingConfirmation {
	case "", "inconclusive", "fail":
	default:
		errs.Add("settings.policy.missingConfirmation",
			fmt.Sprintf("must be inconclusive or fail, got %q", s.Policy.MissingConfirmation))
	}
	if s.Retry.MaxAttempts < 0 {
		errs.Add("settings.retry.maxAttempts", "maxAttempts cannot be negative")
	}
	if s.Retry.Backoff < 0 {
		errs.Add("settings.retry.backoff", "backoff cannot be negative")
	}
}

var thresholdExpr = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

func validateThresholds(t *Thresholds, errs *ValidationErrors) {
	check := func(field string, exprs []string, metrics map[string]bool) {
		for i, expr := range exprs {
			m := thresholdExpr.FindStringSubmatch(strings.TrimSpace(expr))
			f := fmt.Sprintf("thresholds.%s[%d]", field, i)
			if m == nil {
				errs.Add(f, fmt.Sprintf("invalid threshold expression: %s", expr))
				continue
			}
			if !metrics[m[1]] {
				errs.Add(f, fmt.Sprintf("unknown metric %q", m[1]))
			}
		}
	}

	check("transaction_duration", t.TransactionDuration, map[string]bool{
		"min": true, "max": true, "avg": true, "med": true,
		"p50": true, "p90": true, "p95": true, "p99": true,
	})
	check("transaction_failed", t.TransactionFailed, map[string]bool{"rate": true})
	check("iterations", t.Iterations, map[string]bool{"count": true, "rate": true})
}
