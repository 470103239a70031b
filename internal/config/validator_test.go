package config

import (
	"strings"
	"testing"
)

func validConfig() *TestConfig {
	return &TestConfig{
		Name:   "Test",
		Target: TargetConfig{Auth: AuthConfig{Username: "admin"}},
		Scenarios: map[string]*ScenarioConfig{
			"orders": {
				Scenario: "create-and-post-sales-order",
				Executor: "constant-vus",
				VUs:      10,
				Duration: "30s",
			},
		},
	}
}

func TestValidate_MinimalValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() returned error for valid config: %v", err)
	}
}

func TestValidate_NoScenarios(t *testing.T) {
	cfg := validConfig()
	cfg.Scenarios = map[string]*ScenarioConfig{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should return error when no scenarios defined")
	}
	if !strings.Contains(err.Error(), "scenario") {
		t.Errorf("Error should mention 'scenario', got: %v", err)
	}
}

func TestValidate_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		config  *ScenarioConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:   "constant-vus valid",
			config: &ScenarioConfig{Scenario: "open-item-list", Executor: "constant-vus", VUs: 1, Duration: "1m"},
		},
		{
			name:    "missing scenario name",
			config:  &ScenarioConfig{Executor: "constant-vus", VUs: 1, Duration: "1m"},
			wantErr: true,
			errMsg:  "scenario name is required",
		},
		{
			name:    "zero vus",
			config:  &ScenarioConfig{Scenario: "open-item-list", Executor: "constant-vus", Duration: "1m"},
			wantErr: true,
			errMsg:  "vus",
		},
		{
			name:    "missing duration",
			config:  &ScenarioConfig{Scenario: "open-item-list", Executor: "constant-vus", VUs: 1},
			wantErr: true,
			errMsg:  "duration is required",
		},
		{
			name:    "bad duration",
			config:  &ScenarioConfig{Scenario: "open-item-list", Executor: "constant-vus", VUs: 1, Duration: "forever"},
			wantErr: true,
			errMsg:  "invalid duration",
		},
		{
			name:    "unknown executor",
			config:  &ScenarioConfig{Scenario: "open-item-list", Executor: "constant-arrival-rate"},
			wantErr: true,
			errMsg:  "unknown executor type",
		},
		{
			name:    "ramping without stages",
			config:  &ScenarioConfig{Scenario: "open-item-list", Executor: "ramping-vus"},
			wantErr: true,
			errMsg:  "at least one stage",
		},
		{
			name: "ramping valid",
			config: &ScenarioConfig{Scenario: "open-item-list", Executor: "ramping-vus", Stages: []StageConfig{
				{Duration: "10s", Target: 5}, {Duration: "10s", Target: 0},
			}},
		},
		{
			name:    "per-vu-iterations without iterations",
			config:  &ScenarioConfig{Scenario: "open-item-list", Executor: "per-vu-iterations", VUs: 2},
			wantErr: true,
			errMsg:  "iterations",
		},
		{
			name:   "shared-iterations valid",
			config: &ScenarioConfig{Scenario: "open-item-list", Executor: "shared-iterations", VUs: 2, Iterations: 10},
		},
		{
			name: "random pacing min above max",
			config: &ScenarioConfig{Scenario: "open-item-list", Executor: "constant-vus", VUs: 1, Duration: "1m",
				Pacing: &PacingConfig{Type: "random", Min: "2s", Max: "1s"}},
			wantErr: true,
			errMsg:  "min cannot be greater than max",
		},
		{
			name: "unknown pacing",
			config: &ScenarioConfig{Scenario: "open-item-list", Executor: "constant-vus", VUs: 1, Duration: "1m",
				Pacing: &PacingConfig{Type: "poisson"}},
			wantErr: true,
			errMsg:  "unknown pacing type",
		},
		{
			name: "empty line range",
			config: &ScenarioConfig{Scenario: "create-and-post-sales-order", Executor: "constant-vus", VUs: 1, Duration: "1m",
				Order: &OrderConfig{MinLines: 3, MaxLines: 3}},
			wantErr: true,
			errMsg:  "maxLines",
		},
		{
			name: "zero quantity",
			config: &ScenarioConfig{Scenario: "create-and-post-sales-order", Executor: "constant-vus", VUs: 1, Duration: "1m",
				Order: &OrderConfig{MinQuantity: 0, MaxQuantity: 5}},
			wantErr: true,
			errMsg:  "quantity must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Scenarios = map[string]*ScenarioConfig{"test": tt.config}

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Error should contain %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidate_Target(t *testing.T) {
	tests := []struct {
		name    string
		target  TargetConfig
		wantErr bool
		errMsg  string
	}{
		{name: "simulator", target: TargetConfig{Auth: AuthConfig{Username: "admin"}}},
		{name: "http endpoint", target: TargetConfig{Endpoint: "http://localhost:8080", Auth: AuthConfig{Username: "admin"}}},
		{name: "bad endpoint", target: TargetConfig{Endpoint: "localhost:8080", Auth: AuthConfig{Username: "admin"}}, wantErr: true, errMsg: "invalid endpoint"},
		{name: "missing username", target: TargetConfig{}, wantErr: true, errMsg: "username is required"},
		{name: "integrated", target: TargetConfig{Auth: AuthConfig{Scheme: "integrated"}}},
		{name: "tenant without tenant", target: TargetConfig{Auth: AuthConfig{Scheme: "tenant", Username: "admin"}}, wantErr: true, errMsg: "tenant is required"},
		{name: "unknown scheme", target: TargetConfig{Auth: AuthConfig{Scheme: "kerberos"}}, wantErr: true, errMsg: "unknown authentication scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Target = tt.target

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Error should contain %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidate_Settings(t *testing.T) {
	cfg := validConfig()
	cfg.Settings.Policy.MissingConfirmation = "ignore"
	cfg.Settings.Retry.MaxAttempts = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	verrs, ok := err.(*ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationErrors", err)
	}
	if len(verrs.Errors) != 2 {
		t.Errorf("len(Errors) = %v, want 2: %v", len(verrs.Errors), err)
	}
}

func TestValidate_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		thresholds *Thresholds
		wantErr    bool
	}{
		{name: "valid", thresholds: &Thresholds{
			TransactionDuration: []string{"p95 < 2s", "avg<500ms"},
			TransactionFailed:   []string{"rate < 0.01"},
			Iterations:          []string{"count > 10"},
		}},
		{name: "malformed", thresholds: &Thresholds{TransactionDuration: []string{"p95 fast"}}, wantErr: true},
		{name: "unknown duration metric", thresholds: &Thresholds{TransactionDuration: []string{"p42 < 1s"}}, wantErr: true},
		{name: "failed supports rate only", thresholds: &Thresholds{TransactionFailed: []string{"count < 3"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Thresholds = tt.thresholds
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	errs := &ValidationErrors{}
	if errs.HasErrors() {
		t.Error("Empty ValidationErrors should not have errors")
	}

	errs.Add("field1", "message1")
	errs.Add("field2", "message2")

	if !errs.HasErrors() {
		t.Error("ValidationErrors with errors should have errors")
	}
	errStr := errs.Error()
	if !strings.Contains(errStr, "field1") || !strings.Contains(errStr, "field2") {
		t.Errorf("Error string should contain all fields, got: %v", errStr)
	}
	if !strings.Contains(errStr, "2 validation errors") {
		t.Errorf("Error string should mention count, got: %v", errStr)
	}
}

func TestValidationError_Single(t *testing.T) {
	err := &ValidationError{Field: "testField", Message: "test message"}
	errStr := err.Error()
	if !strings.Contains(errStr, "testField") || !strings.Contains(errStr, "test message") {
		t.Errorf("Error should contain field and message, got: %v", errStr)
	}
}
