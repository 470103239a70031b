package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvEndpoint = "FORMLOAD_ENDPOINT"
	EnvUsername = "FORMLOAD_USERNAME"
	EnvPassword = "FORMLOAD_PASSWORD"
	EnvTenant   = "FORMLOAD_TENANT"
)

// Default values applied by ApplyDefaults.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultWriteDelay   = 100 * time.Millisecond
	DefaultGracefulStop = "30s"
	DefaultLabel        = "OK"
)

// LoadConfig reads and parses a configuration file. The format is chosen by
// extension: .yaml/.yml for YAML, anything else for JSON.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses configuration data. filename only selects the format.
func ParseConfig(data []byte, filename string) (*TestConfig, error) {
	var cfg TestConfig

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ParseDurationString parses a duration such as "30s" or "1h30m". A bare
// integer is taken as seconds and an empty string as zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// ApplyDefaults fills unset fields with default values.
func ApplyDefaults(cfg *TestConfig) {
	if cfg.Name == "" {
		cfg.Name = "formload"
	}

	s := &cfg.Settings
	if s.Timeout == 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.WriteDelay == 0 {
		s.WriteDelay = Duration(DefaultWriteDelay)
	}
	if s.Policy.DismissWarnings == nil {
		dismiss := true
		s.Policy.DismissWarnings = &dismiss
	}
	if s.Policy.WarningLabel == "" {
		s.Policy.WarningLabel = DefaultLabel
	}
	if s.Policy.ConfirmLabel == "" {
		s.Policy.ConfirmLabel = DefaultLabel
	}
	if s.Policy.MissingConfirmation == "" {
		s.Policy.MissingConfirmation = "inconclusive"
	}
	if s.Retry.MaxAttempts == 0 {
		s.Retry.MaxAttempts = 1
	}
	applyPageDefaults(&s.Pages)

	if cfg.Target.Auth.Scheme == "" {
		cfg.Target.Auth.Scheme = "password"
	}
	if cfg.Target.Auth.RoleCenter == 0 {
		cfg.Target.Auth.RoleCenter = s.Pages.RoleCenter
	}

	for _, sc := range cfg.Scenarios {
		if sc == nil {
			continue
		}
		if sc.Executor == "" {
			sc.Executor = "constant-vus"
		}
		if sc.GracefulStop == "" {
			sc.GracefulStop = DefaultGracefulStop
		}
	}
}

func applyPageDefaults(p *PagesConfig) {
	if p.RoleCenter == 0 {
		p.RoleCenter = 9006
	}
	if p.CustomerList == 0 {
		p.CustomerList = 22
	}
	if p.ItemList == 0 {
		p.ItemList = 31
	}
	if p.SalesOrderList == 0 {
		p.SalesOrderList = 9305
	}
	if p.SalesOrder == 0 {
		p.SalesOrder = 42
	}
}

// ApplyEnv overrides target settings from the environment. lookup is usually
// os.LookupEnv.
func ApplyEnv(cfg *TestConfig, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEndpoint); ok {
		cfg.Target.Endpoint = v
	}
	if v, ok := lookup(EnvUsername); ok {
		cfg.Target.Auth.Username = v
	}
	if v, ok := lookup(EnvPassword); ok {
		cfg.Target.Auth.Password = v
	}
	if v, ok := lookup(EnvTenant); ok {
		cfg.Target.Auth.Tenant = v
	}
}
