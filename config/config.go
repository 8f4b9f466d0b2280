// Package config loads named wait profiles from YAML.
//
// Example:
//
//	implicit_wait: 0s
//	defaults:
//	  timeout: 5s
//	  poll_interval: 250ms
//	profiles:
//	  page_load:
//	    timeout: 30s
//	    message: page did not finish loading
//	  strict:
//	    timeout: 2s
//	    ignore: []
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/focuspuller"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// DefaultProfile names the profile returned for an empty name.
const DefaultProfile = "default"

// ErrUnknownProfile is returned by Spec for names that are not configured.
var ErrUnknownProfile = errors.New("unknown wait profile")

// Profile is the YAML form of a focuspuller.WaitSpec.
type Profile struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Ignore lists transient kinds by name (not_found, stale_reference).
	// Omitted means the engine defaults; an empty list ignores nothing.
	Ignore  []trip.Kind `yaml:"ignore"`
	Message string      `yaml:"message"`
}

// WaitSpec converts p, filling unset fields from defaults.
func (p Profile) WaitSpec(defaults Profile) focuspuller.WaitSpec {
	spec := focuspuller.WaitSpec{
		Timeout:      p.Timeout,
		PollInterval: p.PollInterval,
		IgnoredKinds: p.Ignore,
		Message:      p.Message,
	}
	if spec.Timeout == 0 {
		spec.Timeout = defaults.Timeout
	}
	if spec.PollInterval == 0 {
		spec.PollInterval = defaults.PollInterval
	}
	if spec.IgnoredKinds == nil {
		spec.IgnoredKinds = defaults.Ignore
	}
	if spec.Message == "" {
		spec.Message = defaults.Message
	}
	return spec
}

// Config holds wait profiles and the implicit wait default for sessions.
type Config struct {
	// ImplicitWait is applied to sessions built from this config. Zero disables it.
	ImplicitWait time.Duration      `yaml:"implicit_wait"`
	Defaults     Profile            `yaml:"defaults"`
	Profiles     map[string]Profile `yaml:"profiles"`
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every profile and reports all issues at once.
func (c *Config) Validate() error {
	var issues []string
	if c.ImplicitWait < 0 {
		issues = append(issues, fmt.Sprintf("implicit_wait must not be negative, got %s", c.ImplicitWait))
	}
	if c.Defaults.Timeout < 0 {
		issues = append(issues, fmt.Sprintf("defaults: timeout must not be negative, got %s", c.Defaults.Timeout))
	}
	if c.Defaults.PollInterval < 0 {
		issues = append(issues, fmt.Sprintf("defaults: poll_interval must not be negative, got %s", c.Defaults.PollInterval))
	}
	for _, k := range c.Defaults.Ignore {
		if !k.Transient() {
			issues = append(issues, fmt.Sprintf("defaults: %s errors cannot be ignored", k))
		}
	}
	for _, name := range c.Names() {
		if err := c.Profiles[name].WaitSpec(c.Defaults).Validate(); err != nil {
			msg := strings.TrimPrefix(err.Error(), focuspuller.ErrInvalidSpec.Error()+": ")
			issues = append(issues, fmt.Sprintf("profiles.%s: %s", name, msg))
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Errors: issues}
	}
	return nil
}

// Names returns the configured profile names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec returns the WaitSpec for the named profile. An empty name, or
// DefaultProfile when no profile of that name exists, yields the defaults.
func (c *Config) Spec(name string) (focuspuller.WaitSpec, error) {
	if p, ok := c.Profiles[name]; ok {
		return p.WaitSpec(c.Defaults), nil
	}
	if name == "" || name == DefaultProfile {
		spec := c.Defaults.WaitSpec(Profile{})
		return spec, spec.Validate()
	}
	return focuspuller.WaitSpec{}, fmt.Errorf("%w %q", ErrUnknownProfile, name)
}

// ImplicitWaitPolicy returns a fresh per-session policy holding ImplicitWait.
func (c *Config) ImplicitWaitPolicy() *query.ImplicitWait {
	return query.NewImplicitWait(c.ImplicitWait)
}
