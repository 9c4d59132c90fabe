package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultUpstreamURL is the public telemetry network scraped by default.
const DefaultUpstreamURL = "https://db.satnogs.org"

// Config holds CLI configuration for satlink.
type Config struct {
	DataDir      string
	SchemaDir    string
	DatabasePath string
	TSDBPath     string
	SpoolDir     string

	LogLevel string

	BatchSize    int
	IdleCycles   int
	IdleInterval time.Duration

	UpstreamURL    string
	UpstreamToken  string
	NoradIDs       map[string]string
	ScrapeLookback time.Duration
	HTTPTimeout    time.Duration

	MetricsAddr string

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
	MQTTQoS      int

	Jobs []JobSpec
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:       "info",
		BatchSize:      100,
		IdleCycles:     50,
		IdleInterval:   200 * time.Millisecond,
		UpstreamURL:    DefaultUpstreamURL,
		ScrapeLookback: 24 * time.Hour,
		HTTPTimeout:    15 * time.Second,
		MQTTTopic:      "satlink",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("data-dir is required")
		}
		c.DataDir = filepath.Join(h, ".satlink", "data")
	}
	if c.SchemaDir == "" {
		c.SchemaDir = filepath.Join(c.DataDir, "schemas")
	}

	// Ensure no trailing slash
	c.UpstreamURL = strings.TrimRight(c.UpstreamURL, "/")

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.IdleCycles <= 0 {
		return fmt.Errorf("idle cycles must be positive")
	}
	if c.IdleInterval < 0 {
		return fmt.Errorf("idle interval must not be negative")
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	for _, j := range c.Jobs {
		if j.Kind == "scraper" && c.UpstreamURL == "" {
			return fmt.Errorf("job %s needs an upstream url", j)
		}
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// setJobs replaces the job list unless the flag was set.
func (s *configSetter) setJobs(flag string, specs []string, dst *[]JobSpec) error {
	if len(specs) == 0 || s.changed[flag] {
		return nil
	}
	jobs := make([]JobSpec, 0, len(specs))
	for _, raw := range specs {
		j, err := ParseJobSpec(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", flag, err)
		}
		jobs = append(jobs, j)
	}
	*dst = jobs
	return nil
}
