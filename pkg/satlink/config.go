package satlink

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/scheduler"
)

// Default values applied by Config.SetDefaults.
const (
	DefaultBatchSize      = 100
	DefaultIdleCycles     = 50
	DefaultIdleInterval   = 200 * time.Millisecond
	DefaultHTTPTimeout    = 15 * time.Second
	DefaultScrapeLookback = 24 * time.Hour
	DefaultMQTTTopic      = "satlink"
)

// JobConfig describes a job scheduled when the service starts.
type JobConfig struct {
	Satellite string
	Kind      string

	// Link restricts the job to one direction. Empty covers both.
	Link string

	// Every makes the job recurring. Zero runs it once at start.
	Every time.Duration
}

// Config holds the configuration of a Service.
type Config struct {
	// DataDir holds every on-disk store unless a path below overrides it.
	DataDir string

	// SchemaDir holds one YAML schema file per satellite.
	SchemaDir string

	DatabasePath string
	TSDBPath     string
	CursorDir    string

	// SpoolDir enables spool ingestion when set.
	SpoolDir string

	BatchSize    int
	IdleCycles   int
	IdleInterval time.Duration

	// UpstreamURL enables the scraper job when set.
	UpstreamURL    string
	UpstreamToken  string
	NoradIDs       map[string]string
	ScrapeLookback time.Duration
	HTTPTimeout    time.Duration

	// MetricsAddr serves /metrics when set.
	MetricsAddr string

	// MQTTBroker enables fan-out of decoded frames when set.
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
	MQTTQoS      byte

	Jobs []JobConfig
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.DataDir != "" {
		if c.SchemaDir == "" {
			c.SchemaDir = filepath.Join(c.DataDir, "schemas")
		}
		if c.DatabasePath == "" {
			c.DatabasePath = filepath.Join(c.DataDir, "frames.db")
		}
		if c.TSDBPath == "" {
			c.TSDBPath = filepath.Join(c.DataDir, "tsdb")
		}
		if c.CursorDir == "" {
			c.CursorDir = c.DataDir
		}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.IdleCycles <= 0 {
		c.IdleCycles = DefaultIdleCycles
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.ScrapeLookback <= 0 {
		c.ScrapeLookback = DefaultScrapeLookback
	}
	if c.MQTTTopic == "" {
		c.MQTTTopic = DefaultMQTTTopic
	}
	c.UpstreamURL = strings.TrimRight(c.UpstreamURL, "/")
}

// Validate reports the first configuration error, wrapped in
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.SchemaDir == "" {
		return fmt.Errorf("%w: schema dir is required (or data dir)", domain.ErrInvalidConfig)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database path is required (or data dir)", domain.ErrInvalidConfig)
	}
	if c.TSDBPath == "" {
		return fmt.Errorf("%w: tsdb path is required (or data dir)", domain.ErrInvalidConfig)
	}
	if c.MQTTQoS > 2 {
		return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2", domain.ErrInvalidConfig)
	}
	for i, j := range c.Jobs {
		if err := j.validate(c); err != nil {
			return fmt.Errorf("%w: job %d: %v", domain.ErrInvalidConfig, i, err)
		}
	}
	return nil
}

func (j JobConfig) validate(c *Config) error {
	if j.Satellite == "" {
		return fmt.Errorf("satellite is required")
	}
	kind, err := scheduler.ParseKind(j.Kind)
	if err != nil {
		return err
	}
	if kind == scheduler.KindScraper && c.UpstreamURL == "" {
		return fmt.Errorf("scraper job needs an upstream url")
	}
	if j.Link != "" {
		if _, err := domain.ParseLink(j.Link); err != nil {
			return err
		}
	}
	if j.Every < 0 {
		return fmt.Errorf("negative interval")
	}
	return nil
}

// link returns the normalized link direction, empty for both.
func (j JobConfig) link() domain.Link {
	l, _ := domain.ParseLink(j.Link)
	return l
}
