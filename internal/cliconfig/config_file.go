package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileJob is one [[jobs]] table.
type FileJob struct {
	Satellite string `toml:"satellite"`
	Kind      string `toml:"kind"`
	Link      string `toml:"link"`
	Every     string `toml:"every"`
}

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir        string            `toml:"data_dir"`
	SchemaDir      string            `toml:"schema_dir"`
	DatabasePath   string            `toml:"database_path"`
	TSDBPath       string            `toml:"tsdb_path"`
	SpoolDir       string            `toml:"spool_dir"`
	LogLevel       string            `toml:"log_level"`
	BatchSize      int               `toml:"batch_size"`
	IdleCycles     int               `toml:"idle_cycles"`
	IdleInterval   string            `toml:"idle_interval"`
	UpstreamURL    string            `toml:"upstream_url"`
	UpstreamToken  string            `toml:"upstream_token"`
	NoradIDs       map[string]string `toml:"norad_ids"`
	ScrapeLookback string            `toml:"scrape_lookback"`
	HTTPTimeout    string            `toml:"http_timeout"`
	MetricsAddr    string            `toml:"metrics_addr"`
	MQTTBroker     string            `toml:"mqtt_broker"`
	MQTTClientID   string            `toml:"mqtt_client_id"`
	MQTTUsername   string            `toml:"mqtt_username"`
	MQTTPassword   string            `toml:"mqtt_password"`
	MQTTTopic      string            `toml:"mqtt_topic"`
	MQTTQoS        int               `toml:"mqtt_qos"`
	Jobs           []FileJob         `toml:"jobs"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.satlink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".satlink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("schema-dir", fc.SchemaDir, &cfg.SchemaDir)
	s.setString("database", fc.DatabasePath, &cfg.DatabasePath)
	s.setString("tsdb", fc.TSDBPath, &cfg.TSDBPath)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("upstream-url", fc.UpstreamURL, &cfg.UpstreamURL)
	s.setString("upstream-token", fc.UpstreamToken, &cfg.UpstreamToken)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("mqtt-broker", fc.MQTTBroker, &cfg.MQTTBroker)
	s.setString("mqtt-client-id", fc.MQTTClientID, &cfg.MQTTClientID)
	s.setString("mqtt-username", fc.MQTTUsername, &cfg.MQTTUsername)
	s.setString("mqtt-password", fc.MQTTPassword, &cfg.MQTTPassword)
	s.setString("mqtt-topic", fc.MQTTTopic, &cfg.MQTTTopic)

	if err := s.setDuration("idle-interval", fc.IdleInterval, &cfg.IdleInterval); err != nil {
		return err
	}
	if err := s.setDuration("scrape-lookback", fc.ScrapeLookback, &cfg.ScrapeLookback); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("idle-cycles", fc.IdleCycles, &cfg.IdleCycles)
	s.setInt("mqtt-qos", fc.MQTTQoS, &cfg.MQTTQoS)

	if len(fc.NoradIDs) > 0 {
		cfg.NoradIDs = fc.NoradIDs
	}

	specs := make([]string, 0, len(fc.Jobs))
	for _, j := range fc.Jobs {
		spec := j.Satellite + ":" + j.Kind
		if j.Link != "" {
			spec += ":" + j.Link
		}
		if j.Every != "" {
			spec += "@" + j.Every
		}
		specs = append(specs, spec)
	}
	return s.setJobs("job", specs, &cfg.Jobs)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
