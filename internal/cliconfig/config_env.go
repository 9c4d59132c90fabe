package cliconfig

import (
	"os"
	"strings"
)

// ApplyEnvConfig applies configuration from environment variables (SATLINK_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", os.Getenv("SATLINK_DATA_DIR"), &cfg.DataDir)
	s.setString("schema-dir", os.Getenv("SATLINK_SCHEMA_DIR"), &cfg.SchemaDir)
	s.setString("database", os.Getenv("SATLINK_DATABASE_PATH"), &cfg.DatabasePath)
	s.setString("tsdb", os.Getenv("SATLINK_TSDB_PATH"), &cfg.TSDBPath)
	s.setString("spool-dir", os.Getenv("SATLINK_SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("log-level", os.Getenv("SATLINK_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("upstream-url", os.Getenv("SATLINK_UPSTREAM_URL"), &cfg.UpstreamURL)
	s.setString("upstream-token", os.Getenv("SATLINK_UPSTREAM_TOKEN"), &cfg.UpstreamToken)
	s.setString("metrics-addr", os.Getenv("SATLINK_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("mqtt-broker", os.Getenv("SATLINK_MQTT_BROKER"), &cfg.MQTTBroker)
	s.setString("mqtt-client-id", os.Getenv("SATLINK_MQTT_CLIENT_ID"), &cfg.MQTTClientID)
	s.setString("mqtt-username", os.Getenv("SATLINK_MQTT_USERNAME"), &cfg.MQTTUsername)
	s.setString("mqtt-password", os.Getenv("SATLINK_MQTT_PASSWORD"), &cfg.MQTTPassword)
	s.setString("mqtt-topic", os.Getenv("SATLINK_MQTT_TOPIC"), &cfg.MQTTTopic)

	if err := s.setDuration("idle-interval", os.Getenv("SATLINK_IDLE_INTERVAL"), &cfg.IdleInterval); err != nil {
		return err
	}
	if err := s.setDuration("scrape-lookback", os.Getenv("SATLINK_SCRAPE_LOOKBACK"), &cfg.ScrapeLookback); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("SATLINK_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("batch-size", os.Getenv("SATLINK_BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setIntFromString("idle-cycles", os.Getenv("SATLINK_IDLE_CYCLES"), &cfg.IdleCycles); err != nil {
		return err
	}
	if err := s.setIntFromString("mqtt-qos", os.Getenv("SATLINK_MQTT_QOS"), &cfg.MQTTQoS); err != nil {
		return err
	}

	// SATLINK_JOBS is a comma separated list of job specs.
	var specs []string
	for _, spec := range strings.Split(os.Getenv("SATLINK_JOBS"), ",") {
		if spec = strings.TrimSpace(spec); spec != "" {
			specs = append(specs, spec)
		}
	}
	return s.setJobs("job", specs, &cfg.Jobs)
}
