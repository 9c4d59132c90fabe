package cliconfig

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 100 || cfg.IdleCycles != 50 || cfg.IdleInterval != 200*time.Millisecond {
		t.Errorf("processing defaults = %d/%d/%v", cfg.BatchSize, cfg.IdleCycles, cfg.IdleInterval)
	}
	if cfg.UpstreamURL != DefaultUpstreamURL {
		t.Errorf("UpstreamURL = %v, want %v", cfg.UpstreamURL, DefaultUpstreamURL)
	}
	if cfg.MQTTTopic != "satlink" {
		t.Errorf("MQTTTopic = %v, want satlink", cfg.MQTTTopic)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func(mutate func(*Config)) Config {
		c := DefaultConfig()
		c.DataDir = "/var/lib/satlink"
		mutate(&c)
		return c
	}

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults with data dir", valid(func(*Config) {}), false},
		{"zero batch size", valid(func(c *Config) { c.BatchSize = 0 }), true},
		{"zero idle cycles", valid(func(c *Config) { c.IdleCycles = 0 }), true},
		{"negative idle interval", valid(func(c *Config) { c.IdleInterval = -time.Second }), true},
		{"zero idle interval", valid(func(c *Config) { c.IdleInterval = 0 }), false},
		{"qos out of range", valid(func(c *Config) { c.MQTTQoS = 3 }), true},
		{"unknown log level", valid(func(c *Config) { c.LogLevel = "chatty" }), true},
		{
			name: "scraper job without upstream",
			config: valid(func(c *Config) {
				c.UpstreamURL = ""
				c.Jobs = []JobSpec{{Satellite: "testsat", Kind: "scraper"}}
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Derivations(t *testing.T) {
	c := DefaultConfig()
	c.DataDir = "/srv/satlink"
	c.UpstreamURL = "https://db.example.org/"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if want := filepath.Join("/srv/satlink", "schemas"); c.SchemaDir != want {
		t.Errorf("SchemaDir = %v, want %v", c.SchemaDir, want)
	}
	if c.UpstreamURL != "https://db.example.org" {
		t.Errorf("UpstreamURL = %v, want trailing slash trimmed", c.UpstreamURL)
	}

	// SchemaDir respects explicit override
	c2 := DefaultConfig()
	c2.DataDir = "/srv/satlink"
	c2.SchemaDir = "/etc/satlink/schemas"
	if err := c2.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c2.SchemaDir != "/etc/satlink/schemas" {
		t.Errorf("SchemaDir = %v, want /etc/satlink/schemas", c2.SchemaDir)
	}

	// DataDir falls back to the home directory
	t.Setenv("HOME", "/home/op")
	c3 := DefaultConfig()
	if err := c3.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if want := filepath.Join("/home/op", ".satlink", "data"); c3.DataDir != want {
		t.Errorf("DataDir = %v, want %v", c3.DataDir, want)
	}
}
