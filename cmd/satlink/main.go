package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/satlink/internal/adapters/log"
	"github.com/bft-labs/satlink/internal/cliconfig"
	"github.com/bft-labs/satlink/pkg/satlink"
)

const helpDescription = `
Collect satellite telemetry frames, decode them against per-satellite schemas,
and store every decoded field as a time-series point.

Highlights:
  - Frames arrive from ground stations (spool directory or submit) and from the
    upstream network scraper.
  - Frames that fail to decode are quarantined and can be reprocessed later.
  - Jobs run one at a time on a single scheduler; configure via file, env, or flags.
  - Optional Prometheus metrics and MQTT fan-out of decoded frames.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  satlink --data-dir /var/lib/satlink --job all:buffer_processing@1m
  satlink --config $HOME/.satlink/config.toml --metrics-addr :9464
  satlink decode --satellite testsat 0a0b0c0d
  satlink status
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the configuration shared by every command.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	jobs    []string
	log     zerolog.Logger
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig(), log: cliconfig.Logger("info")}

	root := &cobra.Command{
		Use:           "satlink",
		Short:         "Decode and store satellite telemetry frames",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.run,
	}

	c.bindFlags(root.PersistentFlags())
	root.AddCommand(
		c.decodeCommand(),
		c.submitCommand(),
		c.reprocessCommand(),
		c.jobCommand(),
		c.statusCommand(),
	)

	if err := root.Execute(); err != nil {
		c.log.Error().Err(err).Msg("satlink")
		os.Exit(1)
	}
}

func (c *cli) bindFlags(fs *pflag.FlagSet) {
	cfg := &c.cfg
	fs.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.satlink/config.toml)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding every store (default: $HOME/.satlink/data)")
	fs.StringVar(&cfg.SchemaDir, "schema-dir", cfg.SchemaDir, "directory of satellite YAML schemas (defaults to <data-dir>/schemas)")
	fs.StringVar(&cfg.DatabasePath, "database", cfg.DatabasePath, "frame table database path (defaults to <data-dir>/frames.db)")
	fs.StringVar(&cfg.TSDBPath, "tsdb", cfg.TSDBPath, "time-series store path (defaults to <data-dir>/tsdb)")
	fs.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory watched for submission JSON files (optional)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")

	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "frames fetched per processing cycle")
	fs.IntVar(&cfg.IdleCycles, "idle-cycles", cfg.IdleCycles, "empty cycles before a drain job finishes")
	fs.DurationVar(&cfg.IdleInterval, "idle-interval", cfg.IdleInterval, "sleep between processing cycles")

	fs.StringVar(&cfg.UpstreamURL, "upstream-url", cfg.UpstreamURL, "upstream telemetry network scraped by scraper jobs")
	fs.StringVar(&cfg.UpstreamToken, "upstream-token", cfg.UpstreamToken, "API token for the upstream network")
	fs.DurationVar(&cfg.ScrapeLookback, "scrape-lookback", cfg.ScrapeLookback, "how far back the first scrape of a satellite reaches")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (optional)")

	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", cfg.MQTTBroker, "publish decoded frames to this MQTT broker (optional)")
	fs.StringVar(&cfg.MQTTClientID, "mqtt-client-id", cfg.MQTTClientID, "MQTT client id (random when empty)")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-username", cfg.MQTTUsername, "MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", cfg.MQTTPassword, "MQTT password")
	fs.StringVar(&cfg.MQTTTopic, "mqtt-topic", cfg.MQTTTopic, "MQTT topic prefix")
	fs.IntVar(&cfg.MQTTQoS, "mqtt-qos", cfg.MQTTQoS, "MQTT quality of service (0, 1 or 2)")

	fs.StringArrayVar(&c.jobs, "job", nil, "job to schedule at start, as satellite:kind[:link][@every] (repeatable)")
	for _, hidden := range []string{"database", "tsdb"} {
		if err := fs.MarkHidden(hidden); err != nil {
			c.log.Info().Err(err).Str("flag", hidden).Msg("failed to hide flag")
		}
	}
}

// load resolves the configuration: file, then env, then the flags set on cmd.
func (c *cli) load(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if changed["job"] {
		c.cfg.Jobs = c.cfg.Jobs[:0]
		for _, raw := range c.jobs {
			j, err := cliconfig.ParseJobSpec(raw)
			if err != nil {
				return err
			}
			c.cfg.Jobs = append(c.cfg.Jobs, j)
		}
	}

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}

	// SATLINK_* override the file and lose to explicit flags.
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}

	if err := c.cfg.Validate(); err != nil {
		return err
	}
	c.log = cliconfig.Logger(c.cfg.LogLevel)
	return nil
}

// newService loads the configuration and opens a service over it.
func (c *cli) newService(cmd *cobra.Command, opts ...satlink.Option) (*satlink.Service, error) {
	if err := c.load(cmd); err != nil {
		return nil, err
	}

	logCfg := c.cfg
	if logCfg.UpstreamToken != "" {
		logCfg.UpstreamToken = "*****"
	}
	if logCfg.MQTTPassword != "" {
		logCfg.MQTTPassword = "*****"
	}
	c.log.Debug().Interface("config", logCfg).Msg("configuration")

	opts = append([]satlink.Option{satlink.WithLogger(logAdapter.NewZerologAdapterWithLogger(c.log))}, opts...)
	svc, err := satlink.New(libConfig(c.cfg), opts...)
	if err != nil {
		return nil, fmt.Errorf("create satlink: %w", err)
	}
	return svc, nil
}

func libConfig(cfg cliconfig.Config) satlink.Config {
	jobs := make([]satlink.JobConfig, 0, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		jobs = append(jobs, satlink.JobConfig{
			Satellite: j.Satellite,
			Kind:      j.Kind,
			Link:      j.Link,
			Every:     j.Every,
		})
	}
	return satlink.Config{
		DataDir:        cfg.DataDir,
		SchemaDir:      cfg.SchemaDir,
		DatabasePath:   cfg.DatabasePath,
		TSDBPath:       cfg.TSDBPath,
		SpoolDir:       cfg.SpoolDir,
		BatchSize:      cfg.BatchSize,
		IdleCycles:     cfg.IdleCycles,
		IdleInterval:   cfg.IdleInterval,
		UpstreamURL:    cfg.UpstreamURL,
		UpstreamToken:  cfg.UpstreamToken,
		NoradIDs:       cfg.NoradIDs,
		ScrapeLookback: cfg.ScrapeLookback,
		HTTPTimeout:    cfg.HTTPTimeout,
		MetricsAddr:    cfg.MetricsAddr,
		MQTTBroker:     cfg.MQTTBroker,
		MQTTClientID:   cfg.MQTTClientID,
		MQTTUsername:   cfg.MQTTUsername,
		MQTTPassword:   cfg.MQTTPassword,
		MQTTTopic:      cfg.MQTTTopic,
		MQTTQoS:        byte(cfg.MQTTQoS),
		Jobs:           jobs,
	}
}

// jobLogger logs every finished job.
type jobLogger struct {
	satlink.BaseEventHandler
	log zerolog.Logger
}

func (h jobLogger) OnStateChange(e satlink.StateChangeEvent) {
	h.log.Debug().Str("from", e.Previous.String()).Str("to", e.Current.String()).Str("reason", e.Reason).Msg("state change")
}

func (h jobLogger) OnJobFinished(e satlink.JobFinishedEvent) {
	ev := h.log.Info()
	if e.Err != nil {
		ev = h.log.Warn().Err(e.Err)
	}
	ev.Str("job", e.JobID).Dur("duration", e.Duration).Msg("job finished")
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	svc, err := c.newService(cmd, satlink.WithEventHandler(jobLogger{log: c.log}))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start satlink: %w", err)
	}
	c.log.Info().Strs("satellites", svc.Satellites()).Int("jobs", len(c.cfg.Jobs)).Msg("satlink running")

	doneCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := svc.Status()
				if status == satlink.StateStopped || status == satlink.StateCrashed {
					close(doneCh)
					return
				}
			}
		}
	}()

	select {
	case <-sigCh:
		c.log.Info().Msg("received signal, stopping...")
	case <-doneCh:
		if svc.Status() == satlink.StateCrashed {
			c.log.Error().Err(svc.Err()).Msg("satlink crashed")
		}
	}

	if err := svc.Stop(); err != nil && !errors.Is(err, satlink.ErrNotRunning) {
		return fmt.Errorf("stop satlink: %w", err)
	}
	return nil
}
