package satlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bft-labs/satlink/internal/adapters/fs"
	httpAdapter "github.com/bft-labs/satlink/internal/adapters/http"
	"github.com/bft-labs/satlink/internal/adapters/metrics"
	mqttAdapter "github.com/bft-labs/satlink/internal/adapters/mqtt"
	"github.com/bft-labs/satlink/internal/adapters/sqlite"
	"github.com/bft-labs/satlink/internal/adapters/tsdb"
	"github.com/bft-labs/satlink/internal/app"
	"github.com/bft-labs/satlink/internal/decoder"
	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
	"github.com/bft-labs/satlink/internal/scheduler"
	"github.com/bft-labs/satlink/internal/timerange"
)

// Service is a telemetry pipeline that can be embedded in other applications.
// New opens the stores; Start runs the scheduler, spool watcher and metrics
// endpoint; Close releases the stores.
type Service struct {
	config    Config
	opts      options
	logger    ports.Logger
	emitter   eventEmitter
	lifecycle *app.Lifecycle

	store     *sqlite.Store
	db        *tsdb.DB
	registry  *decoder.Registry
	processed *tsdb.ProcessedBucket
	tracker   *timerange.Tracker
	recorder  *metrics.PrometheusRecorder
	ingestor  *app.Ingestor
	pipeline  *app.Pipeline

	mu        sync.Mutex
	sched     *scheduler.Scheduler
	publisher *mqttAdapter.PublishingStore
	closed    bool
}

// New creates a Service with the given configuration. The instance is
// created in StateStopped with its stores open.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions(&http.Client{Timeout: cfg.HTTPTimeout})
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	registry, err := decoder.LoadRegistry(cfg.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	db, err := tsdb.Open(cfg.TSDBPath, tsdb.Options{})
	if err != nil {
		store.Close()
		return nil, err
	}

	recorder := metrics.NewPrometheusRecorder()
	raw := tsdb.NewRawBucket(db, logger)
	processed := tsdb.NewProcessedBucket(db, logger)
	tracker := timerange.NewTracker(store.Ranges(), logger)
	frames := store.Frames()

	var scraper *app.Scraper
	if cfg.UpstreamURL != "" {
		source := httpAdapter.NewFrameSource(httpAdapter.Config{
			BaseURL:  cfg.UpstreamURL,
			Token:    cfg.UpstreamToken,
			NoradIDs: cfg.NoradIDs,
		}, o.httpClient, logger)
		scraper = app.NewScraper(
			app.ScraperConfig{Lookback: cfg.ScrapeLookback},
			source,
			fs.NewCursorFileRepository(cfg.CursorDir),
			raw,
			tracker,
			recorder,
			logger,
		)
	}

	s := &Service{
		config:    cfg,
		opts:      o,
		logger:    logger,
		emitter:   eventEmitter{handler: o.eventHandler},
		store:     store,
		db:        db,
		registry:  registry,
		processed: processed,
		tracker:   tracker,
		recorder:  recorder,
	}
	s.lifecycle = app.NewLifecycle(logger, s.emitter)
	s.ingestor = app.NewIngestor(frames, s.known, logger)
	s.pipeline = &app.Pipeline{
		Processor: s.newProcessor(processed),
		Table:     app.NewFrameTableSource(frames, raw, tracker, recorder, logger),
		Raw:       app.NewRawBucketSource(raw),
		Tracker:   tracker,
		Scraper:   scraper,
		Recorder:  recorder,
		Logger:    logger,
	}

	logger.Info("service ready",
		ports.Int("satellites", len(registry.Satellites())),
		ports.String("database", cfg.DatabasePath),
		ports.String("tsdb", cfg.TSDBPath))
	return s, nil
}

func (s *Service) newProcessor(sink ports.ProcessedStore) *app.Processor {
	return app.NewProcessor(app.ProcessorConfig{
		BatchSize:    s.config.BatchSize,
		IdleCycles:   s.config.IdleCycles,
		IdleInterval: s.config.IdleInterval,
	}, s.registry, sink, s.recorder, s.logger)
}

func (s *Service) known(satellite string) bool {
	_, ok := s.registry.Lookup(satellite)
	return ok
}

// Start launches the scheduler with the configured jobs, the spool watcher
// and the metrics endpoint. It returns once they are running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrNotRunning
	}
	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}
	// A crashed run may have left its scheduler behind.
	s.teardownLocked()

	runCtx, cancel := context.WithCancel(ctx)
	s.lifecycle.SetCancel(cancel)

	if err := s.startLocked(runCtx); err != nil {
		cancel()
		s.teardownLocked()
		_ = s.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		return err
	}
	return s.lifecycle.TransitionTo(app.StateRunning, "started")
}

func (s *Service) startLocked(ctx context.Context) error {
	if s.config.MQTTBroker != "" {
		client, err := mqttAdapter.Connect(mqttAdapter.Config{
			Broker:   s.config.MQTTBroker,
			ClientID: s.config.MQTTClientID,
			Username: s.config.MQTTUsername,
			Password: s.config.MQTTPassword,
		}, s.logger)
		if err != nil {
			return err
		}
		s.publisher = mqttAdapter.NewPublishingStore(s.processed, client, mqttAdapter.Config{
			TopicPrefix: s.config.MQTTTopic,
			QoS:         s.config.MQTTQoS,
		}, s.logger)
		s.pipeline.Processor = s.newProcessor(s.publisher)
	}

	s.sched = scheduler.New(s.logger, scheduler.Options{OnFinish: s.emitter.jobFinished})
	for _, j := range s.config.Jobs {
		kind, _ := scheduler.ParseKind(j.Kind)
		trigger := scheduler.OneShot(time.Time{})
		if j.Every > 0 {
			trigger = scheduler.Interval(j.Every, time.Time{})
		}
		if _, err := s.scheduleLocked(j.Satellite, kind, j.link(), trigger); err != nil {
			return err
		}
	}

	if s.config.SpoolDir != "" {
		watcher := fs.NewSpoolWatcher(fs.SpoolConfig{Dir: s.config.SpoolDir}, s.submitFile, s.logger)
		s.lifecycle.Go(ctx, "spool", watcher.Run)
	}

	if s.config.MetricsAddr != "" {
		ln, err := net.Listen("tcp", s.config.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		s.lifecycle.Go(ctx, "metrics", func(ctx context.Context) error {
			return s.serveMetrics(ctx, ln)
		})
	}
	return nil
}

func (s *Service) serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if s.Status() != StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, s.Status())
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()
	s.logger.Info("metrics endpoint listening", ports.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Service) submitFile(ctx context.Context, name string, data []byte) error {
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidSubmission, name, err)
	}
	_, err := s.ingestor.Submit(ctx, sub)
	return err
}

// Stop cancels background workers and shuts the scheduler down, abandoning
// the in-flight job. Frames it had not finalized stay pending.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lifecycle.Cancel()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()

	deadline := time.Now().Add(app.ShutdownTimeout)
	err := s.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	if sched != nil {
		done := make(chan struct{})
		go func() {
			sched.Shutdown(false)
			sched.Shutdown(true)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Until(deadline)):
			s.logger.Warn("scheduler did not stop in time")
			err = domain.ErrShutdownTimeout
		}
	}

	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

func (s *Service) teardownLocked() {
	if s.sched != nil {
		s.sched.Shutdown(false)
		s.sched.Shutdown(true)
		s.sched = nil
	}
	if s.publisher != nil {
		s.publisher.Close()
		s.publisher = nil
		s.pipeline.Processor = s.newProcessor(s.processed)
	}
}

// Close stops the service if needed and closes the stores.
func (s *Service) Close() error {
	if s.lifecycle.CanStop() {
		if err := s.Stop(); err != nil {
			s.logger.Warn("stop before close failed", ports.Err(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.teardownLocked()
	return errors.Join(s.db.Close(), s.store.Close())
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Service) Status() State {
	return State(s.lifecycle.State())
}

// Err returns the error that crashed the service, if any.
func (s *Service) Err() error {
	return s.lifecycle.Err()
}

// Satellites returns the satellites with a registered schema.
func (s *Service) Satellites() []string {
	return s.registry.Satellites()
}

// Submit validates a ground station report and stores it as a pending frame.
func (s *Service) Submit(ctx context.Context, sub Submission) (Frame, error) {
	return s.ingestor.Submit(ctx, sub)
}

// Schedule registers a job on the running scheduler. Scheduling an id that is
// already active is not an error; the result says what happened.
func (s *Service) Schedule(satellite string, kind JobKind, link Link, trigger Trigger) (ScheduleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(satellite, kind, link, trigger)
}

func (s *Service) scheduleLocked(satellite string, kind JobKind, link Link, trigger Trigger) (ScheduleResult, error) {
	if s.sched == nil {
		return 0, domain.ErrNotRunning
	}
	fn, err := s.pipeline.Job(satellite, kind, link)
	if err != nil {
		return 0, err
	}
	return s.sched.Schedule(scheduler.JobID(satellite, kind, link), trigger, fn)
}

// Unschedule removes a pending job.
func (s *Service) Unschedule(satellite string, kind JobKind, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return domain.ErrNotRunning
	}
	return s.sched.Unschedule(scheduler.JobID(satellite, kind, link))
}

// Jobs returns a snapshot of the scheduled jobs.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return nil
	}
	return s.sched.Snapshot()
}

// RunJob runs the work of a job synchronously, outside the scheduler.
func (s *Service) RunJob(ctx context.Context, satellite string, kind JobKind, link Link) error {
	s.mu.Lock()
	fn, err := s.pipeline.Job(satellite, kind, link)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx)
}

// Reprocess decodes quarantined frames again and finalizes the ones that now
// decode as valid. An empty satellite covers every satellite of the frame
// table; the raw bucket is only covered for a named satellite.
func (s *Service) Reprocess(ctx context.Context, satellite string, link Link) (DrainResult, error) {
	if satellite == "" {
		satellite = app.AllSatellites
	}
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	return p.Reprocess(ctx, satellite, link)
}

// Requeue returns quarantined frame table rows to the pending set so the next
// buffer_processing run picks them up. It returns the number of rows moved.
func (s *Service) Requeue(ctx context.Context, satellite string, link Link) (int, error) {
	frames := s.store.Frames()
	quarantined, err := frames.Quarantined(ctx, domain.Scope{Satellite: satellite, Link: link}, 0)
	if err != nil {
		return 0, err
	}
	for i, f := range quarantined {
		if err := frames.Requeue(ctx, f.ID); err != nil {
			return i, err
		}
	}
	return len(quarantined), nil
}

// Counts returns the number of frames per processing state.
func (s *Service) Counts(ctx context.Context) (FrameCounts, error) {
	return s.store.Frames().Counts(ctx)
}

// Ranges returns every stored time range, authoritative and scratch.
func (s *Service) Ranges(ctx context.Context) ([]StoredRange, error) {
	return s.store.Ranges().List(ctx)
}

// Query returns the processed points of satellite on link within [start, end].
func (s *Service) Query(ctx context.Context, satellite string, link Link, start, end time.Time) ([]Point, error) {
	return s.processed.Query(ctx, satellite, link, start, end)
}

// MetricsHandler serves the service metrics in the Prometheus format.
func (s *Service) MetricsHandler() http.Handler {
	return s.recorder.Handler()
}
