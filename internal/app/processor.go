package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

// Default drain loop settings.
const (
	DefaultBatchSize    = 100
	DefaultIdleCycles   = 50
	DefaultIdleInterval = 200 * time.Millisecond
)

// ProcessorConfig tunes the drain loop.
type ProcessorConfig struct {
	// BatchSize is the number of pending frames fetched per cycle.
	BatchSize int

	// IdleCycles is the number of consecutive cycles finalizing nothing
	// after which a drain returns.
	IdleCycles int

	// IdleInterval is the pause between cycles.
	IdleInterval time.Duration
}

// DefaultProcessorConfig returns the standard drain settings.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:    DefaultBatchSize,
		IdleCycles:   DefaultIdleCycles,
		IdleInterval: DefaultIdleInterval,
	}
}

// Source is a store of frames the processor drains.
type Source interface {
	// Name labels the source in logs and metrics.
	Name() string
	Pending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error)
	Quarantined(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error)
	CountPending(ctx context.Context, scope domain.Scope) (int, error)

	// Finalize records the terminal state of frame. frame.Satellite holds
	// the resolved satellite, if any.
	Finalize(ctx context.Context, frame domain.Frame, invalid bool) error
}

// DrainResult counts the outcomes of one Drain or Reprocess call.
type DrainResult struct {
	Cycles      int
	Valid       int
	DecodeError int
	Unexpected  int
	Transient   int
}

// Finalized returns the number of frames moved to a terminal state.
func (r DrainResult) Finalized() int {
	return r.Valid + r.DecodeError + r.Unexpected
}

func (r *DrainResult) add(o ports.Outcome) {
	switch o {
	case ports.OutcomeValid:
		r.Valid++
	case ports.OutcomeDecodeError:
		r.DecodeError++
	case ports.OutcomeUnexpected:
		r.Unexpected++
	case ports.OutcomeTransient:
		r.Transient++
	}
}

// Processor drains pending frames through the decoder into the processed store.
type Processor struct {
	config    ProcessorConfig
	decoder   ports.Decoder
	processed ports.ProcessedStore
	recorder  ports.Recorder
	logger    ports.Logger
}

// NewProcessor creates a processor. Zero config fields take defaults.
func NewProcessor(
	config ProcessorConfig,
	decoder ports.Decoder,
	processed ports.ProcessedStore,
	recorder ports.Recorder,
	logger ports.Logger,
) *Processor {
	def := DefaultProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.IdleCycles <= 0 {
		config.IdleCycles = def.IdleCycles
	}
	if config.IdleInterval < 0 {
		config.IdleInterval = def.IdleInterval
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Processor{
		config:    config,
		decoder:   decoder,
		processed: processed,
		recorder:  recorder,
		logger:    logger,
	}
}

// Drain runs cycles over the pending frames of src within scope until
// IdleCycles consecutive cycles finalize nothing. Per-frame failures never
// abort the drain; only context cancellation or a non-transient failure to
// list pending frames does.
func (p *Processor) Drain(ctx context.Context, src Source, scope domain.Scope) (DrainResult, error) {
	var res DrainResult
	idle := 0

	for idle < p.config.IdleCycles {
		if res.Cycles > 0 {
			if err := sleepContext(ctx, p.config.IdleInterval); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Cycles++

		frames, err := src.Pending(ctx, scope, p.config.BatchSize)
		if err != nil {
			if !errors.Is(err, domain.ErrTransientStore) {
				return res, fmt.Errorf("%s: list pending: %w", src.Name(), err)
			}
			p.logger.Warn("pending query failed",
				ports.String("source", src.Name()),
				ports.String("scope", scope.String()),
				ports.Err(err))
			idle++
			continue
		}

		finalized := 0
		for _, frame := range frames {
			outcome := p.processFrame(ctx, src, frame)
			res.add(outcome)
			p.recorder.FrameProcessed(src.Name(), frame.Link, outcome)
			if outcome != ports.OutcomeTransient {
				finalized++
			}
		}
		p.recorder.DrainCycle(src.Name(), scope.Link, finalized)

		if finalized > 0 {
			idle = 0
		} else {
			idle++
		}
	}

	p.logger.Info("drain finished",
		ports.String("source", src.Name()),
		ports.String("scope", scope.String()),
		ports.Int("cycles", res.Cycles),
		ports.Int("valid", res.Valid),
		ports.Int("decode_errors", res.DecodeError),
		ports.Int("unexpected", res.Unexpected),
		ports.Int("transient", res.Transient))
	return res, nil
}

// Reprocess decodes every quarantined frame of src within scope again.
// Frames that now decode are finalized as valid; the rest stay quarantined.
func (p *Processor) Reprocess(ctx context.Context, src Source, scope domain.Scope) (DrainResult, error) {
	var res DrainResult
	res.Cycles = 1

	frames, err := src.Quarantined(ctx, scope, 0)
	if err != nil {
		return res, fmt.Errorf("%s: list quarantined: %w", src.Name(), err)
	}

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sat, decoded, err := p.decode(frame)
		if err != nil {
			p.logger.Debug("frame still undecodable",
				ports.String("frame", frame.ID), ports.Err(err))
			res.DecodeError++
			continue
		}
		frame.Satellite = sat
		outcome := p.commit(ctx, src, frame, decoded)
		res.add(outcome)
		p.recorder.FrameProcessed(src.Name(), frame.Link, outcome)
	}

	p.logger.Info("reprocess finished",
		ports.String("source", src.Name()),
		ports.String("scope", scope.String()),
		ports.Int("quarantined", len(frames)),
		ports.Int("recovered", res.Valid))
	return res, nil
}

// processFrame decodes one frame and finalizes it, returning its outcome.
func (p *Processor) processFrame(ctx context.Context, src Source, frame domain.Frame) ports.Outcome {
	sat, decoded, err := p.decode(frame)
	if sat != "" {
		frame.Satellite = sat
	}
	if err != nil {
		outcome := ports.OutcomeUnexpected
		if errors.Is(err, domain.ErrDecode) || errors.Is(err, domain.ErrNoMatchingSatellite) {
			outcome = ports.OutcomeDecodeError
			p.logger.Debug("frame quarantined",
				ports.String("frame", frame.ID),
				ports.String("satellite", frame.Satellite),
				ports.Err(err))
		} else {
			p.logger.Error("unexpected decode failure",
				ports.String("frame", frame.ID),
				ports.String("satellite", frame.Satellite),
				ports.Err(err))
		}
		return p.finalize(ctx, src, frame, true, outcome)
	}
	return p.commit(ctx, src, frame, decoded)
}

// decode resolves the satellite of frame and decodes its payload.
func (p *Processor) decode(frame domain.Frame) (string, domain.DecodedFrame, error) {
	payload, err := frame.Bytes()
	if err != nil {
		return frame.Satellite, domain.DecodedFrame{}, &domain.DecodeError{
			Satellite: frame.Satellite,
			Reason:    err.Error(),
		}
	}

	sat := frame.Satellite
	if sat == "" {
		sat, err = p.decoder.Identify(payload)
		if err != nil {
			return "", domain.DecodedFrame{}, err
		}
	}

	decoded, err := p.decoder.Decode(sat, payload)
	if err != nil {
		return sat, domain.DecodedFrame{}, err
	}
	decoded.Timestamp = frame.Timestamp
	return sat, decoded, nil
}

// commit writes decoded fields and finalizes frame as valid.
func (p *Processor) commit(ctx context.Context, src Source, frame domain.Frame, decoded domain.DecodedFrame) ports.Outcome {
	if err := p.processed.Write(ctx, frame.Link, decoded); err != nil {
		if errors.Is(err, domain.ErrTransientStore) || errors.Is(err, context.Canceled) {
			p.logger.Warn("processed write failed, frame left pending",
				ports.String("frame", frame.ID), ports.Err(err))
			return ports.OutcomeTransient
		}
		p.logger.Error("processed write rejected",
			ports.String("frame", frame.ID), ports.Err(err))
		return p.finalize(ctx, src, frame, true, ports.OutcomeUnexpected)
	}
	return p.finalize(ctx, src, frame, false, ports.OutcomeValid)
}

func (p *Processor) finalize(ctx context.Context, src Source, frame domain.Frame, invalid bool, outcome ports.Outcome) ports.Outcome {
	if err := src.Finalize(ctx, frame, invalid); err != nil {
		p.logger.Warn("finalize failed, frame left pending",
			ports.String("source", src.Name()),
			ports.String("frame", frame.ID),
			ports.Err(err))
		return ports.OutcomeTransient
	}
	return outcome
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
