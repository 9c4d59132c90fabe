package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
	"github.com/bft-labs/satlink/internal/scheduler"
)

// AllSatellites scopes a buffer_processing job to every satellite.
const AllSatellites = "all"

// Pipeline binds the processor, its sources and the scraper into scheduler
// jobs.
type Pipeline struct {
	Processor *Processor
	Table     *FrameTableSource
	Raw       *RawBucketSource
	Tracker   RangeTracker
	Scraper   *Scraper
	Recorder  ports.Recorder
	Logger    ports.Logger
}

// Job returns the function scheduled under JobID(satellite, kind, link).
func (p *Pipeline) Job(satellite string, kind scheduler.Kind, link domain.Link) (scheduler.Func, error) {
	if satellite == "" {
		return nil, fmt.Errorf("job %s: satellite is required", kind)
	}
	if link != "" && !link.Valid() {
		return nil, fmt.Errorf("job %s: unknown link %q", kind, link)
	}

	var run scheduler.Func
	switch kind {
	case scheduler.KindScraper:
		if p.Scraper == nil {
			return nil, fmt.Errorf("job %s: no upstream configured", kind)
		}
		if satellite == AllSatellites {
			return nil, fmt.Errorf("job %s: a concrete satellite is required", kind)
		}
		run = func(ctx context.Context) error {
			_, err := p.Scraper.Run(ctx, satellite)
			return err
		}
	case scheduler.KindBufferProcessing:
		run = func(ctx context.Context) error {
			_, err := p.DrainTable(ctx, satellite, link)
			return err
		}
	case scheduler.KindRawBucketProcessing:
		if satellite == AllSatellites {
			return nil, fmt.Errorf("job %s: a concrete satellite is required", kind)
		}
		run = func(ctx context.Context) error {
			for _, l := range linksOf(link) {
				if _, err := p.DrainRaw(ctx, satellite, l); err != nil {
					return err
				}
			}
			return nil
		}
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	return p.timed(kind, run), nil
}

// DrainTable drains pending frame table rows of satellite on link. An empty
// link drains both directions; AllSatellites drains every satellite.
func (p *Pipeline) DrainTable(ctx context.Context, satellite string, link domain.Link) (DrainResult, error) {
	scope := domain.Scope{Link: link}
	if satellite != AllSatellites {
		scope.Satellite = satellite
	}
	return p.Processor.Drain(ctx, p.Table, scope)
}

// DrainRaw merges the scratch ranges of (satellite, link), drains the raw
// bucket within the merged range and resets the range once nothing in it is
// left pending.
func (p *Pipeline) DrainRaw(ctx context.Context, satellite string, link domain.Link) (DrainResult, error) {
	merged, err := p.Tracker.Merge(ctx, satellite, link)
	if err != nil {
		return DrainResult{}, err
	}
	if merged.IsEmpty() {
		p.Logger.Debug("no raw data to reprocess",
			ports.String("satellite", satellite), ports.String("link", string(link)))
		return DrainResult{}, nil
	}

	scope := merged.Scope()
	res, err := p.Processor.Drain(ctx, p.Raw, scope)
	if err != nil {
		return res, err
	}

	left, err := p.Raw.CountPending(ctx, scope)
	if err != nil {
		return res, err
	}
	if left == 0 {
		if err := p.Tracker.Reset(ctx, satellite, link); err != nil {
			return res, err
		}
	} else {
		p.Logger.Info("raw range not fully drained",
			ports.String("scope", scope.String()), ports.Int("pending", left))
	}
	return res, nil
}

// Reprocess retries quarantined frames of the frame table, and of the raw
// bucket when satellite is concrete.
func (p *Pipeline) Reprocess(ctx context.Context, satellite string, link domain.Link) (DrainResult, error) {
	scope := domain.Scope{Link: link}
	if satellite != AllSatellites {
		scope.Satellite = satellite
	}
	total, err := p.Processor.Reprocess(ctx, p.Table, scope)
	if err != nil || satellite == AllSatellites || satellite == "" {
		return total, err
	}
	for _, l := range linksOf(link) {
		res, err := p.Processor.Reprocess(ctx, p.Raw, domain.Scope{Satellite: satellite, Link: l})
		total.Cycles += res.Cycles
		total.Valid += res.Valid
		total.DecodeError += res.DecodeError
		total.Unexpected += res.Unexpected
		total.Transient += res.Transient
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *Pipeline) timed(kind scheduler.Kind, run scheduler.Func) scheduler.Func {
	return func(ctx context.Context) error {
		start := time.Now()
		err := run(ctx)
		if p.Recorder != nil {
			p.Recorder.JobFinished(string(kind), err, time.Since(start))
		}
		return err
	}
}

func linksOf(link domain.Link) []domain.Link {
	if link == "" {
		return domain.Links
	}
	return []domain.Link{link}
}
