package app

import (
	"context"
	"testing"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
	"github.com/bft-labs/satlink/internal/scheduler"
)

type jobRecorder struct {
	ports.NopRecorder
	kinds []string
}

func (r *jobRecorder) JobFinished(kind string, _ error, _ time.Duration) {
	r.kinds = append(r.kinds, kind)
}

func newTestPipeline(frames *memFrames, raw *memRaw, tracker *fakeTracker, up *fakeUpstream) *Pipeline {
	processor := NewProcessor(fastConfig(), testRegistry(), &memProcessed{}, nil, mockLogger{})
	p := &Pipeline{
		Processor: processor,
		Table:     NewFrameTableSource(frames, raw, tracker, nil, mockLogger{}),
		Raw:       NewRawBucketSource(raw),
		Tracker:   tracker,
		Recorder:  &jobRecorder{},
		Logger:    mockLogger{},
	}
	if up != nil {
		p.Scraper = NewScraper(fastScraperConfig(), up,
			&memCursors{cursors: map[string]time.Time{"testsat": t0.Add(-time.Hour)}},
			raw, tracker, nil, mockLogger{})
	}
	return p
}

func TestPipeline_JobValidation(t *testing.T) {
	p := newTestPipeline(newMemFrames(), &memRaw{}, newFakeTracker(), nil)

	tests := []struct {
		name    string
		sat     string
		kind    scheduler.Kind
		link    domain.Link
		wantErr bool
	}{
		{"buffer for all", AllSatellites, scheduler.KindBufferProcessing, "", false},
		{"raw for one satellite", "testsat", scheduler.KindRawBucketProcessing, domain.LinkDownlink, false},
		{"raw for all", AllSatellites, scheduler.KindRawBucketProcessing, "", true},
		{"scraper without upstream", "testsat", scheduler.KindScraper, "", true},
		{"missing satellite", "", scheduler.KindBufferProcessing, "", true},
		{"bad link", "testsat", scheduler.KindBufferProcessing, "sideways", true},
		{"bad kind", "testsat", scheduler.Kind("cleanup"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Job(tt.sat, tt.kind, tt.link)
			if (err != nil) != tt.wantErr {
				t.Errorf("Job() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPipeline_ScrapeThenDrainRawResetsRange(t *testing.T) {
	ctx := context.Background()
	raw := &memRaw{}
	tracker := newFakeTracker()
	up := &fakeUpstream{frames: []domain.Frame{
		upstreamFrame("a500010f", 0),
		upstreamFrame("ff00010f", time.Minute),
	}}
	p := newTestPipeline(newMemFrames(), raw, tracker, up)

	scrape, err := p.Job("testsat", scheduler.KindScraper, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := scrape(ctx); err != nil {
		t.Fatalf("scraper job error = %v", err)
	}

	drain, err := p.Job("testsat", scheduler.KindRawBucketProcessing, domain.LinkDownlink)
	if err != nil {
		t.Fatal(err)
	}
	if err := drain(ctx); err != nil {
		t.Fatalf("raw job error = %v", err)
	}

	valid, _ := raw.Pending(ctx, domain.Scope{Satellite: "testsat", Link: domain.LinkDownlink}, 0)
	if len(valid) != 0 {
		t.Errorf("raw pending = %d, want 0", len(valid))
	}
	q, _ := raw.Quarantined(ctx, domain.Scope{Satellite: "testsat", Link: domain.LinkDownlink}, 0)
	if len(q) != 1 {
		t.Errorf("raw quarantined = %d, want 1", len(q))
	}
	if tracker.resets != 1 {
		t.Errorf("resets = %d, want 1", tracker.resets)
	}

	rec := p.Recorder.(*jobRecorder)
	if len(rec.kinds) != 2 || rec.kinds[0] != "scraper" || rec.kinds[1] != "raw_bucket_processing" {
		t.Errorf("recorded jobs = %v", rec.kinds)
	}
}

func TestPipeline_DrainRawSkipsEmptyRange(t *testing.T) {
	tracker := newFakeTracker()
	p := newTestPipeline(newMemFrames(), &memRaw{}, tracker, nil)

	res, err := p.DrainRaw(context.Background(), "testsat", domain.LinkUplink)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cycles != 0 || tracker.resets != 0 {
		t.Errorf("DrainRaw() = %+v, resets = %d, want no work", res, tracker.resets)
	}
}

func TestPipeline_DrainRawKeepsRangeWhenFramesRemainPending(t *testing.T) {
	ctx := context.Background()
	raw := &memRaw{}
	tracker := newFakeTracker()
	raw.Store(ctx, "testsat", upstreamFrame("a500010f", 0))
	tracker.Observe(ctx, "scraper", "testsat", domain.LinkDownlink, t0)

	p := newTestPipeline(newMemFrames(), raw, tracker, nil)
	p.Processor = NewProcessor(fastConfig(), testRegistry(),
		&memProcessed{failErr: domain.NewTransientStoreError("write", errFlaky)}, nil, mockLogger{})

	if _, err := p.DrainRaw(ctx, "testsat", domain.LinkDownlink); err != nil {
		t.Fatal(err)
	}
	if tracker.resets != 0 {
		t.Error("range must not be reset while frames remain pending")
	}
}

func TestPipeline_BufferThenRawProcessing(t *testing.T) {
	ctx := context.Background()
	frames := newMemFrames()
	raw := &memRaw{}
	tracker := newFakeTracker()
	seedFrames(t, frames, []string{"a500010f", "ff00010f"}, "testsat")
	p := newTestPipeline(frames, raw, tracker, nil)

	res, err := p.DrainTable(ctx, AllSatellites, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid != 1 || res.DecodeError != 1 {
		t.Errorf("DrainTable() = %+v", res)
	}

	res, err = p.DrainRaw(ctx, "testsat", domain.LinkDownlink)
	if err != nil {
		t.Fatal(err)
	}
	if res.Finalized() != 2 || tracker.resets != 1 {
		t.Errorf("DrainRaw() = %+v, resets = %d", res, tracker.resets)
	}

	rep, err := p.Reprocess(ctx, "testsat", "")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Valid != 0 || rep.DecodeError != 2 {
		t.Errorf("Reprocess() = %+v, want both quarantined copies still undecodable", rep)
	}
}
