// Package http pulls telemetry frames from an upstream network over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

const (
	telemetryEndpoint = "/api/telemetry/"
	defaultMaxPages   = 20
	maxErrorBody      = 4 << 10
)

// Config configures the upstream frame source.
type Config struct {
	BaseURL string
	Token   string

	// NoradIDs maps satellite ids to the upstream catalogue number.
	// Satellites without an entry are queried by id.
	NoradIDs map[string]string

	// MaxPages bounds pagination per fetch.
	MaxPages int

	UserAgent string
}

// telemetryRecord is one frame as returned by the upstream API.
type telemetryRecord struct {
	Frame         string `json:"frame"`
	Timestamp     string `json:"timestamp"`
	Observer      string `json:"observer"`
	AppSource     string `json:"app_source"`
	StationID     *int64 `json:"station_id,omitempty"`
	ObservationID *int64 `json:"observation_id,omitempty"`
	Transmitter   string `json:"transmitter,omitempty"`
}

type telemetryPage struct {
	Next    string            `json:"next"`
	Results []telemetryRecord `json:"results"`
}

// FrameSource implements ports.FrameSource against a SatNOGS-style
// telemetry API.
type FrameSource struct {
	config Config
	client ports.HTTPClient
	logger ports.Logger
}

// NewFrameSource creates an upstream frame source.
func NewFrameSource(config Config, client ports.HTTPClient, logger ports.Logger) *FrameSource {
	if config.MaxPages <= 0 {
		config.MaxPages = defaultMaxPages
	}
	if config.UserAgent == "" {
		config.UserAgent = "satlink (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &FrameSource{config: config, client: client, logger: logger}
}

// Fetch returns downlink frames of satellite inside w, oldest first.
// When MaxPages runs out before the last page, the frames read so far are
// returned with truncated set.
func (s *FrameSource) Fetch(ctx context.Context, satellite string, w ports.FetchWindow) ([]domain.Frame, bool, error) {
	next, err := s.firstURL(satellite, w)
	if err != nil {
		return nil, false, err
	}

	var frames []domain.Frame
	for page := 0; next != "" && page < s.config.MaxPages; page++ {
		records, following, err := s.getPage(ctx, next)
		if err != nil {
			return nil, false, err
		}
		for _, rec := range records {
			f, err := rec.frame()
			if err != nil {
				s.logger.Warn("skipping malformed upstream record",
					ports.String("satellite", satellite), ports.Err(err))
				continue
			}
			if w.Contains(f.Timestamp) {
				frames = append(frames, f)
			}
		}
		next = following
	}
	truncated := next != ""
	if truncated {
		s.logger.Warn("upstream pagination truncated",
			ports.String("satellite", satellite),
			ports.Int("max_pages", s.config.MaxPages),
			ports.Int("frames", len(frames)))
	}

	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Timestamp.Before(frames[j].Timestamp)
	})
	return frames, truncated, nil
}

func (s *FrameSource) firstURL(satellite string, w ports.FetchWindow) (string, error) {
	if s.config.BaseURL == "" {
		return "", &domain.UpstreamError{Err: errors.New("upstream base URL is not configured")}
	}
	u, err := url.Parse(s.config.BaseURL + telemetryEndpoint)
	if err != nil {
		return "", &domain.UpstreamError{Err: fmt.Errorf("parse upstream URL: %w", err)}
	}
	q := u.Query()
	q.Set("format", "json")
	if norad, ok := s.config.NoradIDs[satellite]; ok {
		q.Set("satellite", norad)
	} else {
		q.Set("sat_id", satellite)
	}
	if !w.Since.IsZero() {
		q.Set("start", w.Since.UTC().Format(time.RFC3339))
	}
	if !w.Until.IsZero() {
		q.Set("end", w.Until.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// getPage fetches one page. The API answers either a bare list or a
// paginated object with a next URL. Failures are returned as
// *domain.UpstreamError.
func (s *FrameSource) getPage(ctx context.Context, pageURL string) ([]telemetryRecord, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Token "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &domain.UpstreamError{Transient: true, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &domain.UpstreamError{
			Status:    resp.StatusCode,
			Transient: transientStatus(resp.StatusCode),
			Err:       errors.New(strings.TrimSpace(string(body))),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &domain.UpstreamError{Transient: true, Err: fmt.Errorf("read response: %w", err)}
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var records []telemetryRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, "", &domain.UpstreamError{Err: fmt.Errorf("decode response: %w", err)}
		}
		return records, nextLink(resp.Header.Get("Link")), nil
	}

	var page telemetryPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, "", &domain.UpstreamError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return page.Results, page.Next, nil
}

func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func (r telemetryRecord) frame() (domain.Frame, error) {
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("timestamp %q: %w", r.Timestamp, err)
	}
	if r.Frame == "" {
		return domain.Frame{}, fmt.Errorf("empty frame at %s", r.Timestamp)
	}

	meta := map[string]any{}
	if r.StationID != nil {
		meta["station_id"] = *r.StationID
	}
	if r.ObservationID != nil {
		meta["observation_id"] = *r.ObservationID
	}
	if r.Transmitter != "" {
		meta["transmitter"] = r.Transmitter
	}
	var metadata json.RawMessage
	if len(meta) > 0 {
		metadata, _ = json.Marshal(meta)
	}

	return domain.Frame{
		Link:        domain.LinkDownlink,
		Timestamp:   ts.UTC(),
		Payload:     strings.ToLower(r.Frame),
		Application: r.AppSource,
		Metadata:    metadata,
		Username:    r.Observer,
	}, nil
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		for _, p := range segs[1:] {
			if strings.ReplaceAll(strings.TrimSpace(p), " ", "") == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
