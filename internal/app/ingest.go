package app

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

var hexPayload = regexp.MustCompile(`^[A-Fa-f0-9]+$`)

// Submission is a frame as reported by a ground station.
type Submission struct {
	Link        string          `json:"link"`
	Timestamp   string          `json:"timestamp"`
	Frame       string          `json:"frame"`
	Frequency   *float64        `json:"frequency,omitempty"`
	QoS         *float64        `json:"qos,omitempty"`
	Satellite   string          `json:"satellite,omitempty"`
	Username    string          `json:"username"`
	Application string          `json:"application,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Ingestor validates submissions and stores them as pending frames.
type Ingestor struct {
	frames ports.FrameRepository
	known  func(satellite string) bool
	logger ports.Logger
}

// NewIngestor creates an ingestor. known, if non-nil, rejects submissions
// naming a satellite it does not recognise.
func NewIngestor(frames ports.FrameRepository, known func(string) bool, logger ports.Logger) *Ingestor {
	return &Ingestor{frames: frames, known: known, logger: logger}
}

// Submit validates sub and creates a pending frame row.
func (i *Ingestor) Submit(ctx context.Context, sub Submission) (domain.Frame, error) {
	frame, err := i.validate(sub)
	if err != nil {
		return domain.Frame{}, err
	}
	if err := i.frames.Create(ctx, frame); err != nil {
		return domain.Frame{}, fmt.Errorf("store frame: %w", err)
	}

	i.logger.Debug("frame submitted",
		ports.String("frame", frame.ID),
		ports.String("satellite", frame.Satellite),
		ports.String("link", string(frame.Link)),
		ports.String("username", frame.Username))
	return frame, nil
}

func (i *Ingestor) validate(sub Submission) (domain.Frame, error) {
	link, err := domain.ParseLink(sub.Link)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(sub.Timestamp))
	if err != nil {
		return domain.Frame{}, fmt.Errorf("%w: timestamp %q is not RFC3339", domain.ErrInvalidSubmission, sub.Timestamp)
	}

	payload := strings.TrimSpace(sub.Frame)
	if !hexPayload.MatchString(payload) {
		return domain.Frame{}, fmt.Errorf("%w: frame must be a hex string", domain.ErrInvalidSubmission)
	}

	username := strings.TrimSpace(sub.Username)
	if username == "" {
		return domain.Frame{}, fmt.Errorf("%w: username is required", domain.ErrInvalidSubmission)
	}

	satellite := strings.TrimSpace(sub.Satellite)
	if satellite != "" && i.known != nil && !i.known(satellite) {
		return domain.Frame{}, fmt.Errorf("%w: %w: %s", domain.ErrInvalidSubmission, domain.ErrUnknownSatellite, satellite)
	}

	if len(sub.Metadata) > 0 && !json.Valid(sub.Metadata) {
		return domain.Frame{}, fmt.Errorf("%w: metadata is not valid JSON", domain.ErrInvalidSubmission)
	}

	return domain.Frame{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Satellite:   satellite,
		Link:        link,
		Timestamp:   ts.UTC(),
		Payload:     strings.ToLower(payload),
		Frequency:   sub.Frequency,
		QoS:         sub.QoS,
		Application: strings.TrimSpace(sub.Application),
		Metadata:    sub.Metadata,
		Username:    username,
	}, nil
}
