package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bft-labs/satlink/internal/adapters/log"
	"github.com/bft-labs/satlink/internal/domain"
)

// fakeToken implements paho.Token.
type fakeToken struct {
	err     error
	timeout bool
	done    chan struct{}
}

func newFakeToken(err error, timeout bool) *fakeToken {
	t := &fakeToken{err: err, timeout: timeout, done: make(chan struct{})}
	if !timeout {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakePublisher struct {
	mu           sync.Mutex
	messages     []published
	err          error
	timeout      bool
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic, qos, retained, payload.([]byte)})
	return newFakeToken(p.err, p.timeout)
}

func (p *fakePublisher) Disconnect(uint) { p.disconnected = true }

type fakeStore struct {
	writes int
	err    error
}

func (s *fakeStore) Write(context.Context, domain.Link, domain.DecodedFrame) error {
	if s.err != nil {
		return s.err
	}
	s.writes++
	return nil
}

func decodedFrame() domain.DecodedFrame {
	return domain.DecodedFrame{
		Satellite: "testsat",
		FrameKind: "beacon",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Fields: []domain.DecodedField{
			{Name: "temperature", Value: 25.0, Unit: "C", Status: domain.StatusTooHigh},
			{Name: "mode", Value: "nominal"},
		},
	}
}

func TestPublishingStore_WritesThenPublishes(t *testing.T) {
	next := &fakeStore{}
	pub := &fakePublisher{}
	s := NewPublishingStore(next, pub, Config{TopicPrefix: "telemetry/", QoS: 1, Retain: true}, log.NewNoopLogger())

	if err := s.Write(context.Background(), domain.LinkDownlink, decodedFrame()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if next.writes != 1 {
		t.Errorf("wrapped writes = %d, want 1", next.writes)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}

	msg := pub.messages[0]
	if msg.topic != "telemetry/testsat/downlink" || msg.qos != 1 || !msg.retain {
		t.Errorf("message = %+v", msg)
	}

	var body frameMessage
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatal(err)
	}
	if body.Timestamp != "2024-03-01T12:00:00Z" || len(body.Fields) != 2 || body.Fields[0].Status != "TooHigh" {
		t.Errorf("payload = %+v", body)
	}
}

func TestPublishingStore_StoreErrorSkipsPublish(t *testing.T) {
	storeErr := domain.NewTransientStoreError("processed write", errors.New("closed"))
	pub := &fakePublisher{}
	s := NewPublishingStore(&fakeStore{err: storeErr}, pub, Config{}, log.NewNoopLogger())

	if err := s.Write(context.Background(), domain.LinkUplink, decodedFrame()); !errors.Is(err, domain.ErrTransientStore) {
		t.Errorf("Write() error = %v, want the store error", err)
	}
	if len(pub.messages) != 0 {
		t.Error("nothing should be published when the store write fails")
	}
}

func TestPublishingStore_PublishFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name string
		pub  *fakePublisher
	}{
		{"broker error", &fakePublisher{err: errors.New("not connected")}},
		{"timeout", &fakePublisher{timeout: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &fakeStore{}
			s := NewPublishingStore(next, tt.pub, Config{}, log.NewNoopLogger())
			if err := s.Write(context.Background(), domain.LinkDownlink, decodedFrame()); err != nil {
				t.Errorf("Write() error = %v, want nil", err)
			}
			if next.writes != 1 {
				t.Error("store write should still happen")
			}
		})
	}
}

func TestPublishingStore_DefaultTopicAndClose(t *testing.T) {
	pub := &fakePublisher{}
	s := NewPublishingStore(&fakeStore{}, pub, Config{}, log.NewNoopLogger())
	if got := s.Topic("othersat", domain.LinkUplink); got != "satlink/othersat/uplink" {
		t.Errorf("Topic() = %q", got)
	}
	s.Close()
	if !pub.disconnected {
		t.Error("Close() should disconnect")
	}
}

func TestConnect_RequiresBroker(t *testing.T) {
	if _, err := Connect(Config{}, log.NewNoopLogger()); err == nil {
		t.Error("expected error without broker")
	}
}
