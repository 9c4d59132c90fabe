// Package mqtt fans decoded telemetry out to an MQTT broker.
package mqtt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

const (
	defaultTopicPrefix    = "satlink"
	defaultPublishTimeout = 5 * time.Second
	connectTimeout        = 15 * time.Second
)

// Config configures the broker connection and topics.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	PublishTimeout time.Duration
}

// Publisher is the subset of the paho client used here.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Connect dials the broker described by cfg.
func Connect(cfg Config, logger ports.Logger) (paho.Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is not configured")
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = generateClientID()
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info("mqtt connected", ports.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", ports.Err(err))
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warn("mqtt connect still pending, retrying in background",
			ports.String("broker", cfg.Broker))
		return client, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "satlink_" + hex.EncodeToString(b)
}

type fieldMessage struct {
	Name   string `json:"name"`
	Value  any    `json:"value"`
	Unit   string `json:"unit,omitempty"`
	Status string `json:"status"`
}

type frameMessage struct {
	Satellite string         `json:"satellite"`
	Link      string         `json:"link"`
	FrameKind string         `json:"frame_kind"`
	Timestamp string         `json:"timestamp"`
	Fields    []fieldMessage `json:"fields"`
}

// PublishingStore writes decoded frames to the wrapped store, then publishes
// them to {prefix}/{satellite}/{link}. Publish failures are logged and never
// fail the write.
type PublishingStore struct {
	next   ports.ProcessedStore
	pub    Publisher
	config Config
	logger ports.Logger
}

// NewPublishingStore wraps next.
func NewPublishingStore(next ports.ProcessedStore, pub Publisher, config Config, logger ports.Logger) *PublishingStore {
	if config.TopicPrefix == "" {
		config.TopicPrefix = defaultTopicPrefix
	}
	config.TopicPrefix = strings.TrimRight(config.TopicPrefix, "/")
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaultPublishTimeout
	}
	return &PublishingStore{next: next, pub: pub, config: config, logger: logger}
}

// Write implements ports.ProcessedStore.
func (s *PublishingStore) Write(ctx context.Context, link domain.Link, frame domain.DecodedFrame) error {
	if err := s.next.Write(ctx, link, frame); err != nil {
		return err
	}

	topic := s.Topic(frame.Satellite, link)
	payload, err := json.Marshal(message(link, frame))
	if err != nil {
		s.logger.Warn("mqtt payload encoding failed", ports.String("topic", topic), ports.Err(err))
		return nil
	}

	token := s.pub.Publish(topic, s.config.QoS, s.config.Retain, payload)
	if !token.WaitTimeout(s.config.PublishTimeout) {
		s.logger.Warn("mqtt publish timed out", ports.String("topic", topic))
		return nil
	}
	if err := token.Error(); err != nil {
		s.logger.Warn("mqtt publish failed", ports.String("topic", topic), ports.Err(err))
	}
	return nil
}

// Topic returns the topic decoded frames of satellite on link go to.
func (s *PublishingStore) Topic(satellite string, link domain.Link) string {
	return s.config.TopicPrefix + "/" + satellite + "/" + string(link)
}

// Close disconnects from the broker.
func (s *PublishingStore) Close() {
	s.pub.Disconnect(250)
}

func message(link domain.Link, frame domain.DecodedFrame) frameMessage {
	msg := frameMessage{
		Satellite: frame.Satellite,
		Link:      string(link),
		FrameKind: frame.FrameKind,
		Timestamp: frame.Timestamp.UTC().Format(time.RFC3339Nano),
		Fields:    make([]fieldMessage, 0, len(frame.Fields)),
	}
	for _, f := range frame.Fields {
		msg.Fields = append(msg.Fields, fieldMessage{
			Name:   f.Name,
			Value:  f.Value,
			Unit:   f.Unit,
			Status: f.Status.String(),
		})
	}
	return msg
}
