// Package kafka publishes dedupe lifecycle events.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/internal/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MergeEvent announces an organization absorbed into a survivor.
type MergeEvent struct {
	EventType     string    `json:"event_type"` // entity.merged
	WorkspaceID   string    `json:"workspace_id"`
	SourceID      string    `json:"source_id"`
	DestinationID string    `json:"destination_id"`
	Score         float64   `json:"score"`
	Strategy      string    `json:"strategy"`
	Timestamp     time.Time `json:"timestamp"`
}

// LinkEvent announces an orphaned activity resolved to an owner.
type LinkEvent struct {
	EventType      string    `json:"event_type"` // activity.linked
	WorkspaceID    string    `json:"workspace_id"`
	ActivityID     string    `json:"activity_id"`
	PersonID       *string   `json:"person_id,omitempty"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Strategy       string    `json:"strategy"`
	LowConfidence  bool      `json:"low_confidence"`
	Timestamp      time.Time `json:"timestamp"`
}

// PublishMergeEvent publishes a merge event to Kafka, keyed by the
// surviving organization so a destination's events stay ordered.
func (p *Producer) PublishMergeEvent(ctx context.Context, event *MergeEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMergeEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.DestinationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "workspace_id", Value: []byte(event.WorkspaceID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish merge event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":     event.EventType,
		"destination_id": event.DestinationID,
	}).Debug("Published merge event")

	return nil
}

// PublishLinkEvent publishes a link event to Kafka, keyed by activity.
func (p *Producer) PublishLinkEvent(ctx context.Context, event *LinkEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishLinkEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ActivityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "workspace_id", Value: []byte(event.WorkspaceID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish link event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"activity_id": event.ActivityID,
	}).Debug("Published link event")

	return nil
}
