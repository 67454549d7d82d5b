// Package events publishes station snapshot refreshes to Kafka
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/randytsao24/bikefinder/internal/models"
)

const DefaultPublishTimeout = 5 * time.Second

// MessageWriter defines the part of kafka.Writer the publisher uses.
// This allows for easy mocking in unit tests.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RefreshEvent is the message body for one installed snapshot
type RefreshEvent struct {
	FetchedAt       time.Time      `json:"fetched_at"`
	SourceUpdatedAt *time.Time     `json:"source_updated_at,omitempty"`
	Summary         models.Summary `json:"summary"`
}

// Publisher sends a RefreshEvent for every snapshot the cache installs
type Publisher struct {
	writer  MessageWriter
	key     []byte
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
// Messages are keyed by feed so every event for one system lands on one partition.
func NewKafkaPublisher(brokers []string, topic, feed string, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewPublisher(w, feed, logger)
}

// NewPublisher wraps an existing writer
func NewPublisher(w MessageWriter, feed string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		writer:  w,
		key:     []byte(feed),
		timeout: DefaultPublishTimeout,
		logger:  logger,
	}
}

// Publish sends snap's summary. Failures are logged and dropped.
func (p *Publisher) Publish(snap *models.Snapshot) {
	if err := p.publish(snap); err != nil {
		p.logger.Warn("failed to publish refresh event", "error", err)
	}
}

func (p *Publisher) publish(snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}

	event := RefreshEvent{
		FetchedAt: snap.FetchedAt(),
		Summary:   snap.Summary(),
	}
	if src := snap.SourceUpdatedAt(); !src.IsZero() {
		event.SourceUpdatedAt = &src
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding refresh event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: p.key, Value: body, Time: event.FetchedAt}); err != nil {
		return fmt.Errorf("writing refresh event: %w", err)
	}
	p.logger.Debug("refresh event published", "stations", event.Summary.Stations)
	return nil
}

// Close flushes and closes the underlying writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
