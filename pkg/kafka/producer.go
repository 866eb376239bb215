// Package kafka publishes entity map events.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka event emission
type Producer struct {
	writer MessageWriter
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
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter creates a producer on an existing writer.
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Topic returns the destination topic.
func (p *Producer) Topic() string {
	return p.topic
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// EntityEvent announces an entity map row appearing or disappearing.
// EntityID is the row's fingerprint.
type EntityEvent struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"` // entity.created, entity.deleted
	RunID     string            `json:"run_id"`
	EntityID  string            `json:"entity_id"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ConflictField is one disagreeing field of a conflict.
type ConflictField struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// ConflictEvent reports a key group that could not be fused.
type ConflictEvent struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"` // merge.conflict
	RunID       string          `json:"run_id"`
	Key         string          `json:"key"`
	Value       string          `json:"value"`
	Fields      []ConflictField `json:"fields"`
	RecordCount int             `json:"record_count"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PublishEntityEvents publishes entity events in one batch
func (p *Producer) PublishEntityEvents(ctx context.Context, events []*EntityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishEntityEvents")
	defer span.End()

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		msg, err := p.message(ctx, event.EntityID, event.EventType, event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	return p.write(ctx, "entity", messages)
}

// PublishConflictEvents publishes conflict events in one batch
func (p *Producer) PublishConflictEvents(ctx context.Context, events []*ConflictEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishConflictEvents")
	defer span.End()

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		msg, err := p.message(ctx, event.Key+":"+event.Value, event.EventType, event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	return p.write(ctx, "conflict", messages)
}

func (p *Producer) message(ctx context.Context, key, eventType string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := headerCarrier{
		{Key: "event_type", Value: []byte(eventType)},
		{Key: "schema_version", Value: []byte(SchemaVersion)},
	}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	}, nil
}

func (p *Producer) write(ctx context.Context, kind string, messages []kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "failed", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(messages),
			"kind":       kind,
		}).Error("Failed to publish events batch")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "ok", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(messages),
		"kind":       kind,
	}).Debug("Published events batch")
	return nil
}

// headerCarrier lets the otel propagator write trace context into Kafka headers.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}
