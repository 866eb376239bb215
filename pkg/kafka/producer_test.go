package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func newTestProducer(w *fakeWriter) *Producer {
	return NewProducerWithWriter(w, "entity-events", ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestPublishEntityEvents(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	err := p.PublishEntityEvents(context.Background(), []*EntityEvent{
		{EventID: "e1", EventType: "entity.created", RunID: "r1", EntityID: "abc", Data: map[string]string{"gsis_id": "00-1"}},
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "entity-events", msg.Topic)
	assert.Equal(t, "abc", string(msg.Key))
	assert.Equal(t, "entity.created", header(msg, "event_type"))
	assert.Equal(t, SchemaVersion, header(msg, "schema_version"))

	var decoded EntityEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "00-1", decoded.Data["gsis_id"])
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestPublishConflictEvents(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	err := p.PublishConflictEvents(context.Background(), []*ConflictEvent{
		{EventType: "merge.conflict", Key: "pfr_id", Value: "X", RecordCount: 2,
			Fields: []ConflictField{{Field: "gsis_id", Values: []string{"1", "2"}}}},
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "pfr_id:X", string(w.messages[0].Key))
}

func TestPublish_Empty(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	p := newTestProducer(w)

	assert.NoError(t, p.PublishEntityEvents(context.Background(), nil))
	assert.NoError(t, p.PublishConflictEvents(context.Background(), nil))
}

func TestPublish_Error(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newTestProducer(w)

	err := p.PublishEntityEvents(context.Background(), []*EntityEvent{{EventType: "entity.deleted", EntityID: "a"}})
	require.Error(t, err)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestHeaderCarrier(t *testing.T) {
	c := headerCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
	assert.Equal(t, "", c.Get("missing"))
}
