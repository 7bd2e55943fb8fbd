// Package memory keeps archived-event notifications in process. Payloads are
// encoded exactly as the Pub/Sub publisher sends them, so tests and local runs
// see the real message shape.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

// Publisher records published messages for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	err      error
}

// Message is one recorded publish: the JSON payload plus the trace-context
// attributes a subscriber would receive.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every following Publish return err. A nil err restores
// normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Publish encodes payload to JSON and records it under topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	attrs := make(map[string]string)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(attrs))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", fmt.Errorf("publish message: %w", p.err)
	}
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data, Attributes: attrs})
	return id, nil
}

// Messages returns a copy of the recorded messages in publish order.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events decodes every message published to topic as an archive.ArchivedEvent.
func (p *Publisher) Events(topic string) ([]archive.ArchivedEvent, error) {
	var events []archive.ArchivedEvent
	for _, msg := range p.Messages() {
		if msg.Topic != topic {
			continue
		}
		var event archive.ArchivedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", msg.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
