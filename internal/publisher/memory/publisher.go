// Package memory records published events in memory; the CLI uses it when
// Pub/Sub is disabled and tests use it to inspect events.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultLimit bounds the history kept by a long-running process.
const DefaultLimit = 1024

// Publisher keeps published payloads. When a limit is set the oldest message is
// evicted once the history is full.
type Publisher struct {
	mu       sync.RWMutex
	limit    int
	seq      int
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns an empty, unbounded Publisher.
func New() *Publisher {
	return &Publisher{}
}

// NewBounded returns a Publisher that keeps at most limit messages.
func NewBounded(limit int) *Publisher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Publisher{limit: limit, messages: make([]PublishedMessage, 0, limit)}
}

// Publish records the payload and returns a sequential ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := PublishedMessage{Topic: topic, Payload: payload}
	if p.limit > 0 && len(p.messages) == p.limit {
		copy(p.messages, p.messages[1:])
		p.messages[len(p.messages)-1] = msg
	} else {
		p.messages = append(p.messages, msg)
	}
	p.seq++
	return fmt.Sprintf("memory-%d", p.seq), nil
}

// Messages returns a copy of the retained history, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Topic returns the retained messages published to topic, in order.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []PublishedMessage
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
