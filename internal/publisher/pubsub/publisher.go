// Package pubsub publishes domain events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
)

// Config selects where events go.
type Config struct {
	ProjectID string
	// TopicID receives every event; the event type travels in the "event_type" attribute.
	TopicID string
}

// Publisher publishes JSON payloads to one topic.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	ownClient bool
	stopOnce  sync.Once
}

// New dials Pub/Sub and prepares a publisher for cfg.TopicID.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := NewWithClient(client, cfg.TopicID)
	p.ownClient = true
	return p, nil
}

// NewWithClient wraps an existing client. Close does not close the client.
func NewWithClient(client *pubsub.Client, topicID string) *Publisher {
	return &Publisher{client: client, publisher: client.Publisher(topicID)}
}

// Publish marshals payload to JSON, tags it with the event type and the current
// trace context, and waits for the server ID.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) (string, error) {
	if p == nil || p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	msg, err := newMessage(ctx, eventType, payload)
	if err != nil {
		return "", err
	}
	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", eventType, err)
	}
	return id, nil
}

func newMessage(ctx context.Context, eventType string, payload any) (*pubsub.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	attrs := map[string]string{"event_type": eventType}
	otel.GetTextMapPropagator().Inject(ctx, carrier(attrs))
	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}

// Close flushes pending messages and releases the client when New created it.
func (p *Publisher) Close() error {
	var err error
	p.stopOnce.Do(func() {
		p.publisher.Stop()
		if p.ownClient {
			if cerr := p.client.Close(); cerr != nil {
				err = fmt.Errorf("close pubsub client: %w", cerr)
			}
		}
	})
	return err
}

// carrier adapts message attributes to propagation.TextMapCarrier.
type carrier map[string]string

func (c carrier) Get(key string) string { return c[key] }

func (c carrier) Set(key, value string) { c[key] = value }

func (c carrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
