package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/progress"
	"github.com/JakeFAU/kidssmart/internal/store"
)

// CreatedTopic is the event type published for newly inserted activities.
const CreatedTopic = "activity.created"

// Persist saves items through the activity store. A store error marks the item
// failed and is logged rather than aborting the run.
type Persist struct {
	Store  store.ActivityStore
	Logger *zap.Logger
}

// Process implements Stage.
func (s Persist) Process(ctx context.Context, item *Item) error {
	if s.Store == nil {
		return nil
	}
	saved, outcome, err := s.Store.SaveActivity(ctx, item.Activity)
	if err != nil {
		item.Outcome = progress.OutcomeFailed
		if s.Logger != nil {
			s.Logger.Error("store unavailable, item skipped",
				zap.String("spider", item.Spider),
				zap.String("source_url", item.Activity.SourceURL),
				zap.Error(err))
		}
		return nil
	}
	item.Activity = saved
	switch outcome {
	case store.Inserted:
		item.Outcome = progress.OutcomeSaved
	case store.Duplicate:
		item.Outcome = progress.OutcomeDuplicate
	}
	return nil
}

// CreatedEvent is the payload published for a newly inserted activity.
type CreatedEvent struct {
	Type       string    `json:"type"`
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category,omitempty"`
	Suburb     string    `json:"suburb,omitempty"`
	SourceName string    `json:"source_name"`
	SourceURL  string    `json:"source_url,omitempty"`
	Spider     string    `json:"spider"`
	RunID      string    `json:"run_id,omitempty"`
	At         time.Time `json:"at"`
}

// Publish announces inserted activities. Publish failures are logged only.
type Publish struct {
	Publisher crawler.Publisher
	Topic     string
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// Process implements Stage.
func (s Publish) Process(ctx context.Context, item *Item) error {
	if s.Publisher == nil || item.Outcome != progress.OutcomeSaved {
		return nil
	}
	var clock crawler.Clock = wallClock{}
	if s.Clock != nil {
		clock = s.Clock
	}
	a := item.Activity
	evt := CreatedEvent{
		Type:       CreatedTopic,
		ID:         a.ID,
		Title:      a.Title,
		Category:   a.Category,
		Suburb:     a.Suburb,
		SourceName: a.SourceName,
		SourceURL:  a.SourceURL,
		Spider:     item.Spider,
		RunID:      item.RunID,
		At:         clock.Now(),
	}
	topic := s.Topic
	if topic == "" {
		topic = CreatedTopic
	}
	if _, err := s.Publisher.Publish(ctx, topic, evt); err != nil && s.Logger != nil {
		s.Logger.Warn("publish activity.created failed", zap.Int64("id", a.ID), zap.Error(err))
	}
	return nil
}

// Print writes each item as a JSON line; crawl --dry-run uses it instead of Persist.
type Print struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewPrint writes JSON lines to w.
func NewPrint(w io.Writer) *Print {
	return &Print{enc: json.NewEncoder(w)}
}

// Process implements Stage.
func (s *Print) Process(_ context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(printed{Spider: item.Spider, Activity: item.Activity}); err != nil {
		return fmt.Errorf("write item: %w", err)
	}
	return nil
}

type printed struct {
	Spider string `json:"spider"`
	activity.Activity
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
