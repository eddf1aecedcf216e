// Package pipeline runs every scraped activity through normalization,
// validation, persistence and event publication.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/progress"
)

// ErrDrop is returned (possibly wrapped) by a stage to discard the item.
var ErrDrop = errors.New("item dropped")

// Item is one activity moving through the stages.
type Item struct {
	RunID    string
	Spider   string
	Activity activity.Activity
	// Outcome is set by the persisting stage; it stays empty when nothing was stored.
	Outcome progress.Outcome
}

// Stage transforms or consumes an item.
type Stage interface {
	Process(ctx context.Context, item *Item) error
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, item *Item) error

// Process implements Stage.
func (f StageFunc) Process(ctx context.Context, item *Item) error {
	return f(ctx, item)
}

// Pipeline applies stages in order.
type Pipeline struct {
	stages  []Stage
	emitter progress.Emitter
	clock   crawler.Clock
	logger  *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEmitter reports item outcomes as progress events.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithClock overrides the event clock.
func WithClock(c crawler.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a pipeline over stages.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:  stages,
		emitter: progress.Nop{},
		clock:   wallClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs item through every stage and returns the outcomes it produced:
// always Scraped, followed by at most one of Saved, Duplicate, Dropped or Failed.
func (p *Pipeline) Process(ctx context.Context, item *Item) []progress.Outcome {
	outcomes := []progress.Outcome{progress.OutcomeScraped}
	for _, stage := range p.stages {
		err := stage.Process(ctx, item)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrDrop) {
			item.Outcome = progress.OutcomeDropped
			p.logger.Debug("item dropped",
				zap.String("spider", item.Spider),
				zap.String("title", item.Activity.Title),
				zap.Error(err))
		} else {
			item.Outcome = progress.OutcomeFailed
			p.logger.Warn("item failed",
				zap.String("spider", item.Spider),
				zap.String("title", item.Activity.Title),
				zap.Error(err))
		}
		break
	}
	if item.Outcome != "" {
		outcomes = append(outcomes, item.Outcome)
	}
	p.report(item, outcomes)
	return outcomes
}

func (p *Pipeline) report(item *Item, outcomes []progress.Outcome) {
	runID := progress.ParseRunID(item.RunID)
	now := p.clock.Now()
	for _, o := range outcomes {
		p.emitter.Emit(progress.Event{
			RunID:   runID,
			TS:      now,
			Stage:   progress.StageItem,
			Spider:  item.Spider,
			Outcome: o,
		})
	}
}

// Normalize cleans the activity in place and canonicalizes its source URL,
// which is the primary dedup key.
func Normalize() Stage {
	return StageFunc(func(_ context.Context, item *Item) error {
		item.Activity = activity.Normalize(item.Activity)
		if item.Activity.SourceURL != "" {
			if canonical, err := crawler.NormalizeURL(item.Activity.SourceURL); err == nil {
				item.Activity.SourceURL = canonical
			}
		}
		return nil
	})
}

// Validate drops activities missing required fields.
func Validate() Stage {
	return StageFunc(func(_ context.Context, item *Item) error {
		if err := item.Activity.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrDrop, err)
		}
		return nil
	})
}
