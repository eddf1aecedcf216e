package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/clock/system"
	"github.com/JakeFAU/kidssmart/internal/progress"
	pubmemory "github.com/JakeFAU/kidssmart/internal/publisher/memory"
	"github.com/JakeFAU/kidssmart/internal/storage/memory"
	"github.com/JakeFAU/kidssmart/internal/store"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

type failingStore struct {
	store.ActivityStore
}

func (failingStore) SaveActivity(context.Context, activity.Activity) (activity.Activity, store.SaveOutcome, error) {
	return activity.Activity{}, "", errors.New("connection refused")
}

func standard(s store.ActivityStore, pub *pubmemory.Publisher, clock system.Fixed) []Stage {
	publish := Publish{Clock: clock}
	if pub != nil {
		publish.Publisher = pub
	}
	return []Stage{Normalize(), Validate(), Persist{Store: s}, publish}
}

func TestPipelineInsertsThenDetectsDuplicate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	runID := uuid.New().String()
	activities := memory.NewActivityStore()
	pub := pubmemory.New()
	emitter := &recordingEmitter{}
	p := New(standard(activities, pub, system.Fixed(now)), WithEmitter(emitter), WithClock(system.Fixed(now)))

	first := &Item{RunID: runID, Spider: "kidspot_art", Activity: activity.Activity{
		Title: "  Paper   Craft ", SourceName: "Kidspot Art Activities", SourceURL: "https://k.test/a",
	}}
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeSaved}, p.Process(context.Background(), first))
	require.Equal(t, "Paper Craft", first.Activity.Title)
	require.NotZero(t, first.Activity.ID)

	again := &Item{RunID: runID, Spider: "kidspot_art", Activity: activity.Activity{
		Title: "Paper Craft", SourceName: "Kidspot Art Activities", SourceURL: "https://k.test/a", Description: "new",
	}}
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeDuplicate}, p.Process(context.Background(), again))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, CreatedTopic, msgs[0].Topic)
	evt, ok := msgs[0].Payload.(CreatedEvent)
	require.True(t, ok)
	require.Equal(t, first.Activity.ID, evt.ID)
	require.Equal(t, runID, evt.RunID)
	require.Equal(t, now, evt.At)

	require.Len(t, emitter.events, 4)
	require.Equal(t, progress.StageItem, emitter.events[0].Stage)
	require.Equal(t, runID, emitter.events[0].RunID.String())
	require.Equal(t, progress.OutcomeDuplicate, emitter.events[3].Outcome)
}

func TestNormalizeCanonicalizesSourceURL(t *testing.T) {
	t.Parallel()

	activities := memory.NewActivityStore()
	p := New(standard(activities, nil, system.Fixed(time.Now())))
	ctx := context.Background()

	first := &Item{Spider: "soccer5s", Activity: activity.Activity{
		Title: "Mini Kickers", SourceName: "Soccer5s", SourceURL: "https://Soccer5s.TEST:443/programs?b=2&a=1",
	}}
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeSaved}, p.Process(ctx, first))
	require.Equal(t, "https://soccer5s.test/programs?a=1&b=2", first.Activity.SourceURL)

	again := &Item{Spider: "soccer5s", Activity: activity.Activity{
		Title: "Mini Kickers", SourceName: "Soccer5s", SourceURL: "https://soccer5s.test/programs?a=1&b=2",
	}}
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeDuplicate}, p.Process(ctx, again))
}

func TestSectionsOfOnePageStayDistinct(t *testing.T) {
	t.Parallel()

	activities := memory.NewActivityStore()
	p := New(standard(activities, nil, system.Fixed(time.Now())))
	ctx := context.Background()

	kickers := &Item{Spider: "soccer5s", Activity: activity.Activity{
		Title: "Mini Kickers", SourceName: "soccer5s", SourceURL: "https://Soccer5s.test/#mini-kickers", Approved: true,
	}}
	camps := &Item{Spider: "soccer5s", Activity: activity.Activity{
		Title: "Holiday Camps", SourceName: "soccer5s", SourceURL: "https://soccer5s.test/#holiday-camps", Approved: true,
	}}
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeSaved}, p.Process(ctx, kickers))
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeSaved}, p.Process(ctx, camps))
	require.Equal(t, "https://soccer5s.test/#mini-kickers", kickers.Activity.SourceURL)
	require.Equal(t, "https://soccer5s.test/#holiday-camps", camps.Activity.SourceURL)

	// Scraped rows are public without moderation.
	n, err := activities.CountActivities(ctx, store.ActivityFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPipelineDropsInvalidItems(t *testing.T) {
	t.Parallel()

	activities := memory.NewActivityStore()
	p := New(standard(activities, pubmemory.New(), system.Fixed(time.Now())))

	item := &Item{Spider: "soccer5s", Activity: activity.Activity{Title: "   ", SourceName: "soccer5s"}}
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeDropped}, p.Process(context.Background(), item))

	n, err := activities.CountActivities(context.Background(), store.ActivityFilter{Approval: store.AnyApproval})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPipelineStoreFailureCountsAsFailed(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	p := New(standard(failingStore{}, pub, system.Fixed(time.Now())))
	item := &Item{Spider: "serpapi", Activity: activity.Activity{Title: "Swim School", SourceName: "serpapi"}}

	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeFailed}, p.Process(context.Background(), item))
	require.Empty(t, pub.Messages())
}

func TestPipelineStageErrorStopsRemainingStages(t *testing.T) {
	t.Parallel()

	called := false
	p := New([]Stage{
		StageFunc(func(context.Context, *Item) error { return errors.New("boom") }),
		StageFunc(func(context.Context, *Item) error { called = true; return nil }),
	})
	outcomes := p.Process(context.Background(), &Item{Spider: "x"})
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped, progress.OutcomeFailed}, outcomes)
	require.False(t, called)
}

func TestPrintWritesJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := New([]Stage{Normalize(), Validate(), NewPrint(&buf)})
	outcomes := p.Process(context.Background(), &Item{Spider: "activities", Activity: activity.Activity{
		Title: "Clay Club", SourceName: "activities", Suburb: "richmond",
	}})
	require.Equal(t, []progress.Outcome{progress.OutcomeScraped}, outcomes)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "activities", got["spider"])
	require.Equal(t, "Clay Club", got["title"])
	require.Equal(t, "Richmond", got["suburb"])
}

func TestOutcomesApplyToCounters(t *testing.T) {
	t.Parallel()

	activities := memory.NewActivityStore()
	p := New(standard(activities, nil, system.Fixed(time.Now())))
	var counters struct{ scraped, saved int }
	for _, title := range []string{"A", "B", "A"} {
		for _, o := range p.Process(context.Background(), &Item{Spider: "x", Activity: activity.Activity{
			Title: title, SourceName: "x", Suburb: "Kew",
		}}) {
			switch o {
			case progress.OutcomeScraped:
				counters.scraped++
			case progress.OutcomeSaved:
				counters.saved++
			}
		}
	}
	require.Equal(t, 3, counters.scraped)
	require.Equal(t, 2, counters.saved)
}
