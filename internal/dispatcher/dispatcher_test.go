package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/clock/system"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/queue/memory"
)

type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context) {
	r.started <- struct{}{}
	<-ctx.Done()
}

type staticIDs struct {
	id  string
	err error
}

func (s staticIDs) NewID() (string, error) { return s.id, s.err }

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.RunRequest) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.RunRequest, error) {
	return crawler.RunRequest{}, fmt.Errorf("dequeue: %w", q.err)
}

func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	runners := []*blockingRunner{{started: make(chan struct{}, 1)}, {started: make(chan struct{}, 1)}}
	dispatch := New(memory.NewQueue(1), []Runner{runners[0], runners[1]}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	for _, r := range runners {
		select {
		case <-r.started:
		case <-time.After(time.Second):
			t.Fatal("worker did not start")
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, nil, nil)
	err := dispatch.Enqueue(context.Background(), crawler.RunRequest{RunID: "run"})
	require.EqualError(t, err, "queue enqueue: boom")
}

func TestDispatcherSubmit(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	at := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	dispatch := New(q, nil, staticIDs{id: "run-7"},
		WithClock(system.Fixed(at)),
		WithKnownSpiders(func(name string) bool { return name == "kidspot_art" }))

	req, err := dispatch.Submit(context.Background(), "kidspot_art", crawler.TriggerSchedule)
	require.NoError(t, err)
	require.Equal(t, crawler.RunRequest{
		RunID:     "run-7",
		Spider:    "kidspot_art",
		Trigger:   crawler.TriggerSchedule,
		Attempt:   1,
		Submitted: at.Unix(),
	}, req)

	queued, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, req, queued)
}

func TestDispatcherSubmitErrors(t *testing.T) {
	t.Parallel()

	known := WithKnownSpiders(func(name string) bool { return name == "soccer5s" })

	_, err := New(memory.NewQueue(1), nil, staticIDs{id: "x"}, known).Submit(context.Background(), "nope", crawler.TriggerAdmin)
	require.ErrorIs(t, err, ErrUnknownSpider)

	_, err = New(memory.NewQueue(1), nil, staticIDs{err: errors.New("entropy")}, known).Submit(context.Background(), "soccer5s", crawler.TriggerAdmin)
	require.ErrorContains(t, err, "new run id")

	_, err = New(memory.NewQueue(1), nil, nil, known).Submit(context.Background(), "soccer5s", crawler.TriggerAdmin)
	require.Error(t, err)

	_, err = New(&errorQueue{err: errors.New("full")}, nil, staticIDs{id: "x"}, known).Submit(context.Background(), "soccer5s", crawler.TriggerAdmin)
	require.EqualError(t, err, "queue enqueue: full")
}
