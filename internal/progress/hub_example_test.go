package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type outcomeCounter struct {
	saved int
}

func (s *outcomeCounter) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Outcome == OutcomeSaved {
			s.saved++
		}
	}
	return nil
}

func (s *outcomeCounter) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit counts saved items reported during a run.
func ExampleHub_Emit() {
	sink := &outcomeCounter{}
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	runID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	for _, outcome := range []Outcome{OutcomeScraped, OutcomeSaved, OutcomeScraped, OutcomeDuplicate} {
		hub.Emit(Event{RunID: runID, TS: time.Unix(0, 0), Stage: StageItem, Spider: "kidspot_art", Outcome: outcome})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("saved: %d\n", sink.saved)
	// Output:
	// saved: 1
}
