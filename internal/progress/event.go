package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// Stage identifies what an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart Stage = "RUN_START"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
	StageItem     Stage = "ITEM"
)

// Outcome is what the pipeline did with one scraped item.
type Outcome string

// Item outcomes. Every item yields Scraped plus at most one of the others.
const (
	OutcomeScraped   Outcome = "scraped"
	OutcomeSaved     Outcome = "saved"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

// Event is one milestone of a spider run.
type Event struct {
	RunID  uuid.UUID
	TS     time.Time
	Stage  Stage
	Spider string
	// Outcome is set on StageItem events.
	Outcome Outcome
	// Status is the final run status on RUN_DONE and RUN_ERROR.
	Status string
	// Dur is the run's wall time on completion events.
	Dur time.Duration
	// Note carries error text; keep it short.
	Note string
}

// Validate rejects events sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Spider == "" {
		return errors.New("spider is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageItem:
		switch e.Outcome {
		case OutcomeScraped, OutcomeSaved, OutcomeDuplicate, OutcomeDropped, OutcomeFailed:
		default:
			return fmt.Errorf("unknown item outcome %q", e.Outcome)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ParseRunID converts a stored run ID; malformed IDs map to uuid.Nil, which Validate rejects.
func ParseRunID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

// Nop discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}

// Apply adds one occurrence of o to c.
func (o Outcome) Apply(c *crawler.RunCounters) {
	switch o {
	case OutcomeScraped:
		c.ItemsScraped++
	case OutcomeSaved:
		c.ItemsSaved++
	case OutcomeDuplicate:
		c.ItemsDuplicate++
	case OutcomeDropped:
		c.ItemsDropped++
	case OutcomeFailed:
		c.ItemsFailed++
	}
}
