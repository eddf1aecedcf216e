package crawler

import (
	"errors"
	"net/http"
	"time"
)

// RunStatus represents the lifecycle state of a spider run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Trigger records what started a run.
type Trigger string

// Known triggers.
const (
	TriggerCLI      Trigger = "cli"
	TriggerSchedule Trigger = "schedule"
	TriggerAdmin    Trigger = "admin"
)

// RunRequest is a queued request to execute one spider.
type RunRequest struct {
	RunID     string  `json:"run_id"`
	Spider    string  `json:"spider"`
	Trigger   Trigger `json:"trigger"`
	Attempt   int     `json:"attempt"`
	Submitted int64   `json:"submitted"`
}

// RunCounters tracks item outcomes for a run.
type RunCounters struct {
	ItemsScraped   int `json:"items_scraped"`
	ItemsSaved     int `json:"items_saved"`
	ItemsDuplicate int `json:"items_duplicate"`
	ItemsDropped   int `json:"items_dropped"`
	ItemsFailed    int `json:"items_failed"`
}

// Run is the persisted record of one spider execution.
type Run struct {
	ID         string      `json:"id"`
	Spider     string      `json:"spider"`
	Status     RunStatus   `json:"status"`
	Trigger    Trigger     `json:"trigger"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	ErrorText  string      `json:"error_text,omitempty"`
	Counters   RunCounters `json:"counters"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL                   string
	Spider                string
	Headers               http.Header
	RespectRobots         bool
	RespectRobotsProvided bool
	// MinDelay asks the rate limiter to space requests to the same host by at least this much.
	MinDelay time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	BlobURI      string
}

// RenderRequest asks a Renderer to load a page in a browser.
type RenderRequest struct {
	URL    string
	Spider string
	// WaitSelector is awaited for at most WaitTimeout; a timeout is not an error.
	WaitSelector string
	WaitTimeout  time.Duration
	// NextSelector is clicked until it disappears or becomes disabled.
	NextSelector string
	MaxPages     int
	Settle       time.Duration
}

// RenderResult holds the outer HTML of every page visited.
type RenderResult struct {
	URL   string
	Pages []string
}

// ErrHeadlessDisabled is returned by renderers when headless rendering is off.
var ErrHeadlessDisabled = errors.New("headless rendering disabled")
