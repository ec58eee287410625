package domain

import "time"

// RunStats holds diagnostic counters of one pipeline run.
type RunStats struct {
	SourcesQueried    int `json:"sources_queried"`
	SourcesResponded  int `json:"sources_responded"`
	ItemsConsidered   int `json:"items_considered"`
	RejectedMalformed int `json:"rejected_malformed"`
	RejectedThreshold int `json:"rejected_threshold"`
	RejectedDuplicate int `json:"rejected_duplicate"`
	Selected          int `json:"selected"`
}

// PublishSet is the final selection of a run, handed to the publisher.
type PublishSet struct {
	RunID    string
	Items    []ScoredItem
	Degraded bool
	Stats    RunStats
}

// RunOutcome summarises how a run ended.
type RunOutcome string

const (
	OutcomePublished RunOutcome = "published"
	OutcomeDegraded  RunOutcome = "degraded"
	OutcomeSkipped   RunOutcome = "skipped"
	OutcomeFailed    RunOutcome = "failed"
)

// SourceStatus is the per-source health line of a report.
type SourceStatus struct {
	Source            string    `json:"source"`
	Healthy           bool      `json:"healthy"`
	MarkedUnhealthyAt time.Time `json:"marked_unhealthy_at,omitempty"`
}

// HealthReport is produced for every run regardless of outcome.
type HealthReport struct {
	RunID     string         `json:"run_id"`
	Trigger   string         `json:"trigger"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Outcome   RunOutcome     `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Stats     RunStats       `json:"stats"`
	Sources   []SourceStatus `json:"sources"`
}

// Fingerprint is the keyword-set form of a published item.
type Fingerprint struct {
	Keywords      []string  `json:"keywords"`
	PublishedDate time.Time `json:"published_date"`
	Text          string    `json:"text,omitempty"`
}
