package model

import "time"

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// OrderFailure records one order that stopped at a stage.
type OrderFailure struct {
	OrderID string
	Stage   Stage
	Error   string
}

// RunSummary aggregates what a run did. It is returned even when the run aborts.
type RunSummary struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	FailedByStage map[Stage]int
	RunID         string
	Failures      []OrderFailure
	Seen          int
	Matched       int
	Skipped       int
	Captured      int
	Published     int
	Uploaded      int
	Reconciled    int
	Inserted      int
	Updated       int
	Unchanged     int
}

// NewRunSummary creates an empty summary for the given run.
func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:         runID,
		StartedAt:     startedAt,
		FailedByStage: make(map[Stage]int),
	}
}

// Failed returns the total number of failed orders.
func (s *RunSummary) Failed() int {
	total := 0
	for _, n := range s.FailedByStage {
		total += n
	}
	return total
}

// RecordFailure counts a failed order against its stage.
func (s *RunSummary) RecordFailure(orderID string, stage Stage, err error) {
	s.FailedByStage[stage]++
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.Failures = append(s.Failures, OrderFailure{OrderID: orderID, Stage: stage, Error: msg})
}

// RecordOutcome counts a reconciliation outcome.
func (s *RunSummary) RecordOutcome(outcome RowOutcome) {
	s.Reconciled++
	switch outcome {
	case RowInserted:
		s.Inserted++
	case RowUpdated:
		s.Updated++
	case RowUnchanged:
		s.Unchanged++
	}
}

// OrderEvent is the journal entry for one order's final state in a run.
type OrderEvent struct {
	RecordedAt time.Time
	RunID      string
	OrderID    string
	Stage      Stage
	Outcome    string // a RowOutcome, "skipped" or "failed"
	RemoteURL  string
	Error      string
}

// RunRecord is a persisted run as listed by the journal.
type RunRecord struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	ID         string
	Status     RunStatus
	Error      string
	Matched    int
	Reconciled int
	Failed     int
}
