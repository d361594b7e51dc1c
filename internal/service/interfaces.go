// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/orderproof/internal/model"
)

// OrderSource yields raw orders one at a time. Next returns an error wrapping
// common.ErrNoMoreOrders once the history is exhausted.
type OrderSource interface {
	Next(ctx context.Context) (model.RawOrder, error)
}

// Classifier decides whether an order belongs in the ledger.
type Classifier interface {
	Match(raw model.RawOrder) bool
}

// Capturer produces the screenshot artifact for a matched order.
type Capturer interface {
	Capture(ctx context.Context, order model.MatchedOrder) (model.Artifact, error)
}

// Publisher uploads an artifact at most once per order id.
type Publisher interface {
	Publish(ctx context.Context, artifact model.Artifact) (model.PublishedReference, error)
}

// Reconciler merges rows into the ledger by order id.
type Reconciler interface {
	Reconcile(ctx context.Context, row model.LedgerRow) (model.RowOutcome, error)
}

// Journal persists run history. Failures are reported but never abort a run.
type Journal interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	RecordOrder(ctx context.Context, event model.OrderEvent) error
	FinishRun(ctx context.Context, summary *model.RunSummary, status model.RunStatus, runErr error) error
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	ListOrderEvents(ctx context.Context, runID string) ([]model.OrderEvent, error)
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
