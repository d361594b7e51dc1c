// Package pipeline drives orders from the history through classification,
// capture, publishing and reconciliation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/model"
	"github.com/Veraticus/orderproof/internal/service"
	"github.com/google/uuid"
)

// Outcomes recorded for orders that never reach the ledger.
const (
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Observer is told about every order once its final state is known.
type Observer interface {
	OrderFinished(event model.OrderEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event model.OrderEvent)

// OrderFinished implements Observer.
func (f ObserverFunc) OrderFinished(event model.OrderEvent) {
	f(event)
}

// Deps are the components a run is assembled from. Journal and Observer are optional.
type Deps struct {
	Source     service.OrderSource
	Classifier service.Classifier
	Capturer   service.Capturer
	Publisher  service.Publisher
	Reconciler service.Reconciler
	Journal    service.Journal
	Observer   Observer
}

// Pipeline processes one order at a time, end to end.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a pipeline from its components.
func New(deps Deps, logger *slog.Logger) (*Pipeline, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("pipeline: order source is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("pipeline: classifier is required")
	case deps.Capturer == nil:
		return nil, fmt.Errorf("pipeline: capturer is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("pipeline: publisher is required")
	case deps.Reconciler == nil:
		return nil, fmt.Errorf("pipeline: reconciler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:   deps,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Run walks the whole order history once. Failures of single orders are
// recorded in the summary and the run continues; a reconciliation failure, a
// broken browser session or cancellation ends the run with an error. The
// summary is returned in every case.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	summary := model.NewRunSummary(p.newID(), p.now())
	logger := p.logger.With("run_id", summary.RunID)
	logger.Info("Starting run")

	// Journal writes ignore cancellation so that an interrupted run is still recorded.
	if p.deps.Journal != nil {
		if err := p.deps.Journal.StartRun(context.WithoutCancel(ctx), summary.RunID, summary.StartedAt); err != nil {
			logger.Warn("Failed to record run start", "error", err)
		}
	}

	runErr := p.loop(ctx, summary, logger)

	summary.FinishedAt = p.now()
	status := model.RunCompleted
	if runErr != nil {
		status = model.RunFailed
	}

	if p.deps.Journal != nil {
		if err := p.deps.Journal.FinishRun(context.WithoutCancel(ctx), summary, status, runErr); err != nil {
			logger.Warn("Failed to record run finish", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("Run aborted", "error", runErr, "seen", summary.Seen, "reconciled", summary.Reconciled)
		return summary, runErr
	}

	logger.Info("Run complete",
		"seen", summary.Seen,
		"matched", summary.Matched,
		"reconciled", summary.Reconciled,
		"failed", summary.Failed(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
	return summary, nil
}

func (p *Pipeline) loop(ctx context.Context, summary *model.RunSummary, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := p.deps.Source.Next(ctx)
		if errors.Is(err, common.ErrNoMoreOrders) {
			return nil
		}
		if err != nil {
			if errors.Is(err, common.ErrExtraction) && ctx.Err() == nil {
				summary.Seen++
				p.fail(ctx, summary, orderIDOf(err), model.StageExtract, err, logger)
				continue
			}
			return err
		}

		summary.Seen++
		if err := p.process(ctx, summary, raw, logger); err != nil {
			return err
		}
	}
}

// process takes one order through the remaining stages. It returns an error
// only when the run must stop.
func (p *Pipeline) process(ctx context.Context, summary *model.RunSummary, raw model.RawOrder, logger *slog.Logger) error {
	logger = logger.With("order_id", raw.OrderID)

	if !p.deps.Classifier.Match(raw) {
		summary.Skipped++
		logger.Debug("Order skipped", "location", raw.LocationText)
		p.record(ctx, model.OrderEvent{
			RunID:   summary.RunID,
			OrderID: raw.OrderID,
			Stage:   model.StageClassify,
			Outcome: OutcomeSkipped,
		}, logger)
		return nil
	}
	summary.Matched++
	order := model.MatchedOrder{RawOrder: raw}

	artifact, err := p.deps.Capturer.Capture(ctx, order)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.fail(ctx, summary, raw.OrderID, model.StageCapture, err, logger)
		return nil
	}
	summary.Captured++

	ref, err := p.deps.Publisher.Publish(ctx, artifact)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.fail(ctx, summary, raw.OrderID, model.StagePublish, err, logger)
		return nil
	}
	summary.Published++
	if ref.Uploaded {
		summary.Uploaded++
	}

	outcome, err := p.deps.Reconciler.Reconcile(ctx, model.NewLedgerRow(order, ref))
	if err != nil {
		p.fail(ctx, summary, raw.OrderID, model.StageReconcile, err, logger)
		return err
	}
	summary.RecordOutcome(outcome)

	logger.Info("Order reconciled", "outcome", outcome, "uploaded", ref.Uploaded)
	p.record(ctx, model.OrderEvent{
		RunID:     summary.RunID,
		OrderID:   raw.OrderID,
		Stage:     model.StageReconcile,
		Outcome:   string(outcome),
		RemoteURL: ref.RemoteURL,
	}, logger)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, summary *model.RunSummary, orderID string, stage model.Stage, err error, logger *slog.Logger) {
	summary.RecordFailure(orderID, stage, err)
	logger.Warn("Order failed", "order_id", orderID, "stage", stage, "error", err)
	p.record(ctx, model.OrderEvent{
		RunID:   summary.RunID,
		OrderID: orderID,
		Stage:   stage,
		Outcome: OutcomeFailed,
		Error:   err.Error(),
	}, logger)
}

func (p *Pipeline) record(ctx context.Context, event model.OrderEvent, logger *slog.Logger) {
	event.RecordedAt = p.now()
	if p.deps.Observer != nil {
		p.deps.Observer.OrderFinished(event)
	}
	if p.deps.Journal == nil {
		return
	}
	if err := p.deps.Journal.RecordOrder(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("Failed to record order in journal", "order_id", event.OrderID, "error", err)
	}
}

// orderIDOf returns the order label carried by a stage error.
func orderIDOf(err error) string {
	var stageErr *common.StageError
	if errors.As(err, &stageErr) && stageErr.OrderID != "" {
		return stageErr.OrderID
	}
	return "unknown"
}
