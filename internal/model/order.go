// Package model defines the core domain types for order extraction and reconciliation.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date format used in the ledger.
const DateLayout = "2006-01-02"

// RawOrder is one order as read from the order history. It lives only
// until the classifier has looked at it.
type RawOrder struct {
	OrderDate    time.Time
	OrderID      string
	LocationText string // delivery location exactly as rendered
	DetailHandle string // opaque handle the browser uses to reopen the detail view
	Amount       decimal.Decimal
}

// MatchedOrder is a RawOrder that passed the location filter.
type MatchedOrder struct {
	RawOrder
}

// Artifact is the local screenshot proving an order's details.
type Artifact struct {
	CreatedAt time.Time
	OrderID   string
	LocalPath string
}

// PublishedReference is the public link to an uploaded artifact.
type PublishedReference struct {
	OrderID   string
	RemoteURL string
	Uploaded  bool // false when an existing remote object was reused
}

// LedgerRow is one persisted, user-facing ledger record keyed by OrderID.
type LedgerRow struct {
	Date      time.Time
	OrderID   string
	RemoteURL string
	Amount    decimal.Decimal
}

// NewLedgerRow assembles the ledger row for a fully published order.
func NewLedgerRow(order MatchedOrder, ref PublishedReference) LedgerRow {
	return LedgerRow{
		OrderID:   order.OrderID,
		Date:      order.OrderDate,
		RemoteURL: ref.RemoteURL,
		Amount:    order.Amount,
	}
}

// RowOutcome describes what reconciliation did to the ledger.
type RowOutcome string

// Reconciliation outcomes.
const (
	RowInserted  RowOutcome = "inserted"
	RowUpdated   RowOutcome = "updated"
	RowUnchanged RowOutcome = "unchanged"
)

// Stage identifies a step of the per-order pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageExtract   Stage = "extract"
	StageClassify  Stage = "classify"
	StageCapture   Stage = "capture"
	StagePublish   Stage = "publish"
	StageReconcile Stage = "reconcile"
)

// Stages lists every stage in execution order.
func Stages() []Stage {
	return []Stage{StageExtract, StageClassify, StageCapture, StagePublish, StageReconcile}
}
