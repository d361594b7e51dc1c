// Package ledger merges published orders into a tabular ledger keyed by order id.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/model"
	"github.com/shopspring/decimal"
)

// Table is row-oriented ledger storage. Row indexes are 0-based and include
// the header row. Append reports the index the row was written at, which can
// be past the rows last read when the table was edited in between.
type Table interface {
	ReadAll(ctx context.Context) ([][]string, error)
	Append(ctx context.Context, row []string) (int, error)
	Update(ctx context.Context, index int, row []string) error
}

// Column names of the ledger header.
const (
	ColumnOrderID   = "order_id"
	ColumnDate      = "date"
	ColumnRemoteURL = "remote_url"
	ColumnAmount    = "amount"
)

// Header returns the header written to an empty ledger.
func Header() []string {
	return []string{ColumnOrderID, ColumnDate, ColumnRemoteURL, ColumnAmount}
}

// UpdatePolicy decides what happens when an order is already in the ledger
// with different values.
type UpdatePolicy string

// Update policies.
const (
	// PolicyOverwrite rewrites the existing row with the latest values.
	PolicyOverwrite UpdatePolicy = "overwrite"
	// PolicyPreserve keeps the recorded date and amount and only refreshes
	// the remote URL.
	PolicyPreserve UpdatePolicy = "preserve"
)

// ParseUpdatePolicy parses a policy name. An empty name means PolicyOverwrite.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch UpdatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyPreserve:
		return PolicyPreserve, nil
	default:
		return "", fmt.Errorf("%w: update policy %q (want overwrite or preserve)", common.ErrInvalidConfig, s)
	}
}

// layout maps ledger fields to column positions.
type layout struct {
	orderID, date, remoteURL, amount int
	width                            int
}

func defaultLayout() layout {
	return layout{orderID: 0, date: 1, remoteURL: 2, amount: 3, width: 4}
}

// layoutFromHeader finds the ledger columns in an existing header. Unknown
// headers keep the default positions, with the first column as the key.
func layoutFromHeader(header []string) layout {
	l := defaultLayout()
	positions := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}
	if i, ok := positions[ColumnOrderID]; ok {
		l.orderID = i
	}
	if i, ok := positions[ColumnDate]; ok {
		l.date = i
	}
	if i, ok := positions[ColumnRemoteURL]; ok {
		l.remoteURL = i
	}
	if i, ok := positions[ColumnAmount]; ok {
		l.amount = i
	}
	l.width = max(len(header), l.orderID+1, l.date+1, l.remoteURL+1, l.amount+1)
	return l
}

// Reconciler merges rows into a Table so that each order id appears once.
// It reads the table when opened and keeps its index current as it writes;
// nothing else may write the table while a Reconciler is in use.
type Reconciler struct {
	table  Table
	logger *slog.Logger
	index  map[string]int
	policy UpdatePolicy
	rows   [][]string
	layout layout
}

// Open reads the ledger and writes the header if the ledger is empty.
func Open(ctx context.Context, table Table, policy UpdatePolicy, logger *slog.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyOverwrite
	}

	rows, err := table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %w", common.ErrReconcile, err)
	}

	r := &Reconciler{
		table:  table,
		logger: logger,
		policy: policy,
		index:  make(map[string]int),
	}

	if len(rows) == 0 || blank(rows[0]) {
		header := Header()
		if err := r.writeHeader(ctx, rows, header); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			rows = [][]string{header}
		} else {
			rows[0] = header
		}
	}

	r.rows = rows
	r.layout = layoutFromHeader(rows[0])

	duplicates := 0
	for i := 1; i < len(rows); i++ {
		id := cell(rows[i], r.layout.orderID)
		if id == "" {
			continue
		}
		if _, seen := r.index[id]; seen {
			duplicates++
			continue
		}
		r.index[id] = i
	}
	if duplicates > 0 {
		logger.Warn("Ledger has repeated order ids; the first row of each is kept current", "duplicates", duplicates)
	}

	logger.Debug("Ledger loaded", "orders", len(r.index), "rows", len(rows))
	return r, nil
}

func (r *Reconciler) writeHeader(ctx context.Context, rows [][]string, header []string) error {
	var err error
	if len(rows) == 0 {
		_, err = r.table.Append(ctx, header)
	} else {
		err = r.table.Update(ctx, 0, header)
	}
	if err != nil {
		return fmt.Errorf("%w: write ledger header: %w", common.ErrReconcile, err)
	}
	return nil
}

// Len returns the number of distinct orders in the ledger.
func (r *Reconciler) Len() int {
	return len(r.index)
}

// Reconcile inserts the row, updates the existing row for the same order id,
// or leaves the ledger alone when nothing changed.
func (r *Reconciler) Reconcile(ctx context.Context, row model.LedgerRow) (model.RowOutcome, error) {
	fail := func(err error) (model.RowOutcome, error) {
		return "", common.NewStageError(common.ErrReconcile, model.StageReconcile, row.OrderID, err)
	}

	if strings.TrimSpace(row.OrderID) == "" {
		return fail(fmt.Errorf("empty order id"))
	}

	i, ok := r.index[row.OrderID]
	if !ok {
		cells := r.encode(nil, row)
		at, err := r.table.Append(ctx, cells)
		if err != nil {
			return fail(fmt.Errorf("append row: %w", err))
		}
		if at < 0 {
			return fail(fmt.Errorf("append row: invalid row index %d", at))
		}
		for len(r.rows) <= at {
			r.rows = append(r.rows, nil)
		}
		r.rows[at] = cells
		r.index[row.OrderID] = at
		r.logger.Debug("Ledger row inserted", "order_id", row.OrderID)
		return model.RowInserted, nil
	}

	existing := r.rows[i]
	var cells []string
	switch {
	case r.matches(existing, row):
		return model.RowUnchanged, nil
	case r.policy == PolicyPreserve:
		if cell(existing, r.layout.remoteURL) == row.RemoteURL {
			return model.RowUnchanged, nil
		}
		cells = make([]string, max(r.layout.width, len(existing)))
		copy(cells, existing)
		cells[r.layout.remoteURL] = row.RemoteURL
	default:
		cells = r.encode(existing, row)
	}

	if err := r.table.Update(ctx, i, cells); err != nil {
		return fail(fmt.Errorf("update row %d: %w", i+1, err))
	}
	r.rows[i] = cells
	r.logger.Debug("Ledger row updated", "order_id", row.OrderID)
	return model.RowUpdated, nil
}

// encode renders row over base, keeping any cells outside the ledger columns.
func (r *Reconciler) encode(base []string, row model.LedgerRow) []string {
	cells := make([]string, max(r.layout.width, len(base)))
	copy(cells, base)
	cells[r.layout.orderID] = row.OrderID
	cells[r.layout.date] = FormatDate(row.Date)
	cells[r.layout.remoteURL] = row.RemoteURL
	cells[r.layout.amount] = FormatAmount(row.Amount)
	return cells
}

func (r *Reconciler) matches(cells []string, row model.LedgerRow) bool {
	if cell(cells, r.layout.remoteURL) != row.RemoteURL {
		return false
	}

	date, err := ParseDate(cell(cells, r.layout.date))
	if err != nil || !sameDay(date, row.Date) {
		return false
	}

	amount, err := ParseAmount(cell(cells, r.layout.amount))
	if err != nil || !amount.Equal(row.Amount) {
		return false
	}

	return true
}

// FormatDate renders a ledger date.
func FormatDate(t time.Time) string {
	return t.Format(model.DateLayout)
}

// ParseDate reads a ledger date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(model.DateLayout, strings.TrimSpace(s))
}

// FormatAmount renders a ledger amount with two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseAmount reads a ledger amount, tolerating thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
