package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTable is an in-memory Table for dry runs and tests.
type MemoryTable struct {
	rows     [][]string
	failures []error
	Appends  int
	Updates  int
	mu       sync.Mutex
}

// NewMemoryTable returns a table holding a copy of rows.
func NewMemoryTable(rows ...[]string) *MemoryTable {
	return &MemoryTable{rows: cloneRows(rows)}
}

// FailNext makes the next calls fail with the given errors, in order.
func (m *MemoryTable) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

func (m *MemoryTable) injected() error {
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

// ReadAll implements Table.
func (m *MemoryTable) ReadAll(_ context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return nil, err
	}
	return cloneRows(m.rows), nil
}

// Append implements Table.
func (m *MemoryTable) Append(_ context.Context, row []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return 0, err
	}
	m.rows = append(m.rows, append([]string(nil), row...))
	m.Appends++
	return len(m.rows) - 1, nil
}

// Update implements Table.
func (m *MemoryTable) Update(_ context.Context, index int, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return err
	}
	if index < 0 || index >= len(m.rows) {
		return fmt.Errorf("row %d out of range (%d rows)", index, len(m.rows))
	}
	m.rows[index] = append([]string(nil), row...)
	m.Updates++
	return nil
}

// Rows returns a copy of the table contents.
func (m *MemoryTable) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRows(m.rows)
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
