package export

import (
	"context"
	"slices"
	"sync"
)

// MemoryTarget is an in-process Target, used by tests and dry runs.
type MemoryTarget struct {
	mu sync.Mutex

	Header      []string
	Rows        [][]string
	AppendCalls int

	// AppendErr, when set, fails every AppendRows call.
	AppendErr error
}

func (m *MemoryTarget) EnsureHeaders(_ context.Context, headers []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Header) == 0 {
		m.Header = append([]string(nil), headers...)
	}
	return append([]string(nil), m.Header...), nil
}

func (m *MemoryTarget) ReadKeyColumn(_ context.Context, column string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make(map[string]bool)
	idx := slices.Index(m.Header, column)
	if idx < 0 {
		return keys, nil
	}
	for _, row := range m.Rows {
		if idx < len(row) && row[idx] != "" {
			keys[row[idx]] = true
		}
	}
	return keys, nil
}

func (m *MemoryTarget) AppendRows(_ context.Context, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls++
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Rows = append(m.Rows, rows...)
	return nil
}

// Column returns the values of column in row order.
func (m *MemoryTarget) Column(column string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.Index(m.Header, column)
	if idx < 0 {
		return nil
	}
	values := make([]string, 0, len(m.Rows))
	for _, row := range m.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, "")
		}
	}
	return values
}
