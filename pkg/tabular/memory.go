package tabular

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/pocketcoach/converse/pkg/ports"
)

// Memory is an in-process TableStore for tests and local playback. Rows are
// keyed by (PartitionKey, RowKey) and returned in row-key order, which for
// generated keys means newest first. Query supports the one filter shape the
// rest of the system uses, equality on a single column.
type Memory struct {
	mu       sync.RWMutex
	rows     map[string]ports.Record // key: pk + "\x00" + rk
	pageSize int
}

var _ ports.TableStore = (*Memory)(nil)

// NewMemory creates an empty in-memory table. pageSize controls how many rows
// each Query page carries; zero means everything in one page.
func NewMemory(pageSize int) *Memory {
	return &Memory{
		rows:     make(map[string]ports.Record),
		pageSize: pageSize,
	}
}

var eqFilter = regexp.MustCompile(`^(\w+) eq '(.*)'$`)

// Query delivers matching rows through page, honoring the configured page
// size so continuation behavior gets exercised locally too.
func (m *Memory) Query(ctx context.Context, filter string, selectColumns []string, page ports.PageFunc) (ports.QueryResult, error) {
	var column, want string
	if filter != "" {
		parts := eqFilter.FindStringSubmatch(filter)
		if parts != nil {
			column, want = parts[1], parts[2]
		}
	}

	m.mu.RLock()
	keys := make([]string, 0, len(m.rows))
	for k, rec := range m.rows {
		if column != "" && rec[column] != want {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	matched := make([]ports.Record, 0, len(keys))
	for _, k := range keys {
		matched = append(matched, project(m.rows[k], selectColumns))
	}
	m.mu.RUnlock()

	var res ports.QueryResult
	size := m.pageSize
	if size <= 0 {
		size = len(matched)
	}
	for len(matched) > 0 {
		if err := ctx.Err(); err != nil {
			res.Truncated = true
			return res, err
		}
		n := size
		if n > len(matched) {
			n = len(matched)
		}
		res.Rows += n
		if err := page(matched[:n]); err != nil {
			res.Truncated = true
			return res, err
		}
		matched = matched[n:]
	}
	if res.Rows == 0 {
		if err := page(nil); err != nil {
			res.Truncated = true
			return res, err
		}
	}
	return res, nil
}

// Get returns one row, or (nil, nil) when absent.
func (m *Memory) Get(ctx context.Context, partitionKey, rowKey string) (ports.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[partitionKey+"\x00"+rowKey]
	if !ok {
		return nil, nil
	}
	return clone(rec), nil
}

// Insert appends a row, generating a reverse-chronological row key when the
// record has none.
func (m *Memory) Insert(ctx context.Context, rec ports.Record) error {
	rec = withKeys(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rec["PartitionKey"]+"\x00"+rec["RowKey"]] = clone(rec)
	return nil
}

// Merge upserts a row, overlaying columns onto any existing entity.
func (m *Memory) Merge(ctx context.Context, rec ports.Record) error {
	rec = withKeys(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec["PartitionKey"] + "\x00" + rec["RowKey"]
	existing, ok := m.rows[key]
	if !ok {
		m.rows[key] = clone(rec)
		return nil
	}
	for k, v := range rec {
		existing[k] = v
	}
	return nil
}

// Len reports the number of stored rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func project(rec ports.Record, columns []string) ports.Record {
	if len(columns) == 0 {
		return clone(rec)
	}
	out := make(ports.Record, len(columns))
	for _, c := range columns {
		if v, ok := rec[c]; ok {
			out[c] = v
		}
	}
	return out
}

func clone(rec ports.Record) ports.Record {
	out := make(ports.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
