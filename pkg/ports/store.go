package ports

import (
	"context"

	"github.com/pocketcoach/converse/pkg/domain"
)

// Record is a flat string-keyed row from the tabular store.
type Record map[string]string

// QueryResult carries the outcome of a completed query.
type QueryResult struct {
	// Rows is the total number of rows delivered across all pages.
	Rows int
	// Truncated is true when the store stopped before exhausting the result
	// set (continuation gave out, or the caller canceled).
	Truncated bool
}

// PageFunc receives each page of rows as it arrives. Returning an error stops
// the query; the error is surfaced from Query with Truncated set.
type PageFunc func(rows []Record) error

// TableStore is the query/write surface of the remote tabular storage
// service. Pagination via continuation tokens is the implementation's
// concern; callers only see pages arriving through the PageFunc.
type TableStore interface {
	// Query streams all rows matching the filter expression (empty for all),
	// projected to selectColumns (nil for all), page by page.
	Query(ctx context.Context, filter string, selectColumns []string, page PageFunc) (QueryResult, error)

	// Get point-looks-up a single row. A missing row returns (nil, nil).
	Get(ctx context.Context, partitionKey, rowKey string) (Record, error)

	// Insert appends a row. An empty RowKey in the record is assigned a
	// generated reverse-chronological key.
	Insert(ctx context.Context, rec Record) error

	// Merge upserts a row, merging columns into any existing entity.
	Merge(ctx context.Context, rec Record) error
}

// SnapshotStorer persists session snapshots. Implementations must hand out
// isolated copies; callers may mutate what they get back.
type SnapshotStorer interface {
	Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error
	// Load returns domain.ErrSessionNotFound when the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}
