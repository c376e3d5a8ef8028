// Package content resolves named conversations from the tabular store. The
// store keeps a pointer row per conversation name whose "Latest" entry names
// the partition the published rows live in; the loader pages that partition
// into a Script so playback can start before the last page lands.
package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/ports"
)

// Loader fetches published conversation scripts.
type Loader struct {
	table  ports.TableStore
	logger *slog.Logger
}

// Option configures the Loader.
type Option func(*Loader)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader backed by the given table.
func NewLoader(table ports.TableStore, opts ...Option) *Loader {
	l := &Loader{
		table:  table,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves the conversation called name and streams its lines into a
// Script. The returned Script is usable immediately: lines appear as pages
// arrive and the script is marked loaded once the final page has been
// appended. onPage, if non-nil, is invoked after each appended page with the
// running line count.
func (l *Loader) Load(ctx context.Context, name string, onPage func(lines int)) (*domain.Script, error) {
	pointer, err := l.table.Get(ctx, name, "Latest")
	if err != nil {
		return nil, fmt.Errorf("resolving conversation %q: %w", name, err)
	}
	if pointer == nil || pointer["ID"] == "" {
		return nil, fmt.Errorf("conversation %q: %w", name, domain.ErrTargetNotFound)
	}
	partition := pointer["ID"]

	script := domain.NewScript()
	res, err := l.table.Query(ctx, "PartitionKey eq '"+partition+"'", nil, func(rows []ports.Record) error {
		lines := make([]domain.Line, 0, len(rows))
		for _, row := range rows {
			line, err := domain.LineFromRecord(row)
			if err != nil {
				l.logger.Warn("skipping malformed line", "conversation", name, "row", row["RowKey"], "err", err)
				continue
			}
			lines = append(lines, line)
		}
		script.Append(lines...)
		if onPage != nil {
			onPage(script.Len())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading conversation %q: %w", name, err)
	}
	script.MarkLoaded()
	l.logger.Debug("conversation loaded", "conversation", name, "partition", partition, "lines", res.Rows)
	return script, nil
}
