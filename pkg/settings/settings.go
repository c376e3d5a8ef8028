// Package settings loads the deployment's tunable values from the Settings
// partition of the tabular store: rows of Setting/Value pairs. Consumers read
// through Get and may subscribe to reloads.
package settings

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/ports"
)

// Partition is the partition key the settings rows live under.
const Partition = "Settings"

// Settings is a read-mostly view of Setting/Value rows.
type Settings struct {
	table  ports.TableStore
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	subsMu sync.Mutex
	subs   []func()
}

// Option configures Settings.
type Option func(*Settings)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Settings) { s.logger = logger }
}

// New creates an empty Settings view over table. Call Load to populate it.
func New(table ports.TableStore, opts ...Option) *Settings {
	s := &Settings{
		table:  table,
		values: make(map[string]string),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the view with the current Settings partition and notifies
// subscribers.
func (s *Settings) Load(ctx context.Context) error {
	fresh := make(map[string]string)
	_, err := s.table.Query(ctx, "PartitionKey eq '"+Partition+"'", nil, func(rows []ports.Record) error {
		for _, row := range rows {
			key := row["Setting"]
			if key == "" {
				key = row["RowKey"]
			}
			if key == "" {
				continue
			}
			fresh[key] = row["Value"]
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.values = fresh
	s.mu.Unlock()
	s.logger.Debug("settings loaded", "count", len(fresh))
	s.notify()
	return nil
}

// Get returns the value for key and whether it is present.
func (s *Settings) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Subscribe registers a callback invoked after every reload.
func (s *Settings) Subscribe(fn func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Settings) notify() {
	s.subsMu.Lock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
