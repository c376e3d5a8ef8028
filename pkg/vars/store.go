// Package vars implements the user's variable store: named values with
// last-write timestamps, change notifications, and write-through replication
// to the tabular store. Conversations read and write responses here; the
// engine never owns the storage.
package vars

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/ports"
)

// Store is an in-memory variable cache with optional write-through to a
// TableStore partition. Safe for concurrent use. Conflict resolution against
// externally synchronized rows is last-write-wins on the client timestamp.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	times  map[string]int64 // unix milliseconds of the last known write

	backing ports.TableStore
	user    string // partition key for write-through rows
	clock   ports.Clock
	logger  *slog.Logger

	subsMu sync.RWMutex
	subs   []func(name string)

	writes   sync.WaitGroup
	queueMu  sync.Mutex
	queue    []ports.Record
	flushing bool
}

// Option configures the Store.
type Option func(*Store)

// WithBacking enables write-through of sets and clear tombstones to the
// given table, partitioned by user.
func WithBacking(table ports.TableStore, user string) Option {
	return func(s *Store) {
		s.backing = table
		s.user = user
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(clock ports.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithLogger sets the logger for write-through failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{
		values: make(map[string]string),
		times:  make(map[string]int64),
		clock:  time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for name and whether it is set.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores a value, stamps it, replicates it, and notifies subscribers.
func (s *Store) Set(name, value string) {
	now := s.clock().UnixMilli()
	s.mu.Lock()
	s.values[name] = value
	s.times[name] = now
	s.mu.Unlock()

	s.replicate(name, value, now)
	s.notify(name)
}

// Clear removes a stored value. A tombstone row is written through so that a
// replay on another device does not resurrect the old answer. Clearing an
// unset variable is a no-op.
func (s *Store) Clear(name string) {
	now := s.clock().UnixMilli()
	s.mu.Lock()
	_, existed := s.values[name]
	if existed {
		delete(s.values, name)
		s.times[name] = now
	}
	s.mu.Unlock()

	if !existed {
		return
	}
	s.replicate(name, "", now)
	s.notify(name)
}

// Subscribe registers a callback invoked with the variable name on every
// change. Callbacks run on the mutating goroutine and must not re-enter the
// store synchronously.
func (s *Store) Subscribe(fn func(name string)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Scope returns a snapshot of all variables for expression evaluation.
func (s *Store) Scope() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Load pulls every row of the user's partition from the backing table and
// merges it, keeping whichever side wrote last. Call once at startup; later
// pages from another device can be merged again at any time.
func (s *Store) Load(ctx context.Context) error {
	if s.backing == nil {
		return nil
	}
	_, err := s.backing.Query(ctx, "PartitionKey eq '"+s.user+"'", nil, func(rows []ports.Record) error {
		s.Merge(rows)
		return nil
	})
	return err
}

// Merge applies externally synchronized rows. A row wins only when its
// client timestamp is strictly newer than what we already have, so local
// recent writes survive a stale sync.
func (s *Store) Merge(rows []ports.Record) {
	var changed []string
	s.mu.Lock()
	for _, row := range rows {
		name := row["ID"]
		if name == "" {
			continue
		}
		ts, _ := strconv.ParseInt(row["ClientTimestamp"], 10, 64)
		if s.times[name] >= ts {
			continue
		}
		value := row["Value"]
		if value == "" {
			delete(s.values, name)
		} else {
			s.values[name] = value
		}
		s.times[name] = ts
		changed = append(changed, name)
	}
	s.mu.Unlock()

	for _, name := range changed {
		s.notify(name)
	}
}

// Drain blocks until all outstanding write-through rows have been flushed.
func (s *Store) Drain() {
	s.writes.Wait()
}

// replicate enqueues a write-through row. Rows are flushed by a single
// worker in enqueue order, so a Set followed by a Clear can never land in
// the table reversed.
func (s *Store) replicate(name, value string, ts int64) {
	if s.backing == nil {
		return
	}
	rec := ports.Record{
		"PartitionKey":    s.user,
		"ID":              name,
		"Value":           value,
		"ClientTime":      s.clock().Format(time.RFC3339),
		"ClientTimestamp": strconv.FormatInt(ts, 10),
	}
	s.writes.Add(1)
	s.queueMu.Lock()
	s.queue = append(s.queue, rec)
	if !s.flushing {
		s.flushing = true
		go s.flush()
	}
	s.queueMu.Unlock()
}

func (s *Store) flush() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.flushing = false
			s.queueMu.Unlock()
			return
		}
		rec := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		if err := s.backing.Insert(context.Background(), rec); err != nil {
			s.logger.Warn("variable write-through failed", "name", rec["ID"], "err", err)
		}
		s.writes.Done()
	}
}

func (s *Store) notify(name string) {
	s.subsMu.RLock()
	subs := make([]func(string), len(s.subs))
	copy(subs, s.subs)
	s.subsMu.RUnlock()
	for _, fn := range subs {
		fn(name)
	}
}
