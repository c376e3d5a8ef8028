// Package scoring accumulates point awards into the variable store: the
// global Points total plus a per-module total, so the hub can show progress
// per module. Totals live in variables, not in the keeper, which makes them
// survive restarts through the store's replication.
package scoring

import (
	"log/slog"
	"strconv"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/observability"
	"github.com/pocketcoach/converse/pkg/ports"
)

// TotalKey is the variable holding the user's overall point total.
const TotalKey = "Points"

// Keeper is a ScoreSink writing totals into a variable store.
type Keeper struct {
	vars    ports.VariableStore
	module  string
	metrics *observability.Metrics
	logger  *slog.Logger
}

var _ ports.ScoreSink = (*Keeper)(nil)

// Option configures the Keeper.
type Option func(*Keeper)

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(k *Keeper) { k.metrics = metrics }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// New creates a Keeper scoped to module. An empty module keeps only the
// global total.
func New(vars ports.VariableStore, module string, opts ...Option) *Keeper {
	k := &Keeper{
		vars:   vars,
		module: module,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Award adds points to the global and module totals. Negative awards subtract
// but never push a total below zero.
func (k *Keeper) Award(points int, lineID string) {
	if points == 0 {
		return
	}
	k.bump(TotalKey, points)
	if k.module != "" {
		k.bump(k.module+"_Points", points)
	}
	if k.metrics != nil && points > 0 {
		k.metrics.PointsAwarded.Add(float64(points))
	}
	k.logger.Debug("points awarded", "points", points, "line", lineID, "module", k.module)
}

// Total returns the global point total.
func (k *Keeper) Total() int {
	return k.read(TotalKey)
}

// ModuleTotal returns the module-scoped point total.
func (k *Keeper) ModuleTotal() int {
	if k.module == "" {
		return 0
	}
	return k.read(k.module + "_Points")
}

func (k *Keeper) bump(key string, delta int) {
	total := k.read(key) + delta
	if total < 0 {
		total = 0
	}
	k.vars.Set(key, strconv.Itoa(total))
}

func (k *Keeper) read(key string) int {
	raw, ok := k.vars.Get(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
