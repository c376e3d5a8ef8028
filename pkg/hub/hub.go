// Package hub models the module tree the conversations hang off: skills and
// lessons loaded from the Modules partition, each gated by conditions over
// the user's variables. A module is hidden until its show condition holds,
// locked until its available condition holds, and satisfied once its
// satisfied condition holds; satisfaction is stamped into the variable store
// and awards the module's points exactly once.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/ports"
)

// Partition is the partition key module rows live under.
const Partition = "Modules"

// Status is a module's gating state for the current user.
type Status string

const (
	StatusHidden    Status = "hidden"
	StatusLocked    Status = "locked"
	StatusAvailable Status = "available"
	StatusSatisfied Status = "satisfied"
)

// Module is one node of the tree: a skill, a lesson, or a folder of either.
type Module struct {
	ID                 string `mapstructure:"ID"`
	Parent             string `mapstructure:"Parent"`
	Type               string `mapstructure:"Type"`
	Content            string `mapstructure:"Content"`
	Icon               string `mapstructure:"Icon"`
	Points             string `mapstructure:"Points"`
	ShowCondition      string `mapstructure:"ShowCondition"`
	AvailableCondition string `mapstructure:"AvailableCondition"`
	SatisfiedCondition string `mapstructure:"SatisfiedCondition"`
}

// SatisfiedKey returns the variable stamping this module as satisfied.
func (m Module) SatisfiedKey() string {
	return m.ID + "_Satisfied"
}

// Hub is the loaded module tree plus the gating logic over it.
type Hub struct {
	table  ports.TableStore
	eval   ports.Evaluator
	vars   ports.VariableStore
	scores ports.ScoreSink
	logger *slog.Logger

	mu      sync.RWMutex
	modules []Module
}

// Option configures the Hub.
type Option func(*Hub)

// WithScores sets the sink awarded when a module becomes satisfied.
func WithScores(scores ports.ScoreSink) Option {
	return func(h *Hub) { h.scores = scores }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// New creates a Hub. Call Load before consulting it.
func New(table ports.TableStore, eval ports.Evaluator, vars ports.VariableStore, opts ...Option) *Hub {
	h := &Hub{
		table:  table,
		eval:   eval,
		vars:   vars,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load replaces the tree with the current Modules partition.
func (h *Hub) Load(ctx context.Context) error {
	var fresh []Module
	_, err := h.table.Query(ctx, "PartitionKey eq '"+Partition+"'", nil, func(rows []ports.Record) error {
		for _, row := range rows {
			var m Module
			if err := mapstructure.Decode(row, &m); err != nil {
				h.logger.Warn("skipping malformed module row", "row", row["RowKey"], "err", err)
				continue
			}
			if m.ID == "" {
				m.ID = row["RowKey"]
			}
			fresh = append(fresh, m)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading module tree: %w", err)
	}
	h.mu.Lock()
	h.modules = fresh
	h.mu.Unlock()
	return nil
}

// Modules returns the loaded tree in row order.
func (h *Hub) Modules() []Module {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Module, len(h.modules))
	copy(out, h.modules)
	return out
}

// Children returns the modules directly under parent; "" selects the roots.
func (h *Hub) Children(parent string) []Module {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Module
	for _, m := range h.modules {
		if m.Parent == parent {
			out = append(out, m)
		}
	}
	return out
}

// Module looks a module up by ID.
func (h *Hub) Module(id string) (Module, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// Status gates a module against the current variable scope. A stamped module
// stays satisfied even if its condition later turns false, so completed work
// never un-completes when the user changes an answer.
func (h *Hub) Status(m Module) Status {
	scope := h.vars.Scope()
	if !h.eval.Truthy(m.ShowCondition, scope) {
		return StatusHidden
	}
	if _, stamped := h.vars.Get(m.SatisfiedKey()); stamped {
		return StatusSatisfied
	}
	if m.SatisfiedCondition != "" && h.eval.Truthy(m.SatisfiedCondition, scope) {
		return StatusSatisfied
	}
	if !h.eval.Truthy(m.AvailableCondition, scope) {
		return StatusLocked
	}
	return StatusAvailable
}

// Refresh re-gates every module, stamping and scoring newly satisfied ones.
// Wire it to the engine's end hook. It returns the IDs stamped this pass.
func (h *Hub) Refresh() []string {
	var stamped []string
	for _, m := range h.Modules() {
		if h.Status(m) != StatusSatisfied {
			continue
		}
		if _, done := h.vars.Get(m.SatisfiedKey()); done {
			continue
		}
		h.vars.Set(m.SatisfiedKey(), "true")
		if pts := modulePoints(m); pts > 0 && h.scores != nil {
			h.scores.Award(pts, m.ID)
		}
		stamped = append(stamped, m.ID)
		h.logger.Info("module satisfied", "module", m.ID)
	}
	return stamped
}

func modulePoints(m Module) int {
	n, err := strconv.Atoi(m.Points)
	if err != nil {
		return 0
	}
	return n
}
