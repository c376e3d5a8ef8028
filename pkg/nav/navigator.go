// Package nav maintains the checkpoint trail of a conversation: the coarse
// backward-navigation boundaries set at submit-type lines. The trail is the
// single source of truth; browser or URL history is a derived, write-only
// projection fed through a Projector, never consulted for decisions. This
// replaces the original dual bookkeeping of history entries and revert
// closures, which could desynchronize.
package nav

import (
	"log/slog"
	"sync"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/domain"
)

// Controller is the slice of the engine the navigator drives.
type Controller interface {
	Goto(target string) error
	Position() int
}

// Projector receives the full checkpoint trail after every change. Implement
// it to mirror the trail into URL history, a progress indicator, or both.
type Projector interface {
	ProjectTrail(trail []string)
}

// ProjectorFunc adapts a function to Projector.
type ProjectorFunc func(trail []string)

func (f ProjectorFunc) ProjectTrail(trail []string) { f(trail) }

// Checkpoints lists the checkpoint line IDs of a script: the first line plus
// the line following each submit-type line.
func Checkpoints(script *domain.Script) []string {
	lines := script.Lines()
	if len(lines) == 0 {
		return nil
	}
	out := []string{lines[0].ID}
	for i, l := range lines {
		if l.Kind() == domain.TypeSubmit && i+1 < len(lines) {
			out = append(out, lines[i+1].ID)
		}
	}
	return out
}

// Navigator tracks which checkpoints the conversation has passed and maps
// back/deep-link requests onto engine repositioning.
type Navigator struct {
	mu        sync.Mutex
	script    *domain.Script
	engine    Controller
	trail     []string
	projector Projector
	logger    *slog.Logger
}

// Option configures the Navigator.
type Option func(*Navigator)

// WithProjector sets the derived-history projection.
func WithProjector(p Projector) Option {
	return func(n *Navigator) { n.projector = p }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Navigator) { n.logger = logger }
}

// New creates a Navigator over script, steering engine.
func New(script *domain.Script, engine Controller, opts ...Option) *Navigator {
	n := &Navigator{
		script: script,
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Begin seeds the trail with the script's first checkpoint. Wire it to the
// engine's start. A trail already populated, by Restore or a deep link, is
// left alone.
func (n *Navigator) Begin() {
	n.mu.Lock()
	if len(n.trail) > 0 {
		n.mu.Unlock()
		return
	}
	cps := Checkpoints(n.script)
	if len(cps) == 0 {
		n.mu.Unlock()
		return
	}
	n.trail = []string{cps[0]}
	n.mu.Unlock()
	n.project()
}

// Reset clears the trail, for a restart from the top.
func (n *Navigator) Reset() {
	n.mu.Lock()
	n.trail = nil
	n.mu.Unlock()
	n.project()
}

// Passed records that the submit line with the given ID completed, pushing
// the following checkpoint onto the trail. Wire it to the engine's submit
// hook.
func (n *Navigator) Passed(submitLineID string) {
	next, ok := n.checkpointAfter(submitLineID)
	if !ok {
		return
	}
	n.mu.Lock()
	n.trail = append(n.trail, next)
	n.mu.Unlock()
	n.project()
}

// Back pops the current checkpoint and repositions the engine to the one
// before it. With nothing left to pop it reports false and leaves the engine
// alone.
func (n *Navigator) Back() (bool, error) {
	n.mu.Lock()
	if len(n.trail) < 2 {
		n.mu.Unlock()
		return false, nil
	}
	n.trail = n.trail[:len(n.trail)-1]
	target := n.trail[len(n.trail)-1]
	n.mu.Unlock()

	n.project()
	if err := n.engine.Goto(target); err != nil {
		return false, err
	}
	return true, nil
}

// DeepLink reconciles the trail with a requested line ID that may lie before
// or after everything the trail knows about, then replays from the governing
// checkpoint. The trail is rebuilt to exactly the checkpoint ancestry of the
// requested line, so a later Back lands where a user would expect.
func (n *Navigator) DeepLink(lineID string) error {
	pos, err := n.script.Position(lineID)
	if err != nil {
		return err
	}

	governing, ancestry := n.ancestryFor(pos)
	n.mu.Lock()
	n.trail = ancestry
	n.mu.Unlock()
	n.project()

	n.logger.Debug("deep link", "line", lineID, "checkpoint", governing)
	return n.engine.Goto(governing)
}

// Trail returns a copy of the checkpoint trail, oldest first.
func (n *Navigator) Trail() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.trail))
	copy(out, n.trail)
	return out
}

// Snapshot captures the trail for persistence.
func (n *Navigator) Snapshot(module string) *domain.Snapshot {
	trail := n.Trail()
	snap := &domain.Snapshot{Module: module, Trail: trail}
	if len(trail) > 0 {
		snap.Checkpoint = trail[len(trail)-1]
	}
	return snap
}

// Restore replays a persisted snapshot: the trail is adopted and the engine
// repositioned at its last checkpoint.
func (n *Navigator) Restore(snap *domain.Snapshot) error {
	if snap == nil || len(snap.Trail) == 0 {
		return nil
	}
	n.mu.Lock()
	n.trail = append([]string(nil), snap.Trail...)
	n.mu.Unlock()
	n.project()
	return n.engine.Goto(snap.Checkpoint)
}

// checkpointAfter resolves the checkpoint that follows a submit line.
func (n *Navigator) checkpointAfter(submitLineID string) (string, bool) {
	pos, err := n.script.Position(submitLineID)
	if err != nil {
		n.logger.Warn("submit line not in script", "line", submitLineID)
		return "", false
	}
	next, ok := n.script.Line(pos + 1)
	if !ok {
		return "", false
	}
	return next.ID, true
}

// ancestryFor lists every checkpoint at or before pos, in order. The last
// entry is the governing checkpoint of pos.
func (n *Navigator) ancestryFor(pos int) (string, []string) {
	var ancestry []string
	for _, id := range Checkpoints(n.script) {
		cpPos, err := n.script.Position(id)
		if err != nil || cpPos > pos {
			break
		}
		ancestry = append(ancestry, id)
	}
	if len(ancestry) == 0 {
		// pos precedes the first checkpoint only when the script is empty or
		// malformed; fall back to the requested position itself.
		line, _ := n.script.Line(pos)
		return line.ID, []string{line.ID}
	}
	return ancestry[len(ancestry)-1], ancestry
}

func (n *Navigator) project() {
	if n.projector == nil {
		return
	}
	n.projector.ProjectTrail(n.Trail())
}
