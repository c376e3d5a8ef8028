package ports

import (
	"time"

	"github.com/pocketcoach/converse/pkg/domain"
)

// Evaluator evaluates expressions against a variable scope. Implementations
// must tolerate unresolved identifiers by treating them as undefined, and
// must never panic on bad input: a failed evaluation yields nil.
type Evaluator interface {
	// Evaluate returns a primitive value (string, float64, int64 or bool) or
	// nil when the expression fails or yields a non-primitive.
	Evaluate(expr string, scope map[string]any) any

	// EvaluateText resolves a template: ${expr} spans become expression
	// results, [name] spans become variable values from the scope.
	EvaluateText(text string, scope map[string]any) string

	// Truthy evaluates a condition. An empty condition is true; a failed or
	// unresolved one is false.
	Truthy(expr string, scope map[string]any) bool
}

// VariableStore holds the user's named variables, each with a last-write
// timestamp used for conflict resolution when merging externally synchronized
// values.
type VariableStore interface {
	// Get returns the value for name, or "" and false if unset.
	Get(name string) (string, bool)
	// Set stores a value and notifies subscribers.
	Set(name, value string)
	// Clear removes a stored value, writing a tombstone through to any
	// backing store, and notifies subscribers.
	Clear(name string)
	// Subscribe registers a callback invoked with the variable name on every
	// change. Callbacks must not re-enter the store synchronously.
	Subscribe(fn func(name string))
	// Scope returns a snapshot of all variables for expression evaluation.
	Scope() map[string]any
}

// ScoreSink is notified of point awards.
type ScoreSink interface {
	Award(points int, lineID string)
}

// TurnRenderer is the presentation capability the engine drives. The engine
// only learns that a turn exists and what happened to it; everything visual
// is the implementation's concern. User actions come back as
// domain.TurnEvents through the host, not through this interface.
type TurnRenderer interface {
	// ShowTyping displays a typing indicator for the speaker.
	ShowTyping(speaker domain.Speaker)
	// ReplaceTyping materializes a turn in place of the current typing
	// indicator (same speaker).
	ReplaceTyping(turn *domain.Turn)
	// RemoveTyping discards the typing indicator, if any.
	RemoveTyping()
	// RenderTurn appends a fresh turn.
	RenderTurn(turn *domain.Turn)
	// Clear removes everything displayed (backward navigation, submit
	// boundaries).
	Clear()
}

// Clock abstracts wall time so timing floors are testable.
type Clock func() time.Time

// Scheduler asks the host to re-invoke the engine's Advance after d. The
// host must serialize the callback with every other engine entry point;
// scheduled continuations may fire late or after intervening state changes
// and the engine re-derives everything from current state.
type Scheduler func(d time.Duration)
