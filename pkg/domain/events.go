package domain

// TurnEventType enumerates the actions a renderer can report back about a
// displayed turn.
type TurnEventType string

const (
	// EventSubmitted completes a prompt (tap, enter, blur with text, ...).
	EventSubmitted TurnEventType = "submitted"
	// EventSelectionChanged toggles a selection-type turn without completing
	// the cluster.
	EventSelectionChanged TurnEventType = "selection_changed"
	// EventMediaEnded reports that audio/video finished playing.
	EventMediaEnded TurnEventType = "media_ended"
	// EventTimerElapsed dismisses a timed turn (wait/image/fullscreen with a
	// duration).
	EventTimerElapsed TurnEventType = "timer_elapsed"
)

// TurnEvent is a user action or timer completion on a displayed turn.
type TurnEvent struct {
	Type TurnEventType
	// LineID names the turn the event applies to.
	LineID string
	// Value is the user-supplied response, if any (entered text, selected
	// choice, slider position, picked date).
	Value string
	// Selected distinguishes select from deselect for selection events.
	Selected bool
}

// Hooks are optional observation callbacks fired by the engine. Nil fields
// are skipped. Callbacks run on the engine's goroutine and must not call back
// into it.
type Hooks struct {
	// OnTyping fires when a typing indicator is shown for a speaker.
	OnTyping func(speaker Speaker)
	// OnTurn fires when a turn is materialized.
	OnTurn func(turn *Turn)
	// OnSubmit fires when a submit-type turn completes (a checkpoint
	// boundary).
	OnSubmit func(turn *Turn)
	// OnScored fires when points are awarded.
	OnScored func(points int, lineID string)
	// OnEnd fires exactly once when the script runs out, until the engine is
	// rewound.
	OnEnd func()
}
