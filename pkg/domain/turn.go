package domain

import "time"

// Turn is the materialized, displayed instance of a Line. Turns are created
// and discarded continuously as the engine advances or rewinds; the latches
// below make repeated renderer events idempotent.
type Turn struct {
	Line    Line
	Speaker Speaker
	Group   string
	Shown   time.Time

	// Content is the line's template resolved against the variable scope at
	// display time.
	Content string

	// AutoDismissAfter is non-zero for timed lines (wait/image/fullscreen
	// with a Duration); the host schedules a TimerElapsed event after it.
	AutoDismissAfter time.Duration

	// Enabled gates interactivity after display. It is recomputed from the
	// line's enable condition whenever the variable store changes; renderers
	// consult it when drawing.
	Enabled bool

	submitted bool
	awarded   bool
}

// Submitted reports whether the turn's required interaction has completed.
func (t *Turn) Submitted() bool {
	return t.submitted
}

// Submit marks the turn submitted. It returns false if the turn was already
// submitted, so duplicate events neither re-score nor re-advance.
func (t *Turn) Submit() bool {
	if t.submitted {
		return false
	}
	t.submitted = true
	return true
}

// AwardOnce claims the turn's single point award. The first call returns
// true; every later call returns false.
func (t *Turn) AwardOnce() bool {
	if t.awarded {
		return false
	}
	t.awarded = true
	return true
}

// Blocking reports whether the conversation must sit at this turn until it is
// submitted.
func (t *Turn) Blocking() bool {
	return t.Line.Prompt() && !t.submitted
}
