// Package runtime is the conversation state machine. The engine owns the
// current position in a script and the displayed turn history, and advances
// one cooperative step at a time: every suspension is a "return no-update,
// ask the host to call Advance again later" path, never a blocked goroutine.
// Scheduled continuations carry no state; a late or stale callback re-derives
// everything from the engine's current position and becomes a no-op when the
// world moved on.
package runtime

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/timing"
)

// State is the engine's coarse lifecycle phase, exposed for hosts and tests.
type State string

const (
	// StateUnstarted means Start has not been called.
	StateUnstarted State = "unstarted"
	// StateWaiting means the position is past the loaded prefix of a script
	// that is still loading.
	StateWaiting State = "waiting"
	// StateTyping means a typing indicator is showing.
	StateTyping State = "typing"
	// StateDisplaying means a materialized turn is visible.
	StateDisplaying State = "displaying"
	// StateEnded means the position advanced past the last line of a fully
	// loaded script.
	StateEnded State = "ended"
)

// Engine interprets a script as a turn-based conversation. All entry points
// are serialized internally; hook and renderer callbacks run while that lock
// is held and must not call back into the engine synchronously.
type Engine struct {
	script   *domain.Script
	renderer ports.TurnRenderer
	eval     ports.Evaluator
	vars     ports.VariableStore
	scores   ports.ScoreSink
	policy   timing.Policy
	clock    ports.Clock
	schedule ports.Scheduler
	hooks    domain.Hooks
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	position   int // index of the last materialized line, -1 before the first
	transcript []*domain.Turn

	typingShown   bool
	typingSpeaker domain.Speaker
	typingSince   time.Time

	endEmitted bool
}

// Option configures the Engine.
type Option func(*Engine)

// WithEvaluator sets the expression evaluator for conditions, templates and
// point formulas. Without one, conditions are always true and templates pass
// through verbatim.
func WithEvaluator(eval ports.Evaluator) Option {
	return func(e *Engine) { e.eval = eval }
}

// WithVariables sets the variable store responses are written to.
func WithVariables(vars ports.VariableStore) Option {
	return func(e *Engine) { e.vars = vars }
}

// WithScores sets the sink notified of point awards.
func WithScores(scores ports.ScoreSink) Option {
	return func(e *Engine) { e.scores = scores }
}

// WithPolicy sets the presentation timing policy.
func WithPolicy(policy timing.Policy) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithClock overrides the wall clock, for tests.
func WithClock(clock ports.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithScheduler sets the host callback asking for a later Advance. Without
// one the engine runs in pull mode: the host pumps Advance itself.
func WithScheduler(schedule ports.Scheduler) Option {
	return func(e *Engine) { e.schedule = schedule }
}

// WithHooks sets observation callbacks.
func WithHooks(hooks domain.Hooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine over script, rendering through renderer. A nil
// renderer is replaced by a discarding one.
func New(script *domain.Script, renderer ports.TurnRenderer, opts ...Option) *Engine {
	e := &Engine{
		script:   script,
		renderer: renderer,
		policy:   timing.Default(),
		clock:    time.Now,
		schedule: func(time.Duration) {},
		logger:   logging.NewNop(),
		state:    StateUnstarted,
		position: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.renderer == nil {
		e.renderer = nopRenderer{}
	}
	return e
}

// State returns the current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns the index of the last materialized line, -1 before the
// first.
func (e *Engine) Position() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Transcript returns the currently displayed turns, oldest first.
func (e *Engine) Transcript() []*domain.Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Turn, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// CurrentTurn returns the most recently materialized turn, or nil.
func (e *Engine) CurrentTurn() *domain.Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current()
}

// Start begins playback. The engine never advances before Start; calling it
// on a started engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.state != StateUnstarted {
		e.mu.Unlock()
		return
	}
	e.state = StateWaiting
	e.mu.Unlock()
	e.schedule(0)
}

// Advance performs one cooperative step. It returns the newly materialized
// turn (nil when none) and whether anything observable changed. Blocked,
// delayed and terminal paths return (nil, false) after asking the host for a
// later retry where one is due; stale scheduled calls are harmless because
// every decision here re-derives from current state.
func (e *Engine) Advance() (*domain.Turn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advance()
}

func (e *Engine) advance() (*domain.Turn, bool) {
	if e.state == StateUnstarted {
		return nil, false
	}

	e.refreshEnablement()

	for {
		// An unresolved prompt blocks; only an event moves us, not a timer.
		if cur := e.current(); cur != nil && cur.Blocking() {
			return nil, false
		}

		// A typing indicator must stay visible for its full duration.
		if e.typingShown {
			elapsed := e.clock().Sub(e.typingSince)
			if elapsed < e.policy.TypingDuration {
				e.schedule(e.policy.TypingDuration - elapsed)
				return nil, false
			}
		}

		next, ok := e.script.Line(e.position + 1)
		if !ok {
			if e.script.Loaded() {
				e.state = StateEnded
				if !e.endEmitted {
					e.endEmitted = true
					if e.hooks.OnEnd != nil {
						e.hooks.OnEnd()
					}
				}
				return nil, false
			}
			// Content is still arriving: hold a typing indicator and poll.
			if !e.typingShown {
				e.showTyping(domain.SpeakerAgent)
			} else {
				e.typingSince = e.clock()
			}
			e.state = StateWaiting
			e.schedule(e.policy.TypingDuration)
			return nil, true
		}

		// A falsy show condition skips the line in the same tick, clearing
		// any stale response it may have stored.
		if !e.truthy(next.ShowCondition) {
			e.clearVar(next.ID)
			e.position++
			continue
		}

		// A content-less goto fires at materialization time; there is
		// nothing to display, so jump and keep going.
		if next.Kind() == domain.TypeGoto && next.Content == "" {
			e.awardLine(next)
			e.position++
			e.jump(next.Target)
			continue
		}

		speaker := next.Speaker()

		// Timing gate between turns. Fullscreen-to-fullscreen bypasses it.
		if cur := e.current(); cur != nil && !(cur.Line.Kind() == domain.TypeFullscreen && next.Kind() == domain.TypeFullscreen) {
			need := e.policy.InterBubbleDelay
			if cur.Speaker != speaker {
				need = e.policy.SideSwitchDelay
			}
			elapsed := e.clock().Sub(cur.Shown)
			if elapsed < need {
				e.schedule(need - elapsed)
				return nil, false
			}
		}

		// Agent lines type first; the line itself lands on a later tick so
		// the illusion runs its full course even for instantaneous lines.
		if speaker == domain.SpeakerAgent && !e.typingShown {
			e.showTyping(domain.SpeakerAgent)
			e.state = StateTyping
			e.schedule(e.policy.TypingDuration)
			return nil, true
		}

		turn := e.materialize(next, speaker)
		return turn, true
	}
}

// materialize displays next as a turn and advances the position past it.
func (e *Engine) materialize(next domain.Line, speaker domain.Speaker) *domain.Turn {
	// Replaying a line must not carry a stale response.
	e.clearVar(next.ID)

	turn := &domain.Turn{
		Line:    next,
		Speaker: speaker,
		Shown:   e.clock(),
		Content: e.template(next.Content),
		Enabled: e.truthy(next.EnableCondition),
		Group:   e.groupFor(next, speaker),
	}
	if d := parseSeconds(next.Duration); d > 0 {
		switch next.Kind() {
		case domain.TypeWait, domain.TypeImage, domain.TypeFullscreen:
			turn.AutoDismissAfter = d
		}
	}

	if e.typingShown && e.typingSpeaker == speaker {
		e.typingShown = false
		e.renderer.ReplaceTyping(turn)
	} else {
		if e.typingShown {
			e.typingShown = false
			e.renderer.RemoveTyping()
		}
		e.renderer.RenderTurn(turn)
	}

	e.transcript = append(e.transcript, turn)
	e.position++
	e.state = StateDisplaying
	e.endEmitted = false

	if next.AwardsImmediately() {
		e.award(turn)
	}
	if e.hooks.OnTurn != nil {
		e.hooks.OnTurn(turn)
	}

	// Auto-firing lines complete themselves at materialization.
	if !turn.Line.Prompt() && turn.Line.Kind() == domain.TypeSubmit {
		turn.Submit()
		e.completeSubmit(turn)
	}

	e.schedule(0)
	return turn
}

// HandleEvent applies a renderer-reported user action or timer completion.
// Duplicate events on an already-submitted turn are ignored.
func (e *Engine) HandleEvent(ev domain.TurnEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	turn := e.findTurn(ev.LineID)
	if turn == nil {
		e.logger.Debug("event for unknown turn", "line", ev.LineID, "type", ev.Type)
		return
	}

	switch ev.Type {
	case domain.EventSelectionChanged:
		e.handleSelection(turn, ev)
	case domain.EventSubmitted, domain.EventMediaEnded, domain.EventTimerElapsed:
		e.handleSubmit(turn, ev)
	default:
		e.logger.Debug("unknown event type", "type", ev.Type)
	}
}

func (e *Engine) handleSubmit(turn *domain.Turn, ev domain.TurnEvent) {
	if !turn.Submit() {
		return
	}
	if ev.Value != "" {
		e.setVar(turn.Line.ID, ev.Value)
	}
	if !turn.Line.AwardsImmediately() {
		e.award(turn)
	}

	switch turn.Line.Kind() {
	case domain.TypeGoto:
		e.jump(turn.Line.Target)
	case domain.TypeSubmit:
		e.completeSubmit(turn)
	}

	e.schedule(0)
}

// handleSelection toggles a selection-type turn. Selections never block the
// conversation; an exclusive selection evicts its group siblings' stored
// responses so the cluster stays mutually exclusive. Every toggle also
// rewrites the cluster's combined value under the group key.
func (e *Engine) handleSelection(turn *domain.Turn, ev domain.TurnEvent) {
	if !ev.Selected {
		e.clearVar(turn.Line.ID)
		e.syncGroup(turn.Group)
		e.schedule(0)
		return
	}
	if turn.Line.Exclusive() {
		for _, other := range e.transcript {
			if other != turn && other.Group == turn.Group && other.Line.Exclusive() {
				e.clearVar(other.Line.ID)
			}
		}
	}
	value := ev.Value
	if value == "" {
		value = turn.Content
	}
	e.setVar(turn.Line.ID, value)
	e.syncGroup(turn.Group)

	// Skill selections carry the possible points of the skill, granted by
	// the lines that follow it, never by the selection itself. Selecting one
	// enters the skill right away.
	if turn.Line.Kind() == domain.TypeSkillSelect {
		if target := e.template(turn.Line.Target); target != "" {
			e.jump(target)
		}
	} else {
		e.award(turn)
	}
	e.schedule(0)
}

// syncGroup writes the cluster's combined state under its group key: the
// comma-joined IDs of the currently selected members, in display order.
// Conditions further down the script reference the prompt that introduced
// the cluster rather than its individual options.
func (e *Engine) syncGroup(group string) {
	if e.vars == nil || group == "" {
		return
	}
	var ids []string
	for _, t := range e.transcript {
		if t.Group != group || !t.Line.Selection() {
			continue
		}
		if _, selected := e.vars.Get(t.Line.ID); selected {
			ids = append(ids, t.Line.ID)
		}
	}
	e.vars.Set(group, strings.Join(ids, ","))
}

// completeSubmit is the checkpoint boundary: the display is wiped and the
// navigation layer records the submit line.
func (e *Engine) completeSubmit(turn *domain.Turn) {
	e.renderer.Clear()
	e.transcript = nil
	if e.hooks.OnSubmit != nil {
		e.hooks.OnSubmit(turn)
	}
}

// Goto repositions to target (a 0-based index or a case-insensitive line ID)
// and resumes. Jumping behind the current position wipes the displayed
// history first: already-rendered turns are not safely re-creatable in place,
// so backward motion re-displays from scratch.
func (e *Engine) Goto(target string) error {
	e.mu.Lock()
	pos, err := e.script.Position(target)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.reposition(pos)
	e.mu.Unlock()
	e.schedule(0)
	return nil
}

// Reset clears the display and rewinds to before the first line, leaving the
// engine unstarted.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.clearDisplay()
	e.position = -1
	e.endEmitted = false
	e.state = StateUnstarted
	e.mu.Unlock()
}

// Restart is Reset followed by Start.
func (e *Engine) Restart() {
	e.Reset()
	e.Start()
}

// ReevaluateEnablement recomputes every displayed turn's enable condition.
// Advance does this on entry too, so hosts that poke the scheduler after a
// variable change get it for free.
func (e *Engine) ReevaluateEnablement() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshEnablement()
}

func (e *Engine) refreshEnablement() {
	for _, turn := range e.transcript {
		if turn.Line.EnableCondition == "" {
			continue
		}
		turn.Enabled = e.truthy(turn.Line.EnableCondition)
	}
}

// jump repositions to target, reporting success. A bad target inside a goto
// line is logged and skipped rather than stalling the conversation.
func (e *Engine) jump(target string) bool {
	pos, err := e.script.Position(target)
	if err != nil {
		e.logger.Warn("goto target not found", "target", target)
		return false
	}
	e.reposition(pos)
	return true
}

func (e *Engine) reposition(pos int) {
	if pos == e.position {
		// Already there.
		return
	}
	if pos < e.position {
		e.clearDisplay()
	} else if cur := e.current(); cur != nil {
		// Explicit forward navigation abandons an unresolved prompt; the
		// engine must not stay blocked on a turn we just navigated past.
		cur.Submit()
	}
	e.position = pos - 1
	e.endEmitted = false
	if e.state == StateEnded {
		e.state = StateWaiting
	}
}

func (e *Engine) clearDisplay() {
	e.renderer.Clear()
	e.transcript = nil
	e.typingShown = false
}

func (e *Engine) current() *domain.Turn {
	if len(e.transcript) == 0 {
		return nil
	}
	return e.transcript[len(e.transcript)-1]
}

func (e *Engine) findTurn(lineID string) *domain.Turn {
	if lineID == "" {
		return e.current()
	}
	for i := len(e.transcript) - 1; i >= 0; i-- {
		if strings.EqualFold(e.transcript[i].Line.ID, lineID) {
			return e.transcript[i]
		}
	}
	return nil
}

func (e *Engine) showTyping(speaker domain.Speaker) {
	e.typingShown = true
	e.typingSpeaker = speaker
	e.typingSince = e.clock()
	e.renderer.ShowTyping(speaker)
	if e.hooks.OnTyping != nil {
		e.hooks.OnTyping(speaker)
	}
}

// groupFor implements the clustering rule: the first turn keys its own group,
// a same-speaker turn joins the previous group, and a user turn following an
// agent turn is keyed by that agent prompt, which is what makes exclusive
// choice clusters share a group.
func (e *Engine) groupFor(next domain.Line, speaker domain.Speaker) string {
	prev := e.current()
	if prev == nil {
		return next.ID
	}
	if prev.Speaker == speaker {
		return prev.Group
	}
	if speaker == domain.SpeakerUser {
		return prev.Line.ID
	}
	return next.ID
}

// award grants the turn's points at most once.
func (e *Engine) award(turn *domain.Turn) {
	pts := e.pointsFor(turn.Line)
	if pts == 0 || !turn.AwardOnce() {
		return
	}
	if e.scores != nil {
		e.scores.Award(pts, turn.Line.ID)
	}
	if e.hooks.OnScored != nil {
		e.hooks.OnScored(pts, turn.Line.ID)
	}
}

// awardLine scores a line that never becomes a turn (a content-less goto).
func (e *Engine) awardLine(l domain.Line) {
	pts := e.pointsFor(l)
	if pts == 0 {
		return
	}
	if e.scores != nil {
		e.scores.Award(pts, l.ID)
	}
	if e.hooks.OnScored != nil {
		e.hooks.OnScored(pts, l.ID)
	}
}

// pointsFor resolves a Points cell: a plain integer, or a formula evaluated
// against the variable scope.
func (e *Engine) pointsFor(l domain.Line) int {
	raw := strings.TrimSpace(l.Points)
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if e.eval == nil {
		return 0
	}
	switch v := e.eval.Evaluate(raw, e.scope()).(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// truthy evaluates a condition; an empty condition is true, a failed or
// unresolved one is false.
func (e *Engine) truthy(cond string) bool {
	if e.eval == nil {
		return true
	}
	return e.eval.Truthy(cond, e.scope())
}

func (e *Engine) template(text string) string {
	if e.eval == nil || text == "" {
		return text
	}
	return e.eval.EvaluateText(text, e.scope())
}

func (e *Engine) scope() map[string]any {
	if e.vars == nil {
		return nil
	}
	return e.vars.Scope()
}

func (e *Engine) setVar(name, value string) {
	if e.vars == nil || name == "" {
		return
	}
	e.vars.Set(name, value)
}

func (e *Engine) clearVar(name string) {
	if e.vars == nil || name == "" {
		return
	}
	e.vars.Clear(name)
}

// parseSeconds reads a Duration cell, given in seconds.
func parseSeconds(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

type nopRenderer struct{}

func (nopRenderer) ShowTyping(domain.Speaker)  {}
func (nopRenderer) ReplaceTyping(*domain.Turn) {}
func (nopRenderer) RemoveTyping()              {}
func (nopRenderer) RenderTurn(*domain.Turn)    {}
func (nopRenderer) Clear()                     {}
