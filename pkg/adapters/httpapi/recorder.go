package httpapi

import (
	"sync"

	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/ports"
)

// TurnView is the wire shape of one displayed turn. Views are immutable
// snapshots taken at display time, so reading a transcript never races the
// engine goroutine.
type TurnView struct {
	LineID  string `json:"line_id"`
	Type    string `json:"type,omitempty"`
	Speaker string `json:"speaker"`
	Group   string `json:"group,omitempty"`
	Content string `json:"content,omitempty"`
	Prompt  bool   `json:"prompt"`
	Enabled bool   `json:"enabled"`
}

func viewOf(turn *domain.Turn) TurnView {
	return TurnView{
		LineID:  turn.Line.ID,
		Type:    turn.Line.Kind(),
		Speaker: string(turn.Speaker),
		Group:   turn.Group,
		Content: turn.Content,
		Prompt:  turn.Line.Prompt(),
		Enabled: turn.Enabled,
	}
}

// Recorder is the server-side TurnRenderer: it keeps the displayed transcript
// as TurnViews and forwards every change to an optional sink (the SSE
// broadcaster).
type Recorder struct {
	mu     sync.Mutex
	views  []TurnView
	typing string

	onTurn  func(TurnView)
	onClear func()
}

// NewRecorder creates a Recorder. Both callbacks may be nil.
func NewRecorder(onTurn func(TurnView), onClear func()) *Recorder {
	return &Recorder{onTurn: onTurn, onClear: onClear}
}

var _ ports.TurnRenderer = (*Recorder)(nil)

func (r *Recorder) ShowTyping(speaker domain.Speaker) {
	r.mu.Lock()
	r.typing = string(speaker)
	r.mu.Unlock()
}

func (r *Recorder) RemoveTyping() {
	r.mu.Lock()
	r.typing = ""
	r.mu.Unlock()
}

func (r *Recorder) ReplaceTyping(turn *domain.Turn) {
	r.RemoveTyping()
	r.RenderTurn(turn)
}

func (r *Recorder) RenderTurn(turn *domain.Turn) {
	view := viewOf(turn)
	r.mu.Lock()
	r.views = append(r.views, view)
	r.mu.Unlock()
	if r.onTurn != nil {
		r.onTurn(view)
	}
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	r.views = nil
	r.typing = ""
	r.mu.Unlock()
	if r.onClear != nil {
		r.onClear()
	}
}

// Transcript returns the displayed views, oldest first, and the speaker whose
// typing indicator is up ("" when none).
func (r *Recorder) Transcript() ([]TurnView, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TurnView, len(r.views))
	copy(out, r.views)
	return out, r.typing
}
