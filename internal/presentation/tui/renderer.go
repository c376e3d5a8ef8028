// Package tui renders a conversation in the terminal: agent lines as
// glamour-styled markdown, user prompts as highlighted input cues. It is the
// play-mode stand-in for the browser chat surface.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/ports"
)

const defaultWidth = 80

// Renderer writes turns to a terminal.
type Renderer struct {
	mu       sync.Mutex
	out      io.Writer
	markdown *glamour.TermRenderer
	profile  termenv.Profile
	width    int
	typing   bool
}

// Option configures the Renderer.
type Option func(*Renderer)

// WithWidth overrides the detected terminal width.
func WithWidth(width int) Option {
	return func(r *Renderer) { r.width = width }
}

// WithProfile overrides the detected color profile. Tests pass
// termenv.Ascii for stable output.
func WithProfile(p termenv.Profile) Option {
	return func(r *Renderer) { r.profile = p }
}

// New creates a Renderer writing to out. Width and colors are detected when
// out is a terminal.
func New(out io.Writer, opts ...Option) (*Renderer, error) {
	r := &Renderer{
		out:     out,
		profile: termenv.ColorProfile(),
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			r.width = w
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.width <= 0 {
		r.width = defaultWidth
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return nil, fmt.Errorf("building markdown renderer: %w", err)
	}
	r.markdown = md
	return r, nil
}

var _ ports.TurnRenderer = (*Renderer)(nil)

func (r *Renderer) ShowTyping(speaker domain.Speaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.typing {
		return
	}
	r.typing = true
	indicator := r.styled(fmt.Sprintf("%s is typing...", speaker)).Faint().Italic()
	fmt.Fprintf(r.out, "%s", indicator)
}

func (r *Renderer) RemoveTyping() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eraseTyping()
}

func (r *Renderer) ReplaceTyping(turn *domain.Turn) {
	r.mu.Lock()
	r.eraseTyping()
	r.mu.Unlock()
	r.RenderTurn(turn)
}

func (r *Renderer) RenderTurn(turn *domain.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case turn.Speaker == domain.SpeakerAgent:
		rendered, err := r.markdown.Render(turn.Content)
		if err != nil {
			rendered = turn.Content + "\n"
		}
		fmt.Fprint(r.out, rendered)
	case turn.Line.Prompt():
		cue := r.promptCue(turn)
		fmt.Fprintf(r.out, "%s\n", r.styled(cue).Foreground(r.profile.Color("6")).Bold())
	default:
		// Selection options and other passive user-side turns.
		marker := "( )"
		if !turn.Enabled {
			marker = "(-)"
		}
		fmt.Fprintf(r.out, "  %s %s\n", marker, r.styled(turn.Content).Foreground(r.profile.Color("6")))
	}
}

func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eraseTyping()
	rule := strings.Repeat("-", min(r.width, 40))
	fmt.Fprintf(r.out, "\n%s\n\n", r.styled(rule).Faint())
}

// promptCue phrases what the pending prompt expects.
func (r *Renderer) promptCue(turn *domain.Turn) string {
	switch turn.Line.Kind() {
	case domain.TypeTextbox, domain.TypeOpenText:
		return fmt.Sprintf(">> %s (type your answer)", turn.Content)
	case domain.TypeWait:
		return ">> (pausing...)"
	default:
		label := turn.Content
		if label == "" {
			label = turn.Line.Kind()
		}
		return fmt.Sprintf(">> [%s] (press enter)", label)
	}
}

// eraseTyping rewinds the typing indicator line. Callers hold the mutex.
func (r *Renderer) eraseTyping() {
	if !r.typing {
		return
	}
	r.typing = false
	fmt.Fprint(r.out, "\r\033[2K")
}

func (r *Renderer) styled(s string) termenv.Style {
	return r.profile.String(s)
}
