package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/domain"
)

func newTestRenderer(t *testing.T) (*Renderer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	r, err := New(&buf, WithWidth(60), WithProfile(termenv.Ascii))
	require.NoError(t, err)
	return r, &buf
}

func agentTurn(content string) *domain.Turn {
	return &domain.Turn{
		Line:    domain.Line{ID: "A"},
		Speaker: domain.SpeakerAgent,
		Content: content,
		Shown:   time.Now(),
		Enabled: true,
	}
}

func TestRenderTurn_AgentMarkdown(t *testing.T) {
	r, buf := newTestRenderer(t)
	r.RenderTurn(agentTurn("Hello **world**"))
	assert.Contains(t, buf.String(), "Hello")
	assert.Contains(t, buf.String(), "world")
}

func TestTypingIndicatorIsReplaced(t *testing.T) {
	r, buf := newTestRenderer(t)
	r.ShowTyping(domain.SpeakerAgent)
	assert.Contains(t, buf.String(), "agent is typing...")

	r.ReplaceTyping(agentTurn("done"))
	out := buf.String()
	assert.Contains(t, out, "\r\033[2K", "the indicator line is erased")
	assert.Contains(t, out, "done")
}

func TestRenderTurn_PromptCues(t *testing.T) {
	r, buf := newTestRenderer(t)

	r.RenderTurn(&domain.Turn{
		Line:    domain.Line{ID: "Q", Type: "textbox"},
		Speaker: domain.SpeakerUser,
		Content: "Your name?",
		Enabled: true,
	})
	assert.Contains(t, buf.String(), "Your name? (type your answer)")

	buf.Reset()
	r.RenderTurn(&domain.Turn{
		Line:    domain.Line{ID: "C", Type: "continue", Content: "Next"},
		Speaker: domain.SpeakerUser,
		Content: "Next",
		Enabled: true,
	})
	assert.Contains(t, buf.String(), "[Next] (press enter)")
}

func TestRenderTurn_SelectionOption(t *testing.T) {
	r, buf := newTestRenderer(t)
	r.RenderTurn(&domain.Turn{
		Line:    domain.Line{ID: "O1", Type: "singleselect", Content: "Option A"},
		Speaker: domain.SpeakerUser,
		Content: "Option A",
		Enabled: true,
	})
	assert.Contains(t, buf.String(), "( ) Option A")

	buf.Reset()
	r.RenderTurn(&domain.Turn{
		Line:    domain.Line{ID: "O2", Type: "singleselect", Content: "Option B"},
		Speaker: domain.SpeakerUser,
		Content: "Option B",
		Enabled: false,
	})
	assert.Contains(t, buf.String(), "(-) Option B")
}

func TestClearWritesRule(t *testing.T) {
	r, buf := newTestRenderer(t)
	r.Clear()
	assert.Contains(t, buf.String(), strings.Repeat("-", 40))
}
