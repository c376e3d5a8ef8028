package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/timing"
)

func nilRequest() mcp.CallToolRequest { return mcp.CallToolRequest{} }

type stubSource struct {
	lines []domain.Line
}

func (s *stubSource) Load(_ context.Context, name string, _ func(int)) (*domain.Script, error) {
	if name != "welcome" {
		return nil, fmt.Errorf("conversation %q: %w", name, domain.ErrTargetNotFound)
	}
	return domain.ScriptFromLines(s.lines), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	source := &stubSource{lines: []domain.Line{
		{ID: "Intro", Content: "Hi there"},
		{ID: "Name", Type: "textbox", Content: "What is your name?"},
		{ID: "S1", Type: "submit", Content: "Ok", Points: "3"},
		{ID: "Bye", Content: "Bye ${Name}"},
	}}
	s := NewServer(source, "test", WithPolicy(timing.Default().Scaled(0.001)))
	t.Cleanup(s.Shutdown)
	return s
}

func ids(v SessionView) []string {
	out := make([]string, len(v.Transcript))
	for i, turn := range v.Transcript {
		out[i] = turn.LineID
	}
	return out
}

func TestTools_PlayThrough(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	v, err := s.handleStart(ctx, nilRequest(), map[string]any{"conversation": "welcome"})
	require.NoError(t, err)
	require.NotEmpty(t, v.SessionID)
	assert.Equal(t, "displaying", v.State, "a pending prompt holds the session in displaying")
	assert.Equal(t, []string{"Intro", "Name"}, ids(v))

	session := v.SessionID
	v, err = s.handleSubmit(ctx, nilRequest(), map[string]any{
		"session_id": session, "line_id": "Name", "value": "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro", "Name", "S1"}, ids(v))

	v, err = s.handleSubmit(ctx, nilRequest(), map[string]any{
		"session_id": session, "line_id": "S1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ended", v.State)
	require.Equal(t, []string{"Bye"}, ids(v), "submit completion clears the display")
	assert.Equal(t, "Bye Ada", v.Transcript[0].Content)
	assert.Equal(t, 3, v.Points)
}

func TestTools_BackAndReconnect(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	v, err := s.handleStart(ctx, nilRequest(), map[string]any{"conversation": "welcome"})
	require.NoError(t, err)
	session := v.SessionID

	_, err = s.handleSubmit(ctx, nilRequest(), map[string]any{
		"session_id": session, "line_id": "Name", "value": "Ada",
	})
	require.NoError(t, err)
	_, err = s.handleSubmit(ctx, nilRequest(), map[string]any{"session_id": session, "line_id": "S1"})
	require.NoError(t, err)

	v, err = s.handleBack(ctx, nilRequest(), map[string]any{"session_id": session})
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro", "Name"}, ids(v))

	// Starting with the same session ID reconnects instead of restarting.
	v, err = s.handleStart(ctx, nilRequest(), map[string]any{
		"conversation": "welcome", "session_id": session,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro", "Name"}, ids(v))
}

func TestTools_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleStart(ctx, nilRequest(), map[string]any{"conversation": "missing"})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)

	_, err = s.handleTranscript(ctx, nilRequest(), map[string]any{"session_id": "nope"})
	assert.Error(t, err)

	v, err := s.handleStart(ctx, nilRequest(), map[string]any{"conversation": "welcome"})
	require.NoError(t, err)
	_, err = s.handleGoto(ctx, nilRequest(), map[string]any{
		"session_id": v.SessionID, "line_id": "Nowhere",
	})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}
