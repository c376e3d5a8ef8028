// Package mcp exposes conversations as MCP tools over stdio, so an agent can
// play a script the way a browser user would: start a session, read the
// transcript, answer prompts, step back. Playback is asynchronous inside the
// engine; every tool settles the conversation before answering, returning the
// transcript as it stands once the engine blocks on input or ends.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	converse "github.com/pocketcoach/converse"
	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/adapters/httpapi"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/timing"
)

// settleTimeout bounds how long a tool call waits for the engine to block.
const settleTimeout = 10 * time.Second

// settlePolls is how many consecutive unchanged polls count as a blocked
// prompt. Displaying covers both a pending prompt and the gap between
// bubbles; only a prompt holds the state still this long.
const settlePolls = 5

// ScriptSource resolves named conversations. content.Loader satisfies it.
type ScriptSource interface {
	Load(ctx context.Context, name string, onPage func(lines int)) (*domain.Script, error)
}

// SessionView is the structured result every tool returns.
type SessionView struct {
	SessionID  string             `json:"session_id"`
	State      string             `json:"state"`
	Points     int                `json:"points"`
	Checkpoint string             `json:"checkpoint,omitempty"`
	Transcript []httpapi.TurnView `json:"transcript"`
}

type liveSession struct {
	id       string
	conv     *converse.Conversation
	recorder *httpapi.Recorder
	cancel   context.CancelFunc
	done     chan struct{}
}

// Server hosts conversations behind an MCP stdio server.
type Server struct {
	scripts   ScriptSource
	policy    timing.Policy
	logger    *slog.Logger
	mcpServer *server.MCPServer

	mu   sync.Mutex
	live map[string]*liveSession
}

// Option configures the Server.
type Option func(*Server)

// WithPolicy sets the presentation timing policy. Agents rarely want human
// pacing; pass a scaled-down policy.
func WithPolicy(p timing.Policy) Option {
	return func(s *Server) { s.policy = p }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates an MCP server over a script source.
func NewServer(scripts ScriptSource, version string, opts ...Option) *Server {
	s := &Server{
		scripts:   scripts,
		policy:    timing.Default().Scaled(0.01),
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("converse-mcp", version),
		live:      make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// ServeStdio runs the server on stdin/stdout until the stream closes.
func (s *Server) ServeStdio() error {
	defer s.Shutdown()
	return server.ServeStdio(s.mcpServer)
}

// Shutdown stops every live conversation.
func (s *Server) Shutdown() {
	s.mu.Lock()
	sessions := make([]*liveSession, 0, len(s.live))
	for _, ls := range s.live {
		sessions = append(sessions, ls)
	}
	s.live = make(map[string]*liveSession)
	s.mu.Unlock()

	for _, ls := range sessions {
		ls.conv.Stop()
		ls.cancel()
		<-ls.done
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_conversation",
		mcp.WithDescription("Start (or reconnect to) a conversation session and play it until it waits for input."),
		mcp.WithString("conversation", mcp.Required(), mcp.Description("Name of the conversation to play")),
		mcp.WithString("session_id", mcp.Description("Session to reconnect to; omitted starts a fresh one")),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Fetch the current transcript and state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to inspect")),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleTranscript))

	s.mcpServer.AddTool(mcp.NewTool("submit_turn",
		mcp.WithDescription("Answer the pending prompt: entered text, a picked choice, or a bare confirmation tap."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to act on")),
		mcp.WithString("line_id", mcp.Description("Line the answer applies to; defaults to the pending prompt")),
		mcp.WithString("value", mcp.Description("The response value, if the prompt takes one")),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("change_selection",
		mcp.WithDescription("Toggle a selection-type turn without completing its cluster."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to act on")),
		mcp.WithString("line_id", mcp.Required(), mcp.Description("Selection line to toggle")),
		mcp.WithString("value", mcp.Description("Selected value; defaults to the line's content")),
		mcp.WithBoolean("selected", mcp.Description("true to select, false to deselect; defaults to true")),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleSelection))

	s.mcpServer.AddTool(mcp.NewTool("go_back",
		mcp.WithDescription("Step back to the previous checkpoint and replay from there."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to act on")),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleBack))

	s.mcpServer.AddTool(mcp.NewTool("goto_line",
		mcp.WithDescription("Jump to a line, replaying from its governing checkpoint."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to act on")),
		mcp.WithString("line_id", mcp.Required(), mcp.Description("Line to jump to")),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleGoto))
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (SessionView, error) {
	name, _ := args["conversation"].(string)
	if name == "" {
		return SessionView{}, fmt.Errorf("conversation is required")
	}
	id, _ := args["session_id"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	ls, alive := s.live[id]
	s.mu.Unlock()
	if !alive {
		var err error
		ls, err = s.start(ctx, id, name)
		if err != nil {
			return SessionView{}, err
		}
	}
	return s.settle(ls), nil
}

func (s *Server) start(ctx context.Context, id, name string) (*liveSession, error) {
	script, err := s.scripts.Load(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %q: %w", name, err)
	}

	recorder := httpapi.NewRecorder(nil, nil)
	conv, err := converse.New(script,
		converse.WithModule(name),
		converse.WithRenderer(recorder),
		converse.WithPolicy(s.policy),
		converse.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{
		id:       id,
		conv:     conv,
		recorder: recorder,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.live[id] = ls
	s.mu.Unlock()

	go func() {
		defer close(ls.done)
		if err := conv.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("conversation stopped", "session_id", id, "err", err)
		}
	}()
	return ls, nil
}

func (s *Server) handleTranscript(_ context.Context, _ mcp.CallToolRequest, args map[string]any) (SessionView, error) {
	ls, err := s.lookup(args)
	if err != nil {
		return SessionView{}, err
	}
	return s.viewOf(ls), nil
}

func (s *Server) handleSubmit(_ context.Context, _ mcp.CallToolRequest, args map[string]any) (SessionView, error) {
	ls, err := s.lookup(args)
	if err != nil {
		return SessionView{}, err
	}
	lineID, _ := args["line_id"].(string)
	value, _ := args["value"].(string)
	ls.conv.Post(domain.TurnEvent{Type: domain.EventSubmitted, LineID: lineID, Value: value})
	return s.settle(ls), nil
}

func (s *Server) handleSelection(_ context.Context, _ mcp.CallToolRequest, args map[string]any) (SessionView, error) {
	ls, err := s.lookup(args)
	if err != nil {
		return SessionView{}, err
	}
	lineID, _ := args["line_id"].(string)
	if lineID == "" {
		return SessionView{}, fmt.Errorf("line_id is required")
	}
	value, _ := args["value"].(string)
	selected := true
	if v, ok := args["selected"].(bool); ok {
		selected = v
	}
	ls.conv.Post(domain.TurnEvent{
		Type:     domain.EventSelectionChanged,
		LineID:   lineID,
		Value:    value,
		Selected: selected,
	})
	return s.settle(ls), nil
}

func (s *Server) handleBack(_ context.Context, _ mcp.CallToolRequest, args map[string]any) (SessionView, error) {
	ls, err := s.lookup(args)
	if err != nil {
		return SessionView{}, err
	}
	if _, err := ls.conv.Back(); err != nil {
		return SessionView{}, fmt.Errorf("back failed: %w", err)
	}
	return s.settle(ls), nil
}

func (s *Server) handleGoto(_ context.Context, _ mcp.CallToolRequest, args map[string]any) (SessionView, error) {
	ls, err := s.lookup(args)
	if err != nil {
		return SessionView{}, err
	}
	lineID, _ := args["line_id"].(string)
	if lineID == "" {
		return SessionView{}, fmt.Errorf("line_id is required")
	}
	if err := ls.conv.Goto(lineID); err != nil {
		return SessionView{}, fmt.Errorf("goto %q failed: %w", lineID, err)
	}
	return s.settle(ls), nil
}

func (s *Server) lookup(args map[string]any) (*liveSession, error) {
	id, _ := args["session_id"].(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.live[id]
	if !ok {
		return nil, fmt.Errorf("session %q not found", id)
	}
	return ls, nil
}

// settle waits until the engine stops advancing, then reports the view. A
// session blocked on a prompt sits in "displaying" with the prompt as its
// current turn, so that state counts as settled once it holds still for a
// few polls. Long timed waits can exhaust the timeout and surface as a
// still-running view; a later get_transcript completes the picture.
func (s *Server) settle(ls *liveSession) SessionView {
	deadline := time.Now().Add(settleTimeout)
	var lastState string
	lastLen := -1
	stable := 0
	for time.Now().Before(deadline) {
		state := ls.conv.State()
		transcript, _ := ls.recorder.Transcript()
		if state == lastState && len(transcript) == lastLen {
			stable++
		} else {
			stable = 0
		}
		if stable > 0 && (state == "waiting" || state == "ended") {
			break
		}
		if stable >= settlePolls && state == "displaying" {
			break
		}
		lastState, lastLen = state, len(transcript)
		time.Sleep(15 * time.Millisecond)
	}
	return s.viewOf(ls)
}

func (s *Server) viewOf(ls *liveSession) SessionView {
	transcript, _ := ls.recorder.Transcript()
	if transcript == nil {
		transcript = []httpapi.TurnView{}
	}
	snap := ls.conv.Snapshot()
	return SessionView{
		SessionID:  ls.id,
		State:      ls.conv.State(),
		Points:     ls.conv.Points(),
		Checkpoint: snap.Checkpoint,
		Transcript: transcript,
	}
}
