// Package httpapi serves conversations over HTTP: a chi router in front of
// the session manager, the content loader and one live Conversation per
// session. Transcripts are served from an immutable recorder view and pushed
// incrementally over SSE; the engine goroutine never blocks on a client.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	converse "github.com/pocketcoach/converse"
	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/observability"
	"github.com/pocketcoach/converse/pkg/session"
	"github.com/pocketcoach/converse/pkg/timing"
)

// persistTimeout bounds the snapshot write that follows each checkpoint.
const persistTimeout = 5 * time.Second

// ScriptSource resolves named conversations. content.Loader satisfies it.
type ScriptSource interface {
	Load(ctx context.Context, name string, onPage func(lines int)) (*domain.Script, error)
}

// Server hosts live conversations behind an HTTP API.
type Server struct {
	scripts  ScriptSource
	sessions *session.Manager
	streams  *StreamManager

	registry *prometheus.Registry
	metrics  *observability.Metrics
	policy   timing.Policy
	logger   *slog.Logger

	mu   sync.Mutex
	live map[string]*liveSession
}

type liveSession struct {
	id           string
	conversation string
	conv         *converse.Conversation
	recorder     *Recorder
	cancel       context.CancelFunc
	done         chan struct{}
}

// Option configures the Server.
type Option func(*Server)

// WithPolicy sets the presentation timing policy for hosted conversations.
func WithPolicy(p timing.Policy) Option {
	return func(s *Server) { s.policy = p }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRegistry supplies the prometheus registry backing /metrics. Without it
// the server keeps a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// New creates a Server over a script source and a session manager.
func New(scripts ScriptSource, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		scripts:  scripts,
		sessions: sessions,
		policy:   timing.Default(),
		logger:   logging.NewNop(),
		live:     make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = observability.NewMetrics(s.registry)
	s.streams = NewStreamManager(s.logger)
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/events", s.postEvent)
			r.Post("/back", s.back)
			r.Post("/goto", s.deepLink)
			r.Get("/stream", s.stream)
		})
	})
	return r
}

// Shutdown stops every live conversation. Call it after the http server has
// drained.
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

type createRequest struct {
	Conversation string `json:"conversation"`
	SessionID    string `json:"session_id,omitempty"`
}

type sessionView struct {
	SessionID    string     `json:"session_id"`
	Conversation string     `json:"conversation"`
	State        string     `json:"state"`
	Points       int        `json:"points"`
	Typing       string     `json:"typing,omitempty"`
	Checkpoint   string     `json:"checkpoint,omitempty"`
	Trail        []string   `json:"trail,omitempty"`
	Transcript   []TurnView `json:"transcript"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Conversation == "" {
		http.Error(w, "conversation is required", http.StatusBadRequest)
		return
	}
	id := body.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	existing, alive := s.live[id]
	s.mu.Unlock()
	if alive {
		s.writeJSON(w, http.StatusOK, s.viewOf(existing))
		return
	}

	ls, err := s.start(r.Context(), id, body.Conversation)
	if err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			http.Error(w, fmt.Sprintf("conversation %q not found", body.Conversation), http.StatusNotFound)
			return
		}
		s.logger.Error("starting session failed", "session_id", id, "err", err)
		http.Error(w, "starting session failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.viewOf(ls))
}

// start loads the script, restores any persisted position and spins up the
// conversation goroutine.
func (s *Server) start(ctx context.Context, id, conversation string) (*liveSession, error) {
	script, err := s.scripts.Load(ctx, conversation, nil)
	if err != nil {
		return nil, fmt.Errorf("loading script: %w", err)
	}
	s.metrics.ScriptLoads.Inc()

	snap, err := s.sessions.LoadOrStart(ctx, id, conversation)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	recorder := NewRecorder(
		func(view TurnView) { s.broadcastTurn(id, view) },
		func() { s.broadcastClear(id) },
	)

	ls := &liveSession{
		id:           id,
		conversation: conversation,
		recorder:     recorder,
		done:         make(chan struct{}),
	}

	conv, err := converse.New(script,
		converse.WithModule(conversation),
		converse.WithRenderer(recorder),
		converse.WithPolicy(s.policy),
		converse.WithLogger(s.logger),
		converse.WithHooks(domain.Hooks{
			OnTurn: func(turn *domain.Turn) {
				s.metrics.TurnsRendered.WithLabelValues(string(turn.Speaker)).Inc()
			},
			OnScored: func(points int, lineID string) {
				if points > 0 {
					s.metrics.PointsAwarded.Add(float64(points))
				}
			},
			OnSubmit: func(*domain.Turn) {
				// Runs on the engine goroutine; the store write must not
				// stall it.
				go s.persist(ls)
			},
		}),
	)
	if err != nil {
		return nil, err
	}
	ls.conv = conv

	if len(snap.Trail) > 0 {
		if err := conv.Restore(snap); err != nil {
			s.logger.Warn("snapshot restore failed, starting over",
				"session_id", id, "checkpoint", snap.Checkpoint, "err", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel

	s.mu.Lock()
	if existing, raced := s.live[id]; raced {
		// A concurrent create won; discard ours before it ever runs.
		s.mu.Unlock()
		cancel()
		return existing, nil
	}
	s.live[id] = ls
	s.mu.Unlock()

	s.metrics.SessionsActive.Inc()
	go func() {
		defer close(ls.done)
		defer s.metrics.SessionsActive.Dec()
		if err := conv.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("conversation stopped", "session_id", id, "err", err)
		}
	}()

	return ls, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.viewOf(ls))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s.mu.Lock()
	ls, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()

	if ok {
		ls.conv.Stop()
		ls.cancel()
		<-ls.done
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.logger.Warn("deleting persisted session failed", "session_id", id, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventRequest struct {
	Type     string `json:"type"`
	LineID   string `json:"line_id"`
	Value    string `json:"value,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

var eventTypes = map[string]domain.TurnEventType{
	string(domain.EventSubmitted):        domain.EventSubmitted,
	string(domain.EventSelectionChanged): domain.EventSelectionChanged,
	string(domain.EventMediaEnded):       domain.EventMediaEnded,
	string(domain.EventTimerElapsed):     domain.EventTimerElapsed,
}

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	var body eventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	evType, known := eventTypes[body.Type]
	if !known {
		http.Error(w, fmt.Sprintf("unknown event type %q", body.Type), http.StatusBadRequest)
		return
	}

	ls.conv.Post(domain.TurnEvent{
		Type:     evType,
		LineID:   body.LineID,
		Value:    body.Value,
		Selected: body.Selected,
	})
	s.metrics.EventsHandled.WithLabelValues(body.Type).Inc()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) back(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	moved, err := ls.conv.Back()
	if err != nil {
		s.logger.Error("back failed", "session_id", ls.id, "err", err)
		http.Error(w, "back failed", http.StatusInternalServerError)
		return
	}
	if moved {
		s.persist(ls)
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

type gotoRequest struct {
	LineID string `json:"line_id"`
}

func (s *Server) deepLink(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	var body gotoRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LineID == "" {
		http.Error(w, "line_id is required", http.StatusBadRequest)
		return
	}
	if err := ls.conv.Goto(body.LineID); err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			http.Error(w, fmt.Sprintf("line %q not found", body.LineID), http.StatusNotFound)
			return
		}
		s.logger.Error("goto failed", "session_id", ls.id, "line", body.LineID, "err", err)
		http.Error(w, "goto failed", http.StatusInternalServerError)
		return
	}
	s.persist(ls)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stream pushes transcript updates to the client as server-sent events.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookup(r); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	id := chi.URLParam(r, "sessionID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(id)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

type streamUpdate struct {
	Kind string    `json:"kind"`
	Turn *TurnView `json:"turn,omitempty"`
}

func (s *Server) broadcastTurn(sessionID string, view TurnView) {
	payload, err := json.Marshal(streamUpdate{Kind: "turn", Turn: &view})
	if err != nil {
		return
	}
	s.streams.Broadcast(sessionID, string(payload))
}

func (s *Server) broadcastClear(sessionID string) {
	payload, _ := json.Marshal(streamUpdate{Kind: "clear"})
	s.streams.Broadcast(sessionID, string(payload))
}

func (s *Server) lookup(r *http.Request) (*liveSession, bool) {
	id := chi.URLParam(r, "sessionID")
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.live[id]
	return ls, ok
}

func (s *Server) viewOf(ls *liveSession) sessionView {
	transcript, typing := ls.recorder.Transcript()
	snap := ls.conv.Snapshot()
	if transcript == nil {
		transcript = []TurnView{}
	}
	return sessionView{
		SessionID:    ls.id,
		Conversation: ls.conversation,
		State:        ls.conv.State(),
		Points:       ls.conv.Points(),
		Typing:       typing,
		Checkpoint:   snap.Checkpoint,
		Trail:        snap.Trail,
		Transcript:   transcript,
	}
}

func (s *Server) persist(ls *liveSession) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.sessions.Save(ctx, ls.id, ls.conv.Snapshot()); err != nil {
		s.logger.Warn("persisting snapshot failed", "session_id", ls.id, "err", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
