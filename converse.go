package converse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketcoach/converse/internal/logging"
	"github.com/pocketcoach/converse/internal/runtime"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/expr"
	"github.com/pocketcoach/converse/pkg/nav"
	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/runner"
	"github.com/pocketcoach/converse/pkg/scoring"
	"github.com/pocketcoach/converse/pkg/timing"
	"github.com/pocketcoach/converse/pkg/vars"
)

// Version identifies the library release.
const Version = "0.1.0"

// Conversation is one playable script bound to one user's variables.
type Conversation struct {
	script    *domain.Script
	engine    *runtime.Engine
	driver    *runner.Driver
	navigator *nav.Navigator
	variables ports.VariableStore
	keeper    *scoring.Keeper
	logger    *slog.Logger
	module    string
}

type config struct {
	module    string
	renderer  ports.TurnRenderer
	variables ports.VariableStore
	evaluator ports.Evaluator
	policy    timing.Policy
	projector nav.Projector
	hooks     domain.Hooks
	logger    *slog.Logger
	stopAtEnd bool
}

// Option configures a Conversation.
type Option func(*config)

// WithModule names the module the script belongs to; per-module point totals
// and snapshots are keyed by it.
func WithModule(name string) Option {
	return func(c *config) { c.module = name }
}

// WithRenderer sets the presentation the engine drives.
func WithRenderer(r ports.TurnRenderer) Option {
	return func(c *config) { c.renderer = r }
}

// WithVariables shares an existing variable store; by default each
// Conversation gets its own in-memory store.
func WithVariables(v ports.VariableStore) Option {
	return func(c *config) { c.variables = v }
}

// WithEvaluator overrides the default CEL evaluator.
func WithEvaluator(e ports.Evaluator) Option {
	return func(c *config) { c.evaluator = e }
}

// WithPolicy sets the presentation timing policy.
func WithPolicy(p timing.Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithProjector mirrors the checkpoint trail into derived history.
func WithProjector(p nav.Projector) Option {
	return func(c *config) { c.projector = p }
}

// WithHooks adds observation callbacks, chained after the internal wiring.
func WithHooks(h domain.Hooks) Option {
	return func(c *config) { c.hooks = h }
}

// WithLogger sets the logger shared by all assembled parts.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStopAtEnd makes Run return once the script ends, instead of waiting
// for more events. Interactive hosts want this; servers do not.
func WithStopAtEnd() Option {
	return func(c *config) { c.stopAtEnd = true }
}

// New assembles a Conversation over script.
func New(script *domain.Script, opts ...Option) (*Conversation, error) {
	cfg := &config{
		policy: timing.Default(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.variables == nil {
		cfg.variables = vars.New(vars.WithLogger(cfg.logger))
	}
	if cfg.evaluator == nil {
		eval, err := expr.New(expr.WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("building evaluator: %w", err)
		}
		cfg.evaluator = eval
	}

	keeper := scoring.New(cfg.variables, cfg.module, scoring.WithLogger(cfg.logger))
	driver := runner.New(runner.WithLogger(cfg.logger))

	c := &Conversation{
		script:    script,
		driver:    driver,
		variables: cfg.variables,
		keeper:    keeper,
		logger:    cfg.logger,
		module:    cfg.module,
	}

	user := cfg.hooks
	hooks := domain.Hooks{
		OnTyping: user.OnTyping,
		OnTurn: func(turn *domain.Turn) {
			driver.WatchTurn(turn)
			if user.OnTurn != nil {
				user.OnTurn(turn)
			}
		},
		OnSubmit: func(turn *domain.Turn) {
			c.navigator.Passed(turn.Line.ID)
			if user.OnSubmit != nil {
				user.OnSubmit(turn)
			}
		},
		OnScored: user.OnScored,
		OnEnd: func() {
			if user.OnEnd != nil {
				user.OnEnd()
			}
			if cfg.stopAtEnd {
				driver.Stop()
			}
		},
	}

	c.engine = runtime.New(script, cfg.renderer,
		runtime.WithEvaluator(cfg.evaluator),
		runtime.WithVariables(cfg.variables),
		runtime.WithScores(keeper),
		runtime.WithPolicy(cfg.policy),
		runtime.WithScheduler(driver.Schedule),
		runtime.WithHooks(hooks),
		runtime.WithLogger(cfg.logger),
	)
	driver.Bind(c.engine)

	navOpts := []nav.Option{nav.WithLogger(cfg.logger)}
	if cfg.projector != nil {
		navOpts = append(navOpts, nav.WithProjector(cfg.projector))
	}
	c.navigator = nav.New(script, c.engine, navOpts...)

	// A variable change may flip enable conditions; poke the driver so the
	// next Advance refreshes them. Scheduling is safe from the notifying
	// goroutine, re-entering the engine here would not be.
	cfg.variables.Subscribe(func(string) { driver.Schedule(0) })

	return c, nil
}

// Run plays the conversation until ctx is canceled, Stop is called, or, with
// WithStopAtEnd, the script ends. It owns the engine goroutine.
func (c *Conversation) Run(ctx context.Context) error {
	c.navigator.Begin()
	err := c.driver.Run(ctx)
	if c.variables != nil {
		if s, ok := c.variables.(*vars.Store); ok {
			s.Drain()
		}
	}
	return err
}

// Post delivers a renderer-reported event.
func (c *Conversation) Post(ev domain.TurnEvent) {
	c.driver.Post(ev)
}

// Back pops the current checkpoint and replays from the previous one.
func (c *Conversation) Back() (bool, error) {
	return c.navigator.Back()
}

// Goto deep-links to a line ID, reconciling the checkpoint trail.
func (c *Conversation) Goto(lineID string) error {
	return c.navigator.DeepLink(lineID)
}

// Restart rewinds to the beginning and replays.
func (c *Conversation) Restart() {
	c.navigator.Reset()
	c.engine.Restart()
	c.navigator.Begin()
}

// Stop makes Run return.
func (c *Conversation) Stop() {
	c.driver.Stop()
}

// Transcript returns the displayed turns, oldest first.
func (c *Conversation) Transcript() []*domain.Turn {
	return c.engine.Transcript()
}

// State reports the engine's lifecycle phase.
func (c *Conversation) State() string {
	return string(c.engine.State())
}

// Points returns the user's global point total.
func (c *Conversation) Points() int {
	return c.keeper.Total()
}

// Variables returns the bound variable store.
func (c *Conversation) Variables() ports.VariableStore {
	return c.variables
}

// Snapshot captures the resumable position.
func (c *Conversation) Snapshot() *domain.Snapshot {
	return c.navigator.Snapshot(c.module)
}

// Restore resumes from a persisted snapshot.
func (c *Conversation) Restore(snap *domain.Snapshot) error {
	return c.navigator.Restore(snap)
}
