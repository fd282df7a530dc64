package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/tripmate-ai/tripmate/agent"
	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/logging"
	"github.com/tripmate-ai/tripmate/session"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// MaxModelCalls limits the number of model calls per turn.
	MaxModelCalls int
	// SessionStore persists sessions; defaults to the in-memory store.
	SessionStore core.SessionStore
	// Logger receives runner diagnostics.
	Logger logging.Logger
}

// Runner drives the travel agent one conversation turn at a time: it creates
// the run context, streams events, applies state deltas, and persists history.
type Runner struct {
	agent *agent.TravelAgent

	eventBufferSize int
	maxModelCalls   int

	sessionStore core.SessionStore
	logger       logging.Logger

	activeTurns map[string]context.CancelFunc
	mu          sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(a *agent.TravelAgent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBufferSize: 100,
		MaxModelCalls:   a.MaxModelCalls(),
		SessionStore:    session.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		agent:           a,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		sessionStore:    opts.SessionStore,
		logger:          opts.Logger,
		activeTurns:     make(map[string]context.CancelFunc),
	}
}

// SessionStore returns the store backing this runner.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous conversation turn. The user content is persisted
// before the agent sees it; callers consume the returned event and error
// channels until both close.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	sess, err := r.sessionStore.Get(sessionID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	turnID := core.NewID()

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeTurns[turnID] = cancel
	r.mu.Unlock()

	userEvent := core.NewUserContentEvent(turnID, &userContent)
	if err := r.sessionStore.AppendEvent(sessionID, userEvent); err != nil {
		cancel()
		r.mu.Lock()
		delete(r.activeTurns, turnID)
		r.mu.Unlock()
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}

	// Reload so the agent's first request includes the user message.
	if latest, err := r.sessionStore.Get(sessionID); err == nil {
		sess = latest
	}

	runCtx := core.NewRunContext(
		ctx,
		sessionID,
		turnID,
		r.agent.Name(),
		userContent,
		r.maxModelCalls,
		agentEmit,
		resumeCh,
		sess,
		r.sessionStore,
		r.logger,
	)

	go func() {
		defer func() {
			close(agentEmit)
			cancel()
			r.mu.Lock()
			delete(r.activeTurns, turnID)
			r.mu.Unlock()
		}()

		if err := r.agent.Run(runCtx); err != nil {
			select {
			case <-runCtx.Done():
			case errorsCh <- fmt.Errorf("agent execution failed: %w", err):
			}
		}
	}()

	go func() {
		defer func() { close(eventsCh); close(errorsCh) }()
		r.processEvents(runCtx, sessionID, agentEmit, resumeCh, eventsCh, errorsCh)
	}()

	return turnID, eventsCh, errorsCh, nil
}

// Cancel aborts a running turn by ID.
func (r *Runner) Cancel(turnID string) error {
	r.mu.Lock()
	cancel, exists := r.activeTurns[turnID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("turn %s not found", turnID)
	}

	cancel()
	return nil
}

// processEvents persists and forwards agent events. Non-partial events are
// appended to the session and acknowledged on the resume channel so the agent
// only proceeds once history is durable.
func (r *Runner) processEvents(
	runCtx *core.RunContext,
	sessionID string,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	for {
		select {
		case <-runCtx.Done():
			return
		case ev, ok := <-agentEmit:
			if !ok {
				return
			}

			if len(ev.Actions.StateDelta) > 0 {
				if err := r.sessionStore.ApplyDelta(sessionID, ev.Actions.StateDelta); err != nil {
					select {
					case <-runCtx.Done():
					case errorsCh <- fmt.Errorf("failed to apply state delta: %w", err):
					}
					return
				}
			}

			if !ev.IsPartial() && ev.Content != nil {
				if err := r.sessionStore.AppendEvent(sessionID, ev); err != nil {
					select {
					case <-runCtx.Done():
					case errorsCh <- fmt.Errorf("failed to append event to session: %w", err):
					}
					return
				}
			}

			select {
			case <-runCtx.Done():
				return
			case eventsCh <- ev:
				r.logger.Debug("runner.event.delivered", "event_id", ev.ID, "session_id", sessionID)
			}

			if !ev.IsPartial() {
				select {
				case <-runCtx.Done():
					return
				case resumeCh <- struct{}{}:
				default:
				}
			}
		}
	}
}
