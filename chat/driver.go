// Package chat implements the conversation driver: it owns the visible
// transcript, forwards user input to the runner, folds the streamed event
// sequence into display fragments and commits completed assistant turns.
package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/logging"
)

// Fragment is the single streaming contract between the agent stream and the
// display layer. Every provider-specific chunk shape is normalized into it
// once, at this boundary.
type Fragment struct {
	Text string
}

// CursorMarker trails the visible partial response while streaming.
const CursorMarker = "▌"

// State captures the driver's position in the turn lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
	StateStreaming        State = "streaming"
)

// Turn is one committed transcript entry.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// TurnRunner abstracts the runner so the driver can be tested with scripted
// event streams.
type TurnRunner interface {
	Run(ctx context.Context, sessionID string, userContent core.Content) (string, <-chan core.Event, <-chan error, error)
}

// Options configure a Driver.
type Options struct {
	Renderer Renderer
	Logger   logging.Logger
}

// Driver owns the in-memory transcript for one chat session and mutates it
// only from the single request-handling flow. A failed turn never appends an
// assistant entry.
type Driver struct {
	runner    TurnRunner
	sessionID string
	renderer  Renderer
	logger    logging.Logger

	mu         sync.RWMutex
	state      State
	transcript []Turn
}

// NewDriver creates a driver bound to one session.
func NewDriver(r TurnRunner, sessionID string, optFns ...func(o *Options)) *Driver {
	opts := Options{
		Renderer: NoOpRenderer{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Driver{
		runner:    r,
		sessionID: sessionID,
		renderer:  opts.Renderer,
		logger:    opts.Logger,
		state:     StateIdle,
	}
}

// SessionID returns the session this driver is bound to.
func (d *Driver) SessionID() string { return d.sessionID }

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Transcript returns a copy of the committed turns in order.
func (d *Driver) Transcript() []Turn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Turn, len(d.transcript))
	copy(out, d.transcript)
	return out
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Driver) appendTurn(t Turn) {
	d.mu.Lock()
	d.transcript = append(d.transcript, t)
	d.mu.Unlock()
}

// Send submits one user utterance and blocks until the assistant turn
// completes or fails. The user turn is appended to the transcript before any
// network call. On failure the error is surfaced via the renderer and the
// transcript is left without an assistant entry for this turn.
func (d *Driver) Send(ctx context.Context, userText string) (string, error) {
	d.appendTurn(Turn{Role: "user", Content: userText})
	d.setState(StateAwaitingResponse)

	content := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: userText}}}
	turnID, events, errs, err := d.runner.Run(ctx, d.sessionID, content)
	if err != nil {
		d.fail(err)
		return "", err
	}
	d.logger.Debug("chat.turn.start", "session_id", d.sessionID, "turn_id", turnID)

	var accumulated, final string
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.IsError() {
				err := fmt.Errorf("%s", *ev.ErrorMessage)
				d.fail(err)
				return "", err
			}

			if frag, ok := normalizeFragment(ev); ok {
				d.setState(StateStreaming)
				accumulated += frag.Text
				d.renderer.Fragment(frag, accumulated+CursorMarker)
			}
			if text, ok := finalText(ev); ok {
				final = text
			}

		case runErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if runErr != nil {
				d.fail(runErr)
				return "", runErr
			}

		case <-ctx.Done():
			d.fail(ctx.Err())
			return "", ctx.Err()
		}
	}

	// Non-streaming providers deliver the whole answer in the final event.
	if final == "" {
		final = accumulated
	}

	d.appendTurn(Turn{Role: "assistant", Content: final})
	d.renderer.Final(final)
	d.setState(StateIdle)
	d.logger.Debug("chat.turn.complete", "session_id", d.sessionID, "turn_id", turnID)
	return final, nil
}

// fail surfaces a turn failure and returns to idle without touching the
// transcript beyond the already-appended user turn.
func (d *Driver) fail(err error) {
	d.logger.Error("chat.turn.failed", "session_id", d.sessionID, "error", err.Error())
	d.renderer.Error(err)
	d.setState(StateIdle)
}

// normalizeFragment converts a streaming event into the display fragment
// contract. Only partial assistant text reaches the display; tool calls and
// responses stay internal.
func normalizeFragment(ev core.Event) (Fragment, bool) {
	if !ev.IsPartial() || ev.Content == nil || ev.Content.Role != "assistant" {
		return Fragment{}, false
	}
	text := ev.Content.Text()
	if text == "" {
		return Fragment{}, false
	}
	return Fragment{Text: text}, true
}

// finalText extracts the committed answer from a turn-completing event.
func finalText(ev core.Event) (string, bool) {
	if ev.IsPartial() || ev.TurnComplete == nil || !*ev.TurnComplete || ev.Content == nil {
		return "", false
	}
	return ev.Content.Text(), true
}
