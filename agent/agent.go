package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/internal/util"
	"github.com/tripmate-ai/tripmate/logging"
	"github.com/tripmate-ai/tripmate/model"
	"github.com/tripmate-ai/tripmate/tool"
)

// PreflightFunc runs before any model call for a turn. When it returns
// halt=true the agent emits reply as the final assistant response and makes
// no model or tool invocation. It may stage state mutations on the run
// context (e.g. extracted traveler facts).
type PreflightFunc func(rc *core.RunContext, userText string) (reply string, halt bool)

// PostcheckFunc audits the final answer of a turn in which at least one tool
// was called. It returns the policy violations found; the agent logs them.
type PostcheckFunc func(answer string, toolsCalled []string) []string

// Options configures a TravelAgent instance.
type Options struct {
	Instruction        Instruction
	EnableStreaming    bool
	MaxHistoryMessages int
	MaxModelCalls      int
	Preflight          PreflightFunc
	Postcheck          PostcheckFunc
}

// TravelAgent couples a language model with a tool registry and drives the
// model -> tool -> model loop for one conversation turn at a time.
type TravelAgent struct {
	name            string
	llm             model.Model
	registry        *tool.Registry
	instruction     Instruction
	enableStreaming bool
	maxHistory      int
	maxModelCalls   int
	preflight       PreflightFunc
	postcheck       PostcheckFunc
}

// New creates an agent with sensible defaults: streaming enabled, a
// 20-message history window and at most 10 model calls per turn.
func New(name string, llm model.Model, registry *tool.Registry, optFns ...func(o *Options)) *TravelAgent {
	opts := Options{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful travel assistant.", name)),
		EnableStreaming:    true,
		MaxHistoryMessages: 20,
		MaxModelCalls:      10,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if registry == nil {
		registry = tool.NewRegistry()
	}

	return &TravelAgent{
		name:            name,
		llm:             llm,
		registry:        registry,
		instruction:     opts.Instruction,
		enableStreaming: opts.EnableStreaming,
		maxHistory:      opts.MaxHistoryMessages,
		maxModelCalls:   opts.MaxModelCalls,
		preflight:       opts.Preflight,
		postcheck:       opts.Postcheck,
	}
}

// Name returns the agent's display name, used as the author of its events.
func (a *TravelAgent) Name() string { return a.name }

// Tools returns the agent's tool registry.
func (a *TravelAgent) Tools() *tool.Registry { return a.registry }

// MaxModelCalls returns the per-turn model call budget.
func (a *TravelAgent) MaxModelCalls() int { return a.maxModelCalls }

// Run executes one conversation turn. Events are emitted through the run
// context; non-partial events block until the runner signals persistence via
// the resume channel.
func (a *TravelAgent) Run(rc *core.RunContext) error {
	rc.LogDebug("agent.run.start", "agent", a.name, "turn", rc.TurnID)

	if a.preflight != nil {
		if reply, halt := a.preflight(rc, rc.UserContent.Text()); halt {
			rc.LogInfo("agent.preflight.halt", "agent", a.name, "turn", rc.TurnID)
			return a.emitFinalText(rc, reply)
		}
	}

	var toolsCalled []string
	var finalText string

	for {
		last, err := a.runOnce(rc, &toolsCalled)
		if err != nil {
			return err
		}
		if last == nil {
			break
		}
		// A tool response means the model gets another turn with the result
		if len(last.GetFunctionResponses()) > 0 {
			continue
		}
		if last.IsFinalResponse() {
			if last.Content != nil {
				finalText = last.Content.Text()
			}
			break
		}
	}

	if a.postcheck != nil && len(toolsCalled) > 0 && finalText != "" {
		if violations := a.postcheck(finalText, toolsCalled); len(violations) > 0 {
			rc.LogWarn(
				"agent.policy.violations",
				"agent", a.name,
				"turn", rc.TurnID,
				"violations", violations,
			)
		}
	}

	rc.LogDebug("agent.run.complete", "agent", a.name, "turn", rc.TurnID)
	return nil
}

// emitFinalText emits a single complete assistant message ending the turn.
func (a *TravelAgent) emitFinalText(rc *core.RunContext, text string) error {
	ev := core.NewAssistantMessageEvent(rc.TurnID, a.name, text)
	partial := false
	complete := true
	ev.Partial = &partial
	ev.TurnComplete = &complete

	if err := rc.EmitEvent(ev); err != nil {
		return err
	}
	return rc.WaitForResume()
}

// runOnce performs one model call including any tool executions it requests,
// and returns the last emitted event. A nil event signals termination.
func (a *TravelAgent) runOnce(rc *core.RunContext, toolsCalled *[]string) (*core.Event, error) {
	// Refresh so the request reflects tool responses persisted by the runner
	if rc.SessionStore != nil {
		if err := rc.RefreshSession(); err != nil {
			rc.LogWarn("agent.session.refresh_failed", "agent", a.name, "error", err.Error())
		}
	}

	if err := rc.Limiter.Increment(); err != nil {
		return nil, a.emitTurnError(rc, err)
	}

	req, err := a.buildRequest(rc)
	if err != nil {
		return nil, a.emitTurnError(rc, err)
	}

	callStart := time.Now()
	respCh, errCh := a.llm.Generate(rc.Context, req)

	var lastEvent *core.Event
	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				logging.LogModelCall(rc.Logger(), a.llm.Info().Name, time.Since(callStart), nil)
				return lastEvent, nil
			}

			ev := core.NewEvent(rc.TurnID, a.name)
			content := resp.Content
			ev.Content = &content
			partial := resp.Partial
			ev.Partial = &partial
			if !resp.Partial && len(ev.GetFunctionCalls()) == 0 {
				complete := true
				ev.TurnComplete = &complete
			}
			lastEvent = &ev

			if err := rc.EmitEvent(ev); err != nil {
				return lastEvent, err
			}
			if !ev.IsPartial() {
				if err := rc.WaitForResume(); err != nil {
					return lastEvent, err
				}
			}

			if fnCalls := ev.GetFunctionCalls(); len(fnCalls) > 0 {
				last, err := a.executeFunctionCalls(rc, fnCalls, toolsCalled)
				if err != nil {
					return lastEvent, err
				}
				lastEvent = last
			}

		case genErr, ok := <-errCh:
			if !ok {
				// Stop selecting on the closed channel; respCh ends the loop
				errCh = nil
				continue
			}
			if genErr != nil {
				logging.LogModelCall(rc.Logger(), a.llm.Info().Name, time.Since(callStart), genErr)
				return nil, a.emitTurnError(rc, genErr)
			}

		case <-rc.Done():
			return lastEvent, rc.Err()
		}
	}
}

// executeFunctionCalls runs the requested tools sequentially in order and
// emits one function response event per call. Tool failures become response
// payloads for the model to react to; they do not abort the turn.
func (a *TravelAgent) executeFunctionCalls(
	rc *core.RunContext,
	fnCalls []core.FunctionCall,
	toolsCalled *[]string,
) (*core.Event, error) {
	var lastEvent *core.Event

	for _, fc := range fnCalls {
		toolCtx := core.NewToolContext(rc, fc.ID)

		start := time.Now()
		result, err := a.executeTool(toolCtx, fc.Name, fc.Arguments)
		logging.LogToolCall(rc.Logger(), fc.Name, time.Since(start), err)

		*toolsCalled = append(*toolsCalled, fc.Name)

		respEv := core.NewFunctionResponseEvent(rc.TurnID, a.name, fc.ID, fc.Name, result, err)
		toolCtx.InternalApplyActions(&respEv)
		lastEvent = &respEv

		if err := rc.EmitEvent(respEv); err != nil {
			return lastEvent, err
		}
		if err := rc.WaitForResume(); err != nil {
			return lastEvent, err
		}
	}

	return lastEvent, nil
}

// executeTool looks up and invokes a registered tool, guarding against panics
// so a misbehaving tool cannot take down the turn.
func (a *TravelAgent) executeTool(toolCtx *core.ToolContext, toolName, args string) (result any, err error) {
	impl, ok := a.registry.Get(toolName)
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			toolCtx.Logger().Error("agent.tool.panic", "tool", toolName, "recover", r)
			result, err = nil, fmt.Errorf("tool %s panicked", toolName)
		}
	}()

	return impl.Call(toolCtx, argMap)
}

// buildRequest assembles instructions, the windowed conversation history and
// tool declarations into one model request.
func (a *TravelAgent) buildRequest(rc *core.RunContext) (model.Request, error) {
	instructions, err := a.instruction.Resolve(rc)
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to resolve instruction: %w", err)
	}
	if rc.Session != nil && rc.Session.State != nil {
		instructions, err = util.RenderTemplate(instructions, rc.Session.State)
		if err != nil {
			return model.Request{}, fmt.Errorf("failed to render instruction template: %w", err)
		}
	}

	contents := []core.Content{{
		Role:  "system",
		Parts: []core.Part{core.TextPart{Text: instructions}},
	}}

	if rc.Session != nil {
		events := rc.Session.GetConversationHistory()
		if a.maxHistory > 0 && len(events) > a.maxHistory {
			events = events[len(events)-a.maxHistory:]
		}
		for _, ev := range events {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				contents = append(contents, *ev.Content)
			}
		}
	}

	return model.Request{
		Instructions: instructions,
		Contents:     contents,
		Tools:        a.registry.Definitions(),
		Stream:       a.enableStreaming,
	}, nil
}

// emitTurnError surfaces a turn failure as a system error event and reports
// the original error to the caller.
func (a *TravelAgent) emitTurnError(rc *core.RunContext, err error) error {
	rc.LogError("agent.turn.error", "agent", a.name, "turn", rc.TurnID, "error", err.Error())
	ev := core.NewErrorEvent(rc.TurnID, err)
	if emitErr := rc.EmitEvent(ev); emitErr != nil {
		return emitErr
	}
	_ = rc.WaitForResume()
	return err
}
