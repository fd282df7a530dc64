package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripmate-ai/tripmate/core"
)

// scriptedRunner replays a fixed event stream per Send call.
type scriptedRunner struct {
	events []core.Event
	errs   []error
	runErr error
	calls  int
}

func (r *scriptedRunner) Run(
	_ context.Context,
	_ string,
	_ core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	r.calls++
	if r.runErr != nil {
		return "", nil, nil, r.runErr
	}

	eventsCh := make(chan core.Event, len(r.events)+1)
	errsCh := make(chan error, len(r.errs)+1)
	for _, ev := range r.events {
		eventsCh <- ev
	}
	for _, err := range r.errs {
		errsCh <- err
	}
	close(eventsCh)
	close(errsCh)
	return core.NewID(), eventsCh, errsCh, nil
}

// recordingRenderer captures every display callback and the driver state at
// the moment it fired.
type recordingRenderer struct {
	driver       *Driver
	partials     []string
	final        string
	finalCalls   int
	errs         []error
	statesAtFrag []State
}

func (r *recordingRenderer) Fragment(_ Fragment, accumulated string) {
	r.partials = append(r.partials, accumulated)
	if r.driver != nil {
		r.statesAtFrag = append(r.statesAtFrag, r.driver.State())
	}
}

func (r *recordingRenderer) Final(text string) {
	r.final = text
	r.finalCalls++
}

func (r *recordingRenderer) Error(err error) {
	r.errs = append(r.errs, err)
}

func partialEvent(text string) core.Event {
	ev := core.NewEvent("t1", "TripMate")
	partial := true
	ev.Partial = &partial
	ev.Content = &core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: text}}}
	return ev
}

func finalEvent(text string) core.Event {
	ev := core.NewAssistantMessageEvent("t1", "TripMate", text)
	partial := false
	complete := true
	ev.Partial = &partial
	ev.TurnComplete = &complete
	return ev
}

func TestDriver_StreamedTurn(t *testing.T) {
	r := &scriptedRunner{events: []core.Event{
		partialEvent("大理"),
		partialEvent("欢迎你"),
		finalEvent("大理欢迎你"),
	}}
	rec := &recordingRenderer{}
	d := NewDriver(r, "s1", func(o *Options) { o.Renderer = rec })
	rec.driver = d

	answer, err := d.Send(context.Background(), "我想去大理")
	require.NoError(t, err)
	assert.Equal(t, "大理欢迎你", answer)

	// Fragments accumulate with a trailing cursor marker
	require.Len(t, rec.partials, 2)
	assert.Equal(t, "大理"+CursorMarker, rec.partials[0])
	assert.Equal(t, "大理欢迎你"+CursorMarker, rec.partials[1])
	assert.Equal(t, "大理欢迎你", rec.final)

	// Streaming state was visible while fragments arrived, idle after
	for _, s := range rec.statesAtFrag {
		assert.Equal(t, StateStreaming, s)
	}
	assert.Equal(t, StateIdle, d.State())

	// Transcript holds the user turn then the committed assistant turn
	turns := d.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: "user", Content: "我想去大理"}, turns[0])
	assert.Equal(t, Turn{Role: "assistant", Content: "大理欢迎你"}, turns[1])
}

func TestDriver_NonStreamedTurn(t *testing.T) {
	r := &scriptedRunner{events: []core.Event{finalEvent("一句话回答")}}
	rec := &recordingRenderer{}
	d := NewDriver(r, "s1", func(o *Options) { o.Renderer = rec })

	answer, err := d.Send(context.Background(), "你好")
	require.NoError(t, err)
	assert.Equal(t, "一句话回答", answer)
	assert.Empty(t, rec.partials)
	assert.Equal(t, 1, rec.finalCalls)
}

func TestDriver_ToolEventsStayInternal(t *testing.T) {
	callEv := core.NewFunctionCallEvent("t1", "TripMate", "hourly_weather", `{"location":"Dali"}`)
	respEv := core.NewFunctionResponseEvent("t1", "TripMate", "fc1", "hourly_weather", "sunny", nil)

	r := &scriptedRunner{events: []core.Event{callEv, respEv, finalEvent("天气不错")}}
	rec := &recordingRenderer{}
	d := NewDriver(r, "s1", func(o *Options) { o.Renderer = rec })

	answer, err := d.Send(context.Background(), "大理天气")
	require.NoError(t, err)
	assert.Equal(t, "天气不错", answer)
	assert.Empty(t, rec.partials, "tool traffic must not reach the display")
}

func TestDriver_RunErrorLeavesTranscriptClean(t *testing.T) {
	r := &scriptedRunner{runErr: errors.New("model unavailable")}
	rec := &recordingRenderer{}
	d := NewDriver(r, "s1", func(o *Options) { o.Renderer = rec })

	_, err := d.Send(context.Background(), "你好")
	require.Error(t, err)

	// User turn appended before the network call; no assistant turn committed
	turns := d.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, StateIdle, d.State())
	require.Len(t, rec.errs, 1)
}

func TestDriver_MidStreamFailure(t *testing.T) {
	r := &scriptedRunner{
		events: []core.Event{partialEvent("部分")},
		errs:   []error{errors.New("agent execution failed: boom")},
	}
	rec := &recordingRenderer{}
	d := NewDriver(r, "s1", func(o *Options) { o.Renderer = rec })

	_, err := d.Send(context.Background(), "你好")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	turns := d.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, 0, rec.finalCalls)
	assert.Equal(t, StateIdle, d.State())
}

func TestDriver_ErrorEventFailsTurn(t *testing.T) {
	errEv := core.NewErrorEvent("t1", errors.New("exceeded max model calls: 3"))
	r := &scriptedRunner{events: []core.Event{errEv}}
	rec := &recordingRenderer{}
	d := NewDriver(r, "s1", func(o *Options) { o.Renderer = rec })

	_, err := d.Send(context.Background(), "你好")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded max model calls")
	assert.Len(t, d.Transcript(), 1)
}

func TestTerminalRenderer(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTerminalRenderer(&buf)

	tr.Fragment(Fragment{Text: "hel"}, "hel"+CursorMarker)
	tr.Fragment(Fragment{Text: "lo"}, "hello"+CursorMarker)
	tr.Final("hello")
	assert.Equal(t, "hello\n", buf.String())

	buf.Reset()
	tr.Final("whole answer")
	assert.Equal(t, "whole answer\n", buf.String())

	buf.Reset()
	tr.Error(errors.New("boom"))
	assert.True(t, strings.Contains(buf.String(), "boom"))
}
