package chat

import (
	"fmt"
	"io"
)

// Renderer receives display updates from the driver. Fragment is called once
// per streamed fragment with the fragment itself and the accumulated partial
// text (trailing cursor marker included); Final commits the completed answer;
// Error surfaces a failed turn.
type Renderer interface {
	Fragment(frag Fragment, accumulated string)
	Final(text string)
	Error(err error)
}

// NoOpRenderer discards all updates. Useful when callers only want the
// returned answer text.
type NoOpRenderer struct{}

func (NoOpRenderer) Fragment(Fragment, string) {}
func (NoOpRenderer) Final(string)              {}
func (NoOpRenderer) Error(error)               {}

// TerminalRenderer streams fragments to a writer as they arrive, terminating
// the answer with a newline. Suited to a line-oriented chat REPL.
type TerminalRenderer struct {
	w        io.Writer
	streamed bool
}

// NewTerminalRenderer creates a renderer writing to w.
func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	return &TerminalRenderer{w: w}
}

// Fragment prints the newly arrived text, producing a typewriter effect.
func (r *TerminalRenderer) Fragment(frag Fragment, _ string) {
	r.streamed = true
	fmt.Fprint(r.w, frag.Text)
}

// Final terminates the streamed answer. Non-streamed answers (no fragments
// arrived) are printed whole.
func (r *TerminalRenderer) Final(text string) {
	if !r.streamed {
		fmt.Fprint(r.w, text)
	}
	r.streamed = false
	fmt.Fprintln(r.w)
}

// Error prints a visible error line.
func (r *TerminalRenderer) Error(err error) {
	fmt.Fprintf(r.w, "\nerror: %v\n", err)
}
