// Package agent implements the single conversational agent that drives one
// model turn loop per user message: resolve instructions, window the
// conversation history, call the model, execute any requested tools, feed
// results back, and emit streaming events until a final response.
//
// Deterministic policy hooks run around the model: a preflight can
// short-circuit a turn into a fixed reply before any model or tool call, and
// a postcheck audits the final answer after tools were used.
package agent
