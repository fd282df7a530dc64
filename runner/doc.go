// Package runner coordinates conversation turns: it loads the session,
// records the user message, executes the agent, persists every completed
// event plus its state delta, and relays the event stream to the caller.
// Public methods are safe for concurrent use.
package runner
