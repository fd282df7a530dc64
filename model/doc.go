// Package model defines the normalized chat-completion contract between the
// travel agent and concrete language-model providers. The agent builds a
// Request (instructions, conversation contents, tool definitions) and receives
// a stream of Response chunks over a channel, independent of which provider
// produced them.
//
// Concrete adapters live in the openai and anthropic sub-packages. MockModel
// and ScriptedModel provide deterministic implementations for tests.
package model
