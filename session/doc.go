// Package session provides SessionStore implementations: a volatile in-memory
// store for tests and ephemeral chats, an embedded SQLite store for local
// persistent deployments, and a Postgres store for networked ones. All three
// expose the same contract: one read per turn plus appends per event.
package session
