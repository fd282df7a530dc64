// Package core holds the domain contracts shared by the rest of Tripmate:
// events, role-based content with a closed part set, conversational sessions
// and their storage contract, plus the per-turn execution contexts handed to
// the agent and its tools.
//
// Everything here is storage- and provider-agnostic. Concrete session backends
// live in the session package, model adapters under model/, and the travel
// connectors under travel/.
package core
