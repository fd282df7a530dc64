// Package travel contains the domain pieces of the trip-planning assistant:
// the places-search and hourly-weather REST connectors, the traveler profile
// policy (clarify-before-plan, four recommendation dimensions) and the
// persona / workflow instructions given to the model.
//
// Connectors are stateless. Every invocation returns a plain string, including
// failures: the orchestrating agent expects string results from every tool
// call and has no separate error channel, so configuration problems, upstream
// failures and transport errors all surface as descriptive error strings.
// Missing data is represented with an explicit sentinel, never a fabricated
// value.
package travel
