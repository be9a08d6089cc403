// Package runner executes orchestration runs asynchronously.
//
// A Runner wraps an engine.Engine: Start launches a run in the background and
// returns its ID together with a channel streaming the run's events; Cancel
// stops a run; Wait blocks until a run has finished. Every finished run is
// persisted as a session.Transcript, and a run can continue the latest
// transcript of its session to hold a multi-turn conversation.
//
// The number of concurrently executing runs is bounded by
// Options.MaxConcurrentRuns. Public methods are safe for concurrent use.
package runner
