// Package core provides the foundational domain types shared by every layer of
// agentrelay. It defines:
//
//   - Messages and the append-only History shared by all agents of a run
//   - Tool-choice policies attached to agents (None, Auto, Required)
//   - Actions produced by an agent step (Answer, Invoke, Handoff)
//   - The structured terminal Result handed to callers
//   - The run error taxonomy (sentinels plus the tagged RunError)
//   - A depth limiter bounding transitions within a run
//
// The package intentionally keeps implementation concerns (completion
// providers, tool transports, orchestration) out of scope so that the types can
// be shared by reference across concurrently executing runs.
package core
