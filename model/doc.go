// Package model defines the provider‑agnostic completion capability used by
// agents inside agentrelay.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool definitions, tool choice and tool call representation
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so agents and the orchestrator remain decoupled from vendor SDKs.
// Complete drains a Generate call into its final response and maps provider
// content-filter refusals onto core.ErrContentPolicyViolation.
package model
