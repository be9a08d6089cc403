// Package agent implements the bound persona that drives one step of an
// orchestration run. An Agent combines instructions, a tool-choice policy,
// a read-only subset of the shared tool catalog and a completion capability.
//
// Step is a pure function of its inputs:
//
//	(instructions, policy, tool subset, history) -> core.Action
//
// The returned Action is one of Answer, Invoke or Handoff. Agents never
// mutate the history; recording messages and executing tools belong to the
// engine.
//
// Tool choice policies:
//   - None: only transfer tools are offered; the agent answers or hands off
//   - Auto: bound tools plus transfer tools, the model decides
//   - Required(t): the first sub-turn forces a call of t; later sub-turns
//     behave like Auto
package agent
