// Package engine implements the orchestration state machine of agentrelay.
//
// An Engine drives runs over a handoff graph. Every run owns an append-only
// history opened by a System persona and the user input; the active agent
// steps over that history and produces one action per step:
//
//   - Answer: free text. Entry agent answers are judged by the completion
//     predicate; a qualifying answer ends the run in the Terminal state.
//     Sub-agent answers are reports: in implicit return mode they hand
//     control back to the entry agent, in explicit return mode the
//     sub-agent keeps control and must transfer back along an edge.
//   - Invoke: a call of a catalog tool. The run waits in the AwaitingTool
//     state, and the tool result (or its failure as {"error": ...}) is
//     appended as a Tool message for the same agent to read.
//   - Handoff: a transfer_to_<Agent> call. It is legal only along an edge of
//     the graph and moves control to the target agent.
//
// # State Machine
//
//	Running --Invoke--> AwaitingTool --result--> Running
//	Running --Handoff/return--> Running (other agent)
//	Running --qualifying Answer--> Terminal
//	any --fatal error/deadline/depth--> Failed
//
// # Bounds
//
// Handoffs, tool calls and implicit returns are counted transitions. A run
// that would exceed Options.MaxDepth fails with core.ErrDepthExceeded before
// performing the transition. Options.Timeout bounds the wall time of a run.
//
// # Recovery
//
// Tool failures never fail a run: the error is shown to the agent, which may
// retry with adjusted arguments. Content-policy refusals, whether raised by a
// tool or by the completion provider, are retried with guidance from the
// configured Sanitizer up to Options.MaxContentPolicyRetries consecutive
// times.
//
// # Example
//
//	eng, err := engine.New(graph, catalog, func(o *engine.Options) {
//	    o.MaxDepth = 12
//	    o.Logger = logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	})
//	if err != nil {
//	    return err
//	}
//	run, err := eng.Run(ctx, "Tell me a story about Yoda for Ben Smith.")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(run.Result.Markdown(""))
//
// Lifecycle callbacks (see CallbackType) hook into every step, tool call and
// handoff; observers receive the run's events in order. Runs, steps and tool
// calls are traced with OpenTelemetry spans.
package engine
