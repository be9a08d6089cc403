package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Callbacks provide a flexible mechanism for hooking into the run loop
// without modifying core logic. Each type represents a specific point in the
// state machine where custom logic can be injected.
//
// Available callback types:
//   - BeforeStep/AfterStep: Around a single agent step
//   - BeforeTool/AfterTool: Around individual tool executions
//   - OnHandoff: After a legal transfer of control
//   - OnTerminal/OnFailure: When the run reaches an absorbing state
//
// Callbacks are executed synchronously. An error returned by a Before*,
// After* or OnHandoff callback fails the run; errors of OnTerminal and
// OnFailure callbacks are logged only.
type CallbackType string

const (
	// CallbackBeforeStep is triggered before an agent step.
	CallbackBeforeStep CallbackType = "before_step"

	// CallbackAfterStep is triggered after an agent step produced an action.
	CallbackAfterStep CallbackType = "after_step"

	// CallbackBeforeTool is triggered before tool execution.
	// Use for parameter auditing or security checks.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered after tool execution, successful or not.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnHandoff is triggered after control moved to another agent,
	// including implicit returns to the entry agent.
	CallbackOnHandoff CallbackType = "on_handoff"

	// CallbackOnTerminal is triggered when the run produced its result.
	CallbackOnTerminal CallbackType = "on_terminal"

	// CallbackOnFailure is triggered when the run failed.
	CallbackOnFailure CallbackType = "on_failure"
)

// CallbackContext provides context information for callback execution.
// Fields not relevant to the callback type are left zero.
type CallbackContext struct {
	// RunID identifies the run.
	RunID string

	// Agent is the active agent.
	Agent string

	// Action is the action produced by the step (After* and OnHandoff).
	Action *core.Action

	// Outcome is the tool outcome (AfterTool).
	Outcome *tool.Outcome

	// Transition is the transition just performed (OnHandoff, AfterTool).
	Transition *Transition

	// Depth is the number of counted transitions so far.
	Depth int

	// Result is the terminal payload (OnTerminal).
	Result *core.Result

	// Err is the run failure (OnFailure).
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for run lifecycle hooks.
//
// Implementations should be fast and must be safe for concurrent use:
// a single engine serves many runs.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackBeforeTool,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("agent %s calls %s", cc.Agent, cc.Action.Tool)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes callbacks by type. Callbacks run in registration
// order; the first error stops the chain.
//
// Registration is not synchronized and must complete before the first run.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil
	}

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackOnHandoff, func(msg string) {
//	    log.Printf("[RELAY] %s", msg)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event with the run, agent and action.
func (c *LoggingCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] run=%s agent=%s depth=%d",
		c.callbackType, callbackCtx.RunID, callbackCtx.Agent, callbackCtx.Depth)
	if callbackCtx.Action != nil {
		message += " action=" + callbackCtx.Action.String()
	}
	if callbackCtx.Err != nil {
		message += " error=" + callbackCtx.Err.Error()
	}
	c.logger(message)
	return nil
}
