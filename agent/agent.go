package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

// DefaultPolicyRetries is the number of times a step violating a Required
// policy is re-solicited before it fails.
const DefaultPolicyRetries = 2

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	Description   string
	Instruction   Instruction
	Policy        core.ToolChoicePolicy
	Tools         []string
	PolicyRetries int
	Stream        bool
	Logger        logging.Logger
}

// Transfer describes one legal handoff target offered to the agent for a
// step. Rationale becomes the transfer tool description.
type Transfer struct {
	Target    string
	Rationale string
}

// Turn carries the inputs of a single step.
type Turn struct {
	// History is a snapshot of the shared conversation.
	History []core.Message
	// Transfers lists the outgoing handoff edges of the agent.
	Transfers []Transfer
	// SubTurn counts the steps the agent already took since it last gained
	// control. Required policies only force the tool on sub-turn 0.
	SubTurn int
	// Vars are rendered into the instruction template.
	Vars map[string]any
	// Guidance is appended to the instructions for this step only, for
	// example after a content-policy refusal.
	Guidance string
}

// Agent is a bound persona: instructions, a tool-choice policy, a read-only
// subset of the tool catalog and a completion capability. Agents are
// immutable after New and safe for concurrent use by independent runs.
type Agent struct {
	name          string
	description   string
	llm           model.Model
	instruction   Instruction
	policy        core.ToolChoicePolicy
	tools         []tool.Tool
	bound         map[string]bool
	policyRetries int
	stream        bool
	logger        logging.Logger
}

// New creates an agent bound to the named catalog tools.
//
// It fails when a bound tool is unknown to the catalog or when a Required
// policy names a tool outside the bound subset.
func New(name string, llm model.Model, catalog *tool.Catalog, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		Instruction:   NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		Policy:        core.Auto(),
		PolicyRetries: DefaultPolicyRetries,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, errors.New("agent name is required")
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %s: model is required", name)
	}
	if opts.PolicyRetries < 0 {
		opts.PolicyRetries = 0
	}

	var tools []tool.Tool
	if len(opts.Tools) > 0 {
		if catalog == nil {
			return nil, fmt.Errorf("agent %s: tools bound without a catalog", name)
		}
		resolved, err := catalog.Resolve(opts.Tools...)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		tools = resolved
	}

	bound := make(map[string]bool, len(tools))
	for _, t := range tools {
		bound[t.Name()] = true
	}
	if opts.Policy.Kind() == core.PolicyRequired && !bound[opts.Policy.Tool()] {
		return nil, fmt.Errorf("agent %s: %w: required tool %s is not bound to the agent",
			name, core.ErrUnknownTool, opts.Policy.Tool())
	}

	return &Agent{
		name:          name,
		description:   opts.Description,
		llm:           llm,
		instruction:   opts.Instruction,
		policy:        opts.Policy,
		tools:         tools,
		bound:         bound,
		policyRetries: opts.PolicyRetries,
		stream:        opts.Stream,
		logger:        logging.OrNoOp(opts.Logger),
	}, nil
}

// Name returns the unique agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the human readable description.
func (a *Agent) Description() string { return a.description }

// Policy returns the tool choice policy.
func (a *Agent) Policy() core.ToolChoicePolicy { return a.policy }

// Model returns the completion capability.
func (a *Agent) Model() model.Model { return a.llm }

// Tools returns the names of the bound tools in binding order.
func (a *Agent) Tools() []string {
	names := make([]string, len(a.tools))
	for i, t := range a.tools {
		names[i] = t.Name()
	}
	return names
}

// HasTool reports whether name is bound to the agent.
func (a *Agent) HasTool(name string) bool { return a.bound[name] }

// Step asks the completion capability for the agent's next action.
func (a *Agent) Step(ctx context.Context, turn Turn) (core.Action, error) {
	instructions, err := a.instruction.Resolve(ctx, turn.Vars)
	if err != nil {
		return core.Action{}, fmt.Errorf("agent %s: resolve instructions: %w", a.name, err)
	}
	if turn.Guidance != "" {
		instructions = joinInstructions(instructions, turn.Guidance)
	}

	req := a.buildRequest(instructions, turn)
	forced := req.ToolChoice.Mode == model.ToolChoiceNamed

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := model.Complete(ctx, a.llm, req)
		a.logModelCall(resp, time.Since(start), err)
		if err != nil {
			return core.Action{}, fmt.Errorf("agent %s: %w", a.name, err)
		}

		action, err := a.classify(resp.Message)
		if err == nil && (!forced || (action.Kind == core.ActionInvoke && action.Tool == a.policy.Tool())) {
			return action, nil
		}

		if !forced {
			return core.Action{}, err
		}
		if attempt >= a.policyRetries {
			return core.Action{}, fmt.Errorf("agent %s: %w: expected a call of %s, got %s",
				a.name, core.ErrPolicyViolation, a.policy.Tool(), describe(action, err))
		}

		a.logger.Warn("agent.step.policy_retry",
			"agent", a.name,
			"required", a.policy.Tool(),
			"got", describe(action, err),
			"attempt", attempt+1,
		)
		req.Instructions = joinInstructions(instructions,
			fmt.Sprintf("You must call the tool %s now, before answering or transferring.", a.policy.Tool()))
	}
}

func (a *Agent) logModelCall(resp model.Response, dur time.Duration, err error) {
	rl, ok := a.logger.(*logging.RelayLogger)
	if !ok {
		return
	}
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	rl.LogModelCall(a.llm.Info().Name, tokens, dur, err)
}

func (a *Agent) buildRequest(instructions string, turn Turn) model.Request {
	var offered []tool.Tool
	if a.policy.Kind() != core.PolicyNone {
		offered = append(offered, a.tools...)
	}
	for _, tr := range turn.Transfers {
		offered = append(offered, tool.NewTransferTool(tr.Target, tr.Rationale))
	}

	req := model.Request{
		Instructions: instructions,
		Messages:     turn.History,
		Tools:        tool.Definitions(offered),
		Stream:       a.stream,
	}
	if a.policy.Kind() == core.PolicyRequired && turn.SubTurn == 0 {
		req.ToolChoice = model.ToolChoice{Mode: model.ToolChoiceNamed, Name: a.policy.Tool()}
	}
	return req
}

// classify maps a completion onto an Action. Only the first tool call is
// honored; runs are strictly sequential.
func (a *Agent) classify(msg core.Message) (core.Action, error) {
	if !msg.HasToolCalls() {
		return core.Answer(msg.Content), nil
	}
	if len(msg.ToolCalls) > 1 {
		a.logger.Warn("agent.step.extra_tool_calls_dropped", "agent", a.name, "count", len(msg.ToolCalls)-1)
	}

	call := msg.ToolCalls[0]
	callID := call.ID
	if callID == "" {
		callID = core.NewToolCallID()
	}
	args := call.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	if target, ok := tool.ParseTransferName(call.Name); ok {
		return core.Handoff(callID, target, tool.ParseTransferReason(args)), nil
	}
	if a.policy.Kind() != core.PolicyNone && a.bound[call.Name] {
		return core.Invoke(callID, call.Name, args), nil
	}
	return core.Action{}, fmt.Errorf("agent %s: %w: %s", a.name, core.ErrUnknownTool, call.Name)
}

func describe(action core.Action, err error) string {
	if err != nil {
		return err.Error()
	}
	return action.String()
}

func joinInstructions(base, extra string) string {
	if base == "" {
		return extra
	}
	return base + "\n\n" + extra
}
