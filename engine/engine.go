package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

const tracerName = "github.com/hupe1980/agentrelay/engine"

// Defaults applied by New.
const (
	DefaultMaxDepth                = 25
	DefaultTimeout                 = 300 * time.Second
	DefaultMaxContentPolicyRetries = 2
	DefaultSystemPrompt            = "You are a helpful assistant."
)

// ReturnMode selects what happens when a non-entry agent answers.
type ReturnMode int

const (
	// ReturnImplicit hands control back to the entry agent; the answer stays
	// in the history as the sub-agent's report.
	ReturnImplicit ReturnMode = iota
	// ReturnExplicit keeps control with a sub-agent after it answered; the
	// answer stays in the history as its report and the sub-agent must hand
	// control back through one of its edges. A sub-agent that answers again
	// instead fails the run with ErrIllegalTransition. Only the entry agent
	// produces the terminal result in either mode.
	ReturnExplicit
)

// CompletionFunc decides whether an answer is the run's final payload.
// It returns an error when the text does not qualify.
type CompletionFunc func(text string) (core.Result, error)

// AcceptText accepts any non-blank answer as the terminal result. It suits
// conversational runs without a structured payload.
func AcceptText(text string) (core.Result, error) {
	if strings.TrimSpace(text) == "" {
		return core.Result{}, fmt.Errorf("%w: empty answer", core.ErrMalformedTerminalPayload)
	}
	return core.Result{Body: text}, nil
}

// Options configures an Engine instance.
type Options struct {
	// MaxDepth bounds the counted transitions of a run. 0 disables the bound.
	MaxDepth int

	// Timeout is the run deadline. 0 disables it.
	Timeout time.Duration

	// ReturnMode selects implicit or explicit returns of sub-agents.
	ReturnMode ReturnMode

	// Completion is the terminal predicate. Defaults to core.ParseResult.
	Completion CompletionFunc

	// Sanitizer produces guidance after content-policy refusals.
	Sanitizer Sanitizer

	// MaxContentPolicyRetries bounds consecutive content-policy recoveries.
	MaxContentPolicyRetries int

	// SystemPrompt opens the history of every fresh run.
	SystemPrompt string

	// Vars are default template variables of every run.
	Vars map[string]any

	// Callbacks are lifecycle hooks.
	Callbacks []Callback

	// Tracer records run, step and tool spans.
	Tracer trace.Tracer

	// Logger provides structured logging.
	Logger logging.Logger
}

// Engine drives orchestration runs over a handoff graph. The graph and the
// catalog are shared read-only by all runs; each run owns its history.
type Engine struct {
	graph      *handoff.Graph
	catalog    *tool.Catalog
	opts       Options
	callbacks  *CallbackManager
	tracer     trace.Tracer
	logger     logging.Logger
	completion CompletionFunc
	sanitizer  Sanitizer
}

// New creates an engine for graph. The graph is validated and the catalog
// is sealed so that runs never observe a partial catalog.
func New(graph *handoff.Graph, catalog *tool.Catalog, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		MaxDepth:                DefaultMaxDepth,
		Timeout:                 DefaultTimeout,
		ReturnMode:              ReturnImplicit,
		MaxContentPolicyRetries: DefaultMaxContentPolicyRetries,
		SystemPrompt:            DefaultSystemPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if graph == nil {
		return nil, errors.New("engine: graph is required")
	}
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.ReturnMode == ReturnExplicit {
		for _, name := range graph.Agents() {
			if name != graph.Entry() && len(graph.EdgesFrom(name)) == 0 {
				return nil, fmt.Errorf("engine: %w: %s has no edge to return control in explicit mode",
					core.ErrIllegalTransition, name)
			}
		}
	}
	if catalog == nil {
		catalog = tool.NewCatalog()
	}
	catalog.Seal()

	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.MaxContentPolicyRetries < 0 {
		opts.MaxContentPolicyRetries = 0
	}

	e := &Engine{
		graph:      graph,
		catalog:    catalog,
		opts:       opts,
		callbacks:  NewCallbackManager(),
		tracer:     opts.Tracer,
		logger:     logging.OrNoOp(opts.Logger),
		completion: opts.Completion,
		sanitizer:  opts.Sanitizer,
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.completion == nil {
		e.completion = core.ParseResult
	}
	if e.sanitizer == nil {
		e.sanitizer = DefaultSanitizer
	}
	for _, cb := range opts.Callbacks {
		e.callbacks.RegisterCallback(cb)
	}
	return e, nil
}

// Graph returns the handoff graph.
func (e *Engine) Graph() *handoff.Graph { return e.graph }

// Catalog returns the sealed tool catalog.
func (e *Engine) Catalog() *tool.Catalog { return e.catalog }

// Run executes one orchestration run for input. It returns the run record in
// every case; on failure the error is a *core.RunError.
func (e *Engine) Run(ctx context.Context, input string, optFns ...RunOption) (*Run, error) {
	cfg := runConfig{vars: make(map[string]any, len(e.opts.Vars))}
	for k, v := range e.opts.Vars {
		cfg.vars[k] = v
	}
	for _, fn := range optFns {
		fn(&cfg)
	}
	if cfg.id == "" {
		cfg.id = core.NewID()
	}

	ex := &execution{
		engine:   e,
		cfg:      cfg,
		limiter:  core.NewDepthLimiter(e.opts.MaxDepth),
		active:   e.graph.Entry(),
		logger:   e.logger,
		observer: cfg.observer,
		rec: &Run{
			ID:          cfg.id,
			State:       StateRunning,
			Entry:       e.graph.Entry(),
			ActiveAgent: e.graph.Entry(),
			StartedAt:   time.Now(),
		},
	}
	if rl, ok := e.logger.(*logging.RelayLogger); ok {
		ex.logger = rl.WithRun(cfg.id, e.graph.Entry())
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "agentrelay.run", trace.WithAttributes(
		attribute.String("run.id", cfg.id),
		attribute.String("agent.entry", e.graph.Entry()),
	))
	defer span.End()
	ex.span = span

	if err := ex.openHistory(input); err != nil {
		return ex.fail(ctx, core.ErrInvalidMessage, err)
	}

	ex.logger.Info("engine.run.started", "run_id", cfg.id, "entry", e.graph.Entry())
	return ex.loop(ctx)
}

// execution is the mutable state of one run. It is confined to the goroutine
// calling Run.
type execution struct {
	engine   *Engine
	cfg      runConfig
	history  *core.History
	limiter  *core.DepthLimiter
	active   string
	subTurn  int
	guidance string
	strikes  int
	reports  int
	rec      *Run
	span     trace.Span
	logger   logging.Logger
	observer Observer
}

func (ex *execution) openHistory(input string) error {
	var err error
	if len(ex.cfg.history) > 0 {
		ex.history, err = core.NewHistoryFrom(ex.cfg.history)
		if err != nil {
			return err
		}
	} else {
		ex.history = core.NewHistory(ex.engine.opts.SystemPrompt)
	}
	if input == "" {
		return nil
	}
	return ex.append(core.UserMessage(input))
}

func (ex *execution) loop(ctx context.Context) (*Run, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ex.failContext(ctx, err)
		}

		a, ok := ex.engine.graph.Agent(ex.active)
		if !ok {
			return ex.fail(ctx, core.ErrUnknownAgent, fmt.Errorf("%w: %s", core.ErrUnknownAgent, ex.active))
		}

		action, err := ex.step(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return ex.failContext(ctx, ctx.Err())
			}
			if errors.Is(err, core.ErrContentPolicyViolation) {
				if ferr := ex.recoverCompletion(ctx, err); ferr != nil {
					return ex.fail(ctx, core.ErrContentPolicyViolation, ferr)
				}
				continue
			}
			return ex.fail(ctx, nil, err)
		}
		ex.guidance = ""

		var done bool
		switch action.Kind {
		case core.ActionAnswer:
			done, err = ex.answer(ctx, action)
		case core.ActionInvoke:
			err = ex.invoke(ctx, action)
		case core.ActionHandoff:
			err = ex.handoff(ctx, action)
		default:
			err = fmt.Errorf("unsupported action %s", action.Kind)
		}
		if err != nil {
			return ex.fail(ctx, nil, err)
		}
		if done {
			return ex.rec, nil
		}
	}
}

func (ex *execution) step(ctx context.Context, a *agent.Agent) (core.Action, error) {
	ctx, span := ex.engine.tracer.Start(ctx, "agentrelay.agent.step", trace.WithAttributes(
		attribute.String("agent.name", a.Name()),
		attribute.Int("run.depth", ex.limiter.Count()),
		attribute.Int("agent.sub_turn", ex.subTurn),
	))
	defer span.End()

	cc := ex.callbackContext()
	if err := ex.engine.callbacks.ExecuteCallbacks(ctx, CallbackBeforeStep, cc); err != nil {
		recordError(span, err)
		return core.Action{}, err
	}

	action, err := a.Step(ctx, agent.Turn{
		History:   ex.history.Snapshot(),
		Transfers: ex.engine.graph.Transfers(a.Name()),
		SubTurn:   ex.subTurn,
		Vars:      ex.cfg.vars,
		Guidance:  ex.guidance,
	})
	if err != nil {
		recordError(span, err)
		return core.Action{}, err
	}
	span.SetAttributes(attribute.String("agent.action", action.Kind.String()))

	cc = ex.callbackContext()
	cc.Action = &action
	if err := ex.engine.callbacks.ExecuteCallbacks(ctx, CallbackAfterStep, cc); err != nil {
		recordError(span, err)
		return core.Action{}, err
	}

	ex.logger.Debug("engine.step", "agent", a.Name(), "action", action.String(), "sub_turn", ex.subTurn)
	return action, nil
}

// recoverCompletion feeds sanitizer guidance back after a filtered completion.
func (ex *execution) recoverCompletion(ctx context.Context, cause error) error {
	ex.strikes++
	if ex.strikes > ex.engine.opts.MaxContentPolicyRetries {
		return cause
	}
	ex.guidance = ex.engine.sanitizer.Guidance(ctx, Violation{
		Agent:   ex.active,
		Message: cause.Error(),
		Attempt: ex.strikes,
	})
	ex.logger.Warn("engine.content_policy.retry", "agent", ex.active, "attempt", ex.strikes)
	return nil
}

func (ex *execution) answer(ctx context.Context, action core.Action) (bool, error) {
	if err := ex.append(core.AssistantMessage(ex.active, action.Text)); err != nil {
		return false, err
	}
	ex.strikes = 0

	entry := ex.engine.graph.Entry()
	if ex.active == entry {
		result, err := ex.engine.completion(action.Text)
		if err != nil {
			if !errors.Is(err, core.ErrMalformedTerminalPayload) {
				err = fmt.Errorf("%w: %w", core.ErrMalformedTerminalPayload, err)
			}
			return false, err
		}
		ex.terminate(ctx, result)
		return true, nil
	}

	if ex.engine.opts.ReturnMode == ReturnExplicit {
		return false, ex.report()
	}

	// Implicit return: the answer stays in the history as the report.
	from := ex.active
	if err := ex.transition(TransitionReturn, from, entry, ""); err != nil {
		return false, err
	}
	ex.active = entry
	ex.subTurn = 0
	return false, ex.afterHandoff(ctx, action)
}

// report keeps a sub-agent active after its answer in explicit mode and
// asks it to hand control back.
func (ex *execution) report() error {
	ex.reports++
	if ex.reports > 1 {
		return fmt.Errorf("%w: %s answered again instead of handing control back", core.ErrIllegalTransition, ex.active)
	}
	ex.subTurn++
	ex.guidance = "Your report is recorded in the conversation. Hand control back now by calling one of your transfer tools."
	ex.logger.Debug("engine.report", "agent", ex.active)
	return nil
}

func (ex *execution) invoke(ctx context.Context, action core.Action) error {
	ex.reports = 0
	call := core.ToolCall{ID: action.CallID, Name: action.Tool, Arguments: action.Args}
	if err := ex.append(core.ToolCallMessage(ex.active, call)); err != nil {
		return err
	}
	if _, ok := ex.engine.catalog.Lookup(action.Tool); !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownTool, action.Tool)
	}
	if err := ex.limiter.Increment(); err != nil {
		return err
	}

	ex.rec.State = StateAwaitingTool
	content, outcome, err := ex.callTool(ctx, action)
	if err != nil {
		return err
	}
	if err := ex.append(core.ToolResultMessage(action.CallID, action.Tool, content)); err != nil {
		return err
	}
	ex.rec.State = StateRunning

	tr := ex.record(TransitionTool, ex.active, ex.active, action.Tool)
	ex.subTurn++

	cc := ex.callbackContext()
	cc.Action = &action
	cc.Outcome = &outcome
	cc.Transition = &tr
	return ex.engine.callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, cc)
}

// callTool runs the tool and returns the Tool message content. It fails
// only for structural errors, cancellation or exhausted content-policy
// recoveries.
func (ex *execution) callTool(ctx context.Context, action core.Action) (string, tool.Outcome, error) {
	ctx, span := ex.engine.tracer.Start(ctx, "agentrelay.tool.call", trace.WithAttributes(
		attribute.String("agent.name", ex.active),
		attribute.String("tool.name", action.Tool),
		attribute.Int("run.depth", ex.limiter.Count()),
	))
	defer span.End()

	cc := ex.callbackContext()
	cc.Action = &action
	if err := ex.engine.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, cc); err != nil {
		recordError(span, err)
		return "", tool.Outcome{}, err
	}

	// Tools that ignore cancellation must not keep the run past its
	// deadline; their late result is discarded.
	type invokeResult struct {
		outcome tool.Outcome
		err     error
	}
	done := make(chan invokeResult, 1)
	go func() {
		outcome, err := ex.engine.catalog.Invoke(ctx, action.Tool, action.Args)
		done <- invokeResult{outcome: outcome, err: err}
	}()

	var res invokeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		recordError(span, ctx.Err())
		return "", tool.Outcome{}, ex.contextError(ctx.Err())
	}

	outcome, err := res.outcome, res.err
	if err != nil {
		recordError(span, err)
		return "", tool.Outcome{}, err
	}
	if cerr := ctx.Err(); cerr != nil {
		recordError(span, cerr)
		return "", outcome, ex.contextError(cerr)
	}
	if rl, ok := ex.logger.(*logging.RelayLogger); ok {
		rl.LogToolCall(action.Tool, outcome.Duration, outcome.Err)
	}

	content := outcome.Content
	switch {
	case outcome.Err == nil:
		ex.strikes = 0
	case errors.Is(outcome.Err, core.ErrContentPolicyViolation):
		recordError(span, outcome.Err)
		ex.strikes++
		if ex.strikes > ex.engine.opts.MaxContentPolicyRetries {
			return "", outcome, fmt.Errorf("tool %s: %w", action.Tool, outcome.Err)
		}
		guidance := ex.engine.sanitizer.Guidance(ctx, Violation{
			Agent:   ex.active,
			Tool:    action.Tool,
			Message: outcome.Err.Error(),
			Attempt: ex.strikes,
		})
		content = contentPolicyPayload(outcome.Err, guidance)
		ex.logger.Warn("engine.content_policy.retry", "agent", ex.active, "tool", action.Tool, "attempt", ex.strikes)
	default:
		recordError(span, outcome.Err)
		ex.logger.Warn("tool.invoke.failed", "agent", ex.active, "tool", action.Tool, "error", outcome.Err)
	}

	return content, outcome, nil
}

func (ex *execution) handoff(ctx context.Context, action core.Action) error {
	ex.reports = 0
	name := tool.TransferToolName(action.Target)
	args := "{}"
	if action.Reason != "" {
		raw, _ := json.Marshal(map[string]string{"reason": action.Reason})
		args = string(raw)
	}
	if err := ex.append(core.ToolCallMessage(ex.active, core.ToolCall{ID: action.CallID, Name: name, Arguments: args})); err != nil {
		return err
	}

	if _, ok := ex.engine.graph.Edge(ex.active, action.Target); !ok {
		return fmt.Errorf("%w: no edge %s -> %s", core.ErrIllegalTransition, ex.active, action.Target)
	}
	from := ex.active
	if err := ex.transition(TransitionHandoff, from, action.Target, ""); err != nil {
		return err
	}

	note := fmt.Sprintf("Transferred to %s.", action.Target)
	if err := ex.append(core.ToolResultMessage(action.CallID, name, note)); err != nil {
		return err
	}
	ex.active = action.Target
	ex.subTurn = 0
	return ex.afterHandoff(ctx, action)
}

// transition counts a change of the active agent and records it.
func (ex *execution) transition(kind TransitionKind, from, to, toolName string) error {
	if err := ex.limiter.Increment(); err != nil {
		return err
	}
	ex.record(kind, from, to, toolName)
	return nil
}

func (ex *execution) record(kind TransitionKind, from, to, toolName string) Transition {
	tr := Transition{
		Kind:  kind,
		From:  from,
		To:    to,
		Tool:  toolName,
		Depth: ex.limiter.Count(),
		At:    time.Now(),
	}
	ex.rec.Transitions = append(ex.rec.Transitions, tr)
	ex.rec.Depth = tr.Depth

	if rl, ok := ex.logger.(*logging.RelayLogger); ok {
		rl.LogTransition(string(kind), from, to, tr.Depth)
	} else {
		ex.logger.Debug("engine.transition", "kind", kind, "from", from, "to", to, "depth", tr.Depth)
	}
	ex.emit(Event{Type: EventTransition, Agent: from, Transition: &tr})
	return tr
}

func (ex *execution) afterHandoff(ctx context.Context, action core.Action) error {
	ex.rec.ActiveAgent = ex.active
	last := ex.rec.Transitions[len(ex.rec.Transitions)-1]
	cc := ex.callbackContext()
	cc.Action = &action
	cc.Transition = &last
	return ex.engine.callbacks.ExecuteCallbacks(ctx, CallbackOnHandoff, cc)
}

func (ex *execution) append(msg core.Message) error {
	if err := ex.history.Append(msg); err != nil {
		return err
	}
	last := ex.history.Last()
	ex.emit(Event{Type: EventMessage, Agent: ex.active, Message: &last})
	return nil
}

func (ex *execution) terminate(ctx context.Context, result core.Result) {
	ex.rec.State = StateTerminal
	ex.rec.Result = &result
	ex.finish()

	ex.span.SetStatus(codes.Ok, "")
	ex.span.SetAttributes(attribute.Int("run.depth", ex.rec.Depth))
	ex.logger.Info("engine.run.completed",
		"run_id", ex.rec.ID,
		"depth", ex.rec.Depth,
		"messages", len(ex.rec.History),
		"duration", ex.rec.Duration(),
	)

	cc := ex.callbackContext()
	cc.Result = &result
	if err := ex.engine.callbacks.ExecuteCallbacks(ctx, CallbackOnTerminal, cc); err != nil {
		ex.logger.Warn("engine.callback.failed", "type", CallbackOnTerminal, "error", err)
	}
	ex.emit(Event{Type: EventTerminal, Agent: ex.active, Result: &result})
}

func (ex *execution) failContext(ctx context.Context, err error) (*Run, error) {
	cerr := ex.contextError(err)
	return ex.fail(ctx, core.KindOf(cerr), cerr)
}

func (ex *execution) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", core.ErrCanceled, err)
}

func (ex *execution) fail(ctx context.Context, kind error, err error) (*Run, error) {
	if kind == nil && !errors.Is(err, core.ErrTimeout) && !errors.Is(err, core.ErrCanceled) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		err = ex.contextError(err)
	}
	runErr := core.NewRunError(kind, ex.active, err)

	ex.rec.State = StateFailed
	ex.rec.Err = runErr
	if ex.history != nil {
		ex.finish()
	} else {
		ex.rec.EndedAt = time.Now()
	}

	recordError(ex.span, runErr)
	ex.span.SetAttributes(attribute.Int("run.depth", ex.rec.Depth))
	ex.logger.Error("engine.run.failed", "run_id", ex.rec.ID, "agent", ex.active, "depth", ex.rec.Depth, "error", runErr)

	cc := ex.callbackContext()
	cc.Err = runErr
	// Callbacks must still run after cancellation.
	if cbErr := ex.engine.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnFailure, cc); cbErr != nil {
		ex.logger.Warn("engine.callback.failed", "type", CallbackOnFailure, "error", cbErr)
	}
	ex.emit(Event{Type: EventFailed, Agent: ex.active, Err: runErr})
	return ex.rec, runErr
}

func (ex *execution) finish() {
	ex.rec.History = ex.history.Snapshot()
	ex.rec.ActiveAgent = ex.active
	ex.rec.Depth = ex.limiter.Count()
	ex.rec.EndedAt = time.Now()
}

func (ex *execution) callbackContext() *CallbackContext {
	return &CallbackContext{
		RunID: ex.rec.ID,
		Agent: ex.active,
		Depth: ex.limiter.Count(),
	}
}

func (ex *execution) emit(ev Event) {
	if ex.observer == nil {
		return
	}
	ev.RunID = ex.rec.ID
	ev.Time = time.Now()
	ex.observer(ev)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
