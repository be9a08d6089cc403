package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

const yodaPayload = `{"title":"The Little Master","story":"Yoda lifted the X-wing.","imageUrl":"https://img.example/yoda.png"}`

type yodaFixture struct {
	graph      *handoff.Graph
	catalog    *tool.Catalog
	supervisor *model.ScriptedModel
	research   *model.ScriptedModel
	lookups    *atomic.Int32
}

// newYodaFixture wires a supervisor that delegates lore research and then
// writes the final story.
func newYodaFixture(t *testing.T) *yodaFixture {
	t.Helper()
	f := &yodaFixture{lookups: &atomic.Int32{}}
	f.supervisor = model.NewScriptedModel("supervisor").
		Then(testutil.Handoff("ResearchAgent", "needs lore")).
		ThenText(yodaPayload)
	f.research = model.NewScriptedModel("research").
		ThenCall("WookiepediaTool", `{"query":"Yoda"}`).
		ThenText("Yoda is a legendary Jedi Master.")

	lookup := testutil.ToolFunc("WookiepediaTool", func(_ context.Context, args map[string]any) (any, error) {
		f.lookups.Add(1)
		return "Yoda: Grand Master of the Jedi Order, query=" + args["query"].(string), nil
	})

	f.graph, f.catalog = testutil.NewGraphBuilder(t, "Supervisor").
		Tool(lookup).
		Agent("Supervisor", f.supervisor, core.Auto()).
		Agent("ResearchAgent", f.research, core.Auto(), "WookiepediaTool").
		Edge("Supervisor", "ResearchAgent", "Researches Star Wars lore").
		Build()
	return f
}

func newEngine(t *testing.T, g *handoff.Graph, c *tool.Catalog, optFns ...func(o *Options)) *Engine {
	t.Helper()
	e, err := New(g, c, optFns...)
	require.NoError(t, err)
	return e
}

func roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	g := handoff.New("Ghost")
	_, err = New(g, nil)
	assert.ErrorIs(t, err, core.ErrUnknownAgent)

	f := newYodaFixture(t)
	e := newEngine(t, f.graph, f.catalog)
	assert.True(t, f.catalog.Sealed())
	assert.Same(t, f.graph, e.Graph())
	assert.Same(t, f.catalog, e.Catalog())
}

func TestRun_SupervisorDelegatesAndTerminates(t *testing.T) {
	f := newYodaFixture(t)
	e := newEngine(t, f.graph, f.catalog)

	run, err := e.Run(context.Background(), "tell me about Yoda")

	require.NoError(t, err)
	assert.Equal(t, StateTerminal, run.State)
	require.NotNil(t, run.Result)
	assert.Equal(t, "The Little Master", run.Result.Title)
	assert.Equal(t, "Yoda lifted the X-wing.", run.Result.Body)
	assert.Equal(t, "https://img.example/yoda.png", run.Result.AuxiliaryAssetURL)
	assert.Equal(t, "Supervisor", run.ActiveAgent)
	assert.Equal(t, int32(1), f.lookups.Load())

	assert.Equal(t, []core.Role{
		core.RoleSystem,
		core.RoleUser,
		core.RoleAssistant, // transfer_to_ResearchAgent
		core.RoleTool,      // transfer note
		core.RoleAssistant, // WookiepediaTool call
		core.RoleTool,      // lookup result
		core.RoleAssistant, // research report
		core.RoleAssistant, // final payload
	}, roles(run.History))
	assert.Equal(t, "transfer_to_ResearchAgent", run.History[2].ToolCalls[0].Name)
	assert.JSONEq(t, `{"reason":"needs lore"}`, run.History[2].ToolCalls[0].Arguments)
	assert.Equal(t, "Transferred to ResearchAgent.", run.History[3].Content)
	assert.Equal(t, run.History[4].ToolCalls[0].ID, run.History[5].ToolCallID)
	assert.Contains(t, run.History[5].Content, "query=Yoda")
	assert.Equal(t, "ResearchAgent", run.History[6].Name)
	assert.Equal(t, "Supervisor", run.History[7].Name)

	require.Len(t, run.Transitions, 3)
	assert.Equal(t, TransitionHandoff, run.Transitions[0].Kind)
	assert.Equal(t, TransitionTool, run.Transitions[1].Kind)
	assert.Equal(t, "WookiepediaTool", run.Transitions[1].Tool)
	assert.Equal(t, TransitionReturn, run.Transitions[2].Kind)
	assert.Equal(t, "ResearchAgent", run.Transitions[2].From)
	assert.Equal(t, "Supervisor", run.Transitions[2].To)
	assert.Equal(t, 3, run.Depth)
	assert.False(t, run.EndedAt.Before(run.StartedAt))

	// The supervisor's second turn sees the research report.
	reqs := f.supervisor.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Yoda is a legendary Jedi Master.", reqs[1].Messages[len(reqs[1].Messages)-1].Content)
}

func TestRun_ToolFailureIsShownToAgent(t *testing.T) {
	var calls atomic.Int32
	flaky := testutil.ToolFunc("StarWarsPurchaseTool", func(_ context.Context, args map[string]any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("upstream returned 500")
		}
		return `[{"item":"Lightsaber"}]`, nil
	})
	llm := model.NewScriptedModel("purchases").
		ThenCall("StarWarsPurchaseTool", `{"customer":"Ben"}`).
		ThenCall("StarWarsPurchaseTool", `{"customer":"Ben Smith"}`).
		ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "PurchaseAgent").
		Tool(flaky).
		Agent("PurchaseAgent", llm, core.Auto(), "StarWarsPurchaseTool").
		Build()
	e := newEngine(t, g, c)

	run, err := e.Run(context.Background(), "what did Ben Smith buy?")

	require.NoError(t, err)
	assert.Equal(t, StateTerminal, run.State)
	assert.Equal(t, int32(2), calls.Load())
	assert.JSONEq(t, `{"error":"upstream returned 500"}`, run.History[3].Content)
	assert.Equal(t, `[{"item":"Lightsaber"}]`, run.History[5].Content)
	assert.Equal(t, 2, run.Depth)
}

func TestRun_ToolPanicIsIsolated(t *testing.T) {
	boom := testutil.ToolFunc("boom", func(context.Context, map[string]any) (any, error) {
		panic("nil map")
	})
	llm := model.NewScriptedModel("m").ThenCall("boom", `{}`).ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "A").Tool(boom).Agent("A", llm, core.Auto(), "boom").Build()

	run, err := newEngine(t, g, c).Run(context.Background(), "go")

	require.NoError(t, err)
	assert.Contains(t, run.History[3].Content, "tool panicked")
}

func TestRun_IllegalTransitionFailsImmediately(t *testing.T) {
	a := model.NewScriptedModel("a").Then(testutil.Handoff("B", "skip the queue"))
	b := model.NewScriptedModel("b").ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "A").
		Agent("A", a, core.Auto()).
		Agent("B", b, core.Auto()).
		Build()
	e := newEngine(t, g, c)

	run, err := e.Run(context.Background(), "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIllegalTransition)
	var runErr *core.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "A", runErr.Agent)
	assert.Equal(t, StateFailed, run.State)
	assert.Len(t, run.History, 3, "only the attempted transfer call is recorded")
	assert.Equal(t, "transfer_to_B", run.History[2].ToolCalls[0].Name)
	assert.Empty(t, run.Transitions)
	assert.Equal(t, 0, b.Calls())
}

func TestRun_DepthLimitStopsCycle(t *testing.T) {
	ping := model.NewScriptedModel("ping").Otherwise(func(model.Request) (model.Response, error) {
		return testutil.Handoff("Pong", "your turn"), nil
	})
	pong := model.NewScriptedModel("pong").Otherwise(func(model.Request) (model.Response, error) {
		return testutil.Handoff("Ping", "your turn"), nil
	})
	g, c := testutil.NewGraphBuilder(t, "Ping").
		Agent("Ping", ping, core.Auto()).
		Agent("Pong", pong, core.Auto()).
		Edge("Ping", "Pong", "").
		Edge("Pong", "Ping", "").
		Build()
	e := newEngine(t, g, c, func(o *Options) { o.MaxDepth = 6 })

	run, err := e.Run(context.Background(), "start")

	assert.ErrorIs(t, err, core.ErrDepthExceeded)
	assert.Equal(t, StateFailed, run.State)
	assert.Len(t, run.Transitions, 6)
	assert.Equal(t, 6, run.Depth)
	assert.Equal(t, 7, ping.Calls()+pong.Calls())
	// System, User, six transfers with notes, the refused seventh call.
	assert.Len(t, run.History, 2+6*2+1)
}

func TestRun_ToolContentPolicyRecovery(t *testing.T) {
	var calls atomic.Int32
	paint := testutil.ToolFunc("ImageGenerationTool", func(_ context.Context, args map[string]any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, tool.ContentPolicyError("ImageGenerationTool", "Your request was rejected by the safety system.")
		}
		return "https://img.example/1.png", nil
	})
	llm := model.NewScriptedModel("illustrator").
		ThenCall("ImageGenerationTool", `{"prompt":"Yoda"}`).
		ThenCall("ImageGenerationTool", `{"prompt":"a small green sage"}`).
		ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "Illustrator").
		Tool(paint).
		Agent("Illustrator", llm, core.Auto(), "ImageGenerationTool").
		Build()

	var violations []Violation
	e := newEngine(t, g, c, func(o *Options) {
		o.Sanitizer = SanitizerFunc(func(_ context.Context, v Violation) string {
			violations = append(violations, v)
			return "describe the character instead of naming it"
		})
	})

	run, err := e.Run(context.Background(), "draw Yoda")

	require.NoError(t, err)
	assert.Equal(t, StateTerminal, run.State)
	assert.JSONEq(t,
		`{"error":"Your request was rejected by the safety system.","guidance":"describe the character instead of naming it"}`,
		run.History[3].Content)
	require.Len(t, violations, 1)
	assert.Equal(t, "ImageGenerationTool", violations[0].Tool)
	assert.Equal(t, 1, violations[0].Attempt)
}

func TestRun_ToolContentPolicyExhausted(t *testing.T) {
	var calls atomic.Int32
	paint := testutil.ToolFunc("ImageGenerationTool", func(context.Context, map[string]any) (any, error) {
		calls.Add(1)
		return nil, tool.ContentPolicyError("ImageGenerationTool", "rejected")
	})
	llm := model.NewScriptedModel("illustrator").Otherwise(func(model.Request) (model.Response, error) {
		return model.ToolCallResponse("ImageGenerationTool", `{"prompt":"Yoda"}`), nil
	})
	g, c := testutil.NewGraphBuilder(t, "Illustrator").
		Tool(paint).
		Agent("Illustrator", llm, core.Auto(), "ImageGenerationTool").
		Build()
	e := newEngine(t, g, c, func(o *Options) { o.MaxContentPolicyRetries = 2 })

	run, err := e.Run(context.Background(), "draw Yoda")

	assert.ErrorIs(t, err, core.ErrContentPolicyViolation)
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestRun_FilteredCompletionRecovery(t *testing.T) {
	llm := model.NewScriptedModel("writer").
		Then(model.ContentFilteredResponse()).
		ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "Writer").Agent("Writer", llm, core.None()).Build()
	e := newEngine(t, g, c)

	run, err := e.Run(context.Background(), "write about Yoda")

	require.NoError(t, err)
	assert.Equal(t, StateTerminal, run.State)
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Instructions, "blocked by a content filter")
	assert.Len(t, run.History, 3, "guidance is not recorded in the history")
}

func TestRun_FilteredCompletionExhausted(t *testing.T) {
	llm := model.NewScriptedModel("writer").Otherwise(func(model.Request) (model.Response, error) {
		return model.ContentFilteredResponse(), nil
	})
	g, c := testutil.NewGraphBuilder(t, "Writer").Agent("Writer", llm, core.None()).Build()
	e := newEngine(t, g, c, func(o *Options) { o.MaxContentPolicyRetries = 1 })

	_, err := e.Run(context.Background(), "write about Yoda")

	assert.ErrorIs(t, err, core.ErrContentPolicyViolation)
	assert.Equal(t, 2, llm.Calls())
}

func TestRun_MalformedTerminalPayload(t *testing.T) {
	llm := model.NewScriptedModel("m").ThenText("Once upon a time, without any JSON.")
	g, c := testutil.NewGraphBuilder(t, "A").Agent("A", llm, core.Auto()).Build()

	run, err := newEngine(t, g, c).Run(context.Background(), "story please")

	assert.ErrorIs(t, err, core.ErrMalformedTerminalPayload)
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, core.RoleAssistant, run.History[len(run.History)-1].Role)
}

func TestRun_UnboundToolFails(t *testing.T) {
	llm := model.NewScriptedModel("m").ThenCall("Ghost", `{}`)
	g, c := testutil.NewGraphBuilder(t, "A").Agent("A", llm, core.Auto()).Build()

	_, err := newEngine(t, g, c).Run(context.Background(), "hi")

	assert.ErrorIs(t, err, core.ErrUnknownTool)
	assert.Equal(t, core.ErrUnknownTool, core.KindOf(err))
}

func TestRun_ExplicitReturnRequiresTransferBack(t *testing.T) {
	sup := model.NewScriptedModel("sup").
		Then(testutil.Handoff("Writer", "write it")).
		ThenText(yodaPayload)
	writer := model.NewScriptedModel("writer").
		ThenText("Draft: Yoda lifted the X-wing.").
		Then(testutil.Handoff("Supervisor", "draft ready"))
	g, c := testutil.NewGraphBuilder(t, "Supervisor").
		Agent("Supervisor", sup, core.Auto()).
		Agent("Writer", writer, core.Auto()).
		Edge("Supervisor", "Writer", "Writes the story").
		Edge("Writer", "Supervisor", "Returns the draft").
		Build()
	e := newEngine(t, g, c, func(o *Options) { o.ReturnMode = ReturnExplicit })

	run, err := e.Run(context.Background(), "story")

	require.NoError(t, err)
	assert.Equal(t, "Supervisor", run.ActiveAgent)
	assert.Equal(t, "The Little Master", run.Result.Title)
	require.Len(t, run.Transitions, 2)
	assert.Equal(t, TransitionHandoff, run.Transitions[0].Kind)
	assert.Equal(t, TransitionHandoff, run.Transitions[1].Kind)
	assert.Equal(t, "Writer", run.Transitions[1].From)
	assert.Equal(t, "Supervisor", run.Transitions[1].To)

	reqs := writer.Requests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[0].Instructions, "Hand control back")
	assert.Contains(t, reqs[1].Instructions, "Hand control back")
	assert.Equal(t, "Draft: Yoda lifted the X-wing.", reqs[1].Messages[len(reqs[1].Messages)-1].Content)
}

func TestRun_ExplicitReturnSubAgentCannotFinish(t *testing.T) {
	sup := model.NewScriptedModel("sup").Then(testutil.Handoff("Writer", "write it"))
	writer := model.NewScriptedModel("writer").ThenText(yodaPayload).ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "Supervisor").
		Agent("Supervisor", sup, core.Auto()).
		Agent("Writer", writer, core.Auto()).
		Edge("Supervisor", "Writer", "Writes the story").
		Edge("Writer", "Supervisor", "Returns the draft").
		Build()
	e := newEngine(t, g, c, func(o *Options) { o.ReturnMode = ReturnExplicit })

	run, err := e.Run(context.Background(), "story")

	assert.ErrorIs(t, err, core.ErrIllegalTransition)
	assert.Equal(t, StateFailed, run.State)
	assert.Nil(t, run.Result)
	assert.Equal(t, "Writer", run.ActiveAgent)
	assert.Equal(t, 2, writer.Calls())
}

func TestNew_ExplicitReturnNeedsBackEdges(t *testing.T) {
	g, c := testutil.NewGraphBuilder(t, "Supervisor").
		Agent("Supervisor", model.NewScriptedModel("sup"), core.Auto()).
		Agent("Writer", model.NewScriptedModel("writer"), core.Auto()).
		Edge("Supervisor", "Writer", "Writes the story").
		Build()

	_, err := New(g, c, func(o *Options) { o.ReturnMode = ReturnExplicit })

	assert.ErrorIs(t, err, core.ErrIllegalTransition)
	assert.Contains(t, err.Error(), "Writer")
}

func TestRun_RequiredPolicyFollowsSubTurns(t *testing.T) {
	archivist := model.NewScriptedModel("archivist").
		ThenCall("lookup", `{}`).
		Then(testutil.Handoff("Research", "dig deeper")).
		ThenCall("lookup", `{}`).
		ThenText(yodaPayload)
	research := model.NewScriptedModel("research").
		ThenCall("lookup", `{}`).
		ThenText("Found the holocron.")
	g, c := testutil.NewGraphBuilder(t, "Archivist").
		Tool(testutil.StaticTool("lookup", "holocron")).
		Agent("Archivist", archivist, core.Required("lookup"), "lookup").
		Agent("Research", research, core.Required("lookup"), "lookup").
		Edge("Archivist", "Research", "Deeper research").
		Build()

	run, err := newEngine(t, g, c).Run(context.Background(), "Yoda")

	require.NoError(t, err)
	modes := func(reqs []model.Request) []model.ToolChoiceMode {
		out := make([]model.ToolChoiceMode, len(reqs))
		for i, r := range reqs {
			out[i] = r.ToolChoice.Mode
		}
		return out
	}
	// Forced on entry, released after the tool result, forced again after
	// the implicit return.
	assert.Equal(t, []model.ToolChoiceMode{
		model.ToolChoiceNamed, model.ToolChoiceAuto, model.ToolChoiceNamed, model.ToolChoiceAuto,
	}, modes(archivist.Requests()))
	assert.Equal(t, "lookup", archivist.Requests()[2].ToolChoice.Name)
	// Forced on the first step after the handoff.
	assert.Equal(t, []model.ToolChoiceMode{model.ToolChoiceNamed, model.ToolChoiceAuto}, modes(research.Requests()))
	assert.Equal(t, "lookup", research.Requests()[0].ToolChoice.Name)

	kinds := make([]TransitionKind, len(run.Transitions))
	for i, tr := range run.Transitions {
		kinds[i] = tr.Kind
	}
	assert.Equal(t, []TransitionKind{
		TransitionTool, TransitionHandoff, TransitionTool, TransitionReturn, TransitionTool,
	}, kinds)
}

func TestRun_SelfLoopCountsTowardDepth(t *testing.T) {
	loop := model.NewScriptedModel("loop").Otherwise(func(model.Request) (model.Response, error) {
		return testutil.Handoff("Loop", "again"), nil
	})
	g, c := testutil.NewGraphBuilder(t, "Loop").
		Agent("Loop", loop, core.Auto()).
		Edge("Loop", "Loop", "Start over").
		Build()
	e := newEngine(t, g, c, func(o *Options) { o.MaxDepth = 3 })

	run, err := e.Run(context.Background(), "spin")

	assert.ErrorIs(t, err, core.ErrDepthExceeded)
	assert.Equal(t, StateFailed, run.State)
	require.Len(t, run.Transitions, 3)
	for _, tr := range run.Transitions {
		assert.Equal(t, TransitionHandoff, tr.Kind)
		assert.Equal(t, "Loop", tr.From)
		assert.Equal(t, "Loop", tr.To)
	}
	assert.Equal(t, 3, run.Depth)
	assert.Equal(t, 4, loop.Calls())
}

func TestRun_ChatContinuesHistory(t *testing.T) {
	llm := model.NewScriptedModel("bot").ThenText("He lives on Dagobah.")
	g, c := testutil.NewGraphBuilder(t, "Bot").Agent("Bot", llm, core.None()).Build()
	e := newEngine(t, g, c, func(o *Options) { o.Completion = AcceptText })

	prior := testutil.NewHistoryBuilder("You are a Star Wars expert.").
		User("Who is Yoda?").
		Answer("Bot", "A Jedi Master.").
		Messages()

	run, err := e.Run(context.Background(), "Where does he live?", WithHistory(prior))

	require.NoError(t, err)
	assert.Equal(t, "He lives on Dagobah.", run.Result.Body)
	require.Len(t, run.History, 5)
	assert.Equal(t, "You are a Star Wars expert.", run.History[0].Content)
	assert.Len(t, llm.Requests()[0].Messages, 4)
}

func TestRun_InvalidHistoryFails(t *testing.T) {
	f := newYodaFixture(t)
	e := newEngine(t, f.graph, f.catalog)

	run, err := e.Run(context.Background(), "hi", WithHistory([]core.Message{core.UserMessage("no persona")}))

	assert.ErrorIs(t, err, core.ErrInvalidMessage)
	assert.Equal(t, StateFailed, run.State)
}

func TestRun_Timeout(t *testing.T) {
	slow := testutil.ToolFunc("slow", func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	llm := model.NewScriptedModel("m").ThenCall("slow", `{}`)
	g, c := testutil.NewGraphBuilder(t, "A").Tool(slow).Agent("A", llm, core.Auto(), "slow").Build()
	e := newEngine(t, g, c, func(o *Options) { o.Timeout = 20 * time.Millisecond })

	run, err := e.Run(context.Background(), "hi")

	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, run.State)
}

func TestRun_TimeoutAbandonsUncooperativeTool(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stubborn := testutil.ToolFunc("stubborn", func(context.Context, map[string]any) (any, error) {
		<-release
		return "too late", nil
	})
	llm := model.NewScriptedModel("m").ThenCall("stubborn", `{}`).ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "A").Tool(stubborn).Agent("A", llm, core.Auto(), "stubborn").Build()
	e := newEngine(t, g, c, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	run, err := e.Run(context.Background(), "hi")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, StateFailed, run.State)
	// The tool call is recorded, its result is not.
	last := run.History[len(run.History)-1]
	assert.Equal(t, core.RoleAssistant, last.Role)
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, "stubborn", last.ToolCalls[0].Name)
	assert.Empty(t, run.Transitions)
	assert.Equal(t, 1, llm.Calls())
}

func TestRun_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := testutil.ToolFunc("stop", func(context.Context, map[string]any) (any, error) {
		cancel()
		return "stopped", nil
	})
	llm := model.NewScriptedModel("m").ThenCall("stop", `{}`).ThenText(yodaPayload)
	g, c := testutil.NewGraphBuilder(t, "A").Tool(stop).Agent("A", llm, core.Auto(), "stop").Build()

	run, err := newEngine(t, g, c).Run(ctx, "hi")

	assert.ErrorIs(t, err, core.ErrCanceled)
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, 1, llm.Calls())
}

func TestRun_CallbacksFireInOrder(t *testing.T) {
	f := newYodaFixture(t)

	var mu sync.Mutex
	var fired []string
	record := func(ct CallbackType) Callback {
		return NewFunctionCallback(ct, func(_ context.Context, cc *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, string(cc.CallbackType)+":"+cc.Agent)
			return nil
		})
	}
	var cbs []Callback
	for _, ct := range []CallbackType{
		CallbackBeforeStep, CallbackAfterStep, CallbackBeforeTool, CallbackAfterTool,
		CallbackOnHandoff, CallbackOnTerminal, CallbackOnFailure,
	} {
		cbs = append(cbs, record(ct))
	}
	e := newEngine(t, f.graph, f.catalog, func(o *Options) { o.Callbacks = cbs })

	_, err := e.Run(context.Background(), "tell me about Yoda")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"before_step:Supervisor",
		"after_step:Supervisor",
		"on_handoff:ResearchAgent",
		"before_step:ResearchAgent",
		"after_step:ResearchAgent",
		"before_tool:ResearchAgent",
		"after_tool:ResearchAgent",
		"before_step:ResearchAgent",
		"after_step:ResearchAgent",
		"on_handoff:Supervisor",
		"before_step:Supervisor",
		"after_step:Supervisor",
		"on_terminal:Supervisor",
	}, fired)
}

func TestRun_CallbackErrorFailsRun(t *testing.T) {
	f := newYodaFixture(t)
	var failure error
	e := newEngine(t, f.graph, f.catalog, func(o *Options) {
		o.Callbacks = []Callback{
			NewFunctionCallback(CallbackBeforeTool, func(context.Context, *CallbackContext) error {
				return errors.New("tool use denied")
			}),
			NewFunctionCallback(CallbackOnFailure, func(_ context.Context, cc *CallbackContext) error {
				failure = cc.Err
				return nil
			}),
		}
	})

	run, err := e.Run(context.Background(), "tell me about Yoda")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "before_tool callback: tool use denied")
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, err, failure)
	assert.Equal(t, int32(0), f.lookups.Load())
}

func TestRun_ObserverReceivesEvents(t *testing.T) {
	f := newYodaFixture(t)
	e := newEngine(t, f.graph, f.catalog)

	var events []Event
	run, err := e.Run(context.Background(), "tell me about Yoda",
		WithRunID("run-42"),
		WithObserver(func(ev Event) { events = append(events, ev) }),
	)
	require.NoError(t, err)
	assert.Equal(t, "run-42", run.ID)

	counts := map[EventType]int{}
	for _, ev := range events {
		counts[ev.Type]++
		assert.Equal(t, "run-42", ev.RunID)
	}
	assert.Equal(t, len(run.History)-1, counts[EventMessage])
	assert.Equal(t, 3, counts[EventTransition])
	assert.Equal(t, 1, counts[EventTerminal])
	assert.Equal(t, EventTerminal, events[len(events)-1].Type)
	assert.Equal(t, "The Little Master", events[len(events)-1].Result.Title)
}

func TestRun_RecordsSpans(t *testing.T) {
	f := newYodaFixture(t)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e := newEngine(t, f.graph, f.catalog, func(o *Options) { o.Tracer = tp.Tracer("test") })

	_, err := e.Run(context.Background(), "tell me about Yoda")
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["agentrelay.run"])
	assert.Equal(t, 4, names["agentrelay.agent.step"])
	assert.Equal(t, 1, names["agentrelay.tool.call"])
}

func TestRun_ConcurrentRunsShareEngine(t *testing.T) {
	llm := model.NewScriptedModel("m").Otherwise(func(model.Request) (model.Response, error) {
		return model.TextResponse(yodaPayload), nil
	})
	g, c := testutil.NewGraphBuilder(t, "A").Agent("A", llm, core.None()).Build()
	e := newEngine(t, g, c)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := e.Run(context.Background(), "story")
			assert.NoError(t, err)
			assert.Len(t, run.History, 3)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, llm.Calls())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "awaiting_tool", StateAwaitingTool.String())
	assert.True(t, StateTerminal.Done())
	assert.True(t, StateFailed.Done())
	assert.False(t, StateRunning.Done())
}
