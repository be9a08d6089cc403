package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/session"
)

func newChatEngine(t *testing.T, llm model.Model) *engine.Engine {
	t.Helper()
	g, c := testutil.NewGraphBuilder(t, "Bot").Agent("Bot", llm, core.None()).Build()
	e, err := engine.New(g, c, func(o *engine.Options) { o.Completion = engine.AcceptText })
	require.NoError(t, err)
	return e
}

func TestRunner_StartStreamsEventsAndPersists(t *testing.T) {
	llm := model.NewScriptedModel("bot").ThenText("Hello there!")
	store := session.NewInMemoryStore()
	r := New(newChatEngine(t, llm), func(o *Options) { o.Store = store })

	runID, events, err := r.Start(context.Background(), Request{SessionID: "s1", Input: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	var types []engine.EventType
	for ev := range events {
		assert.Equal(t, runID, ev.RunID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []engine.EventType{engine.EventMessage, engine.EventMessage, engine.EventTerminal}, types)

	run, err := r.Wait(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, engine.StateTerminal, run.State)
	assert.Equal(t, "Hello there!", run.Result.Body)

	tr, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "s1", tr.SessionID)
	assert.Equal(t, "terminal", tr.State)
	assert.Len(t, tr.Messages, 3)

	_, err = r.Wait(context.Background(), runID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Equal(t, 0, r.Active())
}

func TestRunner_ContinuesSession(t *testing.T) {
	llm := model.NewScriptedModel("bot").
		ThenText("Yoda is a Jedi Master.").
		ThenText("He lives on Dagobah.")
	r := New(newChatEngine(t, llm))
	ctx := context.Background()

	_, err := r.Run(ctx, Request{SessionID: "chat", Input: "Who is Yoda?"})
	require.NoError(t, err)

	run, err := r.Run(ctx, Request{SessionID: "chat", Input: "Where does he live?", Continue: true})
	require.NoError(t, err)

	require.Len(t, run.History, 5)
	assert.Equal(t, "Who is Yoda?", run.History[1].Content)
	assert.Equal(t, "Where does he live?", run.History[3].Content)

	all, err := r.Store().List(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunner_Cancel(t *testing.T) {
	started := make(chan struct{})
	llm := model.NewScriptedModel("bot").Otherwise(func(model.Request) (model.Response, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return model.TextResponse("too late"), nil
	})
	r := New(newChatEngine(t, llm))

	runID, events, err := r.Start(context.Background(), Request{Input: "hi"})
	require.NoError(t, err)
	collected := make(chan []engine.Event, 1)
	go func() {
		var all []engine.Event
		for ev := range events {
			all = append(all, ev)
		}
		collected <- all
	}()

	<-started
	require.NoError(t, r.Cancel(runID))

	run, err := r.Wait(context.Background(), runID)
	assert.ErrorIs(t, err, core.ErrCanceled)
	assert.Equal(t, engine.StateFailed, run.State)

	all := <-collected
	require.NotEmpty(t, all)
	last := all[len(all)-1]
	assert.Equal(t, engine.EventFailed, last.Type)
	assert.ErrorIs(t, last.Err, core.ErrCanceled)

	tr, err := r.Store().Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "failed", tr.State)
	assert.NotEmpty(t, tr.Error)

	assert.ErrorIs(t, r.Cancel("unknown"), ErrRunNotFound)
}

func TestTranscript_CopiesTransitions(t *testing.T) {
	run := &engine.Run{
		ID:          "r1",
		State:       engine.StateTerminal,
		Entry:       "SupervisorAgent",
		ActiveAgent: "SupervisorAgent",
		Transitions: []engine.Transition{{Kind: engine.TransitionHandoff, From: "SupervisorAgent", To: "ImageGenerationAgent", Depth: 1}},
		Result:      &core.Result{Title: "t", Body: "b"},
	}

	tr := Transcript("s1", run)

	assert.Equal(t, "terminal", tr.State)
	require.Len(t, tr.Transitions, 1)
	assert.Equal(t, "handoff", tr.Transitions[0].Kind)
	assert.Equal(t, "ImageGenerationAgent", tr.Transitions[0].To)
	assert.Empty(t, tr.Error)
}

func TestRunner_CancelAlwaysDeliversFailure(t *testing.T) {
	for i := 0; i < 10; i++ {
		started := make(chan struct{})
		llm := model.NewScriptedModel("bot").Otherwise(func(model.Request) (model.Response, error) {
			close(started)
			time.Sleep(5 * time.Millisecond)
			return model.TextResponse("too late"), nil
		})
		r := New(newChatEngine(t, llm), func(o *Options) { o.EventBufferSize = 0 })

		runID, events, err := r.Start(context.Background(), Request{Input: "hi"})
		require.NoError(t, err)
		lastEvent := make(chan engine.Event, 1)
		go func() {
			var last engine.Event
			for ev := range events {
				last = ev
			}
			lastEvent <- last
		}()

		<-started
		require.NoError(t, r.Cancel(runID))

		assert.Equal(t, engine.EventFailed, (<-lastEvent).Type, "iteration %d", i)
	}
}
