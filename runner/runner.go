package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/session"
)

// ErrRunNotFound is returned for unknown or already collected run IDs.
var ErrRunNotFound = errors.New("run not found")

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits concurrently executing runs.
	MaxConcurrentRuns int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// Store persists finished runs.
	Store session.Store
	// Logger provides structured logging.
	Logger logging.Logger
}

// Request describes one run.
type Request struct {
	// SessionID groups runs into a conversation. Defaults to the run ID.
	SessionID string
	// Input is the user message opening (or continuing) the run.
	Input string
	// Vars are template variables for agent instructions.
	Vars map[string]any
	// Continue seeds the run with the latest transcript of SessionID.
	Continue bool
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	run    *engine.Run
	err    error
}

// Runner coordinates asynchronous runs of an engine and persists their
// transcripts.
type Runner struct {
	engine *engine.Engine
	store  session.Store
	logger logging.Logger
	sem    *semaphore.Weighted
	buffer int

	mu   sync.Mutex
	runs map[string]*handle
}

// New constructs a Runner with optional overrides.
func New(e *engine.Engine, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		Store:             session.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrentRuns < 1 {
		opts.MaxConcurrentRuns = 1
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}

	return &Runner{
		engine: e,
		store:  opts.Store,
		logger: logging.OrNoOp(opts.Logger),
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		buffer: opts.EventBufferSize,
		runs:   make(map[string]*handle),
	}
}

// Store returns the transcript store.
func (r *Runner) Store() session.Store { return r.store }

// Start launches a run in the background. The returned channel delivers the
// run's events in order and is closed when the run has finished; it must be
// drained, since a full channel blocks the run. The last event before the
// close is always EventTerminal or EventFailed.
func (r *Runner) Start(ctx context.Context, req Request) (string, <-chan engine.Event, error) {
	runID := core.NewID()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = runID
	}

	opts := []engine.RunOption{engine.WithRunID(runID), engine.WithVars(req.Vars)}
	if req.Continue && req.SessionID != "" {
		prior, err := session.Latest(ctx, r.store, req.SessionID)
		switch {
		case err == nil:
			opts = append(opts, engine.WithHistory(prior.Messages))
		case !errors.Is(err, session.ErrNotFound):
			return "", nil, fmt.Errorf("runner: load session %s: %w", req.SessionID, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.runs[runID] = h
	r.mu.Unlock()

	events := make(chan engine.Event, r.buffer)
	opts = append(opts, engine.WithObserver(func(ev engine.Event) {
		// The absorbing event tells consumers why the run ended and is
		// delivered even after cancellation.
		if ev.Type == engine.EventTerminal || ev.Type == engine.EventFailed {
			events <- ev
			return
		}
		select {
		case events <- ev:
		case <-runCtx.Done():
		}
	}))

	go func() {
		defer close(h.done)
		defer close(events)
		defer cancel()

		if err := r.sem.Acquire(runCtx, 1); err != nil {
			h.err = fmt.Errorf("runner: waiting for a run slot: %w", err)
			r.logger.Warn("runner.run.rejected", "run_id", runID, "error", err)
			events <- engine.Event{RunID: runID, Type: engine.EventFailed, Err: h.err, Time: time.Now()}
			return
		}
		defer r.sem.Release(1)

		h.run, h.err = r.engine.Run(runCtx, req.Input, opts...)
		r.persist(sessionID, h.run)
	}()

	r.logger.Debug("runner.run.started", "run_id", runID, "session_id", sessionID)
	return runID, events, nil
}

// Run starts a run, discards its events and waits for the result.
func (r *Runner) Run(ctx context.Context, req Request) (*engine.Run, error) {
	runID, events, err := r.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	for range events {
	}
	return r.Wait(ctx, runID)
}

// Wait blocks until the run finished and returns its record. The run is
// forgotten afterwards, so Wait succeeds once per run; finished runs remain
// available through the store.
func (r *Runner) Wait(ctx context.Context, runID string) (*engine.Run, error) {
	r.mu.Lock()
	h, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}

	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
	return h.run, h.err
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	h, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	h.cancel()
	return nil
}

// Active returns the number of runs not yet collected by Wait.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *Runner) persist(sessionID string, run *engine.Run) {
	if run == nil || r.store == nil {
		return
	}
	// Persist even when the run was canceled.
	ctx := context.Background()
	if err := r.store.Save(ctx, Transcript(sessionID, run)); err != nil {
		r.logger.Error("runner.persist.failed", "run_id", run.ID, "error", err)
	}
}

// Transcript converts a run record into its persisted form.
func Transcript(sessionID string, run *engine.Run) session.Transcript {
	t := session.Transcript{
		ID:          run.ID,
		SessionID:   sessionID,
		State:       run.State.String(),
		Entry:       run.Entry,
		ActiveAgent: run.ActiveAgent,
		Messages:    run.History,
		Result:      run.Result,
		StartedAt:   run.StartedAt,
		EndedAt:     run.EndedAt,
	}
	for _, tr := range run.Transitions {
		t.Transitions = append(t.Transitions, session.Transition{
			Kind:  string(tr.Kind),
			From:  tr.From,
			To:    tr.To,
			Tool:  tr.Tool,
			Depth: tr.Depth,
			At:    tr.At,
		})
	}
	if run.Err != nil {
		t.Error = run.Err.Error()
	}
	return t
}
