package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/frame"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/store"
)

// DefaultMaxSteps is the default maximum number of completions per flow.
// This prevents runaway flows from consuming unbounded resources.
const DefaultMaxSteps = 1000

// DefaultMaxRepeats is the default limit on firings of the same
// (sync, binding) within one flow. High enough that deliberate replays and
// legitimate chains never trip it, low enough to cut off a self-triggering
// cycle before the quota does.
const DefaultMaxRepeats = 25

// Engine is the single-writer sync engine event loop.
//
// The engine processes events (invocations and completions) in FIFO order,
// executes invocations against the concept registry, evaluates sync rules
// on completions, and enqueues the follow-on invocations those rules fire.
//
// Thread-safety model:
//   - Submit/SubmitInFlow/Enqueue: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - NewFlow: safe from any goroutine
//
// The syncs slice order never changes after construction; rules are
// evaluated in registration order for determinism.
type Engine struct {
	store    *store.Store
	registry *concept.Registry
	clock    *Clock
	syncs    []Sync
	queue    *eventQueue
	flowGen  FlowTokenGenerator

	maxSteps    int
	quotas      map[string]*QuotaEnforcer // touched only from the Run loop
	repeatGuard *RepeatGuard
}

// Option configures engine parameters.
type Option func(*Engine)

// WithMaxSteps sets the maximum completions processed per flow.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithMaxRepeats sets the repeat limit on (sync, binding) firings per flow.
func WithMaxRepeats(maxRepeats int) Option {
	return func(e *Engine) {
		e.repeatGuard = NewRepeatGuard(maxRepeats)
	}
}

// WithClock sets a pre-positioned clock, for resuming a log.
func WithClock(clock *Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// New creates an Engine over the given action log, registry, rules, and
// flow token generator.
//
// The syncs slice is validated (unique names, non-empty when/then, no
// queries in when or then) and copied; its order fixes evaluation order.
func New(
	s *store.Store,
	registry *concept.Registry,
	syncs []Sync,
	flowGen FlowTokenGenerator,
	opts ...Option,
) (*Engine, error) {
	seen := make(map[string]bool, len(syncs))
	for _, sync := range syncs {
		if err := sync.validate(); err != nil {
			return nil, err
		}
		if seen[sync.Name] {
			return nil, fmt.Errorf("duplicate sync name: %s", sync.Name)
		}
		seen[sync.Name] = true
	}

	syncsCopy := make([]Sync, len(syncs))
	copy(syncsCopy, syncs)

	e := &Engine{
		store:       s,
		registry:    registry,
		clock:       NewClock(),
		syncs:       syncsCopy,
		queue:       newEventQueue(),
		flowGen:     flowGen,
		maxSteps:    DefaultMaxSteps,
		quotas:      make(map[string]*QuotaEnforcer),
		repeatGuard: NewRepeatGuard(DefaultMaxRepeats),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// NewFlow generates a new flow token for an external request.
// Thread-safe: may be called from any goroutine.
func (e *Engine) NewFlow() string {
	return e.flowGen.Generate()
}

// Submit starts a new flow with one external invocation and returns the
// flow token. This is the entry point for ingress: each HTTP request (or
// scheduled job) submits exactly one root action, and everything the sync
// rules cause downstream inherits the returned token.
//
// Returns ok=false if the engine has been stopped.
func (e *Engine) Submit(action ir.ActionRef, input ir.Object) (flowToken string, ok bool) {
	flowToken = e.NewFlow()
	return flowToken, e.SubmitInFlow(flowToken, action, input)
}

// SubmitInFlow enqueues an invocation within an existing flow.
// Thread-safe: may be called from any goroutine.
func (e *Engine) SubmitInFlow(flowToken string, action ir.ActionRef, input ir.Object) bool {
	seq := e.clock.Next()
	id, err := ir.InvocationID(flowToken, action, input, seq)
	if err != nil {
		slog.Error("invocation id computation failed",
			"action", action,
			"flow_token", flowToken,
			"error", err,
		)
		return false
	}

	inv := &ir.Invocation{
		ID:        id,
		FlowToken: flowToken,
		Action:    action,
		Input:     input,
		Seq:       seq,
	}
	return e.queue.Enqueue(Event{Type: EventTypeInvocation, Invocation: inv})
}

// Enqueue submits a raw event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop is called.
//
// Must be called from exactly ONE goroutine. All log writes and sync rule
// evaluation happen in this goroutine.
//
// ERROR HANDLING: on event processing failure the error is logged with full
// event context and processing continues. Retries would reorder the log, so
// the loop never retries.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "syncs", len(e.syncs), "max_steps", e.maxSteps)

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue closes, so this
			// case also fires on shutdown with an empty queue.
			if e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which causes Run to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Drain processes queued events until the queue is empty, without starting
// the blocking Run loop. Used by tests and the scenario harness to run one
// submission to quiescence synchronously.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		event, ok := e.queue.TryDequeue()
		if !ok {
			return nil
		}
		if err := e.processEvent(ctx, event); err != nil {
			logEventError(event, err)
		}
	}
}

// processEvent routes an event to the appropriate handler.
// Called only from the Run loop goroutine.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeInvocation:
		if event.Invocation == nil {
			return fmt.Errorf("invocation event missing invocation data")
		}
		return e.processInvocation(ctx, event.Invocation)

	case EventTypeCompletion:
		if event.Completion == nil {
			return fmt.Errorf("completion event missing completion data")
		}
		return e.processCompletion(ctx, event.Completion)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// processInvocation writes the invocation to the log, executes the action
// against the registry, and enqueues the resulting completion. Business
// failures come back as {error} outputs and complete like any other action;
// the registry converts panics into {error} outputs too, so execution never
// surfaces a Go error here.
func (e *Engine) processInvocation(ctx context.Context, inv *ir.Invocation) error {
	slog.Debug("processing invocation",
		"id", inv.ID,
		"action", inv.Action,
		"flow_token", inv.FlowToken,
		"seq", inv.Seq,
	)

	if err := e.store.WriteInvocation(ctx, *inv); err != nil {
		return fmt.Errorf("write invocation %s: %w", inv.ID, err)
	}

	output := e.registry.Invoke(WithFlowToken(ctx, inv.FlowToken), inv.Action, inv.Input)

	seq := e.clock.Next()
	compID, err := ir.CompletionID(inv.ID, output, seq)
	if err != nil {
		return fmt.Errorf("completion id for %s: %w", inv.ID, err)
	}

	comp := &ir.Completion{
		ID:           compID,
		InvocationID: inv.ID,
		Output:       output,
		Seq:          seq,
	}

	if !e.queue.Enqueue(Event{Type: EventTypeCompletion, Completion: comp}) {
		return fmt.Errorf("engine stopped before completion of %s could be enqueued", inv.ID)
	}

	slog.Info("action completed",
		"action", inv.Action,
		"flow_token", inv.FlowToken,
		"is_error", comp.IsError(),
	)
	return nil
}

// processCompletion writes the completion to the log, then evaluates every
// sync rule against it.
//
// QUOTA: each completion counts against the flow's step quota. When the
// quota trips, sync rules are not evaluated and the flow terminates.
func (e *Engine) processCompletion(ctx context.Context, comp *ir.Completion) error {
	if err := e.store.WriteCompletion(ctx, *comp); err != nil {
		return fmt.Errorf("write completion %s: %w", comp.ID, err)
	}

	inv, err := e.store.ReadInvocation(ctx, comp.InvocationID)
	if err != nil {
		return fmt.Errorf("read invocation for completion %s: %w", comp.ID, err)
	}
	flowToken := inv.FlowToken

	quota := e.quotas[flowToken]
	if quota == nil {
		quota = NewQuotaEnforcer(e.maxSteps)
		e.quotas[flowToken] = quota
	}
	// The tripped enforcer stays registered so every later completion in
	// the flow keeps tripping; a fan-out runaway that got a fresh quota
	// here would never terminate.
	if err := quota.Check(flowToken); err != nil {
		slog.Error("max steps quota exceeded",
			"flow_token", flowToken,
			"completion_id", comp.ID,
			"steps", quota.Current(),
			"limit", quota.MaxSteps(),
		)
		return fmt.Errorf("quota enforcement: %w", err)
	}

	e.evaluateSyncs(ctx, flowToken, comp)
	return nil
}

// evaluateSyncs runs every registered sync against a completion, in
// registration order. Each sync is isolated: a defect in one sync's where
// function (error or panic) is logged and suppressed without affecting the
// evaluation of other syncs for the same event.
func (e *Engine) evaluateSyncs(ctx context.Context, flowToken string, comp *ir.Completion) {
	history, err := e.store.ReadFlowHistory(ctx, flowToken)
	if err != nil {
		slog.Error("flow history read failed",
			"flow_token", flowToken,
			"completion_id", comp.ID,
			"error", err,
		)
		return
	}

	for _, sync := range e.syncs {
		frames := matchWhen(sync.When, history, comp.ID)
		if frames.Empty() {
			continue
		}

		slog.Debug("sync matched",
			"sync", sync.Name,
			"completion_id", comp.ID,
			"flow_token", flowToken,
			"frames", frames.Len(),
		)

		if sync.Where != nil {
			refined, err := e.runWhere(ctx, sync, frames)
			if err != nil {
				slog.Error("where stage failed; sync skipped",
					"sync", sync.Name,
					"completion_id", comp.ID,
					"flow_token", flowToken,
					"error", err,
				)
				continue
			}
			frames = refined
		}

		e.executeThen(ctx, sync, flowToken, comp, frames)
	}
}

// runWhere executes a sync's where stage with panic isolation. A panic in
// one sync's refinement code must not take down the dispatcher for other
// syncs.
func (e *Engine) runWhere(ctx context.Context, sync Sync, frames frame.Set) (result frame.Set, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("where panicked: %v", rec)
		}
	}()

	fr := NewFrames(e.registry, frames)
	if err := sync.Where(ctx, fr); err != nil {
		return frame.Set{}, err
	}
	return fr.Set(), nil
}

// executeThen fires the sync's then-clause once per surviving frame: every
// then pattern is instantiated with the frame's bindings and enqueued as a
// new invocation in the same flow. An unbound variable in a then pattern is
// an authoring error in the sync definition; the frame is logged and
// skipped. Frames that trip the repeat guard are skipped the same way.
func (e *Engine) executeThen(ctx context.Context, sync Sync, flowToken string, comp *ir.Completion, frames frame.Set) {
	for _, f := range frames.Frames() {
		bindingHash, err := ir.BindingHash(f.Bindings())
		if err != nil {
			slog.Error("binding hash failed; frame skipped",
				"sync", sync.Name,
				"flow_token", flowToken,
				"error", err,
			)
			continue
		}

		if !e.repeatGuard.Allow(flowToken, sync.Name, bindingHash) {
			rlErr := NewRepeatLimitError(flowToken, sync.Name, bindingHash, e.repeatGuard.limit)
			slog.Error("repeat limit tripped; frame skipped", "error", rlErr)
			continue
		}

		firing := ir.SyncFiring{
			CompletionID: comp.ID,
			SyncName:     sync.Name,
			BindingHash:  bindingHash,
			Seq:          e.clock.Next(),
		}
		if _, err := e.store.WriteSyncFiring(ctx, firing); err != nil {
			slog.Error("sync firing write failed; frame skipped",
				"sync", sync.Name,
				"flow_token", flowToken,
				"error", err,
			)
			continue
		}

		for _, pattern := range sync.Then {
			input, err := instantiate(pattern.Input, f)
			if err != nil {
				uvErr := NewUnboundVariableError(flowToken, sync.Name, err)
				slog.Error("then instantiation failed; invocation skipped", "error", uvErr)
				continue
			}

			if !e.registry.HasAction(pattern.Action) {
				slog.Error("then references unregistered action; invocation skipped",
					"sync", sync.Name,
					"action", pattern.Action,
					"flow_token", flowToken,
				)
				continue
			}

			if !e.SubmitInFlow(flowToken, pattern.Action, input) {
				slog.Warn("engine stopped; then invocation dropped",
					"sync", sync.Name,
					"action", pattern.Action,
					"flow_token", flowToken,
				)
				return
			}

			slog.Info("sync fired",
				"sync", sync.Name,
				"action", pattern.Action,
				"flow_token", flowToken,
				"completion_id", comp.ID,
			)
		}
	}
}

// Syncs returns the registered sync rules in evaluation order.
// Used for testing and introspection.
func (e *Engine) Syncs() []Sync {
	return e.syncs
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the current number of pending events.
// Useful for monitoring and testing.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// MaxSteps returns the configured maximum steps per flow.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

// CleanupFlow removes quota and repeat-guard state for a finished flow.
// Called when a flow reaches a terminal state to prevent memory growth.
func (e *Engine) CleanupFlow(flowToken string) {
	delete(e.quotas, flowToken)
	e.repeatGuard.Clear(flowToken)
}

// logEventError logs an event processing failure with full context, which
// is what an operator needs to investigate or manually replay the event.
func logEventError(event Event, err error) {
	switch event.Type {
	case EventTypeInvocation:
		if event.Invocation != nil {
			slog.Error("invocation processing failed",
				"error", err,
				"invocation_id", event.Invocation.ID,
				"flow_token", event.Invocation.FlowToken,
				"action", event.Invocation.Action,
				"seq", event.Invocation.Seq,
			)
			return
		}
		slog.Error("invocation processing failed", "error", err, "note", "invocation data was nil")

	case EventTypeCompletion:
		if event.Completion != nil {
			slog.Error("completion processing failed",
				"error", err,
				"completion_id", event.Completion.ID,
				"invocation_id", event.Completion.InvocationID,
				"seq", event.Completion.Seq,
			)
			return
		}
		slog.Error("completion processing failed", "error", err, "note", "completion data was nil")

	default:
		slog.Error("event processing failed", "error", err, "event_type", event.Type)
	}
}
