package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dialcraft/router/internal/directory"
	"github.com/dialcraft/router/internal/hours"
	"github.com/dialcraft/router/internal/ivr"
	"github.com/dialcraft/router/internal/metrics"
	"github.com/dialcraft/router/internal/ncco"
	"github.com/dialcraft/router/internal/provider"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/storage"
	"github.com/dialcraft/router/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InboundCall is one answered webhook from the carrier
type InboundCall struct {
	CallID      string
	PhoneNumber string // dialed number
	FromNumber  string
	Caller      *types.CallerProfile // nil = anonymous standard caller
}

// Engine orchestrates one inbound call end to end: number lookup,
// business-hours evaluation, flow compilation or strategy execution,
// and the audit trail. Every path terminates in a valid instruction
// list; callers never hear an error.
type Engine struct {
	store    storage.Store
	audit    storage.AuditStore
	dir      *directory.Directory
	queue    *queue.Manager
	exec     *Executor
	compiler *ivr.Compiler
	dtmf     *ivr.StateMachine
	carrier  provider.Provider
	logger   zerolog.Logger

	baseURL         string
	defaultTransfer string
}

// NewEngine wires the engine together
func NewEngine(store storage.Store, audit storage.AuditStore, dir *directory.Directory, qm *queue.Manager, exec *Executor, compiler *ivr.Compiler, carrier provider.Provider, baseURL, defaultTransfer string, logger zerolog.Logger) *Engine {
	return &Engine{
		store:           store,
		audit:           audit,
		dir:             dir,
		queue:           qm,
		exec:            exec,
		compiler:        compiler,
		dtmf:            ivr.NewStateMachine(compiler),
		carrier:         carrier,
		logger:          logger,
		baseURL:         baseURL,
		defaultTransfer: defaultTransfer,
	}
}

// HandleInbound answers one call. Numbers bound to an IVR flow get the
// compiled menu; everything else goes through strategy selection. Any
// storage or compile failure degrades to the default instruction list
// and is recorded as a failed attempt.
func (e *Engine) HandleInbound(ctx context.Context, call InboundCall) []ncco.Instruction {
	now := time.Now()

	rule, err := e.store.LookupRouting(ctx, call.PhoneNumber)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Error().Err(err).Str("number", call.PhoneNumber).Msg("routing lookup failed")
			metrics.Get().RecordRoutingError()
			e.record(call, "", "default", nil, true, "routing lookup failed", now)
			return ncco.Default(e.defaultTransfer)
		}
		e.logger.Warn().Str("number", call.PhoneNumber).Msg("no routing rule for number")
		e.record(call, "", "default", nil, false, "no routing rule", now)
		return ncco.Default(e.defaultTransfer)
	}

	cfg, err := e.store.GetRoutingConfiguration(ctx, rule.WorkspaceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Error().Err(err).Str("workspace_id", rule.WorkspaceID).Msg("configuration load failed")
			metrics.Get().RecordRoutingError()
			e.record(call, rule.WorkspaceID, "default", nil, true, "configuration load failed", now)
			return ncco.Default(e.defaultTransfer)
		}
		e.record(call, rule.WorkspaceID, "default", nil, false, "no routing configuration", now)
		return ncco.Default(e.defaultTransfer)
	}

	open := hours.Evaluate(now, cfg).Open

	if rule.FlowID != "" {
		return e.answerWithFlow(ctx, call, rule, cfg, open, now)
	}

	caller := call.Caller
	if caller == nil {
		caller = &types.CallerProfile{Number: call.FromNumber, Tier: types.TierStandard, Priority: types.PriorityNormal}
	}

	decision := e.Route(ctx, cfg, open, caller, call.CallID, now)
	e.recordDecision(call, cfg.WorkspaceID, decision, now)
	return e.Render(decision, cfg)
}

// answerWithFlow compiles the bound flow and persists the initial menu
// state so later keypad input resolves against it
func (e *Engine) answerWithFlow(ctx context.Context, call InboundCall, rule *types.CallRouting, cfg *types.RoutingConfiguration, open bool, now time.Time) []ncco.Instruction {
	flow, err := e.store.GetFlow(ctx, rule.FlowID)
	if err != nil {
		e.logger.Error().Err(err).Str("flow_id", rule.FlowID).Msg("flow load failed")
		metrics.Get().RecordRoutingError()
		e.record(call, rule.WorkspaceID, "default", nil, true, "flow load failed", now)
		return ncco.Default(e.defaultTransfer)
	}
	if !flow.Active {
		e.record(call, rule.WorkspaceID, "default", nil, false, "flow inactive", now)
		return ncco.Default(e.defaultTransfer)
	}

	rt := ivr.Runtime{
		WorkspaceID:   rule.WorkspaceID,
		PhoneNumber:   call.PhoneNumber,
		CallID:        call.CallID,
		FromNumber:    call.FromNumber,
		BusinessHours: open,
	}

	list, err := e.compiler.Compile(flow, rt)
	if err != nil {
		e.logger.Error().Err(err).Str("flow_id", flow.ID).Msg("flow compilation failed")
		metrics.Get().RecordFlowCompileError()
		e.record(call, rule.WorkspaceID, "default", nil, true, "flow compilation failed", now)
		return ncco.Default(e.defaultTransfer)
	}
	metrics.Get().RecordFlowCompiled()

	state := types.CallState{
		CallID:      call.CallID,
		WorkspaceID: rule.WorkspaceID,
		FlowID:      flow.ID,
		FlowVersion: flow.Version,
		PhoneNumber: call.PhoneNumber,
		FromNumber:  call.FromNumber,
		CurrentStep: ivr.StepMenu,
		UpdatedAt:   now,
	}
	if err := e.store.SaveCallState(ctx, state); err != nil {
		// The call proceeds; a lost state only costs DTMF idempotency
		e.logger.Error().Err(err).Str("call_id", call.CallID).Msg("failed to save call state")
	}

	e.record(call, rule.WorkspaceID, "ivr", nil, false, "flow "+flow.ID, now)
	return list
}

// Route selects and executes a strategy for one call
func (e *Engine) Route(ctx context.Context, cfg *types.RoutingConfiguration, open bool, caller *types.CallerProfile, callID string, now time.Time) types.RoutingDecision {
	selection := Select(cfg, open, len(e.dir.Available(cfg.WorkspaceID)), caller)
	decision := e.exec.Execute(ctx, selection.Strategy, cfg, caller, callID, now)
	if decision.Reason == "" {
		decision.Reason = selection.Reason
	}

	metrics.Get().RecordRoutingAttempt(decision.Strategy, decision.Action)
	if decision.Strategy == types.StrategyFailover {
		metrics.Get().RecordFailover()
	}

	e.logger.Info().
		Str("call_id", callID).
		Str("strategy", string(decision.Strategy)).
		Str("action", string(decision.Action)).
		Str("agent_id", decision.AgentID).
		Int("escalation_level", decision.EscalationLevel).
		Bool("fallback", decision.Fallback).
		Msg("call routed")

	return decision
}

// Render turns a routing decision into the caller-facing instructions
func (e *Engine) Render(decision types.RoutingDecision, cfg *types.RoutingConfiguration) []ncco.Instruction {
	switch decision.Action {
	case types.ActionRoute:
		agent := e.dir.Get(cfg.WorkspaceID, decision.AgentID)
		if agent == nil || agent.Extension == "" {
			e.logger.Error().Str("agent_id", decision.AgentID).Msg("routed agent has no extension")
			return ncco.Default(e.defaultTransfer)
		}
		return []ncco.Instruction{
			ncco.Talk("Connecting you to an agent."),
			ncco.Connect(agent.Extension),
		}

	case types.ActionQueue:
		return []ncco.Instruction{
			ncco.Talk(fmt.Sprintf(
				"All of our agents are currently busy. You are number %d in the queue. Your estimated wait time is %d minutes.",
				decision.QueuePosition, waitMinutes(decision.EstimatedWait))),
		}

	case types.ActionCallback:
		return []ncco.Instruction{
			ncco.Talk(fmt.Sprintf(
				"Our current wait times are longer than usual. We will call you back within %d minutes. Thank you.",
				waitMinutes(decision.EstimatedWait))),
		}

	case types.ActionVoicemail:
		return []ncco.Instruction{
			ncco.Talk("We are unable to take your call right now. Please leave a message after the tone."),
			ncco.Record(e.baseURL+"/webhooks/voice/recordings", 120),
		}

	default:
		return ncco.Default(e.defaultTransfer)
	}
}

// HandleDTMF resolves one keypad input against the saved call state.
// Redelivered digits replay the saved transition without re-running
// side effects.
func (e *Engine) HandleDTMF(ctx context.Context, callID, digit string) ([]ncco.Instruction, error) {
	state, err := e.store.GetCallState(ctx, callID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ncco.Default(e.defaultTransfer), nil
		}
		return nil, fmt.Errorf("failed to load call state: %w", err)
	}

	flow, err := e.store.GetFlow(ctx, state.FlowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", state.FlowID, err)
	}

	cfg, err := e.store.GetRoutingConfiguration(ctx, state.WorkspaceID)
	open := true
	if err == nil {
		open = hours.Evaluate(time.Now(), cfg).Open
	}

	rt := ivr.Runtime{
		WorkspaceID:   state.WorkspaceID,
		PhoneNumber:   state.PhoneNumber,
		CallID:        callID,
		FromNumber:    state.FromNumber,
		BusinessHours: open,
	}

	list, next, changed, err := e.dtmf.Next(flow, *state, digit, rt)
	if err != nil {
		return nil, err
	}
	metrics.Get().RecordDTMFInput(!changed)

	if changed {
		next.UpdatedAt = time.Now()
		if err := e.store.SaveCallState(ctx, next); err != nil {
			e.logger.Error().Err(err).Str("call_id", callID).Msg("failed to save call state")
		}
	} else {
		e.logger.Info().Str("call_id", callID).Str("digit", digit).Msg("duplicate dtmf delivery replayed")
	}

	return list, nil
}

// FinishCall ends one call's claim on the routing state: the agent it
// was connected to, if any, goes back to available and the next waiting
// caller is pulled to them. Calls that never reached an agent (queued,
// IVR-only, voicemail) are a no-op here.
func (e *Engine) FinishCall(ctx context.Context, callID string) {
	workspaceID, released := e.dir.ReleaseCall(callID)
	if !released {
		return
	}

	e.logger.Info().
		Str("call_id", callID).
		Str("workspace_id", workspaceID).
		Msg("agent released after call end")

	e.PromoteQueued(ctx, workspaceID)
}

// PromoteQueued pulls the next waiting caller to a freed agent. Called
// when an agent releases; a redirect failure puts neither side in a
// bad state because the queue entry was already marked assigned.
func (e *Engine) PromoteQueued(ctx context.Context, workspaceID string) {
	entry := e.queue.DequeueNext(ctx, workspaceID)
	if entry == nil {
		return
	}
	metrics.Get().RecordDequeue()

	url := e.baseURL + "/webhooks/voice/connect?workspace=" + workspaceID
	if err := e.carrier.RedirectCall(ctx, entry.CallID, url); err != nil {
		e.logger.Error().Err(err).Str("call_id", entry.CallID).Msg("failed to redirect queued call")
	}
}

// ConnectQueued answers the redirect of a promoted caller by routing
// them against the current agent pool. Promoted callers carry high
// priority so they cannot sink back behind the queue they just left.
func (e *Engine) ConnectQueued(ctx context.Context, workspaceID, callID string) []ncco.Instruction {
	cfg, err := e.store.GetRoutingConfiguration(ctx, workspaceID)
	if err != nil {
		e.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("configuration load failed for promoted call")
		return ncco.Default(e.defaultTransfer)
	}

	caller := &types.CallerProfile{Tier: types.TierStandard, Priority: types.PriorityHigh}
	decision := e.Route(ctx, cfg, true, caller, callID, time.Now())
	e.recordDecision(InboundCall{CallID: callID}, workspaceID, decision, time.Now())
	return e.Render(decision, cfg)
}

// record appends one non-decision audit row (default answer, ivr answer)
func (e *Engine) record(call InboundCall, workspaceID, action string, decision *types.RoutingDecision, failed bool, reason string, now time.Time) {
	rec := types.RoutingRecord{
		DateKey:     now.Format("2006-01-02"),
		AttemptID:   uuid.New().String(),
		CallID:      call.CallID,
		WorkspaceID: workspaceID,
		PhoneNumber: call.PhoneNumber,
		FromNumber:  call.FromNumber,
		Action:      action,
		Failed:      failed,
		Reason:      reason,
		Timestamp:   now.Format(time.RFC3339),
	}
	if decision != nil {
		rec.Strategy = string(decision.Strategy)
		rec.Action = string(decision.Action)
		rec.AgentID = decision.AgentID
		rec.EscalationLevel = decision.EscalationLevel
		rec.EstimatedWait = decision.EstimatedWait
		rec.Fallback = decision.Fallback
	}

	// Fire and forget: audit writes never delay answering the call
	go func() {
		if err := e.audit.AppendRoutingRecord(rec); err != nil {
			e.logger.Error().Err(err).Str("call_id", rec.CallID).Msg("failed to append routing record")
		}
	}()
}

// recordDecision appends one audit row for a routed decision
func (e *Engine) recordDecision(call InboundCall, workspaceID string, decision types.RoutingDecision, now time.Time) {
	e.record(call, workspaceID, string(decision.Action), &decision, false, decision.Reason, now)
}

func waitMinutes(seconds int) int {
	m := (seconds + 59) / 60
	if m < 1 {
		m = 1
	}
	return m
}
