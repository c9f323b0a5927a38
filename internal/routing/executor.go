package routing

import (
	"context"
	"sort"
	"time"

	"github.com/dialcraft/router/internal/directory"
	"github.com/dialcraft/router/internal/metrics"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

// callbackCapSeconds caps the callback estimate offered when the queue
// wait exceeds the configured maximum
const callbackCapSeconds = 300

// Executor runs the selected strategy against the agent directory and
// the queue manager, producing a routing decision
type Executor struct {
	dir    *directory.Directory
	queue  *queue.Manager
	logger zerolog.Logger
}

// NewExecutor creates an executor
func NewExecutor(dir *directory.Directory, qm *queue.Manager, logger zerolog.Logger) *Executor {
	return &Executor{dir: dir, queue: qm, logger: logger}
}

// Execute dispatches over the closed strategy set. Every branch
// terminates in a decision; a strategy that finds no usable agent
// degrades to queue or voicemail, never an error.
func (e *Executor) Execute(ctx context.Context, strategy types.Strategy, cfg *types.RoutingConfiguration, caller *types.CallerProfile, callID string, now time.Time) types.RoutingDecision {
	switch strategy {
	case types.StrategySkillsBased:
		return e.skillsBased(ctx, cfg, caller, callID, now)
	case types.StrategyGeographic:
		return e.geographic(ctx, cfg, caller, callID, now)
	case types.StrategyRoundRobin:
		return e.roundRobin(ctx, cfg, caller, callID, now)
	case types.StrategyQueue:
		return e.enqueue(ctx, cfg, caller, callID, false)
	case types.StrategyVoicemail:
		return voicemailDecision(types.StrategyVoicemail, 0, "configured voicemail strategy")
	case types.StrategyFailover:
		return e.failover(ctx, cfg, caller, callID, now)
	default:
		// Unknown strategies cannot reach a live call
		return voicemailDecision(types.StrategyVoicemail, 0, "unknown strategy")
	}
}

// skillsBased filters agents by the required skill at the minimum
// level, falling back for high-priority callers to supervisors and
// senior agents, then to any available agent. Among matches the
// highest skill level wins, tie-broken by fewest calls handled today.
func (e *Executor) skillsBased(ctx context.Context, cfg *types.RoutingConfiguration, caller *types.CallerProfile, callID string, now time.Time) types.RoutingDecision {
	minLevel := caller.MinSkillLevel
	if minLevel < 1 {
		minLevel = 1
	}

	fallback := false
	candidates := e.dir.AvailableWithSkill(cfg.WorkspaceID, caller.RequiredSkill, minLevel)

	if len(candidates) == 0 && caller.HighPriority() {
		fallback = true
		candidates = e.dir.AvailableByRole(cfg.WorkspaceID, types.RoleSupervisor)
		candidates = append(candidates, e.dir.AvailableByTier(cfg.WorkspaceID, types.TierSenior)...)
		candidates = dedupe(candidates)
	}

	if len(candidates) == 0 {
		fallback = true
		candidates = e.dir.Available(cfg.WorkspaceID)
	}

	if len(candidates) == 0 {
		d := e.enqueue(ctx, cfg, caller, callID, true)
		d.Reason = "no agents match skill, queued"
		return d
	}

	skill := caller.RequiredSkill
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].SkillLevel(skill), candidates[j].SkillLevel(skill)
		if li != lj {
			return li > lj
		}
		return candidates[i].CallsToday < candidates[j].CallsToday
	})

	for _, cand := range candidates {
		if agent := e.dir.Assign(ctx, cfg.WorkspaceID, cand.ID, callID, now); agent != nil {
			return types.RoutingDecision{
				Action:   types.ActionRoute,
				AgentID:  agent.ID,
				Strategy: types.StrategySkillsBased,
				Fallback: fallback,
			}
		}
	}

	d := e.enqueue(ctx, cfg, caller, callID, true)
	d.Reason = "skill candidates raced away, queued"
	return d
}

// geographic cascades exact-match attempts city -> state -> country ->
// timezone; the first non-empty level wins with a least-recently-used
// tie-break. Round-robin is the final fallback when every level is empty.
func (e *Executor) geographic(ctx context.Context, cfg *types.RoutingConfiguration, caller *types.CallerProfile, callID string, now time.Time) types.RoutingDecision {
	levels := []struct {
		field directory.LocationField
		value string
	}{
		{directory.MatchCity, caller.Location.City},
		{directory.MatchState, caller.Location.State},
		{directory.MatchCountry, caller.Location.Country},
		{directory.MatchTimezone, caller.Location.Timezone},
	}

	for _, level := range levels {
		candidates := e.dir.AvailableByLocation(cfg.WorkspaceID, level.field, level.value)
		if len(candidates) == 0 {
			continue
		}
		if agent := e.dir.AssignLeastRecentlyUsed(ctx, cfg.WorkspaceID, candidates, callID, now); agent != nil {
			return types.RoutingDecision{
				Action:   types.ActionRoute,
				AgentID:  agent.ID,
				Strategy: types.StrategyGeographic,
			}
		}
	}

	d := e.roundRobin(ctx, cfg, caller, callID, now)
	d.Fallback = true
	if d.Action == types.ActionRoute {
		d.Reason = "no geographic match, round-robin fallback"
	}
	return d
}

// roundRobin picks the least-recently-used available agent. The
// directory updates last_call_time under its lock, which is the side
// effect that rotates the next pick.
func (e *Executor) roundRobin(ctx context.Context, cfg *types.RoutingConfiguration, caller *types.CallerProfile, callID string, now time.Time) types.RoutingDecision {
	if agent := e.dir.AssignLeastRecentlyUsed(ctx, cfg.WorkspaceID, e.dir.Available(cfg.WorkspaceID), callID, now); agent != nil {
		return types.RoutingDecision{
			Action:   types.ActionRoute,
			AgentID:  agent.ID,
			Strategy: types.StrategyRoundRobin,
		}
	}

	d := e.enqueue(ctx, cfg, caller, callID, true)
	d.Reason = "no available agents, queued"
	return d
}

// enqueue places the call in the priority queue, overflowing to
// voicemail past the configured max size and offering a callback when
// the estimate exceeds the configured max wait.
func (e *Executor) enqueue(ctx context.Context, cfg *types.RoutingConfiguration, caller *types.CallerProfile, callID string, fallback bool) types.RoutingDecision {
	priority := caller.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}

	entry, outcome := e.queue.TryEnqueue(ctx, cfg.WorkspaceID, callID, priority, cfg.MaxQueueSize, cfg.MaxWaitSeconds)
	switch outcome {
	case queue.Overflowed:
		d := voicemailDecision(types.StrategyQueue, 0, "queue overflow")
		d.Fallback = fallback
		return d

	case queue.WaitExceeded:
		callbackEstimate := entry.EstimatedWait / 2
		if callbackEstimate > callbackCapSeconds {
			callbackEstimate = callbackCapSeconds
		}
		return types.RoutingDecision{
			Action:        types.ActionCallback,
			Strategy:      types.StrategyQueue,
			EstimatedWait: callbackEstimate,
			Fallback:      fallback,
			Reason:        "estimated wait exceeds maximum",
		}
	}

	metrics.Get().RecordEnqueue()
	return types.RoutingDecision{
		Action:        types.ActionQueue,
		Strategy:      types.StrategyQueue,
		EstimatedWait: entry.EstimatedWait,
		QueuePosition: entry.Position,
		Fallback:      fallback,
	}
}

// voicemailDecision builds a terminal voicemail decision
func voicemailDecision(strategy types.Strategy, level int, reason string) types.RoutingDecision {
	return types.RoutingDecision{
		Action:          types.ActionVoicemail,
		Strategy:        strategy,
		EscalationLevel: level,
		Reason:          reason,
	}
}

// dedupe removes duplicate agents by ID, keeping first occurrence
func dedupe(agents []types.Agent) []types.Agent {
	seen := make(map[string]bool, len(agents))
	result := agents[:0]
	for _, a := range agents {
		if !seen[a.ID] {
			seen[a.ID] = true
			result = append(result, a)
		}
	}
	return result
}
