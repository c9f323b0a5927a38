package routing

import (
	"context"
	"time"

	"github.com/dialcraft/router/internal/metrics"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/types"
)

// failover sequences through backup agents, supervisors, the
// high-priority queue and finally voicemail. Each step is attempted at
// most once; the escalation level (1..4) records where the pipeline
// terminated.
func (e *Executor) failover(ctx context.Context, cfg *types.RoutingConfiguration, caller *types.CallerProfile, callID string, now time.Time) types.RoutingDecision {
	// Step 1: backup agents
	if agent := e.dir.AssignLeastRecentlyUsed(ctx, cfg.WorkspaceID, e.dir.AvailableByRole(cfg.WorkspaceID, types.RoleBackup), callID, now); agent != nil {
		return types.RoutingDecision{
			Action:          types.ActionRoute,
			AgentID:         agent.ID,
			Strategy:        types.StrategyFailover,
			EscalationLevel: 1,
		}
	}

	// Step 2: supervisors
	if agent := e.dir.AssignLeastRecentlyUsed(ctx, cfg.WorkspaceID, e.dir.AvailableByRole(cfg.WorkspaceID, types.RoleSupervisor), callID, now); agent != nil {
		return types.RoutingDecision{
			Action:          types.ActionRoute,
			AgentID:         agent.ID,
			Strategy:        types.StrategyFailover,
			EscalationLevel: 2,
		}
	}

	// Step 3: high-priority queue slot, if one is open
	if entry, outcome := e.queue.TryEnqueue(ctx, cfg.WorkspaceID, callID, types.PriorityHigh, cfg.MaxQueueSize, 0); outcome == queue.Admitted {
		metrics.Get().RecordEnqueue()
		return types.RoutingDecision{
			Action:          types.ActionQueue,
			Strategy:        types.StrategyFailover,
			EscalationLevel: 3,
			EstimatedWait:   entry.EstimatedWait,
			QueuePosition:   entry.Position,
		}
	}

	// Step 4: voicemail, always succeeds
	return voicemailDecision(types.StrategyFailover, 4, "failover exhausted")
}
