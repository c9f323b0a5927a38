// Package directory maintains the engine's view of agents per workspace.
package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

// AgentStore is the subset of the datastore the directory needs
type AgentStore interface {
	ListAgents(ctx context.Context, workspaceID string) ([]types.Agent, error)
	UpdateAgentAssignment(ctx context.Context, agentID string, lastCall time.Time, callsToday int) error
}

// binding ties an active call to the agent handling it
type binding struct {
	workspaceID string
	agentID     string
}

// Directory tracks the current state of agents, keyed per workspace so
// reloading one workspace never disturbs another. All
// selection-plus-assignment happens under one lock so two concurrent
// calls can never both pick the same least-recently-used agent.
type Directory struct {
	agents map[string]map[string]*types.Agent // workspaceID -> agentID -> state
	byCall map[string]binding                 // callID -> assigned agent
	store  AgentStore
	mu     sync.RWMutex
	logger zerolog.Logger
}

// New creates an empty directory backed by the given store
func New(store AgentStore, logger zerolog.Logger) *Directory {
	return &Directory{
		agents: make(map[string]map[string]*types.Agent),
		byCall: make(map[string]binding),
		store:  store,
		logger: logger,
	}
}

// Load hydrates one workspace from the store, replacing only that
// workspace's agents
func (d *Directory) Load(ctx context.Context, workspaceID string) error {
	agents, err := d.store.ListAgents(ctx, workspaceID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ws := make(map[string]*types.Agent, len(agents))
	for i := range agents {
		a := agents[i]
		a.WorkspaceID = workspaceID
		ws[a.ID] = &a
	}
	d.agents[workspaceID] = ws

	d.logger.Debug().
		Str("workspace_id", workspaceID).
		Int("agents", len(agents)).
		Msg("agent directory loaded")
	return nil
}

// Upsert adds or replaces a single agent in its workspace
func (d *Directory) Upsert(agent types.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ws, ok := d.agents[agent.WorkspaceID]
	if !ok {
		ws = make(map[string]*types.Agent)
		d.agents[agent.WorkspaceID] = ws
	}
	ws[agent.ID] = &agent
}

// Available returns the workspace's agents with status available
func (d *Directory) Available(workspaceID string) []types.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter(workspaceID, func(a *types.Agent) bool {
		return a.Status == types.StatusAvailable
	})
}

// AvailableWithSkill returns available agents holding the skill at or
// above minLevel
func (d *Directory) AvailableWithSkill(workspaceID, skill string, minLevel int) []types.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter(workspaceID, func(a *types.Agent) bool {
		return a.Status == types.StatusAvailable && a.HasSkill(skill, minLevel)
	})
}

// AvailableByRole returns available agents with the given role
func (d *Directory) AvailableByRole(workspaceID string, role types.AgentRole) []types.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter(workspaceID, func(a *types.Agent) bool {
		return a.Status == types.StatusAvailable && a.Role == role
	})
}

// AvailableByTier returns available agents with the given tier
func (d *Directory) AvailableByTier(workspaceID string, tier types.AgentTier) []types.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter(workspaceID, func(a *types.Agent) bool {
		return a.Status == types.StatusAvailable && a.Tier == tier
	})
}

// LocationField selects which location attribute a geographic cascade
// level matches on
type LocationField int

const (
	MatchCity LocationField = iota
	MatchState
	MatchCountry
	MatchTimezone
)

// AvailableByLocation returns available agents whose location field
// exactly matches the given value
func (d *Directory) AvailableByLocation(workspaceID string, field LocationField, value string) []types.Agent {
	if value == "" {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter(workspaceID, func(a *types.Agent) bool {
		if a.Status != types.StatusAvailable {
			return false
		}
		switch field {
		case MatchCity:
			return a.Location.City == value
		case MatchState:
			return a.Location.State == value
		case MatchCountry:
			return a.Location.Country == value
		case MatchTimezone:
			return a.Location.Timezone == value
		}
		return false
	})
}

// AssignLeastRecentlyUsed atomically selects the least-recently-used
// agent from candidates and marks it assigned to callID. The selection
// and the last_call_time update happen under the same lock; the
// persisted update is best-effort and logged on failure.
func (d *Directory) AssignLeastRecentlyUsed(ctx context.Context, workspaceID string, candidates []types.Agent, callID string, now time.Time) *types.Agent {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]types.Agent, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		// zero times (never called) sort first
		return sorted[i].LastCallTime.Before(sorted[j].LastCallTime)
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cand := range sorted {
		live, ok := d.agents[workspaceID][cand.ID]
		if !ok || live.Status != types.StatusAvailable {
			continue
		}
		d.assignLocked(ctx, workspaceID, live, callID, now)
		cp := *live
		return &cp
	}
	return nil
}

// Assign marks a specific agent as assigned to callID, if still available
func (d *Directory) Assign(ctx context.Context, workspaceID, agentID, callID string, now time.Time) *types.Agent {
	d.mu.Lock()
	defer d.mu.Unlock()

	live, ok := d.agents[workspaceID][agentID]
	if !ok || live.Status != types.StatusAvailable {
		return nil
	}
	d.assignLocked(ctx, workspaceID, live, callID, now)
	cp := *live
	return &cp
}

// assignLocked applies the assignment side effects and records the
// call binding. Caller holds d.mu.
func (d *Directory) assignLocked(ctx context.Context, workspaceID string, a *types.Agent, callID string, now time.Time) {
	a.LastCallTime = now
	a.CallsToday++
	a.Status = types.StatusBusy

	if callID != "" {
		d.byCall[callID] = binding{workspaceID: workspaceID, agentID: a.ID}
	}

	if d.store != nil {
		agentID, lastCall, calls := a.ID, a.LastCallTime, a.CallsToday
		go func() {
			if err := d.store.UpdateAgentAssignment(context.WithoutCancel(ctx), agentID, lastCall, calls); err != nil {
				d.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to persist agent assignment")
			}
		}()
	}
}

// ReleaseCall frees the agent bound to callID when the call ends. It
// returns the agent's workspace so the caller can promote the next
// waiting entry. Unknown call IDs (queued or IVR-only calls) are a
// no-op.
func (d *Directory) ReleaseCall(callID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.byCall[callID]
	if !ok {
		return "", false
	}
	delete(d.byCall, callID)

	if a, ok := d.agents[b.workspaceID][b.agentID]; ok && a.Status == types.StatusBusy {
		a.Status = types.StatusAvailable
	}
	return b.workspaceID, true
}

// Release returns an agent to available, dropping any call binding
// still pointing at them. This is the manual override; call completion
// normally goes through ReleaseCall.
func (d *Directory) Release(workspaceID, agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for callID, b := range d.byCall {
		if b.workspaceID == workspaceID && b.agentID == agentID {
			delete(d.byCall, callID)
		}
	}
	if a, ok := d.agents[workspaceID][agentID]; ok && a.Status == types.StatusBusy {
		a.Status = types.StatusAvailable
	}
}

// Get returns a copy of the agent with the given ID
func (d *Directory) Get(workspaceID, agentID string) *types.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if a, ok := d.agents[workspaceID][agentID]; ok {
		cp := *a
		return &cp
	}
	return nil
}

// Count returns the number of tracked agents in a workspace
func (d *Directory) Count(workspaceID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents[workspaceID])
}

// filter copies out the workspace's agents matching the predicate.
// Caller holds a lock.
func (d *Directory) filter(workspaceID string, keep func(*types.Agent) bool) []types.Agent {
	ws := d.agents[workspaceID]
	result := make([]types.Agent, 0, len(ws))
	for _, a := range ws {
		if keep(a) {
			result = append(result, *a)
		}
	}
	return result
}
