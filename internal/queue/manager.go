// Package queue implements the priority wait queue and its estimator.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dialcraft/router/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MinWaitSeconds is the floor for every wait estimate
const MinWaitSeconds = 30

// EntryStore persists queue entries and serves historical rows for stats
type EntryStore interface {
	SaveQueueEntry(ctx context.Context, entry types.QueueEntry) error
	UpdateQueueEntryStatus(ctx context.Context, entryID string, status types.EntryStatus) error
	ListQueueEntriesSince(ctx context.Context, workspaceID string, since time.Time) ([]types.QueueEntry, error)
}

// Manager maintains per-workspace priority queues. Position computation
// and insertion happen under one lock, so concurrent enqueues cannot
// derive the same position.
type Manager struct {
	waiting map[string][]*types.QueueEntry // workspaceID -> waiting entries, insertion order
	store   EntryStore
	mu      sync.Mutex
	logger  zerolog.Logger
}

// NewManager creates a queue manager backed by the given store
func NewManager(store EntryStore, logger zerolog.Logger) *Manager {
	return &Manager{
		waiting: make(map[string][]*types.QueueEntry),
		store:   store,
		logger:  logger,
	}
}

// EstimateWait returns the wait estimate for a position and priority:
// max(position x base-time-for-priority, 30s)
func EstimateWait(position int, p types.Priority) int {
	est := position * p.BaseWaitSeconds()
	if est < MinWaitSeconds {
		return MinWaitSeconds
	}
	return est
}

// projectedPositionLocked returns the position a new entry of the given
// priority would take: 1 + count of waiting entries with same-or-higher
// priority. Lower-priority entries never block the position. Caller
// holds m.mu.
func (m *Manager) projectedPositionLocked(workspaceID string, p types.Priority) int {
	pos := 1
	for _, e := range m.waiting[workspaceID] {
		if e.Priority.Rank() >= p.Rank() {
			pos++
		}
	}
	return pos
}

// EnqueueOutcome reports how an admission attempt ended
type EnqueueOutcome int

const (
	Admitted EnqueueOutcome = iota
	Overflowed
	WaitExceeded
)

// Enqueue inserts a call into the workspace queue with no admission
// limits. The returned entry carries its 1-based position and wait
// estimate.
func (m *Manager) Enqueue(ctx context.Context, workspaceID, callID string, p types.Priority) *types.QueueEntry {
	entry, _ := m.TryEnqueue(ctx, workspaceID, callID, p, 0, 0)
	return entry
}

// TryEnqueue admits a call subject to the workspace limits (0 disables
// a limit). The projection, the limit checks and the insertion run
// under one lock, so two concurrent admissions at the capacity edge
// cannot both slip past it. On Overflowed the entry is nil; on
// WaitExceeded the entry carries the projected position and estimate
// but was not queued.
func (m *Manager) TryEnqueue(ctx context.Context, workspaceID, callID string, p types.Priority, maxSize, maxWaitSeconds int) (*types.QueueEntry, EnqueueOutcome) {
	m.mu.Lock()

	position := m.projectedPositionLocked(workspaceID, p)
	if maxSize > 0 && position > maxSize {
		m.mu.Unlock()
		return nil, Overflowed
	}

	estimate := EstimateWait(position, p)
	if maxWaitSeconds > 0 && estimate > maxWaitSeconds {
		m.mu.Unlock()
		return &types.QueueEntry{
			WorkspaceID:   workspaceID,
			CallID:        callID,
			Priority:      p,
			Position:      position,
			EstimatedWait: estimate,
		}, WaitExceeded
	}

	now := time.Now()
	entry := &types.QueueEntry{
		ID:            uuid.New().String(),
		WorkspaceID:   workspaceID,
		CallID:        callID,
		Priority:      p,
		Position:      position,
		EstimatedWait: estimate,
		Status:        types.EntryWaiting,
		EnqueuedAt:    now,
		UpdatedAt:     now,
	}

	m.waiting[workspaceID] = append(m.waiting[workspaceID], entry)
	m.recomputeLocked(workspaceID)
	snapshot := *entry
	m.mu.Unlock()

	m.logger.Debug().
		Str("call_id", callID).
		Str("workspace_id", workspaceID).
		Str("priority", string(p)).
		Int("position", snapshot.Position).
		Int("estimated_wait", snapshot.EstimatedWait).
		Msg("call enqueued")

	m.persist(ctx, snapshot)
	return &snapshot, Admitted
}

// UpdatePriority changes a waiting entry's priority and recomputes
// positions for the whole workspace queue
func (m *Manager) UpdatePriority(ctx context.Context, callID string, p types.Priority) *types.QueueEntry {
	m.mu.Lock()
	var found *types.QueueEntry
	var ws string
	for workspaceID, entries := range m.waiting {
		for _, e := range entries {
			if e.CallID == callID {
				e.Priority = p
				e.UpdatedAt = time.Now()
				found, ws = e, workspaceID
			}
		}
	}
	if found == nil {
		m.mu.Unlock()
		return nil
	}
	m.recomputeLocked(ws)
	snapshot := *found
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	return &snapshot
}

// DequeueNext removes and returns the best waiting entry: highest
// priority first, earliest enqueue within a priority
func (m *Manager) DequeueNext(ctx context.Context, workspaceID string) *types.QueueEntry {
	m.mu.Lock()
	entries := m.waiting[workspaceID]
	if len(entries) == 0 {
		m.mu.Unlock()
		return nil
	}

	best := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].Priority.Rank() > entries[best].Priority.Rank() {
			best = i
		}
	}

	entry := entries[best]
	m.waiting[workspaceID] = append(entries[:best], entries[best+1:]...)
	entry.Status = types.EntryAssigned
	entry.UpdatedAt = time.Now()
	m.recomputeLocked(workspaceID)
	snapshot := *entry
	m.mu.Unlock()

	m.persistStatus(ctx, snapshot.ID, types.EntryAssigned)
	return &snapshot
}

// Abandon marks a waiting call abandoned (external hangup event)
func (m *Manager) Abandon(ctx context.Context, callID string) *types.QueueEntry {
	return m.removeByCall(ctx, callID, types.EntryAbandoned)
}

// Remove drops a waiting call without connecting it (e.g. overflow)
func (m *Manager) Remove(ctx context.Context, callID string) *types.QueueEntry {
	return m.removeByCall(ctx, callID, types.EntryRemoved)
}

func (m *Manager) removeByCall(ctx context.Context, callID string, status types.EntryStatus) *types.QueueEntry {
	m.mu.Lock()
	for workspaceID, entries := range m.waiting {
		for i, e := range entries {
			if e.CallID != callID {
				continue
			}
			m.waiting[workspaceID] = append(entries[:i], entries[i+1:]...)
			e.Status = status
			e.UpdatedAt = time.Now()
			m.recomputeLocked(workspaceID)
			snapshot := *e
			m.mu.Unlock()

			m.persistStatus(ctx, snapshot.ID, status)
			return &snapshot
		}
	}
	m.mu.Unlock()
	return nil
}

// WaitingCount returns the number of waiting entries for a workspace
func (m *Manager) WaitingCount(workspaceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting[workspaceID])
}

// Snapshot returns the live view of one workspace queue
func (m *Manager) Snapshot(workspaceID string, availableAgents int) types.QueueSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.waiting[workspaceID]
	byPriority := make(map[types.Priority]int)
	longest := 0.0
	for _, e := range entries {
		byPriority[e.Priority]++
		if w := time.Since(e.EnqueuedAt).Seconds(); w > longest {
			longest = w
		}
	}

	return types.QueueSnapshot{
		WorkspaceID:     workspaceID,
		WaitingCount:    len(entries),
		ByPriority:      byPriority,
		LongestWaitSecs: longest,
		AvailableAgents: availableAgents,
		Health:          classifyHealth(byPriority, availableAgents),
		Timestamp:       time.Now(),
	}
}

// Workspaces returns the workspace IDs with live queues
func (m *Manager) Workspaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.waiting))
	for ws := range m.waiting {
		ids = append(ids, ws)
	}
	sort.Strings(ids)
	return ids
}

// classifyHealth weighs waiting calls toward urgent/high and compares
// against available agent capacity
func classifyHealth(byPriority map[types.Priority]int, availableAgents int) types.QueueHealth {
	weighted := 2.0*float64(byPriority[types.PriorityUrgent]) +
		1.5*float64(byPriority[types.PriorityHigh]) +
		1.0*float64(byPriority[types.PriorityNormal]) +
		0.5*float64(byPriority[types.PriorityLow])

	if weighted == 0 {
		return types.HealthGood
	}
	if availableAgents == 0 {
		return types.HealthCritical
	}

	ratio := weighted / float64(availableAgents)
	switch {
	case ratio < 1:
		return types.HealthGood
	case ratio < 2:
		return types.HealthFair
	case ratio < 3:
		return types.HealthPoor
	default:
		return types.HealthCritical
	}
}

// recomputeLocked reassigns positions and estimates after any mutation.
// Position = 1 + count of entries with strictly higher priority, or the
// same priority enqueued earlier. Caller holds m.mu.
func (m *Manager) recomputeLocked(workspaceID string) {
	entries := m.waiting[workspaceID]
	for _, e := range entries {
		pos := 1
		for _, other := range entries {
			if other == e {
				continue
			}
			if other.Priority.Rank() > e.Priority.Rank() {
				pos++
			} else if other.Priority.Rank() == e.Priority.Rank() && other.EnqueuedAt.Before(e.EnqueuedAt) {
				pos++
			}
		}
		e.Position = pos
		e.EstimatedWait = EstimateWait(pos, e.Priority)
	}
}

// persist writes an entry through the store, best-effort
func (m *Manager) persist(ctx context.Context, entry types.QueueEntry) {
	if m.store == nil {
		return
	}
	go func() {
		if err := m.store.SaveQueueEntry(context.WithoutCancel(ctx), entry); err != nil {
			m.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to save queue entry")
		}
	}()
}

func (m *Manager) persistStatus(ctx context.Context, entryID string, status types.EntryStatus) {
	if m.store == nil {
		return
	}
	go func() {
		if err := m.store.UpdateQueueEntryStatus(context.WithoutCancel(ctx), entryID, status); err != nil {
			m.logger.Error().Err(err).Str("entry_id", entryID).Msg("failed to update queue entry status")
		}
	}()
}
