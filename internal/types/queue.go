package types

import "time"

// Priority orders waiting calls within a queue
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the numeric ordering of a priority, higher = more urgent
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// BaseWaitSeconds is the fixed per-priority wait estimate multiplier
func (p Priority) BaseWaitSeconds() int {
	switch p {
	case PriorityUrgent:
		return 60
	case PriorityHigh:
		return 90
	case PriorityLow:
		return 180
	default:
		return 120
	}
}

// EntryStatus is the lifecycle state of a queue entry
type EntryStatus string

const (
	EntryWaiting   EntryStatus = "waiting"
	EntryAssigned  EntryStatus = "assigned"
	EntryRemoved   EntryStatus = "removed"
	EntryAbandoned EntryStatus = "abandoned"
	EntryConnected EntryStatus = "connected"
)

// QueueEntry is one waiting call in a workspace queue
type QueueEntry struct {
	ID            string      `json:"id"`
	WorkspaceID   string      `json:"workspaceId"`
	CallID        string      `json:"callId"`
	Priority      Priority    `json:"priority"`
	Position      int         `json:"position"`      // 1-based, recomputed on insert and priority change
	EstimatedWait int         `json:"estimatedWait"` // seconds
	Status        EntryStatus `json:"status"`
	EnqueuedAt    time.Time   `json:"enqueuedAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// QueueHealth classifies current queue pressure relative to agent capacity
type QueueHealth string

const (
	HealthGood     QueueHealth = "good"
	HealthFair     QueueHealth = "fair"
	HealthPoor     QueueHealth = "poor"
	HealthCritical QueueHealth = "critical"
)

// QueueSnapshot is the live view of one workspace queue
type QueueSnapshot struct {
	WorkspaceID     string           `json:"workspaceId"`
	WaitingCount    int              `json:"waitingCount"`
	ByPriority      map[Priority]int `json:"byPriority"`
	LongestWaitSecs float64          `json:"longestWaitSecs"`
	AvailableAgents int              `json:"availableAgents"`
	Health          QueueHealth      `json:"health"`
	Timestamp       time.Time        `json:"timestamp"`
}

// QueueStats is a derived, read-only aggregate over historical entries
type QueueStats struct {
	WorkspaceID     string  `json:"workspaceId"`
	TotalToday      int     `json:"totalToday"`
	TotalThisWeek   int     `json:"totalThisWeek"`
	AnsweredToday   int     `json:"answeredToday"`
	AbandonedToday  int     `json:"abandonedToday"`
	ServiceLevelPct float64 `json:"serviceLevelPct"` // answered within 5 minutes
	AbandonRatePct  float64 `json:"abandonRatePct"`
	AvgWaitSeconds  float64 `json:"avgWaitSeconds"`
	PeakHour        int     `json:"peakHour"` // 0-23 local hour with the most arrivals
}
