package types

import "time"

// Strategy is the closed set of routing strategies the engine can apply.
// Dispatch is always over this type, never over free-form strings.
type Strategy string

const (
	StrategySkillsBased Strategy = "skills-based"
	StrategyGeographic  Strategy = "geographic"
	StrategyRoundRobin  Strategy = "round-robin"
	StrategyQueue       Strategy = "queue"
	StrategyVoicemail   Strategy = "voicemail"
	StrategyFailover    Strategy = "failover"
)

// AllStrategies lists every routing strategy
var AllStrategies = []Strategy{
	StrategySkillsBased,
	StrategyGeographic,
	StrategyRoundRobin,
	StrategyQueue,
	StrategyVoicemail,
	StrategyFailover,
}

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool {
	for _, known := range AllStrategies {
		if s == known {
			return true
		}
	}
	return false
}

// DecisionAction is the terminal action of a routing decision
type DecisionAction string

const (
	ActionRoute     DecisionAction = "route"
	ActionQueue     DecisionAction = "queue"
	ActionVoicemail DecisionAction = "voicemail"
	ActionCallback  DecisionAction = "callback"
)

// RoutingDecision is the ephemeral outcome of one routing attempt.
// It is surfaced to the API layer and the audit log, never persisted
// as an entity.
type RoutingDecision struct {
	Action          DecisionAction `json:"action"`
	AgentID         string         `json:"agentId,omitempty"`
	Strategy        Strategy       `json:"strategy"`
	EscalationLevel int            `json:"escalationLevel"` // 0 = primary, 1..4 = failover steps
	EstimatedWait   int            `json:"estimatedWait,omitempty"` // seconds
	QueuePosition   int            `json:"queuePosition,omitempty"`
	Fallback        bool           `json:"fallback"` // true when a degraded match was forced
	Reason          string         `json:"reason,omitempty"`
}

// CallerTier classifies the inbound caller
type CallerTier string

const (
	TierStandard CallerTier = "standard"
	TierPremium  CallerTier = "premium"
)

// CallerProfile carries the caller attributes the selector and executor consume
type CallerProfile struct {
	Number        string     `json:"number"`
	Tier          CallerTier `json:"tier"`
	RequiredSkill string     `json:"requiredSkill,omitempty"`
	MinSkillLevel int        `json:"minSkillLevel,omitempty"`
	Location      Location   `json:"location"`
	Priority      Priority   `json:"priority"`
}

// HighPriority reports whether the caller should get premium treatment
func (c *CallerProfile) HighPriority() bool {
	return c.Tier == TierPremium || c.Priority == PriorityUrgent || c.Priority == PriorityHigh
}

// Holiday is a closed date: exact (Year set) or recurring (Year zero)
type Holiday struct {
	Name  string `json:"name"`
	Month int    `json:"month"`
	Day   int    `json:"day"`
	Year  int    `json:"year,omitempty"` // 0 = recurs every year
}

// DaySchedule is the open window for a single weekday, wall-clock HH:MM
type DaySchedule struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "09:00"
	End     string `json:"end"`   // "17:00"
}

// RoutingConfiguration is the per-workspace routing policy. One active
// configuration per workspace, created and edited externally; the engine
// only reads it.
type RoutingConfiguration struct {
	WorkspaceID        string                 `json:"workspaceId"`
	Timezone           string                 `json:"timezone"`
	Schedule           map[string]DaySchedule `json:"schedule"` // keyed by lowercase weekday name
	Holidays           []Holiday              `json:"holidays,omitempty"`
	AfterHoursStrategy Strategy               `json:"afterHoursStrategy"`
	NoAgentsStrategy   Strategy               `json:"noAgentsStrategy"`
	GeoRoutingEnabled  bool                   `json:"geoRoutingEnabled"`
	MaxQueueSize       int                    `json:"maxQueueSize"`
	MaxWaitSeconds     int                    `json:"maxWaitSeconds"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// CallRouting binds a phone number to an IVR flow. Multiple rules may
// exist per number; the lowest Priority number wins at lookup time.
type CallRouting struct {
	ID              string    `json:"id"`
	WorkspaceID     string    `json:"workspaceId"`
	PhoneNumber     string    `json:"phoneNumber"`
	FlowID          string    `json:"flowId"`
	Priority        int       `json:"priority"`
	CallerIDPattern string    `json:"callerIdPattern,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
}
