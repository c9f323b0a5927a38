package types

import "time"

// AgentStatus represents the availability state of an agent
type AgentStatus string

const (
	StatusAvailable AgentStatus = "available"
	StatusBusy      AgentStatus = "busy"
	StatusOffline   AgentStatus = "offline"
	StatusDeleted   AgentStatus = "deleted"
)

// AgentRole represents the role of an agent within a workspace
type AgentRole string

const (
	RoleAgent      AgentRole = "agent"
	RoleSupervisor AgentRole = "supervisor"
	RoleBackup     AgentRole = "backup"
	RoleAdmin      AgentRole = "admin"
)

// AgentTier marks seniority, used as a skills-based fallback signal
type AgentTier string

const (
	TierJunior AgentTier = "junior"
	TierSenior AgentTier = "senior"
)

// Skill is a named skill with a proficiency level (1 = lowest)
type Skill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Location holds the geographic attributes used by geographic routing
type Location struct {
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Agent represents a call-center agent as seen by the routing engine
type Agent struct {
	ID           string      `json:"id"`
	WorkspaceID  string      `json:"workspaceId"`
	Name         string      `json:"name"`
	Status       AgentStatus `json:"status"`
	Role         AgentRole   `json:"role"`
	Tier         AgentTier   `json:"tier,omitempty"`
	Skills       []Skill     `json:"skills,omitempty"`
	Location     Location    `json:"location"`
	Extension    string      `json:"extension"`
	LastCallTime time.Time   `json:"lastCallTime"` // zero = never handled a call
	CallsToday   int         `json:"callsToday"`
}

// HasSkill reports whether the agent holds the named skill at or above minLevel
func (a *Agent) HasSkill(name string, minLevel int) bool {
	for _, s := range a.Skills {
		if s.Name == name && s.Level >= minLevel {
			return true
		}
	}
	return false
}

// SkillLevel returns the agent's level for the named skill, 0 if absent
func (a *Agent) SkillLevel(name string) int {
	for _, s := range a.Skills {
		if s.Name == name {
			return s.Level
		}
	}
	return 0
}
