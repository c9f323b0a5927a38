package types

import "time"

// ConditionTag gates an instruction template on the business-hours flag
type ConditionTag string

const (
	ConditionNone          ConditionTag = ""
	ConditionBusinessHours ConditionTag = "business_hours_only"
	ConditionAfterHours    ConditionTag = "after_hours_only"
)

// InstructionTemplate is one stored step of an IVR flow. Text and URL
// fields may contain {workspace_id}, {phone_number}, {call_uuid},
// {from_number} and {base_url} placeholders.
type InstructionTemplate struct {
	Action     string       `json:"action"` // talk, connect, input, record, notify
	Text       string       `json:"text,omitempty"`
	Department string       `json:"department,omitempty"` // for connect steps routed via the department map
	Endpoint   string       `json:"endpoint,omitempty"`   // literal number for connect steps
	EventURL   []string     `json:"eventUrl,omitempty"`
	MaxDigits  int          `json:"maxDigits,omitempty"`
	TimeoutSec int          `json:"timeoutSec,omitempty"`
	Condition  ConditionTag `json:"condition,omitempty"`
}

// DepartmentEntry maps a department name to a dialable number
type DepartmentEntry struct {
	Number  string `json:"number"`
	Enabled bool   `json:"enabled"`
}

// VoicemailConfig holds per-flow voicemail settings
type VoicemailConfig struct {
	MaxDurationSecs int      `json:"maxDurationSecs"`
	Greeting        string   `json:"greeting,omitempty"`
	NotifyEmails    []string `json:"notifyEmails,omitempty"`
}

// IVRFlow is a stored flow definition. Version is bumped on every edit,
// which invalidates any cached compiled output.
type IVRFlow struct {
	ID          string                     `json:"id"`
	WorkspaceID string                     `json:"workspaceId"`
	Name        string                     `json:"name"`
	Steps       []InstructionTemplate      `json:"steps"`
	Departments map[string]DepartmentEntry `json:"departments"`
	Voicemail   VoicemailConfig            `json:"voicemail"`
	Active      bool                       `json:"active"`
	Version     int                        `json:"version"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
}

// CallState is the persisted per-call menu state. The DTMF state machine
// reads and writes it so webhook redeliveries are idempotent. The call's
// numbers are carried so recompiled menus keep their placeholder values.
type CallState struct {
	CallID      string    `json:"callId"`
	WorkspaceID string    `json:"workspaceId"`
	FlowID      string    `json:"flowId"`
	FlowVersion int       `json:"flowVersion"`
	PhoneNumber string    `json:"phoneNumber"`
	FromNumber  string    `json:"fromNumber"`
	CurrentStep string    `json:"currentStep"`
	LastDTMF    string    `json:"lastDtmf"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
