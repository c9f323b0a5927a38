package types

// RoutingRecord is one row of the append-only routing audit trail.
// Keyed by DateKey (partition) and a per-attempt sort key so records
// are never overwritten.
type RoutingRecord struct {
	DateKey         string `json:"dateKey" dynamodbav:"DateKey"`     // YYYY-MM-DD (partition key)
	AttemptID       string `json:"attemptId" dynamodbav:"AttemptID"` // sort key, unique per attempt
	CallID          string `json:"callId" dynamodbav:"CallID"`
	WorkspaceID     string `json:"workspaceId" dynamodbav:"WorkspaceID"`
	PhoneNumber     string `json:"phoneNumber" dynamodbav:"PhoneNumber"`
	FromNumber      string `json:"fromNumber" dynamodbav:"FromNumber"`
	Strategy        string `json:"strategy" dynamodbav:"Strategy"`
	Action          string `json:"action" dynamodbav:"Action"`
	AgentID         string `json:"agentId" dynamodbav:"AgentID"`
	EscalationLevel int    `json:"escalationLevel" dynamodbav:"EscalationLevel"`
	EstimatedWait   int    `json:"estimatedWait" dynamodbav:"EstimatedWait"`
	Fallback        bool   `json:"fallback" dynamodbav:"Fallback"`
	Failed          bool   `json:"failed" dynamodbav:"Failed"`
	Reason          string `json:"reason" dynamodbav:"Reason"`
	Timestamp       string `json:"timestamp" dynamodbav:"Timestamp"` // RFC3339
}
