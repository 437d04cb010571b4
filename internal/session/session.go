// Package session implements the persistent, TTL-indexed Session Store
// (spec §4.B) that backs in-flight flow execution. Its record shape and
// write-back discipline are adapted from the teacher's (KafClaw)
// internal/session.Session — a mutex-guarded, JSON-tagged struct — but the
// conversational-turn history that package tracked is replaced by the
// flow-engine's own position/state/lifetime fields (spec §3).
package session

import "time"

// Status is a session's lifecycle state (spec §3).
type Status string

const (
	StatusRunning         Status = "running"
	StatusWaitingForInput Status = "waiting_for_input"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusTimeout         Status = "timeout"
	StatusCancelled       Status = "cancelled"
)

// IsTerminal reports whether a status never transitions further
// (spec §8 invariant 2).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a session counts toward the
// at-most-one-per-contact uniqueness invariant (spec §3).
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusWaitingForInput
}

// Session is one running instance of a flow for one contact (spec §3).
type Session struct {
	ID             string `json:"session_id"`
	FlowID         string `json:"flow_id"`
	TenantID       string `json:"tenant_id"`
	ContactID      string `json:"contact_id"`
	ConversationID string `json:"conversation_id"`

	CurrentNodeID string   `json:"current_node_id"`
	ExecutionPath []string `json:"execution_path"`

	Variables map[string]any `json:"variables"`
	Context   map[string]any `json:"context"` // engine-private: error, per-node retry counters, wait_due_at, event_token, poll_interval_ms
	Status    Status         `json:"status"`

	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// New constructs a fresh Running session positioned at startNodeID.
func New(id, flowID, tenantID, contactID, conversationID, startNodeID string, timeout time.Duration, vars map[string]any) *Session {
	now := time.Now()
	s := &Session{
		ID:             id,
		FlowID:         flowID,
		TenantID:       tenantID,
		ContactID:      contactID,
		ConversationID: conversationID,
		CurrentNodeID:  startNodeID,
		ExecutionPath:  []string{startNodeID},
		Variables:      vars,
		Context:        map[string]any{},
		Status:         StatusRunning,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if timeout > 0 {
		exp := now.Add(timeout)
		s.ExpiresAt = &exp
	}
	if s.Variables == nil {
		s.Variables = map[string]any{}
	}
	return s
}

// Touch refreshes LastActivityAt and recomputes ExpiresAt from timeout
// (spec §3: expires_at = started_at + settings.timeout, re-computed on
// each activity — re-anchored to "now" so a session that keeps getting
// input never times out mid-conversation).
func (s *Session) Touch(timeout time.Duration) {
	s.LastActivityAt = time.Now()
	if timeout > 0 {
		exp := s.LastActivityAt.Add(timeout)
		s.ExpiresAt = &exp
	}
}

// IsExpired reports whether the session's timeout has elapsed, or (absent
// an explicit ExpiresAt) whether LastActivityAt is older than 24h (spec
// §4.B sweep_expired semantics).
func (s *Session) IsExpired(now time.Time) bool {
	if s.ExpiresAt != nil {
		return now.After(*s.ExpiresAt)
	}
	return now.Sub(s.LastActivityAt) > 24*time.Hour
}

// AppendNode records a Continue transition and reports whether the
// execution path now exceeds maxIterations (spec §4.C loop bound).
func (s *Session) AppendNode(nodeID string, maxIterations int) (exceeded bool) {
	s.ExecutionPath = append(s.ExecutionPath, nodeID)
	s.CurrentNodeID = nodeID
	if maxIterations <= 0 {
		maxIterations = 100
	}
	return len(s.ExecutionPath) > maxIterations
}
