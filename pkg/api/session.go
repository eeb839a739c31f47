package api

import "time"

// SessionStatus is the administrative state of a session. Any status is
// reachable from any other; it is a record, not a state machine.
type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionActive, SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// Session is a named, isolated unit of orchestration activity.
type Session struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      SessionStatus  `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewSession returns a bare session record in SessionPending state. The
// engine's CreateSession is what produces ACTIVE sessions; this constructor
// exists for decoding paths.
func NewSession(id string) *Session {
	return &Session{
		ID:       id,
		Status:   SessionPending,
		Metadata: make(map[string]any),
	}
}

// Clone returns a deep-enough copy of s: the metadata map is copied so the
// caller can mutate it freely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SessionUpdate carries the fields to overwrite on UpdateSession.
// Nil pointers (and a nil Metadata map) leave the field untouched.
type SessionUpdate struct {
	Name        *string
	Description *string
	Status      *SessionStatus
	Metadata    map[string]any
}

// Apply overwrites the selected fields of s.
func (u SessionUpdate) Apply(s *Session) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Metadata != nil {
		s.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			s.Metadata[k] = v
		}
	}
}

// SessionReport is the reporting view of everything done on behalf of a session.
type SessionReport struct {
	Session      *Session           `json:"session"`
	TaskIDs      []string           `json:"task_ids"`
	WorkflowRuns []string           `json:"workflow_runs"`
	Projects     []string           `json:"projects"`
	Resources    map[string]float64 `json:"resources"`
}

// Project is an entry in the flat project registry. SessionID records which
// session created it; the session's lifecycle does not cascade to it.
type Project struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
