package api

import "time"

// TaskStatus is the lifecycle state of a task in the task queue.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// Terminal reports whether s can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a unit of work in the global task queue. Dependencies are ids of
// other tasks.
type Task struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Module       string         `json:"module"`
	Action       string         `json:"action"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Status       TaskStatus     `json:"status"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TaskFilter selects tasks from the queue. Zero values mean "no filter".
type TaskFilter struct {
	Status    TaskStatus
	SessionID string
}
