package api

import "time"

// SystemStatus is a read-only rollup across all components.
type SystemStatus struct {
	ActiveSessions    int `json:"active_sessions"`
	TotalSessions     int `json:"total_sessions"`
	TotalWorkflows    int `json:"total_workflows"`
	RunningWorkflows  int `json:"running_workflows"`
	TotalTasks        int `json:"total_tasks"`
	RunningTasks      int `json:"running_tasks"`
	CompletedTasks    int `json:"completed_tasks"`
	FailedTasks       int `json:"failed_tasks"`
	TotalProjects     int `json:"total_projects"`
	TotalResources    int `json:"total_resources"`
	ActiveAllocations int `json:"active_allocations"`
}

const (
	HealthHealthy      = "healthy"
	HealthShuttingDown = "shutting_down"
)

// HealthStatus is a liveness report, not a consistency check.
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}
