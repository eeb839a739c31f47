package api

import "time"

// WorkflowStep is one node in a workflow DAG. Dependencies name other steps
// of the same workflow.
type WorkflowStep struct {
	Name         string         `json:"name" yaml:"name"`
	Module       string         `json:"module" yaml:"module"`
	Action       string         `json:"action" yaml:"action"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Workflow is a named DAG of steps. Once registered it is immutable; it can
// only be replaced by registering a new workflow under the same name.
type Workflow struct {
	Name  string         `json:"name" yaml:"name"`
	Steps []WorkflowStep `json:"steps" yaml:"steps"`
}

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// StepStatus is the outcome of a single step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	// StepSkipped marks a step that was never dispatched because one of its
	// transitive dependencies failed. Skipped steps do not count as failures.
	StepSkipped StepStatus = "SKIPPED"
)

// StepResult records what happened to one step of a run.
type StepResult struct {
	Status   StepStatus     `json:"status"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// WorkflowRun holds the result of executing a workflow once.
type WorkflowRun struct {
	ID         string                `json:"id"`
	Workflow   string                `json:"workflow"`
	SessionID  string                `json:"session_id,omitempty"`
	Status     RunStatus             `json:"status"`
	Order      []string              `json:"order"`
	Steps      map[string]StepResult `json:"steps"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Failed returns the names of steps whose dispatch failed.
func (r *WorkflowRun) Failed() []string {
	return r.stepsWith(StepFailed)
}

// Skipped returns the names of steps skipped because of an upstream failure.
func (r *WorkflowRun) Skipped() []string {
	return r.stepsWith(StepSkipped)
}

func (r *WorkflowRun) stepsWith(status StepStatus) []string {
	var out []string
	for _, name := range r.Order {
		if r.Steps[name].Status == status {
			out = append(out, name)
		}
	}
	return out
}
