package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the workflow engine and task workers for
// logging and metrics.
//
// Implementations should be fast and non-blocking. Callbacks may arrive
// concurrently when steps or tasks are dispatched in parallel.
type Observer interface {
	// OnWorkflowStart is called once before the first step of a run is dispatched.
	OnWorkflowStart(ctx context.Context, run *WorkflowRun)

	// OnWorkflowCompleted is called when every step of a run completed.
	OnWorkflowCompleted(ctx context.Context, run *WorkflowRun)

	// OnWorkflowFailed is called when at least one step of a run failed.
	OnWorkflowFailed(ctx context.Context, run *WorkflowRun, err error)

	// OnStepStart is called before dispatching a step.
	OnStepStart(ctx context.Context, run *WorkflowRun, step string)

	// OnStepCompleted is called after a step dispatch returns, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, run *WorkflowRun, step string, err error, duration time.Duration)

	// OnStepSkipped is called for every step that is not dispatched because
	// the named upstream step failed.
	OnStepSkipped(ctx context.Context, run *WorkflowRun, step string, failedDependency string)

	// OnTaskStart is called when a worker claims a task.
	OnTaskStart(ctx context.Context, task *Task)

	// OnTaskCompleted is called after a task dispatch returns (err != nil on failure).
	OnTaskCompleted(ctx context.Context, task *Task, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, run *WorkflowRun)                {}
func (NoopObserver) OnWorkflowCompleted(ctx context.Context, run *WorkflowRun)            {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, run *WorkflowRun, err error)    {}
func (NoopObserver) OnStepStart(ctx context.Context, run *WorkflowRun, step string)       {}
func (NoopObserver) OnStepSkipped(ctx context.Context, run *WorkflowRun, step, dep string) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, run *WorkflowRun, step string, err error, d time.Duration) {
}
func (NoopObserver) OnTaskStart(ctx context.Context, task *Task) {}
func (NoopObserver) OnTaskCompleted(ctx context.Context, task *Task, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, run *WorkflowRun) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, run)
	}
}

func (c *CompositeObserver) OnWorkflowCompleted(ctx context.Context, run *WorkflowRun) {
	for _, o := range c.observers {
		o.OnWorkflowCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, run *WorkflowRun, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run *WorkflowRun, step string) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, step)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run *WorkflowRun, step string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, step, err, d)
	}
}

func (c *CompositeObserver) OnStepSkipped(ctx context.Context, run *WorkflowRun, step, dep string) {
	for _, o := range c.observers {
		o.OnStepSkipped(ctx, run, step, dep)
	}
}

func (c *CompositeObserver) OnTaskStart(ctx context.Context, task *Task) {
	for _, o := range c.observers {
		o.OnTaskStart(ctx, task)
	}
}

func (c *CompositeObserver) OnTaskCompleted(ctx context.Context, task *Task, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnTaskCompleted(ctx, task, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow, step and task
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, run *WorkflowRun) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("session_id", run.SessionID),
	)
}

func (o *LoggingObserver) OnWorkflowCompleted(ctx context.Context, run *WorkflowRun) {
	o.Logger.InfoContext(ctx, "workflow_completed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, run *WorkflowRun, err error) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.Any("failed_steps", run.Failed()),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run *WorkflowRun, step string) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", step),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run *WorkflowRun, step string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", step),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepSkipped(ctx context.Context, run *WorkflowRun, step, dep string) {
	o.Logger.WarnContext(ctx, "step_skipped",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", step),
		slog.String("failed_dependency", dep),
	)
}

func (o *LoggingObserver) OnTaskStart(ctx context.Context, task *Task) {
	o.Logger.DebugContext(ctx, "task_start",
		slog.String("task_id", task.ID),
		slog.String("module", task.Module),
		slog.String("action", task.Action),
	)
}

func (o *LoggingObserver) OnTaskCompleted(ctx context.Context, task *Task, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "task_completed",
		slog.String("task_id", task.ID),
		slog.String("module", task.Module),
		slog.String("action", task.Action),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	stepsCompleted     atomic.Int64
	stepsFailed        atomic.Int64
	stepsSkipped       atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
	tasksCompleted     atomic.Int64
	tasksFailed        atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsFailed    int64
	RunningWorkflows   int64

	StepsCompleted  int64
	StepsFailed     int64
	StepsSkipped    int64
	AvgStepDuration time.Duration

	TasksCompleted int64
	TasksFailed    int64
}

func (m *BasicMetrics) OnWorkflowStart(ctx context.Context, run *WorkflowRun) {
	m.workflowsStarted.Add(1)
}

func (m *BasicMetrics) OnWorkflowCompleted(ctx context.Context, run *WorkflowRun) {
	m.workflowsCompleted.Add(1)
}

func (m *BasicMetrics) OnWorkflowFailed(ctx context.Context, run *WorkflowRun, err error) {
	m.workflowsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, run *WorkflowRun, step string, err error, d time.Duration) {
	if err != nil {
		m.stepsFailed.Add(1)
		return
	}
	// Only successful steps feed the average duration.
	m.stepsCompleted.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnStepSkipped(ctx context.Context, run *WorkflowRun, step, dep string) {
	m.stepsSkipped.Add(1)
}

func (m *BasicMetrics) OnTaskCompleted(ctx context.Context, task *Task, err error, d time.Duration) {
	if err != nil {
		m.tasksFailed.Add(1)
		return
	}
	m.tasksCompleted.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.workflowsStarted.Load()
	completed := m.workflowsCompleted.Load()
	failed := m.workflowsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		WorkflowsStarted:   started,
		WorkflowsCompleted: completed,
		WorkflowsFailed:    failed,
		RunningWorkflows:   started - completed - failed,
		StepsCompleted:     steps,
		StepsFailed:        m.stepsFailed.Load(),
		StepsSkipped:       m.stepsSkipped.Load(),
		AvgStepDuration:    avg,
		TasksCompleted:     m.tasksCompleted.Load(),
		TasksFailed:        m.tasksFailed.Load(),
	}
}
