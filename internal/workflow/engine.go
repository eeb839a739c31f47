package workflow

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/orchestra/pkg/api"
)

// Config describes how to construct an Engine.
type Config struct {
	// Dispatcher executes step module/action pairs. Required.
	Dispatcher api.Dispatcher

	// Observer receives workflow and step lifecycle callbacks.
	Observer api.Observer

	// Parallelism bounds how many independent steps of one run are dispatched
	// at the same time. Values below 1 mean sequential dispatch.
	Parallelism int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Engine registers and executes workflows. It is safe for concurrent use;
// no lock is held while a step is being dispatched.
type Engine struct {
	registry    *registry
	dispatcher  api.Dispatcher
	observer    api.Observer
	parallelism int
	now         func() time.Time

	running       atomic.Int64
	runsStarted   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
}

// Stats is a point-in-time view of the engine's counters.
type Stats struct {
	TotalWorkflows   int
	RunningWorkflows int
	RunsStarted      int64
	RunsCompleted    int64
	RunsFailed       int64
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	par := cfg.Parallelism
	if par < 1 {
		par = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		registry:    newRegistry(),
		dispatcher:  cfg.Dispatcher,
		observer:    obs,
		parallelism: par,
		now:         now,
	}
}

// CreateWorkflow validates and registers a workflow built from steps.
func (e *Engine) CreateWorkflow(name string, steps []api.WorkflowStep) error {
	return e.Register(api.Workflow{Name: name, Steps: steps})
}

// Register validates and registers wf. A workflow with the same name is
// replaced; an invalid workflow is not stored.
func (e *Engine) Register(wf api.Workflow) error {
	return e.registry.Register(wf)
}

// Workflow returns a copy of the named workflow.
func (e *Engine) Workflow(name string) (api.Workflow, error) {
	return e.registry.Get(name)
}

// Workflows returns the registered workflow names, sorted.
func (e *Engine) Workflows() []string {
	return e.registry.Names()
}

// DeleteWorkflow unregisters a workflow and reports whether it existed.
func (e *Engine) DeleteWorkflow(name string) bool {
	return e.registry.Delete(name)
}

// ExecutionOrder returns the topological order Execute uses for sequential dispatch.
func (e *Engine) ExecutionOrder(name string) ([]string, error) {
	wf, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return graphOf(wf).TopologicalOrder()
}

// Stats returns the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		TotalWorkflows:   e.registry.Len(),
		RunningWorkflows: int(e.running.Load()),
		RunsStarted:      e.runsStarted.Load(),
		RunsCompleted:    e.runsCompleted.Load(),
		RunsFailed:       e.runsFailed.Load(),
	}
}

// Execute runs the named workflow to completion.
func (e *Engine) Execute(ctx context.Context, name string) (*api.WorkflowRun, error) {
	return e.ExecuteInSession(ctx, name, "")
}

// ExecuteInSession runs the named workflow and tags the run with sessionID.
//
// The returned run is non-nil whenever the workflow exists. If any step
// failed, the run has status RunFailed and the error wraps api.ErrWorkflowFailed.
func (e *Engine) ExecuteInSession(ctx context.Context, name, sessionID string) (*api.WorkflowRun, error) {
	if e.dispatcher == nil {
		return nil, fmt.Errorf("workflow engine: no dispatcher configured")
	}

	wf, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	g := graphOf(wf)
	order, err := g.TopologicalOrder()
	if err != nil {
		// Registered workflows are validated, so this only guards against
		// a future change in validation.
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}

	run := &api.WorkflowRun{
		ID:        uuid.NewString(),
		Workflow:  wf.Name,
		SessionID: sessionID,
		Status:    api.RunRunning,
		Order:     order,
		Steps:     make(map[string]api.StepResult, len(order)),
		StartedAt: e.now(),
	}
	for _, s := range order {
		run.Steps[s] = api.StepResult{Status: api.StepPending}
	}

	e.running.Add(1)
	e.runsStarted.Add(1)
	defer e.running.Add(-1)

	e.observer.OnWorkflowStart(ctx, run)

	e.dispatchAll(ctx, wf, run)

	run.FinishedAt = e.now()
	if failed := run.Failed(); len(failed) > 0 {
		run.Status = api.RunFailed
		e.runsFailed.Add(1)
		runErr := fmt.Errorf("%w: %s: steps %v failed", api.ErrWorkflowFailed, wf.Name, failed)
		e.observer.OnWorkflowFailed(ctx, run, runErr)
		return run, runErr
	}

	run.Status = api.RunCompleted
	e.runsCompleted.Add(1)
	e.observer.OnWorkflowCompleted(ctx, run)
	return run, nil
}

type stepOutcome struct {
	name     string
	result   api.DispatchResult
	duration time.Duration
}

// dispatchAll drives Kahn's algorithm over the step graph. Steps whose
// in-degree drops to zero are dispatched (at most e.parallelism at a time);
// a completed step decrements its dependents, a failed step skips all of its
// descendants. All bookkeeping happens on this goroutine.
func (e *Engine) dispatchAll(ctx context.Context, wf api.Workflow, run *api.WorkflowRun) {
	g := graphOf(wf)
	inDegree := g.InDegrees()
	dependents := g.Dependents()

	steps := make(map[string]api.WorkflowStep, len(wf.Steps))
	position := make(map[string]int, len(wf.Steps))
	for i, s := range wf.Steps {
		steps[s.Name] = s
		position[s.Name] = i
	}

	var ready []string
	for _, s := range wf.Steps {
		if inDegree[s.Name] == 0 {
			ready = append(ready, s.Name)
		}
	}

	outcomes := make(chan stepOutcome)
	inFlight := 0

	for len(ready) > 0 || inFlight > 0 {
		for len(ready) > 0 && inFlight < e.parallelism {
			name := ready[0]
			ready = ready[1:]

			if err := ctx.Err(); err != nil {
				e.fail(ctx, g.Descendants(name), run, name, api.DispatchResult{Error: err.Error()}, 0)
				continue
			}

			run.Steps[name] = api.StepResult{Status: api.StepRunning}
			e.observer.OnStepStart(ctx, run, name)
			inFlight++
			go e.dispatchStep(ctx, steps[name], outcomes)
		}

		if inFlight == 0 {
			continue
		}

		out := <-outcomes
		inFlight--

		if !out.result.Success {
			e.fail(ctx, g.Descendants(out.name), run, out.name, out.result, out.duration)
			continue
		}

		run.Steps[out.name] = api.StepResult{
			Status:   api.StepCompleted,
			Output:   out.result.Output,
			Duration: out.duration,
		}
		e.observer.OnStepCompleted(ctx, run, out.name, nil, out.duration)

		for _, dep := range dependents[out.name] {
			inDegree[dep]--
			if inDegree[dep] == 0 && run.Steps[dep].Status == api.StepPending {
				ready = insertByPosition(ready, dep, position)
			}
		}
	}
}

func (e *Engine) dispatchStep(ctx context.Context, step api.WorkflowStep, outcomes chan<- stepOutcome) {
	input := maps.Clone(step.Parameters)
	if input == nil {
		input = make(map[string]any)
	}

	start := e.now()
	res := api.SafeDispatch(ctx, e.dispatcher, step.Module, step.Action, input)
	outcomes <- stepOutcome{name: step.Name, result: res, duration: e.now().Sub(start)}
}

// fail records a failed step and marks every still-pending descendant as skipped.
func (e *Engine) fail(ctx context.Context, descendants []string, run *api.WorkflowRun, name string, res api.DispatchResult, d time.Duration) {
	msg := res.Error
	if msg == "" {
		msg = "dispatch reported failure"
	}
	run.Steps[name] = api.StepResult{
		Status:   api.StepFailed,
		Output:   res.Output,
		Error:    msg,
		Duration: d,
	}
	e.observer.OnStepCompleted(ctx, run, name, fmt.Errorf("step %s: %s", name, msg), d)

	for _, desc := range descendants {
		if run.Steps[desc].Status != api.StepPending {
			continue
		}
		run.Steps[desc] = api.StepResult{
			Status: api.StepSkipped,
			Error:  fmt.Sprintf("skipped due to upstream failure of %q", name),
		}
		e.observer.OnStepSkipped(ctx, run, desc, name)
	}
}

func insertByPosition(ready []string, name string, position map[string]int) []string {
	pos := len(ready)
	for i, r := range ready {
		if position[name] < position[r] {
			pos = i
			break
		}
	}
	ready = append(ready, "")
	copy(ready[pos+1:], ready[pos:])
	ready[pos] = name
	return ready
}
