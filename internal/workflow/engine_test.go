package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/orchestra/pkg/api"
)

// recordingDispatcher records the order of dispatched actions and fails the
// actions listed in fail.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newRecorder(fail ...string) *recordingDispatcher {
	d := &recordingDispatcher{fail: make(map[string]bool)}
	for _, f := range fail {
		d.fail[f] = true
	}
	return d
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, module, action string, input map[string]any) api.DispatchResult {
	d.mu.Lock()
	d.calls = append(d.calls, action)
	d.mu.Unlock()

	if d.fail[action] {
		return api.Failed("%s exploded", action)
	}
	return api.Succeeded(map[string]any{"action": action, "input": input})
}

func (d *recordingDispatcher) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func step(name string, deps ...string) api.WorkflowStep {
	return api.WorkflowStep{Name: name, Module: "test", Action: name, Dependencies: deps}
}

func TestCreateWorkflow_Validation(t *testing.T) {
	tests := []struct {
		name  string
		wf    string
		steps []api.WorkflowStep
		want  error
	}{
		{name: "missing name", wf: "", steps: []api.WorkflowStep{step("a")}, want: api.ErrInvalidWorkflow},
		{name: "no steps", wf: "empty", steps: nil, want: api.ErrInvalidWorkflow},
		{name: "duplicate step", wf: "dup", steps: []api.WorkflowStep{step("a"), step("a")}, want: api.ErrInvalidWorkflow},
		{name: "missing action", wf: "noaction", steps: []api.WorkflowStep{{Name: "a", Module: "m"}}, want: api.ErrInvalidWorkflow},
		{name: "undefined dependency", wf: "undef", steps: []api.WorkflowStep{step("a", "ghost")}, want: api.ErrUnknownDependency},
		{name: "self reference", wf: "self", steps: []api.WorkflowStep{step("a", "a")}, want: api.ErrCyclicDependency},
		{name: "cycle", wf: "cycle", steps: []api.WorkflowStep{step("a", "c"), step("b", "a"), step("c", "b")}, want: api.ErrCyclicDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(Config{Dispatcher: newRecorder()})

			err := e.CreateWorkflow(tt.wf, tt.steps)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, api.ErrValidation)

			_, err = e.Workflow(tt.wf)
			assert.ErrorIs(t, err, api.ErrWorkflowNotFound, "invalid workflow must not be stored")
		})
	}
}

func TestCreateWorkflow_ReRegistrationReplaces(t *testing.T) {
	e := NewEngine(Config{Dispatcher: newRecorder()})

	require.NoError(t, e.CreateWorkflow("wf", []api.WorkflowStep{step("a")}))
	require.NoError(t, e.CreateWorkflow("wf", []api.WorkflowStep{step("x"), step("y", "x")}))

	wf, err := e.Workflow("wf")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, []string{"wf"}, e.Workflows())
}

func TestCreateWorkflow_StoredCopyIsImmutable(t *testing.T) {
	e := NewEngine(Config{Dispatcher: newRecorder()})

	steps := []api.WorkflowStep{step("a"), step("b", "a")}
	require.NoError(t, e.CreateWorkflow("wf", steps))
	steps[1].Dependencies[0] = "mutated"

	wf, err := e.Workflow("wf")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, wf.Steps[1].Dependencies)
}

func TestExecute_SequentialTopologicalOrder(t *testing.T) {
	rec := newRecorder()
	e := NewEngine(Config{Dispatcher: rec})

	require.NoError(t, e.CreateWorkflow("pipeline", []api.WorkflowStep{
		step("deploy", "test", "build"),
		step("test", "build"),
		step("build"),
		step("docs"),
	}))

	run, err := e.Execute(context.Background(), "pipeline")
	require.NoError(t, err)
	assert.Equal(t, api.RunCompleted, run.Status)
	assert.Equal(t, []string{"build", "test", "deploy", "docs"}, rec.Calls())

	order, err := e.ExecutionOrder("pipeline")
	require.NoError(t, err)
	assert.Equal(t, rec.Calls(), order)

	for _, name := range run.Order {
		assert.Equal(t, api.StepCompleted, run.Steps[name].Status, name)
	}
	assert.Equal(t, "deploy", run.Steps["deploy"].Output["action"])
}

func TestExecute_FailureSkipsDependents(t *testing.T) {
	rec := newRecorder("A")
	e := NewEngine(Config{Dispatcher: rec})
	require.NoError(t, e.CreateWorkflow("fan-out", []api.WorkflowStep{step("A"), step("B", "A"), step("C", "A")}))

	run, err := e.Execute(context.Background(), "fan-out")
	require.ErrorIs(t, err, api.ErrWorkflowFailed)
	require.NotNil(t, run)

	assert.Equal(t, api.RunFailed, run.Status)
	assert.Equal(t, []string{"A"}, rec.Calls(), "B and C must never be dispatched")
	assert.Equal(t, []string{"A"}, run.Failed())
	assert.Equal(t, []string{"B", "C"}, run.Skipped())
	assert.Contains(t, run.Steps["A"].Error, "exploded")
}

func TestExecute_IndependentBranchStillRuns(t *testing.T) {
	rec := newRecorder("A")
	e := NewEngine(Config{Dispatcher: rec})
	require.NoError(t, e.CreateWorkflow("mixed", []api.WorkflowStep{step("A"), step("B", "A"), step("D")}))

	run, err := e.Execute(context.Background(), "mixed")
	require.ErrorIs(t, err, api.ErrWorkflowFailed)

	assert.ElementsMatch(t, []string{"A", "D"}, rec.Calls())
	assert.Equal(t, api.StepCompleted, run.Steps["D"].Status)
	assert.Equal(t, api.StepSkipped, run.Steps["B"].Status)
}

func TestExecute_TransitiveSkipAndPartialJoin(t *testing.T) {
	rec := newRecorder("left")
	e := NewEngine(Config{Dispatcher: rec})
	require.NoError(t, e.CreateWorkflow("diamond", []api.WorkflowStep{
		step("root"),
		step("left", "root"),
		step("right", "root"),
		step("join", "left", "right"),
		step("after", "join"),
	}))

	run, err := e.Execute(context.Background(), "diamond")
	require.ErrorIs(t, err, api.ErrWorkflowFailed)

	assert.Equal(t, []string{"root", "left", "right"}, rec.Calls())
	assert.Equal(t, []string{"join", "after"}, run.Skipped())
}

func TestExecute_PanickingDispatcherFailsStep(t *testing.T) {
	d := api.DispatcherFunc(func(_ context.Context, _, action string, _ map[string]any) api.DispatchResult {
		if action == "A" {
			panic("dispatcher bug")
		}
		return api.Succeeded(nil)
	})
	e := NewEngine(Config{Dispatcher: d, Parallelism: 2})
	require.NoError(t, e.CreateWorkflow("fragile", []api.WorkflowStep{step("A"), step("B", "A"), step("C")}))

	run, err := e.Execute(context.Background(), "fragile")
	require.ErrorIs(t, err, api.ErrWorkflowFailed)

	assert.Equal(t, api.StepFailed, run.Steps["A"].Status)
	assert.Contains(t, run.Steps["A"].Error, "dispatcher bug")
	assert.Equal(t, api.StepSkipped, run.Steps["B"].Status)
	assert.Equal(t, api.StepCompleted, run.Steps["C"].Status)
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	e := NewEngine(Config{Dispatcher: newRecorder()})

	run, err := e.Execute(context.Background(), "nope")
	assert.Nil(t, run)
	assert.ErrorIs(t, err, api.ErrWorkflowNotFound)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestExecute_CancelledContextFailsRemainingSteps(t *testing.T) {
	rec := newRecorder()
	e := NewEngine(Config{Dispatcher: rec})
	require.NoError(t, e.CreateWorkflow("wf", []api.WorkflowStep{step("a"), step("b", "a")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := e.Execute(ctx, "wf")
	require.ErrorIs(t, err, api.ErrWorkflowFailed)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, api.StepFailed, run.Steps["a"].Status)
	assert.Equal(t, api.StepSkipped, run.Steps["b"].Status)
}

// Two independent steps only finish if they are in flight at the same time.
func TestExecute_ParallelDispatchOfIndependentSteps(t *testing.T) {
	var (
		mu      sync.Mutex
		started = make(map[string]time.Time)
	)
	barrier := make(chan struct{})
	var once sync.Once
	arrived := make(chan string, 2)

	dispatcher := api.DispatcherFunc(func(ctx context.Context, module, action string, input map[string]any) api.DispatchResult {
		mu.Lock()
		started[action] = time.Now()
		mu.Unlock()

		if action == "left" || action == "right" {
			arrived <- action
			if len(arrived) == 2 {
				once.Do(func() { close(barrier) })
			}
			select {
			case <-barrier:
			case <-time.After(2 * time.Second):
				return api.Failed("%s waited alone", action)
			}
		}
		return api.Succeeded(nil)
	})

	e := NewEngine(Config{Dispatcher: dispatcher, Parallelism: 4})
	require.NoError(t, e.CreateWorkflow("parallel", []api.WorkflowStep{
		step("root"),
		step("left", "root"),
		step("right", "root"),
		step("join", "left", "right"),
	}))

	run, err := e.Execute(context.Background(), "parallel")
	require.NoError(t, err)
	assert.Equal(t, api.RunCompleted, run.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, started["join"].Before(started["left"]))
	assert.False(t, started["join"].Before(started["right"]))
}

func TestExecute_ObserverAndStats(t *testing.T) {
	metrics := &api.BasicMetrics{}
	e := NewEngine(Config{Dispatcher: newRecorder("b"), Observer: metrics})
	require.NoError(t, e.CreateWorkflow("ok", []api.WorkflowStep{step("a")}))
	require.NoError(t, e.CreateWorkflow("bad", []api.WorkflowStep{step("b"), step("c", "b")}))

	_, err := e.Execute(context.Background(), "ok")
	require.NoError(t, err)
	_, err = e.ExecuteInSession(context.Background(), "bad", "session-1")
	require.Error(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.WorkflowsStarted)
	assert.Equal(t, int64(1), snap.WorkflowsCompleted)
	assert.Equal(t, int64(1), snap.WorkflowsFailed)
	assert.Equal(t, int64(1), snap.StepsCompleted)
	assert.Equal(t, int64(1), snap.StepsFailed)
	assert.Equal(t, int64(1), snap.StepsSkipped)

	stats := e.Stats()
	assert.Equal(t, Stats{TotalWorkflows: 2, RunsStarted: 2, RunsCompleted: 1, RunsFailed: 1}, stats)
}

func TestExecute_PassesStepParameters(t *testing.T) {
	var got map[string]any
	dispatcher := api.DispatcherFunc(func(ctx context.Context, module, action string, input map[string]any) api.DispatchResult {
		got = input
		return api.Succeeded(nil)
	})
	e := NewEngine(Config{Dispatcher: dispatcher})
	require.NoError(t, e.Register(api.Workflow{Name: "p", Steps: []api.WorkflowStep{
		{Name: "s", Module: "m", Action: "a", Parameters: map[string]any{"target": "prod"}},
	}}))

	_, err := e.Execute(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"target": "prod"}, got)
}
