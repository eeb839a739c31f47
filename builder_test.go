package orchestra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/orchestra/pkg/api"
)

func TestWorkflowBuilder_RegisterAndRun(t *testing.T) {
	ctx := context.Background()

	var calls []string
	d := DispatcherFunc(func(_ context.Context, module, action string, input map[string]any) DispatchResult {
		calls = append(calls, module+"."+action)
		return Succeeded(input)
	})
	eng := NewInMemoryEngine(d)

	wf := NewWorkflow("release").
		StepWithParams("deploy", "cd", "deploy", map[string]any{"env": "prod"}, "test").
		Step("build", "ci", "build").
		Step("test", "ci", "test", "build")
	require.Equal(t, "release", wf.Name())
	require.NoError(t, wf.Register(ctx, eng))

	s, err := eng.CreateSession(ctx, "s", "", nil)
	require.NoError(t, err)

	run, err := eng.ExecuteWorkflowInSession(ctx, s.ID, "release")
	require.NoError(t, err)
	assert.Equal(t, []string{"ci.build", "ci.test", "cd.deploy"}, calls)
	assert.Equal(t, map[string]any{"env": "prod"}, run.Steps["deploy"].Output)
}

func TestWorkflowBuilder_RegisterRejectsBadGraph(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine(nil)

	err := NewWorkflow("dangling").Step("a", "m", "x", "ghost").Register(ctx, eng)
	assert.ErrorIs(t, err, api.ErrUnknownDependency)

	err = NewWorkflow("loop").
		Step("a", "m", "x", "b").
		Step("b", "m", "x", "a").
		Register(ctx, eng)
	assert.ErrorIs(t, err, api.ErrCyclicDependency)

	assert.Panics(t, func() {
		NewWorkflow("empty").MustRegister(ctx, eng)
	})
}

func TestWorkflowBuilder_PanicsOnBadStep(t *testing.T) {
	assert.Panics(t, func() { NewWorkflow("w").Step("", "m", "a") })
	assert.Panics(t, func() { NewWorkflow("w").Step("s", "", "a") })
	assert.Panics(t, func() { NewWorkflow("w").Step("s", "m", "") })
}

func TestWorkflowBuilder_WorkflowIsACopy(t *testing.T) {
	params := map[string]any{"k": "v"}
	b := NewWorkflow("w").StepWithParams("s", "m", "a", params)
	params["k"] = "changed"

	wf := b.Workflow()
	assert.Equal(t, "v", wf.Steps[0].Parameters["k"])

	wf.Steps[0].Parameters["k"] = "mutated"
	assert.Equal(t, "v", b.Workflow().Steps[0].Parameters["k"])
}
