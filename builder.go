package orchestra

import (
	"context"
	"fmt"
	"maps"

	"github.com/petrijr/orchestra/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows:
//
//	wf := orchestra.NewWorkflow("release").
//	    Step("build", "ci", "build").
//	    Step("test", "ci", "test", "build").
//	    StepWithParams("deploy", "cd", "deploy", map[string]any{"env": "prod"}, "test")
//
//	if err := wf.Register(ctx, engine); err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := engine.ExecuteWorkflowInSession(ctx, session.ID, wf.Name())
//
// Steps may be declared in any order; dependencies are checked when the
// workflow is registered.
type WorkflowBuilder struct {
	wf api.Workflow
}

// NewWorkflow creates a new workflow builder with the given name.
func NewWorkflow(name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		wf: api.Workflow{
			Name:  name,
			Steps: make([]api.WorkflowStep, 0),
		},
	}
}

// Name returns the workflow name.
func (b *WorkflowBuilder) Name() string {
	return b.wf.Name
}

// Step appends a step that dispatches module.action after deps complete.
func (b *WorkflowBuilder) Step(name, module, action string, deps ...string) *WorkflowBuilder {
	return b.StepWithParams(name, module, action, nil, deps...)
}

// StepWithParams is Step with parameters passed to the dispatcher as input.
func (b *WorkflowBuilder) StepWithParams(name, module, action string, params map[string]any, deps ...string) *WorkflowBuilder {
	if name == "" {
		panic("orchestra: step name must not be empty")
	}
	if module == "" || action == "" {
		panic(fmt.Sprintf("orchestra: step %q needs a module and an action", name))
	}

	b.wf.Steps = append(b.wf.Steps, api.WorkflowStep{
		Name:         name,
		Module:       module,
		Action:       action,
		Dependencies: append([]string(nil), deps...),
		Parameters:   maps.Clone(params),
	})
	return b
}

// Workflow returns a copy of the workflow built so far.
func (b *WorkflowBuilder) Workflow() Workflow {
	out := api.Workflow{Name: b.wf.Name, Steps: make([]api.WorkflowStep, len(b.wf.Steps))}
	for i, s := range b.wf.Steps {
		s.Dependencies = append([]string(nil), s.Dependencies...)
		s.Parameters = maps.Clone(s.Parameters)
		out.Steps[i] = s
	}
	return out
}

// Register validates the workflow and registers it on eng.
func (b *WorkflowBuilder) Register(ctx context.Context, eng Engine) error {
	return eng.RegisterWorkflow(ctx, b.Workflow())
}

// MustRegister is like Register but panics on error.
func (b *WorkflowBuilder) MustRegister(ctx context.Context, eng Engine) {
	if err := b.Register(ctx, eng); err != nil {
		panic(err)
	}
}
