package workflow

import (
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/petrijr/orchestra/internal/dag"
	"github.com/petrijr/orchestra/pkg/api"
)

type registry struct {
	mu     sync.RWMutex
	byName map[string]api.Workflow
}

func newRegistry() *registry {
	return &registry{
		byName: make(map[string]api.Workflow),
	}
}

// Register validates and stores wf, replacing any workflow of the same name.
func (r *registry) Register(wf api.Workflow) error {
	if err := Validate(wf); err != nil {
		return err
	}
	wf = cloneWorkflow(wf)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[wf.Name] = wf
	return nil
}

func (r *registry) Get(name string) (api.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.byName[name]
	if !ok {
		return api.Workflow{}, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, name)
	}
	return cloneWorkflow(wf), nil
}

func (r *registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	return true
}

func (r *registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Validate checks that wf is a well-formed DAG: it has a name and at least
// one step, step names are unique, every step names a module and action,
// every dependency refers to a step of the same workflow, and there are no
// cycles.
func Validate(wf api.Workflow) error {
	if wf.Name == "" {
		return fmt.Errorf("%w: workflow name is required", api.ErrInvalidWorkflow)
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("%w: workflow %q must have at least one step", api.ErrInvalidWorkflow, wf.Name)
	}

	seen := make(map[string]bool, len(wf.Steps))
	for i, s := range wf.Steps {
		if s.Name == "" {
			return fmt.Errorf("%w: workflow %q step %d has no name", api.ErrInvalidWorkflow, wf.Name, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: workflow %q has duplicate step %q", api.ErrInvalidWorkflow, wf.Name, s.Name)
		}
		if s.Module == "" || s.Action == "" {
			return fmt.Errorf("%w: workflow %q step %q needs a module and an action", api.ErrInvalidWorkflow, wf.Name, s.Name)
		}
		seen[s.Name] = true
	}

	g := graphOf(wf)
	if missing := g.Missing(); len(missing) > 0 {
		for _, s := range wf.Steps {
			if deps, ok := missing[s.Name]; ok {
				return fmt.Errorf("%w: workflow %q step %q depends on undefined %v",
					api.ErrUnknownDependency, wf.Name, s.Name, deps)
			}
		}
	}
	if err := g.DetectCycles(); err != nil {
		return fmt.Errorf("workflow %q: %w", wf.Name, err)
	}
	return nil
}

func graphOf(wf api.Workflow) *dag.Graph {
	g := dag.New()
	for _, s := range wf.Steps {
		g.AddNode(s.Name, s.Dependencies...)
	}
	return g
}

func cloneWorkflow(wf api.Workflow) api.Workflow {
	out := api.Workflow{Name: wf.Name, Steps: make([]api.WorkflowStep, len(wf.Steps))}
	for i, s := range wf.Steps {
		s.Dependencies = append([]string(nil), s.Dependencies...)
		s.Parameters = maps.Clone(s.Parameters)
		out.Steps[i] = s
	}
	return out
}
