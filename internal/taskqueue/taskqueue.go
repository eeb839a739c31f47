// Package taskqueue implements the global, session-agnostic task pool.
//
// Tasks form a dependency graph keyed by task id. A task is ready when it is
// PENDING and every dependency is COMPLETED; ReadyTasks yields ready ids in
// insertion order. Terminal states are sticky, and a FAILED or CANCELLED task
// blocks its transitive dependents forever.
package taskqueue

import (
	"fmt"
	"iter"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/orchestra/internal/dag"
	"github.com/petrijr/orchestra/pkg/api"
)

// Options configures a Queue.
type Options struct {
	// AllowUnknownDependencies accepts tasks whose dependencies reference ids
	// that are not (yet) in the queue. Such tasks stay ineligible until the
	// dependency is added and completes. By default unknown dependencies are
	// rejected with api.ErrUnknownDependency.
	AllowUnknownDependencies bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewID generates ids for tasks added without one. Defaults to uuid.NewString.
	NewID func() string
}

// Queue is the dependency-aware task pool. It is safe for concurrent use.
type Queue struct {
	mu    sync.RWMutex
	tasks map[string]*api.Task
	order []string
	opts  Options
}

// Stats counts tasks per status. Blocked counts PENDING tasks that can never
// become ready because a transitive dependency failed or was cancelled.
type Stats struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
	Blocked   int
}

// New creates an empty Queue.
func New(opts Options) *Queue {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Queue{
		tasks: make(map[string]*api.Task),
		opts:  opts,
	}
}

// AddTask inserts a task and returns its id, generating one if absent.
func (q *Queue) AddTask(t api.Task) (string, error) {
	ids, err := q.AddTasks([]api.Task{t})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddTasks inserts a batch atomically. Dependencies may reference tasks
// already in the queue or anywhere in the batch. On error nothing is added.
func (q *Queue) AddTasks(batch []api.Task) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.opts.Now()
	added := make([]*api.Task, 0, len(batch))
	inBatch := make(map[string]bool, len(batch))

	for _, t := range batch {
		task := cloneTask(&t)
		if task.ID == "" {
			task.ID = q.opts.NewID()
		}
		if _, exists := q.tasks[task.ID]; exists || inBatch[task.ID] {
			return nil, fmt.Errorf("%w: %s", api.ErrDuplicateTask, task.ID)
		}
		inBatch[task.ID] = true

		task.Status = api.TaskPending
		task.Result = nil
		task.Error = ""
		task.CreatedAt = now
		task.UpdatedAt = now
		added = append(added, task)
	}

	g := q.graphLocked()
	for _, task := range added {
		g.AddNode(task.ID, task.Dependencies...)
	}

	if !q.opts.AllowUnknownDependencies {
		missing := g.Missing()
		for _, task := range added {
			if deps, ok := missing[task.ID]; ok {
				return nil, fmt.Errorf("%w: task %s depends on %v", api.ErrUnknownDependency, task.ID, deps)
			}
		}
	}

	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("add tasks: %w", err)
	}

	ids := make([]string, 0, len(added))
	for _, task := range added {
		q.tasks[task.ID] = task
		q.order = append(q.order, task.ID)
		ids = append(ids, task.ID)
	}
	return ids, nil
}

// ReadyTasks returns a lazy, finite, restartable sequence of ready task ids in
// insertion order. Each iteration takes a fresh snapshot when it starts.
func (q *Queue) ReadyTasks() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, id := range q.readySnapshot() {
			if !yield(id) {
				return
			}
		}
	}
}

func (q *Queue) readySnapshot() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var ids []string
	for _, id := range q.order {
		if q.readyLocked(q.tasks[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (q *Queue) readyLocked(t *api.Task) bool {
	if t.Status != api.TaskPending {
		return false
	}
	for _, dep := range t.Dependencies {
		d, ok := q.tasks[dep]
		if !ok || d.Status != api.TaskCompleted {
			return false
		}
	}
	return true
}

// MarkRunning moves a ready task to RUNNING.
func (q *Queue) MarkRunning(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.getLocked(id)
	if err != nil {
		return err
	}
	if !q.readyLocked(t) {
		return fmt.Errorf("%w: task %s is %s and not ready to run", api.ErrInvalidTransition, id, t.Status)
	}
	q.setStatusLocked(t, api.TaskRunning)
	return nil
}

// TryStart atomically claims a ready task and returns a copy of it in
// RUNNING state. It returns false if the task is unknown or not ready.
func (q *Queue) TryStart(id string) (api.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok || !q.readyLocked(t) {
		return api.Task{}, false
	}
	q.setStatusLocked(t, api.TaskRunning)
	return *cloneTask(t), true
}

// Claim atomically claims the first ready task in insertion order.
func (q *Queue) Claim() (api.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		t := q.tasks[id]
		if q.readyLocked(t) {
			q.setStatusLocked(t, api.TaskRunning)
			return *cloneTask(t), true
		}
	}
	return api.Task{}, false
}

// MarkCompleted records a successful outcome. A RUNNING task can always
// complete; a PENDING task only when it is ready, so a task behind a failed
// dependency never completes and never releases its dependents.
func (q *Queue) MarkCompleted(id string, result map[string]any) error {
	return q.finish(id, api.TaskCompleted, result, "")
}

// MarkFailed records a failed outcome. The task's transitive dependents
// become permanently blocked.
func (q *Queue) MarkFailed(id string, reason string) error {
	return q.finish(id, api.TaskFailed, nil, reason)
}

// Cancel stops a PENDING or RUNNING task. Dependents become blocked.
func (q *Queue) Cancel(id string) error {
	return q.finish(id, api.TaskCancelled, nil, "cancelled")
}

func (q *Queue) finish(id string, status api.TaskStatus, result map[string]any, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.getLocked(id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %s is already %s", api.ErrInvalidTransition, id, t.Status)
	}
	if status == api.TaskCompleted && t.Status == api.TaskPending && !q.readyLocked(t) {
		return fmt.Errorf("%w: task %s has unfinished or failed dependencies", api.ErrInvalidTransition, id)
	}
	t.Result = result
	t.Error = reason
	q.setStatusLocked(t, status)
	return nil
}

// Blocked reports whether a transitive dependency of id is FAILED or
// CANCELLED. Unknown ids are not blocked.
func (q *Queue) Blocked(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.blockedLocked(id, make(map[string]bool))
}

func (q *Queue) blockedLocked(id string, seen map[string]bool) bool {
	t, ok := q.tasks[id]
	if !ok {
		return false
	}
	for _, dep := range t.Dependencies {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		d, ok := q.tasks[dep]
		if !ok {
			continue
		}
		if d.Status == api.TaskFailed || d.Status == api.TaskCancelled {
			return true
		}
		if q.blockedLocked(dep, seen) {
			return true
		}
	}
	return false
}

// Task returns a copy of the task with the given id.
func (q *Queue) Task(id string) (api.Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	t, err := q.getLocked(id)
	if err != nil {
		return api.Task{}, err
	}
	return *cloneTask(t), nil
}

// Tasks returns copies of the tasks matching filter, in insertion order.
func (q *Queue) Tasks(filter api.TaskFilter) []api.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []api.Task
	for _, id := range q.order {
		t := q.tasks[id]
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.SessionID != "" && t.SessionID != filter.SessionID {
			continue
		}
		out = append(out, *cloneTask(t))
	}
	return out
}

// Len returns the number of tasks in the queue.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// Stats counts tasks per status.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	s := Stats{Total: len(q.tasks)}
	for _, id := range q.order {
		switch q.tasks[id].Status {
		case api.TaskPending:
			s.Pending++
			if q.blockedLocked(id, make(map[string]bool)) {
				s.Blocked++
			}
		case api.TaskRunning:
			s.Running++
		case api.TaskCompleted:
			s.Completed++
		case api.TaskFailed:
			s.Failed++
		case api.TaskCancelled:
			s.Cancelled++
		}
	}
	return s
}

func (q *Queue) getLocked(id string) (*api.Task, error) {
	t, ok := q.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrTaskNotFound, id)
	}
	return t, nil
}

func (q *Queue) setStatusLocked(t *api.Task, status api.TaskStatus) {
	t.Status = status
	t.UpdatedAt = q.opts.Now()
}

// graphLocked builds the dependency graph of the tasks currently queued.
func (q *Queue) graphLocked() *dag.Graph {
	g := dag.New()
	for _, id := range q.order {
		g.AddNode(id, q.tasks[id].Dependencies...)
	}
	return g
}

func cloneTask(t *api.Task) *api.Task {
	out := *t
	out.Dependencies = append([]string(nil), t.Dependencies...)
	out.Parameters = maps.Clone(t.Parameters)
	out.Result = maps.Clone(t.Result)
	return &out
}
