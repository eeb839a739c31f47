package worker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/petrijr/orchestra/pkg/api"
)

// ErrTaskFailed is wrapped by the error ProcessOne returns when a task's
// dispatch reported failure on its last attempt.
var ErrTaskFailed = errors.New("task failed")

// Queue is the part of the task queue a Worker needs.
type Queue interface {
	// Claim atomically moves the first ready task to RUNNING and returns it.
	Claim() (api.Task, bool)
	MarkCompleted(id string, result map[string]any) error
	MarkFailed(id string, reason string) error
}

// Config controls retries and polling.
type Config struct {
	// MaxAttempts is how many times a task is dispatched before it is marked
	// FAILED. Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration

	// PollInterval is how long Run sleeps when no task is ready.
	// Defaults to 50ms.
	PollInterval time.Duration

	Observer api.Observer
}

// Worker pulls ready tasks from a Queue and dispatches them.
type Worker struct {
	queue      Queue
	dispatcher api.Dispatcher
	cfg        Config
	observer   api.Observer
}

// New creates a Worker with a single attempt per task.
func New(queue Queue, dispatcher api.Dispatcher) *Worker {
	return NewWithConfig(queue, dispatcher, Config{})
}

// NewWithConfig creates a Worker from cfg.
func NewWithConfig(queue Queue, dispatcher api.Dispatcher, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &Worker{
		queue:      queue,
		dispatcher: dispatcher,
		cfg:        cfg,
		observer:   obs,
	}
}

// ProcessOne claims a single ready task and runs it.
// Returns (processed, error):
//   - processed == false, err == nil: no task was ready
//   - processed == false, err != nil: ctx was done before a task was claimed
//   - processed == true: a task ran; err wraps ErrTaskFailed if it failed
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	task, ok := w.queue.Claim()
	if !ok {
		return false, nil
	}

	w.observer.OnTaskStart(ctx, &task)
	start := time.Now()

	res := w.dispatch(ctx, task)
	d := time.Since(start)

	if !res.Success {
		runErr := fmt.Errorf("%w: %s (%s.%s): %s", ErrTaskFailed, task.ID, task.Module, task.Action, res.Error)
		if err := w.queue.MarkFailed(task.ID, res.Error); err != nil {
			runErr = errors.Join(runErr, err)
		}
		task.Status = api.TaskFailed
		task.Error = res.Error
		w.observer.OnTaskCompleted(ctx, &task, runErr, d)
		return true, runErr
	}

	if err := w.queue.MarkCompleted(task.ID, res.Output); err != nil {
		// Someone else finished the task (e.g. Cancel) while it ran.
		w.observer.OnTaskCompleted(ctx, &task, err, d)
		return true, err
	}
	task.Status = api.TaskCompleted
	task.Result = res.Output
	w.observer.OnTaskCompleted(ctx, &task, nil, d)
	return true, nil
}

func (w *Worker) dispatch(ctx context.Context, task api.Task) api.DispatchResult {
	var res api.DispatchResult
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		res = api.SafeDispatch(ctx, w.dispatcher, task.Module, task.Action, maps.Clone(task.Parameters))
		if res.Success || attempt == w.cfg.MaxAttempts {
			break
		}
		if w.cfg.Backoff > 0 {
			select {
			case <-ctx.Done():
				return api.Failed("%v", ctx.Err())
			case <-time.After(w.cfg.Backoff):
			}
		}
	}
	return res
}

// Drain processes ready tasks until none is left, including tasks that became
// ready because an earlier one completed. It returns how many tasks ran and
// the task failures joined together.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	var (
		n    int
		errs []error
	)
	for {
		processed, err := w.ProcessOne(ctx)
		if !processed {
			if err != nil {
				errs = append(errs, err)
			}
			return n, errors.Join(errs...)
		}
		n++
		if err != nil {
			errs = append(errs, err)
		}
	}
}

// Run processes tasks until ctx is done, sleeping PollInterval whenever no
// task is ready. Task failures do not stop the loop; they are reported
// through the observer. Run returns nil once ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if processed {
			continue
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
