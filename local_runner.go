package orchestra

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/orchestra/internal/engine"
	"github.com/petrijr/orchestra/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an ActionRegistry and a task
// Worker into a single-process orchestrator for development and tests.
//
// Typical usage:
//
//	runner := orchestra.NewLocalRunner()
//	runner.Actions.MustRegister("text", "upper", upper)
//
//	s, _ := runner.Engine.CreateSession(ctx, "demo", "", nil)
//	_, _ = runner.Engine.AddTaskToSession(ctx, s.ID, orchestra.Task{Module: "text", Action: "upper"})
//
//	// Either drain synchronously...
//	n, err := runner.RunPending(ctx)
//
//	// ...or keep workers polling in the background.
//	_ = runner.StartWorkers(ctx, 2)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine. Tasks added to it are picked up by Worker.
	Engine Engine

	// Actions is the function table the engine and the worker dispatch to.
	Actions *ActionRegistry

	// Worker drains the engine's task queue.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner with an empty ActionRegistry and
// a Worker polling every 10ms.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithOptions(Options{}, worker.Config{PollInterval: 10 * time.Millisecond})
}

// NewLocalRunnerWithOptions constructs a LocalRunner from engine options and
// a worker config. A Dispatcher in opts is ignored: both the engine and the
// worker dispatch through the runner's ActionRegistry. The engine observer
// is also handed to the worker unless wcfg sets its own.
func NewLocalRunnerWithOptions(opts Options, wcfg worker.Config) *LocalRunner {
	actions := NewActionRegistry()
	opts.Dispatcher = actions
	eng := engine.NewEngine(opts.config(nil))

	if wcfg.Observer == nil {
		wcfg.Observer = opts.Observer
	}
	return &LocalRunner{
		Engine:  eng,
		Actions: actions,
		Worker:  worker.NewWithConfig(eng.Tasks(), actions, wcfg),
	}
}

// RunPending dispatches every ready task, including the ones that become
// ready along the way, and returns how many ran.
func (r *LocalRunner) RunPending(ctx context.Context) (int, error) {
	return r.Worker.Drain(ctx)
}

// StartWorkers starts 'concurrency' goroutines that run the worker loop until
// Stop is called or ctx is cancelled.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("orchestra: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			if err := r.Worker.Run(ctx); err != nil {
				slog.Error("orchestra: local runner worker stopped", "worker", i, "error", err)
			}
		}()
	}
	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
