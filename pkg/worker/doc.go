// Package worker drains the global task queue through a dispatcher.
//
// A Worker claims ready tasks one at a time, dispatches the task's
// module/action pair with the task's parameters, and records the outcome on
// the queue: COMPLETED with the dispatch output, or FAILED with the dispatch
// error once every attempt is spent. A failed task blocks its dependents for
// good; nothing downstream of it is ever claimed.
//
// Several workers can share one queue. Claiming is atomic, so a task is
// dispatched by exactly one worker.
//
// Most applications get workers through orchestra.LocalRunner, which wires
// the engine's queue, its dispatcher and an observer together.
package worker
