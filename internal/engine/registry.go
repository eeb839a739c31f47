package engine

import (
	"slices"
	"sync"
)

// sessionActivity is what was done on behalf of one session. It exists for
// reporting only; nothing here owns the tasks, runs or projects it lists.
type sessionActivity struct {
	tasks    []string
	runs     []string
	projects []string
}

// sessionLock serializes operations on one session id. refs counts holders
// and waiters so the entry can be dropped once nobody uses it.
type sessionLock struct {
	mu   sync.RWMutex
	refs int
}

// sessionRegistry correlates sessions with leaf-component activity and
// hands out per-session locks. Session-scoped mutators hold the lock shared;
// update, delete and cleanup hold it exclusively, so nothing lands on a
// session between its final snapshot and its deletion.
type sessionRegistry struct {
	mu        sync.RWMutex
	bySession map[string]*sessionActivity
	locks     map[string]*sessionLock
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		bySession: make(map[string]*sessionActivity),
		locks:     make(map[string]*sessionLock),
	}
}

// Lock acquires the session lock and returns its release function.
func (r *sessionRegistry) Lock(sessionID string, exclusive bool) func() {
	r.mu.Lock()
	l := r.locks[sessionID]
	if l == nil {
		l = &sessionLock{}
		r.locks[sessionID] = l
	}
	l.refs++
	r.mu.Unlock()

	if exclusive {
		l.mu.Lock()
	} else {
		l.mu.RLock()
	}

	return func() {
		if exclusive {
			l.mu.Unlock()
		} else {
			l.mu.RUnlock()
		}
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, sessionID)
		}
		r.mu.Unlock()
	}
}

func (r *sessionRegistry) activity(sessionID string) *sessionActivity {
	a := r.bySession[sessionID]
	if a == nil {
		a = &sessionActivity{}
		r.bySession[sessionID] = a
	}
	return a
}

func (r *sessionRegistry) AddTask(sessionID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.activity(sessionID)
	a.tasks = append(a.tasks, taskID)
}

func (r *sessionRegistry) AddRun(sessionID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.activity(sessionID)
	a.runs = append(a.runs, runID)
}

func (r *sessionRegistry) AddProject(sessionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.activity(sessionID)
	a.projects = append(a.projects, name)
}

// Get returns copies of the recorded ids; all slices are non-nil.
func (r *sessionRegistry) Get(sessionID string) (tasks, runs, projects []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a := r.bySession[sessionID]
	if a == nil {
		return []string{}, []string{}, []string{}
	}
	return cloneIDs(a.tasks), cloneIDs(a.runs), cloneIDs(a.projects)
}

func (r *sessionRegistry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, sessionID)
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return slices.Clone(ids)
}
