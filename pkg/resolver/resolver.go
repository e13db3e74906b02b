// Package resolver implements the dependency resolver: before a task is
// queued for dispatch, every argument expressed as a direct-call object
// reference is replaced by its fetched bytes, or by a plasma-transport id
// if the value turned out to live in the external store.
package resolver

import (
	"sync"

	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/task"
)

// AsyncGetter is the subset of the in-memory store the resolver depends on.
type AsyncGetter interface {
	GetAsync(id object.Id, callback func(object.RayObject))
}

// Resolver drives dependency resolution for submitted tasks.
type Resolver struct {
	mu      sync.Mutex
	store   AsyncGetter
	pending int
}

// New builds a Resolver fetching direct-call dependencies from store.
func New(store AsyncGetter) *Resolver {
	return &Resolver{store: store}
}

// NumPendingResolutions reports how many tasks currently have at least one
// outstanding dependency fetch, exposed for observability the way the
// submitter exposes queue depth.
func (r *Resolver) NumPendingResolutions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// taskState is shared by every pending GetAsync callback for one task; it
// is released when the last dependency fires.
type taskState struct {
	task    *task.Spec
	pending map[object.Id]struct{}
}

// Resolve computes the set of direct-call ids referenced by t's arguments.
// If none, onComplete runs immediately in the caller's goroutine. Otherwise
// Resolve registers one GetAsync per id and returns; onComplete runs later,
// exactly once, on whichever goroutine delivers the final dependency.
//
// Each referenced direct-call id must appear in exactly one argument slot;
// Resolve panics if a fetched id cannot be matched to any slot (a
// programmer error), and if an argument references more
// than one id (multi-id arguments are not supported in this revision).
func (r *Resolver) Resolve(t *task.Spec, onComplete func()) {
	args := t.Snapshot()

	localDeps := make(map[object.Id]struct{})
	for i := range args {
		count := len(args[i].Ids)
		if count == 0 {
			continue
		}
		if count > 1 {
			panic("resolver: multi-id arguments are not supported")
		}
		id := args[i].Ids[0]
		if id.IsDirectCallType() {
			localDeps[id] = struct{}{}
		}
	}

	if len(localDeps) == 0 {
		onComplete()
		return
	}

	state := &taskState{task: t, pending: localDeps}

	r.mu.Lock()
	r.pending++
	r.mu.Unlock()

	for id := range localDeps {
		id := id
		r.store.GetAsync(id, func(obj object.RayObject) {
			complete := false

			r.mu.Lock()
			delete(state.pending, id)
			r.inline(state.task, id, obj)
			if len(state.pending) == 0 {
				complete = true
				r.pending--
			}
			r.mu.Unlock()

			if complete {
				onComplete()
			}
		})
	}
}

// inline locates the argument slot referencing id and mutates it in place.
// Must be called with r.mu held.
func (r *Resolver) inline(t *task.Spec, id object.Id, value object.RayObject) {
	found := false
	for i := 0; i < t.NumArgs(); i++ {
		if t.ArgIdCount(i) == 0 || t.ArgId(i, 0) != id {
			continue
		}
		if value.InPlasmaError {
			t.SubstitutePlasmaArg(i, id.WithTransport(object.Raylet))
		} else {
			t.InlineArg(i, value)
		}
		found = true
	}
	if !found {
		log.Errorf("resolver: resolved dependency %s not found in any argument slot", id)
		panic("resolver: resolved dependency not found in any argument slot")
	}
}
