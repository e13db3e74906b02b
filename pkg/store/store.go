// Package store implements the in-memory object store (IMS): a
// process-local, content-addressed table of direct-call objects with
// synchronous (blocking, optionally timed) and asynchronous (callback)
// retrieval, plus promotion of absent objects to an external plasma store.
//
// Single mutex guards all state; GetAsync callbacks are always collected
// under the lock and dispatched only after it's released, so no caller can
// re-enter the store from inside one of its own callbacks and deadlock. The
// storeInPlasma hook is the exception: Put calls it with the lock held.
package store

import (
	"sync"
	"time"

	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/utils"
)

// StoreInPlasmaFunc writes an object to the external large-object store
// under the given (already transport-rewritten) id. Put calls it with the
// store's lock held, so it must not call back into the Store.
type StoreInPlasmaFunc func(obj object.RayObject, plasmaId object.Id)

type asyncCallback func(object.RayObject)

// Store is the in-memory object store. Zero value is not usable; use New.
type Store struct {
	mu sync.Mutex

	objects          map[object.Id]object.RayObject
	asyncWaiters     map[object.Id][]asyncCallback
	syncWaiters      map[object.Id][]*getRequest
	promotedToPlasma map[object.Id]struct{}

	storeInPlasma StoreInPlasmaFunc
}

// New builds an empty Store. storeInPlasma may be nil if the caller never
// intends to promote objects; GetOrPromoteToPlasma on an absent id will
// panic in that case, matching the original's programmer-error abort.
func New(storeInPlasma StoreInPlasmaFunc) *Store {
	return &Store{
		objects:          make(map[object.Id]object.RayObject),
		asyncWaiters:     make(map[object.Id][]asyncCallback),
		syncWaiters:      make(map[object.Id][]*getRequest),
		promotedToPlasma: make(map[object.Id]struct{}),
		storeInPlasma:    storeInPlasma,
	}
}

// Put inserts obj under id. id must be a direct-call id. If id is already
// present, Put returns utils.ErrObjectExists and makes no other state
// change — the store is single-assignment; idempotency is the caller's
// concern.
func (s *Store) Put(id object.Id, obj object.RayObject) error {
	if !id.IsDirectCallType() {
		panic("store: Put called with a non-direct-call id")
	}

	var asyncCallbacks []asyncCallback

	s.mu.Lock()
	if _, exists := s.objects[id]; exists {
		s.mu.Unlock()
		return utils.ErrObjectExists
	}

	if cbs, ok := s.asyncWaiters[id]; ok {
		asyncCallbacks = cbs
		delete(s.asyncWaiters, id)
	}

	shouldAddEntry := true
	if waiters, ok := s.syncWaiters[id]; ok {
		for _, req := range waiters {
			req.Set(id, obj)
			if req.removeAfterGet {
				shouldAddEntry = false
			}
		}
	}

	if _, promoted := s.promotedToPlasma[id]; promoted {
		if s.storeInPlasma == nil {
			s.mu.Unlock()
			panic("store: Put resolved a pending promotion but no storeInPlasma callback was configured")
		}
		s.storeInPlasma(obj, id.WithTransport(object.Raylet))
		delete(s.promotedToPlasma, id)
	}

	if shouldAddEntry {
		s.objects[id] = obj
	}
	s.mu.Unlock()

	for _, cb := range asyncCallbacks {
		cb(obj)
	}
	return nil
}

// GetAsync invokes callback exactly once with id's value: immediately (in
// the caller's goroutine, after releasing the lock) if already present,
// otherwise once a matching Put arrives.
func (s *Store) GetAsync(id object.Id, callback func(object.RayObject)) {
	s.mu.Lock()
	obj, ok := s.objects[id]
	if !ok {
		s.asyncWaiters[id] = append(s.asyncWaiters[id], callback)
	}
	s.mu.Unlock()

	if ok {
		callback(obj)
	}
}

// GetOrPromoteToPlasma returns id's value if present and not an in-plasma
// marker. If present but flagged in-plasma, it returns absent — the caller
// should read plasma directly. If absent, it registers a promotion intent
// so the next Put for id forwards the value to the external store, and
// returns absent.
func (s *Store) GetOrPromoteToPlasma(id object.Id) (object.RayObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := s.objects[id]; ok {
		if obj.InPlasmaError {
			return object.RayObject{}, false
		}
		return obj, true
	}

	if s.storeInPlasma == nil {
		panic("store: GetOrPromoteToPlasma needs a storeInPlasma callback but none was configured")
	}
	s.promotedToPlasma[id] = struct{}{}
	return object.RayObject{}, false
}

// Get blocks until num_objects of the requested ids are available or
// timeout elapses. timeout of -1 waits forever; 0 only checks the current
// state. results has the same length and order as ids; unpopulated
// positions remain zero-valued RayObjects with ok=false.
//
// The scan below deliberately stops as soon as count reaches numObjects
// (`i < len(ids) && count < numObjects`) rather than continuing to examine
// the rest of ids. A duplicate id occurring after that point is never
// looked up again and is reported absent even though it is present in the
// store; this is a known, intentionally undisturbed hazard, not fixed here.
func (s *Store) Get(ids []object.Id, numObjects int, timeout time.Duration, removeAfterGet bool) ([]object.RayObject, []bool, error) {
	if numObjects < 0 || numObjects > len(ids) {
		panic("store: Get called with an invalid numObjects")
	}
	if timeout < 0 && timeout != -1 {
		panic("store: Get called with an invalid timeout")
	}

	results := make([]object.RayObject, len(ids))
	ok := make([]bool, len(ids))

	s.mu.Lock()

	count := 0
	remaining := make(map[object.Id]struct{})
	idsToRemove := make(map[object.Id]struct{})

	i := 0
	for ; i < len(ids) && count < numObjects; i++ {
		id := ids[i]
		if obj, present := s.objects[id]; present {
			results[i] = obj
			ok[i] = true
			count++
			if removeAfterGet {
				idsToRemove[id] = struct{}{}
			}
		} else {
			remaining[id] = struct{}{}
		}
	}
	for ; i < len(ids); i++ {
		remaining[ids[i]] = struct{}{}
	}

	for id := range idsToRemove {
		delete(s.objects, id)
	}

	if len(remaining) == 0 || count >= numObjects {
		s.mu.Unlock()
		return results, ok, nil
	}

	// remaining is deduplicated while len(ids) is the raw input length, so
	// required can come out lower than the number of missing positions when
	// ids holds duplicates; the request then needs only that many distinct
	// objects, and duplicate positions are filled from its map afterwards.
	required := numObjects - (len(ids) - len(remaining))
	req := newGetRequest(remaining, required, removeAfterGet)
	for id := range remaining {
		s.syncWaiters[id] = append(s.syncWaiters[id], req)
	}
	s.mu.Unlock()

	done := req.Wait(timeout)

	s.mu.Lock()
	for i, id := range ids {
		if !ok[i] {
			if obj, present := req.Get(id); present {
				results[i] = obj
				ok[i] = true
			}
		}
	}
	for id := range remaining {
		waiters := s.syncWaiters[id]
		for idx, w := range waiters {
			if w == req {
				waiters = append(waiters[:idx], waiters[idx+1:]...)
				break
			}
		}
		if len(waiters) == 0 {
			delete(s.syncWaiters, id)
		} else {
			s.syncWaiters[id] = waiters
		}
	}
	s.mu.Unlock()

	if done {
		return results, ok, nil
	}
	return results, ok, utils.ErrTimedOut
}

// Delete removes each id from the store. Missing ids are not an error.
func (s *Store) Delete(ids []object.Id) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.objects, id)
	}
}

// Contains reports whether id is present and not an in-plasma marker.
func (s *Store) Contains(id object.Id) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	return ok && !obj.InPlasmaError
}

// Size returns the number of entries currently held, for the /metrics
// endpoint.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Keys returns the ids currently stored, for diagnostic introspection.
func (s *Store) Keys() []object.Id {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]object.Id, 0, len(s.objects))
	for id := range s.objects {
		out = append(out, id)
	}
	return out
}

// Snapshot returns a shallow copy of every entry currently held, in the
// shape rpc.PlasmaClient.PromoteAll takes.
func (s *Store) Snapshot() map[object.Id]object.RayObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[object.Id]object.RayObject, len(s.objects))
	for id, obj := range s.objects {
		out[id] = obj
	}
	return out
}

// getRequest is a short-lived coordination record shared between a blocked
// Get caller and every syncWaiters list it is registered under. Once ready
// flips true it never flips back; Sets delivered afterwards are dropped.
type getRequest struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ready    bool
	timedOut bool

	ids            map[object.Id]struct{}
	numObjects     int
	removeAfterGet bool
	objects        map[object.Id]object.RayObject
}

func newGetRequest(ids map[object.Id]struct{}, numObjects int, removeAfterGet bool) *getRequest {
	r := &getRequest{
		ids:            ids,
		numObjects:     numObjects,
		removeAfterGet: removeAfterGet,
		objects:        make(map[object.Id]object.RayObject),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Set records id's value if the request is still awaiting it, and marks the
// request ready once enough objects have arrived.
func (r *getRequest) Set(id object.Id, obj object.RayObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return
	}
	if _, wanted := r.ids[id]; !wanted {
		return
	}
	if _, already := r.objects[id]; already {
		return
	}
	r.objects[id] = obj
	if len(r.objects) >= r.numObjects {
		r.ready = true
		r.cond.Broadcast()
	}
}

// Get returns id's recorded value, if any.
func (r *getRequest) Get(id object.Id) (object.RayObject, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	return obj, ok
}

// Wait blocks until the request becomes ready or timeout elapses (-1 waits
// forever; 0 checks once without blocking). Returns true iff ready.
func (r *getRequest) Wait(timeout time.Duration) bool {
	if timeout == -1 {
		r.mu.Lock()
		for !r.ready {
			r.cond.Wait()
		}
		r.mu.Unlock()
		return true
	}

	if timeout == 0 {
		r.mu.Lock()
		ready := r.ready
		r.mu.Unlock()
		return ready
	}

	timer := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		r.timedOut = true
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()

	r.mu.Lock()
	for !r.ready && !r.timedOut {
		r.cond.Wait()
	}
	ready := r.ready
	r.mu.Unlock()

	log.Trace("store: get request settled, ready =", ready)
	return ready
}
