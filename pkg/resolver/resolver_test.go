package resolver

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/task"
)

// fakeStore is a minimal AsyncGetter a test can drive by hand: GetAsync
// either fires immediately (if preloaded) or is queued for a later Deliver.
type fakeStore struct {
	mu      sync.Mutex
	values  map[object.Id]object.RayObject
	pending map[object.Id][]func(object.RayObject)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:  make(map[object.Id]object.RayObject),
		pending: make(map[object.Id][]func(object.RayObject)),
	}
}

func (f *fakeStore) GetAsync(id object.Id, callback func(object.RayObject)) {
	f.mu.Lock()
	if v, ok := f.values[id]; ok {
		f.mu.Unlock()
		callback(v)
		return
	}
	f.pending[id] = append(f.pending[id], callback)
	f.mu.Unlock()
}

func (f *fakeStore) Deliver(id object.Id, v object.RayObject) {
	f.mu.Lock()
	f.values[id] = v
	cbs := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(v)
	}
}

func newTaskId() uuid.UUID {
	id, _ := uuid.NewRandom()
	return id
}

func TestResolveNoDepsCompletesImmediately(t *testing.T) {
	spec := task.NewSpec([]task.Argument{{Data: []byte("inline")}}, 1, "cpu")
	r := New(newFakeStore())

	called := false
	r.Resolve(spec, func() { called = true })

	assert.True(t, called)
	assert.Equal(t, 0, r.NumPendingResolutions())
}

func TestResolveInlinesDirectCallValue(t *testing.T) {
	taskId := newTaskId()
	depId := object.NewId(taskId, 0)

	store := newFakeStore()
	spec := task.NewSpec([]task.Argument{{Ids: []object.Id{depId}}}, 1, "cpu")
	r := New(store)

	done := make(chan struct{})
	r.Resolve(spec, func() { close(done) })

	assert.Equal(t, 1, r.NumPendingResolutions())

	store.Deliver(depId, object.RayObject{Data: []byte{0xaa}})
	<-done

	require.Equal(t, 0, spec.ArgIdCount(0))
	assert.Equal(t, []byte{0xaa}, spec.Snapshot()[0].Data)
}

func TestResolveSubstitutesPlasmaIdOnInPlasmaError(t *testing.T) {
	taskId := newTaskId()
	depId := object.NewId(taskId, 0)

	store := newFakeStore()
	spec := task.NewSpec([]task.Argument{{Ids: []object.Id{depId}}}, 1, "cpu")
	r := New(store)

	done := make(chan struct{})
	r.Resolve(spec, func() { close(done) })

	store.Deliver(depId, object.RayObject{InPlasmaError: true})
	<-done

	require.Equal(t, 1, spec.ArgIdCount(0))
	assert.Equal(t, depId.WithTransport(object.Raylet), spec.ArgId(0, 0))
}

func TestResolveMultipleArgsWaitsForAll(t *testing.T) {
	taskId := newTaskId()
	dep1 := object.NewId(taskId, 0)
	dep2 := object.NewId(taskId, 1)

	store := newFakeStore()
	spec := task.NewSpec([]task.Argument{
		{Ids: []object.Id{dep1}},
		{Ids: []object.Id{dep2}},
	}, 1, "cpu")
	r := New(store)

	done := make(chan struct{})
	r.Resolve(spec, func() { close(done) })

	store.Deliver(dep1, object.RayObject{Data: []byte{1}})
	select {
	case <-done:
		t.Fatal("onComplete fired before the second dependency arrived")
	default:
	}

	store.Deliver(dep2, object.RayObject{Data: []byte{2}})
	<-done
}

func TestResolvePanicsOnMultiIdArgument(t *testing.T) {
	taskId := newTaskId()
	dep1 := object.NewId(taskId, 0)
	dep2 := object.NewId(taskId, 1)

	spec := task.NewSpec([]task.Argument{{Ids: []object.Id{dep1, dep2}}}, 1, "cpu")
	r := New(newFakeStore())

	assert.Panics(t, func() {
		r.Resolve(spec, func() {})
	})
}

func TestResolvePanicsWhenDependencyNotFoundInAnySlot(t *testing.T) {
	taskId := newTaskId()
	depId := object.NewId(taskId, 0)
	store := newFakeStore()

	spec := task.NewSpec([]task.Argument{{Ids: []object.Id{depId}}}, 1, "cpu")
	r := New(store)

	r.Resolve(spec, func() {})
	// Clear the id out from under the resolver before it's delivered,
	// simulating the id no longer matching any slot.
	spec.InlineArg(0, object.RayObject{})

	assert.Panics(t, func() {
		store.Deliver(depId, object.RayObject{Data: []byte{1}})
	})
}
