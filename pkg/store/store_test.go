package store

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/utils"
)

func newId() object.Id {
	taskId, _ := uuid.NewRandom()
	return object.NewId(taskId, 0)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New(nil)
	id := newId()
	val := object.RayObject{Data: []byte{1, 2}}

	require.NoError(t, s.Put(id, val))

	results, ok, err := s.Get([]object.Id{id}, 1, -1, false)
	require.NoError(t, err)
	assert.True(t, ok[0])
	assert.Equal(t, val, results[0])
}

func TestPutDuplicateFails(t *testing.T) {
	s := New(nil)
	id := newId()
	require.NoError(t, s.Put(id, object.RayObject{Data: []byte{1}}))

	err := s.Put(id, object.RayObject{Data: []byte{2}})
	assert.ErrorIs(t, err, utils.ErrObjectExists)

	results, ok, err := s.Get([]object.Id{id}, 1, 0, false)
	require.NoError(t, err)
	assert.True(t, ok[0])
	assert.Equal(t, []byte{1}, results[0].Data)
}

func TestGetAsyncImmediate(t *testing.T) {
	s := New(nil)
	id := newId()
	val := object.RayObject{Data: []byte{9}}
	require.NoError(t, s.Put(id, val))

	var got object.RayObject
	called := false
	s.GetAsync(id, func(o object.RayObject) {
		called = true
		got = o
	})

	assert.True(t, called)
	assert.Equal(t, val, got)
}

func TestGetAsyncDeferred(t *testing.T) {
	s := New(nil)
	id := newId()

	var got object.RayObject
	done := make(chan struct{})
	s.GetAsync(id, func(o object.RayObject) {
		got = o
		close(done)
	})

	val := object.RayObject{Data: []byte{5}}
	require.NoError(t, s.Put(id, val))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async callback never fired")
	}
	assert.Equal(t, val, got)
}

func TestGetTimeout(t *testing.T) {
	s := New(nil)
	id := newId()

	start := time.Now()
	_, ok, err := s.Get([]object.Id{id}, 1, 50*time.Millisecond, false)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, utils.ErrTimedOut)
	assert.False(t, ok[0])
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	// The timed-out request must have deregistered itself: a later Put
	// still succeeds.
	require.NoError(t, s.Put(id, object.RayObject{Data: []byte{1}}))
}

func TestGetBlocksUntilPut(t *testing.T) {
	s := New(nil)
	id := newId()
	val := object.RayObject{Data: []byte{7}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Put(id, val)
	}()

	results, ok, err := s.Get([]object.Id{id}, 1, time.Second, false)
	require.NoError(t, err)
	assert.True(t, ok[0])
	assert.Equal(t, val, results[0])
}

func TestRemoveAfterGetSingleShot(t *testing.T) {
	s := New(nil)
	id := newId()
	val := object.RayObject{Data: []byte{3}}

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, ok, _ := s.Get([]object.Id{id}, 1, time.Second, true)
			results[i] = ok[0]
		}()
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Put(id, val))
	wg.Wait()

	satisfied := 0
	for _, ok := range results {
		if ok {
			satisfied++
		}
	}
	assert.Equal(t, 1, satisfied)
	assert.False(t, s.Contains(id))
}

func TestDeleteIdempotent(t *testing.T) {
	s := New(nil)
	id := newId()
	require.NoError(t, s.Put(id, object.RayObject{Data: []byte{1}}))

	s.Delete([]object.Id{id, id})
	assert.False(t, s.Contains(id))

	// Deleting again must not panic or error.
	s.Delete([]object.Id{id})
}

func TestContains(t *testing.T) {
	s := New(nil)
	id := newId()
	assert.False(t, s.Contains(id))

	require.NoError(t, s.Put(id, object.RayObject{Data: []byte{1}}))
	assert.True(t, s.Contains(id))

	plasmaMarker := newId()
	require.NoError(t, s.Put(plasmaMarker, object.RayObject{InPlasmaError: true}))
	assert.False(t, s.Contains(plasmaMarker))
}

func TestGetOrPromoteToPlasmaAbsentThenPutPromotes(t *testing.T) {
	id := newId()
	var promoted object.Id
	var promotedObj object.RayObject
	calls := 0

	s := New(func(obj object.RayObject, plasmaId object.Id) {
		calls++
		promoted = plasmaId
		promotedObj = obj
	})

	_, ok := s.GetOrPromoteToPlasma(id)
	assert.False(t, ok)

	val := object.RayObject{Data: []byte{4}}
	require.NoError(t, s.Put(id, val))

	assert.Equal(t, 1, calls)
	assert.Equal(t, id.WithTransport(object.Raylet), promoted)
	assert.Equal(t, val, promotedObj)

	// The value is still locally available after promotion.
	got, ok := s.GetOrPromoteToPlasma(id)
	assert.True(t, ok)
	assert.Equal(t, val, got)
}

func TestGetOrPromoteToPlasmaInPlasmaErrorShortcut(t *testing.T) {
	s := New(nil)
	id := newId()
	require.NoError(t, s.Put(id, object.RayObject{InPlasmaError: true}))

	_, ok := s.GetOrPromoteToPlasma(id)
	assert.False(t, ok, "a present in-plasma marker must be reported absent, not promoted again")
}

func TestPutInPlasmaErrorStillSatisfiesWaiters(t *testing.T) {
	s := New(nil)
	id := newId()
	val := object.RayObject{InPlasmaError: true}

	var asyncGot object.RayObject
	s.GetAsync(id, func(o object.RayObject) { asyncGot = o })

	require.NoError(t, s.Put(id, val))
	assert.Equal(t, val, asyncGot)

	results, ok, err := s.Get([]object.Id{id}, 1, 0, false)
	require.NoError(t, err)
	assert.True(t, ok[0])
	assert.Equal(t, val, results[0])
}

func TestGetDuplicateIdsAfterSatisfactionHazard(t *testing.T) {
	// Documented hazard: once numObjects is reached the scan over ids
	// stops, so a duplicate occurring later is reported absent even
	// though it is present in the store.
	s := New(nil)
	id := newId()
	require.NoError(t, s.Put(id, object.RayObject{Data: []byte{1}}))

	results, ok, err := s.Get([]object.Id{id, id}, 1, 0, false)
	require.NoError(t, err)
	assert.True(t, ok[0])
	assert.False(t, ok[1])
	assert.Equal(t, object.RayObject{}, results[1])
}

func TestGetDuplicateAbsentIdsSatisfiedByOnePut(t *testing.T) {
	// The duplicate of the still-absent id brings the computed requirement
	// down to zero, but a request only becomes ready when a Set arrives, so
	// the Get still waits for the Put; that single Put fills both positions.
	s := New(nil)
	id := newId()
	val := object.RayObject{Data: []byte{6}}

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Put(id, val)
	}()

	results, ok, err := s.Get([]object.Id{id, id}, 1, time.Second, false)
	require.NoError(t, err)
	assert.True(t, ok[0])
	assert.True(t, ok[1])
	assert.Equal(t, val, results[0])
	assert.Equal(t, val, results[1])
}

func TestGetDuplicateAbsentIdsRequireOnlyDistinctObjects(t *testing.T) {
	// ids carries a duplicate of A alongside B, and two objects are asked
	// for: the blocked request must be satisfiable by A alone, since the
	// duplicate position fills from the same object. Requiring a put of B
	// too would block on an object nobody ever stores.
	s := New(nil)
	a, b := newId(), newId()
	val := object.RayObject{Data: []byte{8}}

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Put(a, val)
	}()

	results, ok, err := s.Get([]object.Id{a, a, b}, 2, time.Second, false)
	require.NoError(t, err)
	assert.True(t, ok[0])
	assert.True(t, ok[1])
	assert.False(t, ok[2])
	assert.Equal(t, val, results[0])
	assert.Equal(t, val, results[1])
}

func TestSnapshot(t *testing.T) {
	s := New(nil)
	a, b := newId(), newId()
	require.NoError(t, s.Put(a, object.RayObject{Data: []byte{1}}))
	require.NoError(t, s.Put(b, object.RayObject{Data: []byte{2}}))

	snap := s.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, []byte{1}, snap[a].Data)
	assert.Equal(t, []byte{2}, snap[b].Data)
}

func TestPutPanicsOnRayletId(t *testing.T) {
	s := New(nil)
	id := newId().WithTransport(object.Raylet)
	assert.Panics(t, func() {
		s.Put(id, object.RayObject{Data: []byte{1}})
	})
}
