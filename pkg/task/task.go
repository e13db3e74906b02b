// Package task defines the TaskSpec payload mutated in place by the
// dependency resolver and destructively handed off by the submitter.
package task

import (
	"sync"

	"github.com/google/uuid"

	"github.com/coreruntime/coreworker/pkg/object"
)

// Argument is one positional argument of a task. An argument is either an
// inline value (Data/Metadata populated, Ids empty) or a reference to 0-N
// objects (Ids populated). The resolver only supports a single id per
// argument; a second id present at resolve time is a programmer error.
//
// TODO: multi-id arguments are a roadmap item, not implemented here; Ids
// already supports more than one entry in storage so a future resolver can
// drop the single-id assumption without a wire format change.
type Argument struct {
	Data     []byte
	Metadata []byte
	Ids      []object.Id
}

// HasIds reports whether the argument still references unresolved objects.
func (a *Argument) HasIds() bool { return len(a.Ids) > 0 }

// ClearIds drops the argument's id list, as the resolver does before
// inlining a value or substituting a plasma-transport id.
func (a *Argument) ClearIds() { a.Ids = nil }

// Spec is a task's submittable payload: ordered arguments and a list of
// ids the task promises to populate on completion. Every method that reads
// or writes the arguments takes the Spec's own mutex; the id, return ids
// and resource tag are fixed at construction.
type Spec struct {
	mu sync.Mutex

	id          uuid.UUID
	args        []Argument
	returnIds   []object.Id
	resourceTag string
}

// NewSpec builds a task with freshly derived return ids.
func NewSpec(args []Argument, numReturns int, resourceTag string) *Spec {
	id, _ := uuid.NewRandom()
	returnIds := make([]object.Id, numReturns)
	for i := range returnIds {
		returnIds[i] = object.NewId(id, uint32(i))
	}
	return &Spec{
		id:          id,
		args:        args,
		returnIds:   returnIds,
		resourceTag: resourceTag,
	}
}

// TaskId returns the task's identity, used to tag failure propagation.
func (t *Spec) TaskId() uuid.UUID { return t.id }

// NumReturns returns the number of declared return values.
func (t *Spec) NumReturns() int { return len(t.returnIds) }

// ReturnIds returns the task's return object ids.
func (t *Spec) ReturnIds() []object.Id { return t.returnIds }

// ResourceSpec returns the opaque resource descriptor used by the lease
// service to pick an eligible worker.
func (t *Spec) ResourceSpec() string { return t.resourceTag }

// NumArgs returns the number of positional arguments.
func (t *Spec) NumArgs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.args)
}

// ArgIdCount returns the number of unresolved ids referenced by argument i.
func (t *Spec) ArgIdCount(i int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.args[i].Ids)
}

// ArgId returns the j-th id referenced by argument i.
func (t *Spec) ArgId(i, j int) object.Id {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.args[i].Ids[j]
}

// InlineArg clears argument i's id list and sets its inline data/metadata.
// Called by the resolver once a direct-call value has been fetched.
func (t *Spec) InlineArg(i int, value object.RayObject) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.args[i].ClearIds()
	t.args[i].Data = value.Data
	t.args[i].Metadata = value.Metadata
}

// SubstitutePlasmaArg clears argument i's id list and replaces it with the
// plasma-transport id, signaling the executor to fetch via the raylet path
// instead of reading inline bytes.
func (t *Spec) SubstitutePlasmaArg(i int, plasmaId object.Id) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.args[i].ClearIds()
	t.args[i].Ids = []object.Id{plasmaId}
}

// Snapshot returns a defensive copy of the argument list, used by the
// resolver to scan for direct-call ids without holding this task locked
// for the whole scan.
func (t *Spec) Snapshot() []Argument {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Argument, len(t.args))
	copy(out, t.args)
	return out
}

// Request is the wire-shaped payload handed to a worker stub. Drain moves
// the task's argument list into the request, leaving the Spec with no
// arguments: since a dispatched task is never retried, the
// move is sound, and it avoids a full copy of potentially large inlined
// payloads.
type Request struct {
	TaskId      uuid.UUID
	Args        []Argument
	ReturnIds   []object.Id
	ResourceTag string
}

// Drain returns a Request carrying the task's payload and clears the
// task's own argument slots. Call exactly once per dispatch.
func (t *Spec) Drain() Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	args := t.args
	t.args = nil
	return Request{
		TaskId:      t.id,
		Args:        args,
		ReturnIds:   t.returnIds,
		ResourceTag: t.resourceTag,
	}
}
