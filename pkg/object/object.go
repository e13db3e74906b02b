// Package object defines the core worker's content-addressed value types:
// ObjectId, the in-memory object payload RayObject, and the ErrorType
// enumeration used to tag synthesized failure objects.
package object

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// Id is a fixed-width binary identifier for a value produced or consumed by
// a task. A single bit distinguishes the direct-call subspace (eligible for
// storage in the in-memory store) from the raylet-transport subspace (must
// be fetched from the external plasma store).
//
// Layout: 16 bytes of owning-task id, 4 bytes of return index, 4 bytes of
// flags. Only the low bit of the flags word is defined; the rest is
// reserved. This layout is compatibility-critical: WithTransport must flip
// only the transport bit and preserve everything else.
type Id [24]byte

const transportBit = 1 << 0

// TaskTransportType selects which subspace an Id belongs to.
type TaskTransportType int

const (
	DirectCall TaskTransportType = iota
	Raylet
)

// NewId derives a return-value object id from an owning task id and a
// zero-based return index. The id starts in the direct-call subspace.
func NewId(taskId uuid.UUID, returnIndex uint32) Id {
	var id Id
	copy(id[0:16], taskId[:])
	binary.BigEndian.PutUint32(id[16:20], returnIndex)
	return id
}

// IsDirectCallType reports whether id belongs to the direct-call subspace,
// i.e. is eligible for storage in the in-memory store.
func (id Id) IsDirectCallType() bool {
	return id[23]&transportBit == 0
}

// WithTransport returns a copy of id rewritten into the requested subspace,
// preserving every other bit. Flipping back and forth is a no-op round
// trip: id.WithTransport(Raylet).WithTransport(DirectCall) == id.
func (id Id) WithTransport(transport TaskTransportType) Id {
	out := id
	switch transport {
	case DirectCall:
		out[23] &^= transportBit
	case Raylet:
		out[23] |= transportBit
	}
	return out
}

func (id Id) String() string {
	taskId, _ := uuid.FromBytes(id[0:16])
	return taskId.String() + "#" + hex.EncodeToString(id[16:20])
}

// ErrorType tags a synthetic RayObject written back to the store in place
// of a value that could not be produced.
type ErrorType int

const (
	WorkerDied ErrorType = iota
	ActorDied
	ObjectUnreconstructable
	TaskExecutionException
	ObjectInPlasma
)

func (e ErrorType) String() string {
	switch e {
	case WorkerDied:
		return "WORKER_DIED"
	case ActorDied:
		return "ACTOR_DIED"
	case ObjectUnreconstructable:
		return "OBJECT_UNRECONSTRUCTABLE"
	case TaskExecutionException:
		return "TASK_EXECUTION_EXCEPTION"
	case ObjectInPlasma:
		return "OBJECT_IN_PLASMA"
	default:
		return "UNKNOWN"
	}
}

// RayObject is an immutable value held by the in-memory store: a data
// buffer, a metadata buffer, and a flag meaning "the real copy lives in
// plasma, this entry is a marker." Either buffer may be empty, but a stored
// object carries at least one of them unless it is an in-plasma marker.
type RayObject struct {
	Data          []byte
	Metadata      []byte
	InPlasmaError bool
}

// HasData reports whether the object carries a non-empty data buffer.
func (o RayObject) HasData() bool { return len(o.Data) > 0 }

// HasMetadata reports whether the object carries a non-empty metadata buffer.
func (o RayObject) HasMetadata() bool { return len(o.Metadata) > 0 }

// EncodeError builds a synthetic RayObject carrying only an error tag in
// its metadata, as written back by the submitter on worker/task failure.
func EncodeError(t ErrorType) RayObject {
	return RayObject{Metadata: []byte(t.String())}
}

// DecodeError reports the ErrorType encoded in o's metadata, if any.
func DecodeError(o RayObject) (ErrorType, bool) {
	switch string(o.Metadata) {
	case WorkerDied.String():
		return WorkerDied, true
	case ActorDied.String():
		return ActorDied, true
	case ObjectUnreconstructable.String():
		return ObjectUnreconstructable, true
	case TaskExecutionException.String():
		return TaskExecutionException, true
	case ObjectInPlasma.String():
		return ObjectInPlasma, true
	default:
		return 0, false
	}
}
