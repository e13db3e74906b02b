package object

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWithTransportRoundTrip(t *testing.T) {
	taskId, _ := uuid.NewRandom()
	id := NewId(taskId, 3)

	assert.True(t, id.IsDirectCallType())

	plasma := id.WithTransport(Raylet)
	assert.False(t, plasma.IsDirectCallType())

	back := plasma.WithTransport(DirectCall)
	assert.Equal(t, id, back)
}

func TestWithTransportPreservesOtherBits(t *testing.T) {
	taskId, _ := uuid.NewRandom()
	id := NewId(taskId, 7)

	plasma := id.WithTransport(Raylet)
	// Only the transport bit may differ.
	id[23] ^= transportBit
	assert.Equal(t, id, plasma)
}

func TestEncodeDecodeError(t *testing.T) {
	for _, et := range []ErrorType{WorkerDied, ActorDied, ObjectUnreconstructable, TaskExecutionException, ObjectInPlasma} {
		obj := EncodeError(et)
		got, ok := DecodeError(obj)
		assert.True(t, ok)
		assert.Equal(t, et, got)
	}
}

func TestDecodeErrorUnknown(t *testing.T) {
	_, ok := DecodeError(RayObject{Metadata: []byte("not an error")})
	assert.False(t, ok)
}

func TestHasDataHasMetadata(t *testing.T) {
	obj := RayObject{Data: []byte("x")}
	assert.True(t, obj.HasData())
	assert.False(t, obj.HasMetadata())

	obj = RayObject{Metadata: []byte("y")}
	assert.False(t, obj.HasData())
	assert.True(t, obj.HasMetadata())
}
