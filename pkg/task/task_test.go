package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreruntime/coreworker/pkg/object"
)

func TestNewSpecDerivesReturnIds(t *testing.T) {
	s := NewSpec(nil, 3, "cpu=1")
	require.Len(t, s.ReturnIds(), 3)
	for i, id := range s.ReturnIds() {
		assert.True(t, id.IsDirectCallType())
		_ = i
	}
	assert.Equal(t, "cpu=1", s.ResourceSpec())
}

func TestInlineArgClearsIdsAndSetsBytes(t *testing.T) {
	depId := object.Id{}
	s := NewSpec([]Argument{{Ids: []object.Id{depId}}}, 0, "")

	s.InlineArg(0, object.RayObject{Data: []byte("hi"), Metadata: []byte("md")})

	require.Equal(t, 0, s.ArgIdCount(0))
	snap := s.Snapshot()
	assert.Equal(t, []byte("hi"), snap[0].Data)
	assert.Equal(t, []byte("md"), snap[0].Metadata)
}

func TestSubstitutePlasmaArgReplacesIdList(t *testing.T) {
	depId := object.Id{}
	s := NewSpec([]Argument{{Ids: []object.Id{depId}}}, 0, "")

	plasmaId := depId.WithTransport(object.Raylet)
	s.SubstitutePlasmaArg(0, plasmaId)

	require.Equal(t, 1, s.ArgIdCount(0))
	assert.Equal(t, plasmaId, s.ArgId(0, 0))
}

func TestDrainIsDestructive(t *testing.T) {
	s := NewSpec([]Argument{{Data: []byte("payload")}}, 1, "cpu")

	req := s.Drain()
	assert.Equal(t, []byte("payload"), req.Args[0].Data)
	assert.Equal(t, s.TaskId(), req.TaskId)
	assert.Equal(t, s.ReturnIds(), req.ReturnIds)

	assert.Equal(t, 0, s.NumArgs())
}

func TestHasIdsAndClearIds(t *testing.T) {
	a := Argument{Ids: []object.Id{{}}}
	assert.True(t, a.HasIds())

	a.ClearIds()
	assert.False(t, a.HasIds())
}
