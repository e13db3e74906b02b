package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/store"
	"github.com/coreruntime/coreworker/pkg/task"
)

// startServer runs server on an in-memory listener and returns a client
// connection to it.
func startServer(t *testing.T, server *grpc.Server) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWireRequestRoundTrip(t *testing.T) {
	taskId, _ := uuid.NewRandom()
	depId := object.NewId(taskId, 0).WithTransport(object.Raylet)

	req := task.Request{
		TaskId:      taskId,
		ResourceTag: "cpu=2",
		Args: []task.Argument{
			{Data: []byte{1, 2}, Metadata: []byte("md")},
			{Ids: []object.Id{depId}},
		},
		ReturnIds: []object.Id{object.NewId(taskId, 1)},
	}

	env, err := encodeRequest(req)
	require.NoError(t, err)

	got, err := decodeRequest(env)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestLeasePoolGrantsAndReturns(t *testing.T) {
	worker := coreworker.WorkerAddress{Host: "h", Port: 7001}
	pool := NewLeasePoolServer(worker)

	server := grpc.NewServer()
	RegisterLeasePoolServer(server, pool)
	conn := startServer(t, server)

	grants := make(chan coreworker.WorkerAddress, 4)
	client, err := NewLeaseClient(context.Background(), conn, func(addr coreworker.WorkerAddress) {
		grants <- addr
	})
	require.NoError(t, err)

	require.NoError(t, client.RequestWorkerLease(context.Background(), "cpu"))
	select {
	case addr := <-grants:
		assert.Equal(t, worker, addr)
	case <-time.After(time.Second):
		t.Fatal("first lease request was never granted")
	}

	// The pool's only worker is out; a second request must queue.
	require.NoError(t, client.RequestWorkerLease(context.Background(), "cpu"))
	select {
	case <-grants:
		t.Fatal("second request granted while the only worker was leased out")
	case <-time.After(50 * time.Millisecond):
	}

	// Returning the worker satisfies the queued request.
	require.NoError(t, client.ReturnWorker(context.Background(), worker.Port))
	select {
	case addr := <-grants:
		assert.Equal(t, worker, addr)
	case <-time.After(time.Second):
		t.Fatal("queued lease request was never granted after the return")
	}
}

func TestPushNormalTaskEndToEnd(t *testing.T) {
	// The worker echoes each task's first argument back under its first
	// return id.
	worker := &WorkerServer{
		Executor: func(req task.Request) coreworker.PushReply {
			reply := coreworker.PushReply{Objects: make(map[object.Id]object.RayObject)}
			reply.Objects[req.ReturnIds[0]] = object.RayObject{Data: req.Args[0].Data}
			return reply
		},
	}

	server := grpc.NewServer()
	RegisterWorkerServer(server, worker)
	conn := startServer(t, server)

	stub := NewWorkerClient(conn)
	spec := task.NewSpec([]task.Argument{{Data: []byte{0xab}}}, 1, "cpu")
	returnId := spec.ReturnIds()[0]

	type pushResult struct {
		err   error
		reply coreworker.PushReply
	}
	done := make(chan pushResult, 1)
	err := stub.PushNormalTask(context.Background(), spec.Drain(), func(pushErr error, reply coreworker.PushReply) {
		done <- pushResult{err: pushErr, reply: reply}
	})
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, []byte{0xab}, res.reply.Objects[returnId].Data)
	case <-time.After(time.Second):
		t.Fatal("push completion never fired")
	}
}

func TestPromotionFlowsThroughPlasmaClient(t *testing.T) {
	stored := make(chan object.Id, 1)
	plasma := &PlasmaServer{
		Sink: func(plasmaId object.Id, obj object.RayObject) {
			stored <- plasmaId
		},
	}

	server := grpc.NewServer()
	RegisterPlasmaServer(server, plasma)
	conn := startServer(t, server)
	client := NewPlasmaClient(conn)

	ims := store.New(client.StoreInPlasma)
	taskId, _ := uuid.NewRandom()
	id := object.NewId(taskId, 0)

	_, ok := ims.GetOrPromoteToPlasma(id)
	require.False(t, ok)

	require.NoError(t, ims.Put(id, object.RayObject{Data: []byte{1}}))

	select {
	case plasmaId := <-stored:
		assert.Equal(t, id.WithTransport(object.Raylet), plasmaId)
	case <-time.After(time.Second):
		t.Fatal("promoted object never reached the plasma server")
	}
}

func TestPromoteAllFansOut(t *testing.T) {
	count := make(chan object.Id, 16)
	plasma := &PlasmaServer{
		Sink: func(plasmaId object.Id, obj object.RayObject) {
			count <- plasmaId
		},
	}

	server := grpc.NewServer()
	RegisterPlasmaServer(server, plasma)
	conn := startServer(t, server)
	client := NewPlasmaClient(conn)

	taskId, _ := uuid.NewRandom()
	objects := make(map[object.Id]object.RayObject)
	for i := 0; i < 5; i++ {
		objects[object.NewId(taskId, uint32(i))] = object.RayObject{Data: []byte{byte(i)}}
	}

	require.NoError(t, client.PromoteAll(context.Background(), objects))
	assert.Len(t, count, 5)
}
