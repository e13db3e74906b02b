package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/task"
)

// WorkerClient is a coreworker.WorkerStub backed by a gRPC connection to a
// single leased worker. Safe for concurrent use, as the submitter requires
// (it shares one stub across every push to the same address).
type WorkerClient struct {
	conn *grpc.ClientConn
}

// NewWorkerClient wraps an established connection as a WorkerStub. Use
// with coreworker.ClientFactory to build one per granted WorkerAddress.
func NewWorkerClient(conn *grpc.ClientConn) *WorkerClient {
	return &WorkerClient{conn: conn}
}

// PushNormalTask enqueues the RPC on its own goroutine and returns
// immediately, invoking completion once the call settles — the submitter
// depends on this call not blocking on the round trip, since OnWorkerIdle
// holds its mutex across the call that reaches here.
func (c *WorkerClient) PushNormalTask(ctx context.Context, req task.Request, completion coreworker.PushCompletion) error {
	payload, err := encodeRequest(req)
	if err != nil {
		return err
	}

	go func() {
		out := new(structpb.Struct)
		err := c.conn.Invoke(ctx, "/"+workerServiceName+"/PushNormalTask", payload, out)
		if err != nil {
			log.Debug("rpc: PushNormalTask failed:", err)
			completion(err, coreworker.PushReply{})
			return
		}
		reply, err := decodeReply(out)
		if err != nil {
			completion(err, coreworker.PushReply{})
			return
		}
		completion(nil, reply)
	}()

	return nil
}
