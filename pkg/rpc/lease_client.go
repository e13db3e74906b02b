package rpc

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/log"
)

// GrantHandler receives asynchronous lease grants pushed by the lease
// pool, mirroring the submitter's HandleWorkerLeaseGranted callback.
type GrantHandler func(addr coreworker.WorkerAddress)

// LeaseClient is a coreworker.LeaseClient backed by a single long-lived
// bidi stream to the lease pool: requests are sent on it, grants arrive on
// it asynchronously.
type LeaseClient struct {
	mu      sync.Mutex
	stream  grpc.ClientStream
	onGrant GrantHandler
}

// NewLeaseClient opens the bidi stream and starts the background receive
// loop that dispatches grants to onGrant.
func NewLeaseClient(ctx context.Context, conn *grpc.ClientConn, onGrant GrantHandler) (*LeaseClient, error) {
	desc := &leaseServiceDesc.Streams[0]
	stream, err := conn.NewStream(ctx, desc, "/"+leaseServiceName+"/RequestWorkerLease")
	if err != nil {
		return nil, err
	}

	c := &LeaseClient{stream: stream, onGrant: onGrant}
	go c.recvLoop()
	return c, nil
}

func (c *LeaseClient) recvLoop() {
	for {
		grant := new(structpb.Struct)
		if err := c.stream.RecvMsg(grant); err != nil {
			log.Debug("rpc: lease stream closed:", err)
			return
		}
		c.onGrant(decodeLeaseGrant(grant))
	}
}

// RequestWorkerLease sends a lease request on the shared stream. The grant
// is delivered later, asynchronously, via onGrant.
func (c *LeaseClient) RequestWorkerLease(ctx context.Context, resourceSpec string) error {
	req, err := encodeLeaseRequest(resourceSpec)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.SendMsg(req)
}

// ReturnWorker relinquishes the worker at port. It is modeled as a message
// on the same stream RequestWorkerLease uses rather than a separate unary
// call, matching the submitter's port-only contract: the host half of the
// address is never sent back, so two granted workers sharing a port across
// different hosts would be mis-returned. The submitter's client cache is
// keyed by the full WorkerAddress and does tell such workers apart; only
// the return path drops the host.
func (c *LeaseClient) ReturnWorker(ctx context.Context, port int32) error {
	req, err := encodeReturnWorker(port)
	if err != nil {
		return err
	}
	req.Fields["return"] = structpbBool(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.SendMsg(req)
}
