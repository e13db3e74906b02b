// Package coreworker declares the collaborator interfaces the direct task
// submitter depends on but does not implement: the lease client, the
// per-worker RPC stub, and the plasma store hookup. Concrete gRPC-backed
// implementations live in pkg/rpc.
package coreworker

import (
	"context"

	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/task"
)

// WorkerAddress identifies a leased worker's RPC endpoint.
type WorkerAddress struct {
	Host string
	Port int32
}

// LeaseClient requests and returns worker leases from the remote lease
// service (the raylet, in the original system). RequestWorkerLease is
// fire-and-forget: the grant arrives later via the submitter's
// HandleWorkerLeaseGranted, not as this call's return value.
type LeaseClient interface {
	RequestWorkerLease(ctx context.Context, resourceSpec string) error
	ReturnWorker(ctx context.Context, port int32) error
}

// PushReply carries the objects a worker produced for a task's declared
// return ids.
type PushReply struct {
	Objects map[object.Id]object.RayObject
}

// PushCompletion is invoked exactly once for each PushNormalTask call that
// returns nil, whether the RPC then succeeded or failed. A PushNormalTask
// call that returns an error does not invoke it.
type PushCompletion func(err error, reply PushReply)

// WorkerStub is the per-worker RPC handle the submitter dispatches tasks
// through. Implementations must be safe for concurrent use: the submitter
// shares one stub across every push to the same worker address.
type WorkerStub interface {
	PushNormalTask(ctx context.Context, req task.Request, completion PushCompletion) error
}

// ClientFactory builds a WorkerStub for a freshly granted worker address.
type ClientFactory func(addr WorkerAddress) WorkerStub

// StoreInPlasmaFunc matches store.StoreInPlasmaFunc; declared again here,
// interface-only, so pkg/rpc can depend on this package without also
// depending on pkg/store.
type StoreInPlasmaFunc func(obj object.RayObject, plasmaId object.Id)
