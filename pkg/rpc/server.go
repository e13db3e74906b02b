package rpc

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/task"
	"github.com/coreruntime/coreworker/pkg/utils"
)

// WorkerServer is the worker side of PushNormalTask: it decodes a pushed
// task and hands it to Executor, which runs it and reports its declared
// return values. If Executor is nil, every declared return id comes back
// as an empty RayObject — enough to exercise the transport end to end
// without a real task-execution engine, which this package treats as an
// external collaborator.
type WorkerServer struct {
	Executor func(req task.Request) coreworker.PushReply
}

// RegisterWorkerServer attaches srv to server under the hand-built
// workerServiceDesc.
func RegisterWorkerServer(server *grpc.Server, srv *WorkerServer) {
	server.RegisterService(&workerServiceDesc, srv)
}

func (s *WorkerServer) PushNormalTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		log.Debug("rpc: malformed task push:", err)
		return nil, utils.GrpcError(utils.ErrParse)
	}

	log.Debugf("rpc: received task %s with %d return ids", req.TaskId, len(req.ReturnIds))

	var reply coreworker.PushReply
	if s.Executor != nil {
		reply = s.Executor(req)
	} else {
		reply = coreworker.PushReply{Objects: make(map[object.Id]object.RayObject)}
		for _, id := range req.ReturnIds {
			reply.Objects[id] = object.RayObject{}
		}
	}

	return encodeReply(reply)
}

// LeasePoolServer is a reference lease pool: it hands registered worker
// addresses out to lease requests in arrival order and takes them back on
// return. Resource-spec matching is not implemented — every registered
// worker is considered eligible; a production lease service applies its
// own placement policy here.
//
// The registry lock is a utils.RWMutex so a -tags debug_mutex build can
// diagnose a stalled grant path; grant sends themselves always happen
// after the lock is released.
type LeasePoolServer struct {
	mu      utils.RWMutex
	free    []coreworker.WorkerAddress
	byPort  map[int32]coreworker.WorkerAddress
	waiting []grantFunc
}

// grantFunc sends one grant back on the stream that requested it.
type grantFunc func(addr coreworker.WorkerAddress) error

// NewLeasePoolServer builds a pool over the given worker addresses.
func NewLeasePoolServer(workers ...coreworker.WorkerAddress) *LeasePoolServer {
	s := &LeasePoolServer{
		mu:     utils.NewRWMutex(),
		byPort: make(map[int32]coreworker.WorkerAddress),
	}
	for _, addr := range workers {
		s.AddWorker(addr)
	}
	return s
}

// AddWorker registers addr as leasable. If a lease request is already
// waiting, the worker is granted to it immediately.
func (s *LeasePoolServer) AddWorker(addr coreworker.WorkerAddress) {
	s.mu.Lock()
	s.byPort[addr.Port] = addr
	grant := s.popWaiterOrParkNoLock(addr)
	s.mu.Unlock()

	if grant != nil {
		if err := grant(addr); err != nil {
			log.Debug("rpc: lease grant send failed:", err)
		}
	}
}

// popWaiterOrParkNoLock either dequeues the oldest waiting grant for addr
// or parks addr on the free list. Caller must hold s.mu.
func (s *LeasePoolServer) popWaiterOrParkNoLock(addr coreworker.WorkerAddress) grantFunc {
	if len(s.waiting) > 0 {
		grant := s.waiting[0]
		s.waiting = s.waiting[1:]
		return grant
	}
	s.free = append(s.free, addr)
	return nil
}

// Statistics reports the pool's current free/waiting depths.
func (s *LeasePoolServer) Statistics() (freeWorkers, waitingRequests int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.free), len(s.waiting)
}

// RegisterLeasePoolServer attaches srv to server under the hand-built
// leaseServiceDesc.
func RegisterLeasePoolServer(server *grpc.Server, srv *LeasePoolServer) {
	server.RegisterService(&leaseServiceDesc, srv)
}

func (s *LeasePoolServer) RequestWorkerLease(stream grpc.ServerStream) error {
	// Grants triggered by another stream's return land on this stream from
	// that stream's goroutine; sendMu serializes them against our own.
	var sendMu sync.Mutex
	send := func(addr coreworker.WorkerAddress) error {
		grant, err := encodeLeaseGrant(addr)
		if err != nil {
			return err
		}
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.SendMsg(grant)
	}

	for {
		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if in.Fields["return"].GetBoolValue() {
			s.handleReturn(int32(in.Fields["port"].GetNumberValue()))
			continue
		}

		var grantTo coreworker.WorkerAddress
		granted := false

		s.mu.Lock()
		if len(s.free) > 0 {
			grantTo = s.free[0]
			s.free = s.free[1:]
			granted = true
		} else {
			s.waiting = append(s.waiting, send)
		}
		s.mu.Unlock()

		if granted {
			if err := send(grantTo); err != nil {
				return err
			}
		}
	}
}

// handleReturn puts the worker identified by port back into rotation,
// granting it straight to the oldest waiting request if there is one. An
// unknown port is logged and dropped — the lease protocol identifies
// workers by port alone, so a return for a worker this pool never granted
// has nothing to match against.
func (s *LeasePoolServer) handleReturn(port int32) {
	s.mu.Lock()
	addr, known := s.byPort[port]
	var grant grantFunc
	if known {
		grant = s.popWaiterOrParkNoLock(addr)
	}
	s.mu.Unlock()

	if !known {
		log.Debug("rpc: return for unknown worker port", port)
		return
	}
	if grant != nil {
		if err := grant(addr); err != nil {
			log.Debug("rpc: lease grant send failed:", err)
		}
	}
}

// PlasmaServer is a minimal reference plasma store: promoted objects are
// handed to Sink, or just logged when no Sink is set. Enough to exercise
// GetOrPromoteToPlasma's promotion path end to end; real plasma storage is
// an external collaborator.
type PlasmaServer struct {
	Sink func(plasmaId object.Id, obj object.RayObject)
}

// RegisterPlasmaServer attaches srv to server under the hand-built
// plasmaServiceDesc.
func RegisterPlasmaServer(server *grpc.Server, srv *PlasmaServer) {
	server.RegisterService(&plasmaServiceDesc, srv)
}

func (s *PlasmaServer) StorePromotedObject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	plasmaId, obj, err := decodePromotedObject(in)
	if err != nil {
		log.Debug("rpc: malformed promoted object:", err)
		return nil, utils.GrpcError(utils.ErrParse)
	}

	if s.Sink != nil {
		s.Sink(plasmaId, obj)
	} else {
		log.Debugf("rpc: stored promoted object %s (%d bytes)", plasmaId, len(obj.Data))
	}
	return structpb.NewStruct(nil)
}
