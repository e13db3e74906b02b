// Package submitter implements the direct task submitter (DTS): resolves
// dependencies via the resolver, leases workers, queues resolved tasks
// FIFO, and dispatches them to idle workers.
//
// The FIFO is built directly on container/list rather than an
// ack/redelivery queue: a dispatched task is never retried or redelivered,
// so no ack/nack protocol is needed here.
package submitter

import (
	"container/list"
	"context"
	"sync"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/task"
)

// DependencyResolver is the subset of *resolver.Resolver the submitter
// depends on.
type DependencyResolver interface {
	Resolve(t *task.Spec, onComplete func())
}

// ObjectWriter is the subset of the in-memory store the submitter depends
// on to propagate task results and failures.
type ObjectWriter interface {
	Put(id object.Id, obj object.RayObject) error
}

// Submitter owns a single mutex guarding its queue, worker-stub cache and
// outstanding-lease flag.
type Submitter struct {
	mu sync.Mutex

	resolver      DependencyResolver
	store         ObjectWriter
	leaseClient   coreworker.LeaseClient
	clientFactory coreworker.ClientFactory

	queuedTasks          *list.List // of *task.Spec
	clientCache          map[coreworker.WorkerAddress]coreworker.WorkerStub
	workerRequestPending bool
}

// New builds a Submitter. resolver drives dependency resolution before a
// task is queued; store receives task results and synthesized failures;
// leaseClient and clientFactory are the injected transport collaborators.
func New(resolver DependencyResolver, store ObjectWriter, leaseClient coreworker.LeaseClient, clientFactory coreworker.ClientFactory) *Submitter {
	return &Submitter{
		resolver:      resolver,
		store:         store,
		leaseClient:   leaseClient,
		clientFactory: clientFactory,
		queuedTasks:   list.New(),
		clientCache:   make(map[coreworker.WorkerAddress]coreworker.WorkerStub),
	}
}

// SubmitTask starts dependency resolution for t and returns immediately;
// actual dispatch happens asynchronously once resolution completes and a
// worker becomes available. The FIFO order of SubmitTask calls is not the
// FIFO order of dispatch, since resolution latencies differ — queue order
// is the order in which resolution completes.
func (s *Submitter) SubmitTask(ctx context.Context, t *task.Spec) error {
	s.resolver.Resolve(t, func() {
		s.mu.Lock()
		ok := s.requestNewWorkerIfNeededNoLock(ctx, t)
		if ok {
			s.queuedTasks.PushBack(t)
		}
		s.mu.Unlock()
		if !ok {
			s.failReturnIds(t.ReturnIds())
		}
	})
	return nil
}

// requestNewWorkerIfNeededNoLock pipelines at most one outstanding lease
// request: more than one in flight provides no throughput benefit and
// complicates matching grants to resource classes. Caller must hold s.mu.
// Returns false if a new request was needed but the lease client rejected
// it synchronously; rather than aborting the process, the caller fails the
// pending task and keeps running.
func (s *Submitter) requestNewWorkerIfNeededNoLock(ctx context.Context, t *task.Spec) bool {
	if s.workerRequestPending {
		return true
	}
	if err := s.leaseClient.RequestWorkerLease(ctx, t.ResourceSpec()); err != nil {
		log.Error("submitter: lease request failed:", err)
		return false
	}
	s.workerRequestPending = true
	return true
}

// HandleWorkerLeaseGranted is the lease client's grant callback. It caches
// a stub for addr if one doesn't already exist, then tries to assign work.
func (s *Submitter) HandleWorkerLeaseGranted(ctx context.Context, addr coreworker.WorkerAddress) {
	s.mu.Lock()
	s.workerRequestPending = false
	if _, ok := s.clientCache[addr]; !ok {
		if stub := s.clientFactory(addr); stub != nil {
			s.clientCache[addr] = stub
			log.Infof("submitter: connected to %s:%d", addr.Host, addr.Port)
		}
	}
	s.mu.Unlock()

	s.OnWorkerIdle(ctx, addr, false)
}

// OnWorkerIdle returns addr to the lease service if the queue is empty or
// wasError is true; otherwise it pops the queue head and dispatches it to
// addr. If the queue is still non-empty afterward, it requests another
// lease for the new head. The mutex is held for the whole body — safe only
// because pushNormalTask's stub call must enqueue the RPC and return
// without blocking on its completion (the completion fires later, from a
// different goroutine, never holding s.mu).
func (s *Submitter) OnWorkerIdle(ctx context.Context, addr coreworker.WorkerAddress, wasError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queuedTasks.Len() == 0 || wasError {
		if err := s.leaseClient.ReturnWorker(ctx, addr.Port); err != nil {
			log.Error("submitter: failed to return worker:", err)
		}
	} else {
		front := s.queuedTasks.Front()
		s.queuedTasks.Remove(front)
		t := front.Value.(*task.Spec)
		stub := s.clientCache[addr]
		if stub == nil {
			// The factory failed to dial this worker when the lease was
			// granted; treat it like a dead worker instead of pushing into
			// the void.
			if err := s.leaseClient.ReturnWorker(ctx, addr.Port); err != nil {
				log.Error("submitter: failed to return worker:", err)
			}
			go s.failReturnIds(t.ReturnIds())
		} else {
			s.pushNormalTask(ctx, addr, stub, t)
		}
	}

	if s.queuedTasks.Len() > 0 {
		nextHead := s.queuedTasks.Front().Value.(*task.Spec)
		if !s.requestNewWorkerIfNeededNoLock(ctx, nextHead) {
			s.queuedTasks.Remove(s.queuedTasks.Front())
			go s.failReturnIds(nextHead.ReturnIds())
		}
	}
}

// pushNormalTask drains t's payload into an RPC request (a destructive
// move: a dispatched task is never retried, so this is sound) and
// dispatches it. Caller must hold s.mu; the completion handler this
// registers runs later without it. The completion handler always calls
// OnWorkerIdle first, regardless of outcome, then propagates the result or
// a WORKER_DIED failure into the store.
func (s *Submitter) pushNormalTask(ctx context.Context, addr coreworker.WorkerAddress, stub coreworker.WorkerStub, t *task.Spec) {
	taskId := t.TaskId()
	returnIds := t.ReturnIds()
	req := t.Drain()

	err := stub.PushNormalTask(ctx, req, func(pushErr error, reply coreworker.PushReply) {
		s.OnWorkerIdle(ctx, addr, pushErr != nil)

		if pushErr != nil {
			log.Errorf("submitter: task %s push failed: %v", taskId, pushErr)
			s.failReturnIds(returnIds)
			return
		}
		s.writeReply(returnIds, reply)
	})

	if err != nil {
		log.Errorf("submitter: task %s push could not be submitted: %v", taskId, err)
		s.failReturnIds(returnIds)
	}
}

func (s *Submitter) failReturnIds(returnIds []object.Id) {
	for _, id := range returnIds {
		if putErr := s.store.Put(id, object.EncodeError(object.WorkerDied)); putErr != nil {
			log.Debug("submitter: failed return id already populated:", id)
		}
	}
}

func (s *Submitter) writeReply(returnIds []object.Id, reply coreworker.PushReply) {
	for _, id := range returnIds {
		obj, ok := reply.Objects[id]
		if !ok {
			continue
		}
		if putErr := s.store.Put(id, obj); putErr != nil {
			log.Debug("submitter: reply object already populated:", id)
		}
	}
}

// Close drains the queue and returns every worker in the client cache to
// the lease service, for graceful shutdown. It does not check whether a
// worker still has a push in flight or was already returned.
func (s *Submitter) Close(ctx context.Context) {
	s.mu.Lock()
	addrs := make([]coreworker.WorkerAddress, 0, len(s.clientCache))
	for addr := range s.clientCache {
		addrs = append(addrs, addr)
	}
	s.queuedTasks.Init()
	s.mu.Unlock()

	for _, addr := range addrs {
		if err := s.leaseClient.ReturnWorker(ctx, addr.Port); err != nil {
			log.Debug("submitter: return on close failed:", err)
		}
	}
}

// Statistics reports queue depth and cache size for the /metrics endpoint.
type Statistics struct {
	QueuedTasks          int
	CachedWorkers        int
	WorkerRequestPending bool
}

func (s *Submitter) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Statistics{
		QueuedTasks:          s.queuedTasks.Len(),
		CachedWorkers:        len(s.clientCache),
		WorkerRequestPending: s.workerRequestPending,
	}
}
