package main

import (
	"fmt"
	"net"
	"net/url"

	"google.golang.org/grpc"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/rpc"
	"github.com/coreruntime/coreworker/pkg/task"
)

// serveWorker starts the gRPC listener this process advertises to the
// lease service when it is itself leased out as a worker.
func serveWorker(address string) {
	uri, err := url.Parse(address)
	if err != nil {
		log.Fatal(err)
	}

	host := uri.Host
	switch uri.Scheme {
	case "tcp", "tcp4", "tcp6":
		if uri.Port() == "" {
			host = fmt.Sprintf("%s:9092", uri.Host)
		}
	case "unix":
		host = uri.Path
	default:
		log.Fatalf("Unsupported protocol: %s", uri.Scheme)
	}

	socket, err := net.Listen(uri.Scheme, host)
	if err != nil {
		log.Fatal(err)
	}
	log.Info("Listening for worker RPCs on", uri.Scheme, socket.Addr())

	opts := config.GRPCOptions.ToServerOptions()
	server := grpc.NewServer(opts...)

	rpc.RegisterWorkerServer(server, &rpc.WorkerServer{
		Executor: func(req task.Request) coreworker.PushReply {
			// No task-execution engine is wired up here; acknowledge every
			// declared return id with an empty value so downstream waiters
			// at least unblock.
			reply := coreworker.PushReply{Objects: make(map[object.Id]object.RayObject)}
			for _, id := range req.ReturnIds {
				reply.Objects[id] = object.RayObject{}
			}
			return reply
		},
	})

	if err := server.Serve(socket); err != nil {
		log.Fatal(err)
	}
}
