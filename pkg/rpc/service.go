package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	workerServiceName = "coreworker.Worker"
	leaseServiceName  = "coreworker.LeasePool"
	plasmaServiceName = "coreworker.Plasma"
)

// workerPushHandler is implemented by the worker-side server that executes
// tasks pushed to it.
type workerPushHandler interface {
	PushNormalTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func pushNormalTaskHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(workerPushHandler).PushNormalTask(ctx, in)
}

// workerServiceDesc is the hand-registered equivalent of what
// protoc-gen-go-grpc would generate for a service exposing one unary RPC,
// PushNormalTask(Struct) returns (Struct).
var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: workerServiceName,
	HandlerType: (*workerPushHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PushNormalTask", Handler: pushNormalTaskHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coreworker/worker.proto",
}

// leaseStreamHandler is implemented by the lease-pool server: a single
// bidi stream through which the client pushes lease requests and the
// server asynchronously pushes grants.
type leaseStreamHandler interface {
	RequestWorkerLease(stream grpc.ServerStream) error
}

func leaseStreamHandlerFunc(srv interface{}, stream grpc.ServerStream) error {
	return srv.(leaseStreamHandler).RequestWorkerLease(stream)
}

var leaseServiceDesc = grpc.ServiceDesc{
	ServiceName: leaseServiceName,
	HandlerType: (*leaseStreamHandler)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "RequestWorkerLease",
			Handler:       leaseStreamHandlerFunc,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "coreworker/lease.proto",
}

// plasmaWriteHandler is implemented by the plasma-store server.
type plasmaWriteHandler interface {
	StorePromotedObject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func storePromotedObjectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(plasmaWriteHandler).StorePromotedObject(ctx, in)
}

var plasmaServiceDesc = grpc.ServiceDesc{
	ServiceName: plasmaServiceName,
	HandlerType: (*plasmaWriteHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StorePromotedObject", Handler: storePromotedObjectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coreworker/plasma.proto",
}
