package rpc

import (
	"context"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/object"
)

// PlasmaClient writes promoted objects to the external large-object store
// over a plain unary gRPC connection.
type PlasmaClient struct {
	conn *grpc.ClientConn
}

// NewPlasmaClient wraps an established connection. Pass (*PlasmaClient).StoreInPlasma
// to store.New as its StoreInPlasmaFunc.
func NewPlasmaClient(conn *grpc.ClientConn) *PlasmaClient {
	return &PlasmaClient{conn: conn}
}

// StoreInPlasma matches coreworker.StoreInPlasmaFunc / store.StoreInPlasmaFunc:
// a synchronous, best-effort write. The store invokes it from Put with the
// store's lock held, so the lock stays taken for the whole round trip.
func (c *PlasmaClient) StoreInPlasma(obj object.RayObject, plasmaId object.Id) {
	req, err := encodePromotedObject(obj, plasmaId)
	if err != nil {
		log.Error("rpc: failed to encode promoted object:", err)
		return
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(context.Background(), "/"+plasmaServiceName+"/StorePromotedObject", req, out); err != nil {
		log.Error("rpc: failed to store promoted object in plasma:", err)
	}
}

// PromoteAll fans promoted writes for every entry in objects out across a
// bounded errgroup and waits for them all to settle. objects can be a
// store.Snapshot, to flush whatever the in-memory store still holds.
func (c *PlasmaClient) PromoteAll(ctx context.Context, objects map[object.Id]object.RayObject) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for id, obj := range objects {
		id, obj := id, obj
		g.Go(func() error {
			req, err := encodePromotedObject(obj, id.WithTransport(object.Raylet))
			if err != nil {
				return err
			}
			out := new(structpb.Struct)
			return c.conn.Invoke(ctx, "/"+plasmaServiceName+"/StorePromotedObject", req, out)
		})
	}

	return g.Wait()
}
