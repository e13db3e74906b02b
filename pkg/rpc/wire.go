// Package rpc wires the submitter's collaborator interfaces
// (coreworker.LeaseClient, coreworker.WorkerStub, coreworker.ClientFactory,
// coreworker.StoreInPlasmaFunc) to real gRPC transports.
//
// No .proto/protoc toolchain is invoked anywhere in this module. Wire
// messages are carried as google.golang.org/protobuf/types/known/structpb.Struct
// envelopes — a genuine proto.Message — over hand-registered
// grpc.ServiceDesc values, the same shape protoc-gen-go-grpc itself
// expands to.
package rpc

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/object"
	"github.com/coreruntime/coreworker/pkg/task"
)

func idToString(id object.Id) string {
	return hex.EncodeToString(id[:])
}

func idFromString(s string) (object.Id, error) {
	var id object.Id
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

func bytesToString(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func stringToBytes(s string) []byte {
	if s == "" {
		return nil
	}
	b, _ := base64.StdEncoding.DecodeString(s)
	return b
}

// encodeRequest serializes a task.Request into a structpb envelope.
func encodeRequest(req task.Request) (*structpb.Struct, error) {
	args := make([]interface{}, len(req.Args))
	for i, a := range req.Args {
		ids := make([]interface{}, len(a.Ids))
		for j, id := range a.Ids {
			ids[j] = idToString(id)
		}
		args[i] = map[string]interface{}{
			"data":     bytesToString(a.Data),
			"metadata": bytesToString(a.Metadata),
			"ids":      ids,
		}
	}

	returnIds := make([]interface{}, len(req.ReturnIds))
	for i, id := range req.ReturnIds {
		returnIds[i] = idToString(id)
	}

	return structpb.NewStruct(map[string]interface{}{
		"task_id":      req.TaskId.String(),
		"resource_tag": req.ResourceTag,
		"args":         args,
		"return_ids":   returnIds,
	})
}

// decodeRequest parses a structpb envelope produced by encodeRequest.
func decodeRequest(s *structpb.Struct) (task.Request, error) {
	var req task.Request

	if v, ok := s.Fields["task_id"]; ok {
		if id, err := uuid.Parse(v.GetStringValue()); err == nil {
			req.TaskId = id
		}
	}

	if v, ok := s.Fields["resource_tag"]; ok {
		req.ResourceTag = v.GetStringValue()
	}

	for _, v := range s.Fields["return_ids"].GetListValue().GetValues() {
		id, err := idFromString(v.GetStringValue())
		if err != nil {
			return req, err
		}
		req.ReturnIds = append(req.ReturnIds, id)
	}

	for _, v := range s.Fields["args"].GetListValue().GetValues() {
		fields := v.GetStructValue().Fields
		arg := task.Argument{
			Data:     stringToBytes(fields["data"].GetStringValue()),
			Metadata: stringToBytes(fields["metadata"].GetStringValue()),
		}
		for _, idv := range fields["ids"].GetListValue().GetValues() {
			id, err := idFromString(idv.GetStringValue())
			if err != nil {
				return req, err
			}
			arg.Ids = append(arg.Ids, id)
		}
		req.Args = append(req.Args, arg)
	}

	return req, nil
}

// encodeReply serializes a coreworker.PushReply into a structpb envelope.
func encodeReply(reply coreworker.PushReply) (*structpb.Struct, error) {
	objects := make(map[string]interface{}, len(reply.Objects))
	for id, obj := range reply.Objects {
		objects[idToString(id)] = map[string]interface{}{
			"data":            bytesToString(obj.Data),
			"metadata":        bytesToString(obj.Metadata),
			"in_plasma_error": obj.InPlasmaError,
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"objects": objects,
	})
}

// decodeReply parses a structpb envelope produced by encodeReply.
func decodeReply(s *structpb.Struct) (coreworker.PushReply, error) {
	reply := coreworker.PushReply{Objects: make(map[object.Id]object.RayObject)}
	objects, ok := s.Fields["objects"]
	if !ok {
		return reply, nil
	}
	for idStr, v := range objects.GetStructValue().Fields {
		id, err := idFromString(idStr)
		if err != nil {
			return reply, err
		}
		fields := v.GetStructValue().Fields
		reply.Objects[id] = object.RayObject{
			Data:          stringToBytes(fields["data"].GetStringValue()),
			Metadata:      stringToBytes(fields["metadata"].GetStringValue()),
			InPlasmaError: fields["in_plasma_error"].GetBoolValue(),
		}
	}
	return reply, nil
}

// encodeLeaseRequest serializes a worker-lease request.
func encodeLeaseRequest(resourceSpec string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"resource_spec": resourceSpec,
	})
}

// encodeLeaseGrant serializes a granted worker address.
func encodeLeaseGrant(addr coreworker.WorkerAddress) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"host": addr.Host,
		"port": float64(addr.Port),
	})
}

func decodeLeaseGrant(s *structpb.Struct) coreworker.WorkerAddress {
	return coreworker.WorkerAddress{
		Host: s.Fields["host"].GetStringValue(),
		Port: int32(s.Fields["port"].GetNumberValue()),
	}
}

// encodeReturnWorker serializes a ReturnWorker request.
func encodeReturnWorker(port int32) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"port": float64(port),
	})
}

func structpbBool(b bool) *structpb.Value {
	return structpb.NewBoolValue(b)
}

// encodePromotedObject serializes a plasma-promotion write.
func encodePromotedObject(obj object.RayObject, plasmaId object.Id) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"plasma_id":       idToString(plasmaId),
		"data":            bytesToString(obj.Data),
		"metadata":        bytesToString(obj.Metadata),
		"in_plasma_error": obj.InPlasmaError,
	})
}

// decodePromotedObject parses a structpb envelope produced by
// encodePromotedObject.
func decodePromotedObject(s *structpb.Struct) (object.Id, object.RayObject, error) {
	plasmaId, err := idFromString(s.Fields["plasma_id"].GetStringValue())
	if err != nil {
		return plasmaId, object.RayObject{}, err
	}
	obj := object.RayObject{
		Data:          stringToBytes(s.Fields["data"].GetStringValue()),
		Metadata:      stringToBytes(s.Fields["metadata"].GetStringValue()),
		InPlasmaError: s.Fields["in_plasma_error"].GetBoolValue(),
	}
	return plasmaId, obj, nil
}
