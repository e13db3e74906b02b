package utils

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrBadRequest   = fmt.Errorf("Bad request")
	ErrParse        = fmt.Errorf("Parse error")
	ErrObjectExists = fmt.Errorf("Object already exists")
	ErrTimedOut     = fmt.Errorf("Get timed out")
)

type DetailedError interface {
	error
	Details() string
}

// Convert errors to errors with grpc status codes
func GrpcError(err error) error {
	switch err {
	case ErrObjectExists:
		return status.Error(codes.AlreadyExists, err.Error())
	case ErrTimedOut:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case ErrBadRequest, ErrParse:
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return err
}
