// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/headpose-service/internal/inference"
	"github.com/SyedDaiam9101/headpose-service/internal/pipeline"
	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

// grpcError maps known internal errors to appropriate gRPC status errors
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "deadline exceeded: %v", err)

	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "request canceled: %v", err)

	case errors.Is(err, task.ErrInvalidRegion),
		errors.Is(err, task.ErrCapacityExceeded),
		errors.Is(err, task.ErrEmptyBatch),
		errors.Is(err, pipeline.ErrNoRegions),
		errors.Is(err, pipeline.ErrNilFrame),
		errors.Is(err, inference.ErrEmptyBatch),
		errors.Is(err, inference.ErrBatchTooLarge),
		errors.Is(err, inference.ErrInputSize):
		return status.Errorf(codes.InvalidArgument, "%v", err)

	case errors.Is(err, task.ErrNoModel),
		errors.Is(err, task.ErrNoEngine),
		errors.Is(err, inference.ErrModelNotLoaded):
		return status.Errorf(codes.FailedPrecondition, "inference engine not initialized: %v", err)

	case errors.Is(err, task.ErrEngineRejected):
		return status.Errorf(codes.Unavailable, "%v", err)

	case errors.Is(err, task.ErrEngineFailed):
		return status.Errorf(codes.Internal, "inference execution failed: %v", err)

	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}

// internalError creates an Internal gRPC error
func internalError(format string, args ...interface{}) error {
	return status.Errorf(codes.Internal, format, args...)
}

// httpStatus converts an error from the gRPC methods to an HTTP status
func httpStatus(err error) int {
	switch status.Code(grpcError(err)) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
