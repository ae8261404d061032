// internal/middleware/metrics.go
package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/metrics"
)

// UnaryMetricsInterceptor records call latency by method and status code.
func UnaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordGRPCLatency(info.FullMethod, statusCode(err), time.Since(start).Seconds())
		return resp, err
	}
}

// UnaryLoggingInterceptor logs every call with its request ID. Run it
// after UnaryRequestIDInterceptor.
func UnaryLoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		kv := []interface{}{
			"method", info.FullMethod,
			"code", statusCode(err),
			"request_id", GetRequestID(ctx),
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
		}
		if err != nil {
			log.Warn("grpc call failed", append(kv, "error", err)...)
		} else {
			log.Debug("grpc call", kv...)
		}
		return resp, err
	}
}

func statusCode(err error) string {
	if err == nil {
		return "OK"
	}
	if st, ok := status.FromError(err); ok {
		return st.Code().String()
	}
	return "Unknown"
}
