// internal/middleware/request_id.go
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader carries the request ID in gRPC metadata and HTTP headers
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// requestID returns incoming unless it is empty, in which case a new
// UUID is generated
func requestID(incoming string) string {
	if incoming != "" {
		return incoming
	}
	return uuid.New().String()
}

// UnaryRequestIDInterceptor tags each call with the caller's x-request-id
// or a fresh UUID and echoes it in the response headers.
func UnaryRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		var incoming string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 {
				incoming = vals[0]
			}
		}
		id := requestID(incoming)
		ctx = WithRequestID(ctx, id)

		// fails without a transport stream, e.g. when called directly
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		return handler(ctx, req)
	}
}

// HTTPRequestID does the same for HTTP routes
func HTTPRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r.Header.Get(RequestIDHeader))
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the ID stored by either middleware, or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
