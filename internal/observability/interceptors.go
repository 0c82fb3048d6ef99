// Package observability provides the metrics/health HTTP server and gRPC
// interceptors for the auxiliary gRPC listener.
package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"ai-voice-gateway/internal/observability/metrics"
)

// UnaryServerInterceptor records a request metric per unary call.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(m, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor records a request metric per stream once it ends.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(m, info.FullMethod, start, err)
		return err
	}
}

func observe(m *metrics.Metrics, method string, start time.Time, err error) {
	code := status.Code(err).String()
	m.RecordGRPCRequest(method, code)
	log.Debug().
		Str("method", method).
		Str("code", code).
		Dur("duration", time.Since(start)).
		Msg("gRPC call")
}
