package api

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/shardctl/shardctl/pkg/log"
)

// loggingInterceptor logs every unary RPC's method, duration and outcome at
// debug level, and at warn level on error.
func loggingInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	duration := time.Since(start)

	logger := log.WithComponent("api")
	if err != nil {
		logger.Warn().Str("method", info.FullMethod).Dur("duration", duration).Err(err).Msg("rpc failed")
	} else {
		logger.Debug().Str("method", info.FullMethod).Dur("duration", duration).Msg("rpc completed")
	}

	return resp, err
}
