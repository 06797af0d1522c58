package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// unaryInterceptor logs health probes at debug level and turns a handler
// panic into codes.Internal.
func unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	start := time.Now()
	defer func() {
		log.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC call")
	}()
	defer recoverRPC(info.FullMethod, &err)
	return handler(ctx, req)
}

// streamInterceptor guards the health Watch stream.
func streamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer recoverRPC(info.FullMethod, &err)
	return handler(srv, ss)
}

// recoverRPC must be deferred directly.
func recoverRPC(method string, err *error) {
	if r := recover(); r != nil {
		log.Error().Str("method", method).Interface("panic", r).Msg("Recovered from panic in gRPC handler")
		*err = status.Errorf(codes.Internal, "internal server error")
	}
}
