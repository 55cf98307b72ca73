package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tplus.v1.Backtest"

// Full method names, usable with grpc.ClientConn.Invoke.
const (
	MethodRun        = "/" + ServiceName + "/Run"
	MethodQuote      = "/" + ServiceName + "/Quote"
	MethodStrategies = "/" + ServiceName + "/Strategies"
	MethodRuns       = "/" + ServiceName + "/Runs"
	MethodSnapshots  = "/" + ServiceName + "/Snapshots"
)

// BacktestServer is the server API of the Backtest service.
type BacktestServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Quote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Strategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Runs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshots(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Compile-time interface check.
var _ BacktestServer = (*BacktestService)(nil)

// RegisterBacktestServer registers srv on gs.
func RegisterBacktestServer(gs grpc.ServiceRegistrar, srv BacktestServer) {
	gs.RegisterService(&backtestServiceDesc, srv)
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: unary(MethodRun, BacktestServer.Run)},
		{MethodName: "Quote", Handler: unary(MethodQuote, BacktestServer.Quote)},
		{MethodName: "Strategies", Handler: unary(MethodStrategies, BacktestServer.Strategies)},
		{MethodName: "Runs", Handler: unary(MethodRuns, BacktestServer.Runs)},
		{MethodName: "Snapshots", Handler: unary(MethodSnapshots, BacktestServer.Snapshots)},
	},
	Metadata: "tplus/v1/backtest.proto",
}

type structMethod func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary adapts a Struct-in Struct-out method to a grpc.MethodDesc handler.
func unary(fullMethod string, m structMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(BacktestServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(BacktestServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
