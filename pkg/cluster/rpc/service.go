package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name peers dial against.
const ServiceName = "datapunk.lake.cluster.v1.ClusterControl"

// Handler is implemented by pkg/cluster.Cluster and is the only coupling
// point between this transport package and the cluster package itself,
// keeping the hand-written ServiceDesc free of an import cycle.
type Handler interface {
	HandleJoin(ctx context.Context, req *JoinRequest) (*JoinResponse, error)
	HandleHeartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error)
	HandleReplicate(ctx context.Context, req *ReplicateRequest) (*ReplicateResponse, error)
}

func joinHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(JoinRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).HandleJoin(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Join"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Handler).HandleJoin(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func heartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(HeartbeatRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).HandleHeartbeat(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Heartbeat"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Handler).HandleHeartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func replicateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ReplicateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).HandleReplicate(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Replicate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Handler).HandleReplicate(ctx, req.(*ReplicateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceDesc is the hand-authored equivalent of a protoc-generated
// _grpc.pb.go ServiceDesc: it wires method names to the handlers above so
// grpc.Server can dispatch incoming unary calls without any generated code.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: joinHandler},
		{MethodName: "Heartbeat", Handler: heartbeatHandler},
		{MethodName: "Replicate", Handler: replicateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cluster/rpc/service.go",
}

// RegisterClusterControlServer registers h to serve ClusterControl RPCs on s.
func RegisterClusterControlServer(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
