package shardctlpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ControlPlane_SubmitAllocationCommand_FullMethodName  = "/shardctlpb.ControlPlane/SubmitAllocationCommand"
	ControlPlane_GetDesiredBalance_FullMethodName        = "/shardctlpb.ControlPlane/GetDesiredBalance"
	ControlPlane_GetIndexingPressureStats_FullMethodName = "/shardctlpb.ControlPlane/GetIndexingPressureStats"
	ControlPlane_AddVoter_FullMethodName                 = "/shardctlpb.ControlPlane/AddVoter"
	ControlPlane_GenerateJoinToken_FullMethodName        = "/shardctlpb.ControlPlane/GenerateJoinToken"
	ControlPlane_StreamClusterEvents_FullMethodName      = "/shardctlpb.ControlPlane/StreamClusterEvents"
)

// ControlPlaneClient is the client API for the ControlPlane service.
type ControlPlaneClient interface {
	SubmitAllocationCommand(ctx context.Context, in *SubmitAllocationCommandRequest, opts ...grpc.CallOption) (*SubmitAllocationCommandResponse, error)
	GetDesiredBalance(ctx context.Context, in *GetDesiredBalanceRequest, opts ...grpc.CallOption) (*GetDesiredBalanceResponse, error)
	GetIndexingPressureStats(ctx context.Context, in *GetIndexingPressureStatsRequest, opts ...grpc.CallOption) (*GetIndexingPressureStatsResponse, error)
	AddVoter(ctx context.Context, in *AddVoterRequest, opts ...grpc.CallOption) (*AddVoterResponse, error)
	GenerateJoinToken(ctx context.Context, in *GenerateJoinTokenRequest, opts ...grpc.CallOption) (*GenerateJoinTokenResponse, error)
	StreamClusterEvents(ctx context.Context, in *StreamClusterEventsRequest, opts ...grpc.CallOption) (ControlPlane_StreamClusterEventsClient, error)
}

type controlPlaneClient struct {
	cc grpc.ClientConnInterface
}

func NewControlPlaneClient(cc grpc.ClientConnInterface) ControlPlaneClient {
	return &controlPlaneClient{cc}
}

func (c *controlPlaneClient) SubmitAllocationCommand(ctx context.Context, in *SubmitAllocationCommandRequest, opts ...grpc.CallOption) (*SubmitAllocationCommandResponse, error) {
	out := new(SubmitAllocationCommandResponse)
	if err := c.cc.Invoke(ctx, ControlPlane_SubmitAllocationCommand_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlPlaneClient) GetDesiredBalance(ctx context.Context, in *GetDesiredBalanceRequest, opts ...grpc.CallOption) (*GetDesiredBalanceResponse, error) {
	out := new(GetDesiredBalanceResponse)
	if err := c.cc.Invoke(ctx, ControlPlane_GetDesiredBalance_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlPlaneClient) GetIndexingPressureStats(ctx context.Context, in *GetIndexingPressureStatsRequest, opts ...grpc.CallOption) (*GetIndexingPressureStatsResponse, error) {
	out := new(GetIndexingPressureStatsResponse)
	if err := c.cc.Invoke(ctx, ControlPlane_GetIndexingPressureStats_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlPlaneClient) AddVoter(ctx context.Context, in *AddVoterRequest, opts ...grpc.CallOption) (*AddVoterResponse, error) {
	out := new(AddVoterResponse)
	if err := c.cc.Invoke(ctx, ControlPlane_AddVoter_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlPlaneClient) GenerateJoinToken(ctx context.Context, in *GenerateJoinTokenRequest, opts ...grpc.CallOption) (*GenerateJoinTokenResponse, error) {
	out := new(GenerateJoinTokenResponse)
	if err := c.cc.Invoke(ctx, ControlPlane_GenerateJoinToken_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlPlaneClient) StreamClusterEvents(ctx context.Context, in *StreamClusterEventsRequest, opts ...grpc.CallOption) (ControlPlane_StreamClusterEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &_ControlPlane_serviceDesc.Streams[0], ControlPlane_StreamClusterEvents_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &controlPlaneStreamClusterEventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type ControlPlane_StreamClusterEventsClient interface {
	Recv() (*ClusterEvent, error)
	grpc.ClientStream
}

type controlPlaneStreamClusterEventsClient struct {
	grpc.ClientStream
}

func (x *controlPlaneStreamClusterEventsClient) Recv() (*ClusterEvent, error) {
	m := new(ClusterEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ControlPlaneServer is the server API for the ControlPlane service.
type ControlPlaneServer interface {
	SubmitAllocationCommand(context.Context, *SubmitAllocationCommandRequest) (*SubmitAllocationCommandResponse, error)
	GetDesiredBalance(context.Context, *GetDesiredBalanceRequest) (*GetDesiredBalanceResponse, error)
	GetIndexingPressureStats(context.Context, *GetIndexingPressureStatsRequest) (*GetIndexingPressureStatsResponse, error)
	AddVoter(context.Context, *AddVoterRequest) (*AddVoterResponse, error)
	GenerateJoinToken(context.Context, *GenerateJoinTokenRequest) (*GenerateJoinTokenResponse, error)
	StreamClusterEvents(*StreamClusterEventsRequest, ControlPlane_StreamClusterEventsServer) error
}

// UnimplementedControlPlaneServer can be embedded to satisfy ControlPlaneServer
// without implementing every method.
type UnimplementedControlPlaneServer struct{}

func (UnimplementedControlPlaneServer) SubmitAllocationCommand(context.Context, *SubmitAllocationCommandRequest) (*SubmitAllocationCommandResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SubmitAllocationCommand not implemented")
}

func (UnimplementedControlPlaneServer) GetDesiredBalance(context.Context, *GetDesiredBalanceRequest) (*GetDesiredBalanceResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetDesiredBalance not implemented")
}

func (UnimplementedControlPlaneServer) GetIndexingPressureStats(context.Context, *GetIndexingPressureStatsRequest) (*GetIndexingPressureStatsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetIndexingPressureStats not implemented")
}

func (UnimplementedControlPlaneServer) AddVoter(context.Context, *AddVoterRequest) (*AddVoterResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AddVoter not implemented")
}

func (UnimplementedControlPlaneServer) GenerateJoinToken(context.Context, *GenerateJoinTokenRequest) (*GenerateJoinTokenResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GenerateJoinToken not implemented")
}

func (UnimplementedControlPlaneServer) StreamClusterEvents(*StreamClusterEventsRequest, ControlPlane_StreamClusterEventsServer) error {
	return status.Errorf(codes.Unimplemented, "method StreamClusterEvents not implemented")
}

func RegisterControlPlaneServer(s grpc.ServiceRegistrar, srv ControlPlaneServer) {
	s.RegisterService(&_ControlPlane_serviceDesc, srv)
}

func _ControlPlane_SubmitAllocationCommand_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitAllocationCommandRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlPlaneServer).SubmitAllocationCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlPlane_SubmitAllocationCommand_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlPlaneServer).SubmitAllocationCommand(ctx, req.(*SubmitAllocationCommandRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ControlPlane_GetDesiredBalance_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetDesiredBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlPlaneServer).GetDesiredBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlPlane_GetDesiredBalance_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlPlaneServer).GetDesiredBalance(ctx, req.(*GetDesiredBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ControlPlane_GetIndexingPressureStats_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetIndexingPressureStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlPlaneServer).GetIndexingPressureStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlPlane_GetIndexingPressureStats_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlPlaneServer).GetIndexingPressureStats(ctx, req.(*GetIndexingPressureStatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ControlPlane_AddVoter_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AddVoterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlPlaneServer).AddVoter(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlPlane_AddVoter_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlPlaneServer).AddVoter(ctx, req.(*AddVoterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ControlPlane_GenerateJoinToken_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GenerateJoinTokenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlPlaneServer).GenerateJoinToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlPlane_GenerateJoinToken_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlPlaneServer).GenerateJoinToken(ctx, req.(*GenerateJoinTokenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ControlPlane_StreamClusterEvents_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(StreamClusterEventsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ControlPlaneServer).StreamClusterEvents(m, &controlPlaneStreamClusterEventsServer{stream})
}

type ControlPlane_StreamClusterEventsServer interface {
	Send(*ClusterEvent) error
	grpc.ServerStream
}

type controlPlaneStreamClusterEventsServer struct {
	grpc.ServerStream
}

func (x *controlPlaneStreamClusterEventsServer) Send(m *ClusterEvent) error {
	return x.ServerStream.SendMsg(m)
}

var _ControlPlane_serviceDesc = grpc.ServiceDesc{
	ServiceName: "shardctlpb.ControlPlane",
	HandlerType: (*ControlPlaneServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitAllocationCommand", Handler: _ControlPlane_SubmitAllocationCommand_Handler},
		{MethodName: "GetDesiredBalance", Handler: _ControlPlane_GetDesiredBalance_Handler},
		{MethodName: "GetIndexingPressureStats", Handler: _ControlPlane_GetIndexingPressureStats_Handler},
		{MethodName: "AddVoter", Handler: _ControlPlane_AddVoter_Handler},
		{MethodName: "GenerateJoinToken", Handler: _ControlPlane_GenerateJoinToken_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamClusterEvents",
			Handler:       _ControlPlane_StreamClusterEvents_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "shardctlpb/control_plane.proto",
}
