package proto

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name, matching the
// package.Service convention a .proto file would declare.
const ServiceName = "openrdm.remoteport.v1.RemotePort"

// RemotePortServer is the interface a Port-backed gRPC server implements.
// It mirrors internal/port.Port's four queueing operations plus the
// port-selection every RPC needs, since one server instance can front more
// than one locally-configured port.
type RemotePortServer interface {
	WriteDMX(RemotePort_WriteDMXServer) error
	SendRDMRequest(*RDMRequest, RemotePort_SendRDMRequestServer) error
	RunFullDiscovery(*PortSelector, RemotePort_RunFullDiscoveryServer) error
	RunIncrementalDiscovery(*PortSelector, RemotePort_RunIncrementalDiscoveryServer) error
}

// RemotePortClient is the interface a dialed connection to a RemotePortServer
// satisfies.
type RemotePortClient interface {
	WriteDMX(ctx context.Context, opts ...grpc.CallOption) (RemotePort_WriteDMXClient, error)
	SendRDMRequest(ctx context.Context, in *RDMRequest, opts ...grpc.CallOption) (RemotePort_SendRDMRequestClient, error)
	RunFullDiscovery(ctx context.Context, in *PortSelector, opts ...grpc.CallOption) (RemotePort_RunFullDiscoveryClient, error)
	RunIncrementalDiscovery(ctx context.Context, in *PortSelector, opts ...grpc.CallOption) (RemotePort_RunIncrementalDiscoveryClient, error)
}

type remotePortClient struct {
	cc grpc.ClientConnInterface
}

// NewRemotePortClient wraps an established connection as a RemotePortClient.
func NewRemotePortClient(cc grpc.ClientConnInterface) RemotePortClient {
	return &remotePortClient{cc: cc}
}

// --- WriteDMX: client-streaming, one Empty ack on close ---

type RemotePort_WriteDMXClient interface {
	Send(*DMXFrame) error
	CloseAndRecv() (*Empty, error)
	grpc.ClientStream
}

type RemotePort_WriteDMXServer interface {
	SendAndClose(*Empty) error
	Recv() (*DMXFrame, error)
	grpc.ServerStream
}

func (c *remotePortClient) WriteDMX(ctx context.Context, opts ...grpc.CallOption) (RemotePort_WriteDMXClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], ServiceName+"/WriteDMX", opts...)
	if err != nil {
		return nil, err
	}
	return &writeDMXClientStream{stream}, nil
}

type writeDMXClientStream struct{ grpc.ClientStream }

func (s *writeDMXClientStream) Send(f *DMXFrame) error { return s.ClientStream.SendMsg(f) }
func (s *writeDMXClientStream) CloseAndRecv() (*Empty, error) {
	if err := s.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(Empty)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type writeDMXServerStream struct{ grpc.ServerStream }

func (s *writeDMXServerStream) SendAndClose(m *Empty) error { return s.ServerStream.SendMsg(m) }
func (s *writeDMXServerStream) Recv() (*DMXFrame, error) {
	m := new(DMXFrame)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeDMXHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(RemotePortServer).WriteDMX(&writeDMXServerStream{stream})
}

// --- SendRDMRequest: one request in, a stream of responses out ---

type RemotePort_SendRDMRequestClient interface {
	Recv() (*RDMResponse, error)
	grpc.ClientStream
}

type RemotePort_SendRDMRequestServer interface {
	Send(*RDMResponse) error
	grpc.ServerStream
}

func (c *remotePortClient) SendRDMRequest(ctx context.Context, in *RDMRequest, opts ...grpc.CallOption) (RemotePort_SendRDMRequestClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[1], ServiceName+"/SendRDMRequest", opts...)
	if err != nil {
		return nil, err
	}
	s := &sendRDMRequestClientStream{stream}
	if err := s.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := s.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return s, nil
}

type sendRDMRequestClientStream struct{ grpc.ClientStream }

func (s *sendRDMRequestClientStream) Recv() (*RDMResponse, error) {
	m := new(RDMResponse)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type sendRDMRequestServerStream struct{ grpc.ServerStream }

func (s *sendRDMRequestServerStream) Send(m *RDMResponse) error { return s.ServerStream.SendMsg(m) }

func sendRDMRequestHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(RDMRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RemotePortServer).SendRDMRequest(m, &sendRDMRequestServerStream{stream})
}

// --- RunFullDiscovery / RunIncrementalDiscovery: one selector in, a stream out ---

type RemotePort_RunFullDiscoveryClient interface {
	Recv() (*TODSnapshot, error)
	grpc.ClientStream
}

type RemotePort_RunFullDiscoveryServer interface {
	Send(*TODSnapshot) error
	grpc.ServerStream
}

func (c *remotePortClient) RunFullDiscovery(ctx context.Context, in *PortSelector, opts ...grpc.CallOption) (RemotePort_RunFullDiscoveryClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[2], ServiceName+"/RunFullDiscovery", opts...)
	if err != nil {
		return nil, err
	}
	s := &runFullDiscoveryClientStream{stream}
	if err := s.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := s.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return s, nil
}

type runFullDiscoveryClientStream struct{ grpc.ClientStream }

func (s *runFullDiscoveryClientStream) Recv() (*TODSnapshot, error) {
	m := new(TODSnapshot)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type runFullDiscoveryServerStream struct{ grpc.ServerStream }

func (s *runFullDiscoveryServerStream) Send(m *TODSnapshot) error { return s.ServerStream.SendMsg(m) }

func runFullDiscoveryHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(PortSelector)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RemotePortServer).RunFullDiscovery(m, &runFullDiscoveryServerStream{stream})
}

type RemotePort_RunIncrementalDiscoveryClient interface {
	Recv() (*TODDelta, error)
	grpc.ClientStream
}

type RemotePort_RunIncrementalDiscoveryServer interface {
	Send(*TODDelta) error
	grpc.ServerStream
}

func (c *remotePortClient) RunIncrementalDiscovery(ctx context.Context, in *PortSelector, opts ...grpc.CallOption) (RemotePort_RunIncrementalDiscoveryClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[3], ServiceName+"/RunIncrementalDiscovery", opts...)
	if err != nil {
		return nil, err
	}
	s := &runIncrementalDiscoveryClientStream{stream}
	if err := s.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := s.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return s, nil
}

type runIncrementalDiscoveryClientStream struct{ grpc.ClientStream }

func (s *runIncrementalDiscoveryClientStream) Recv() (*TODDelta, error) {
	m := new(TODDelta)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type runIncrementalDiscoveryServerStream struct{ grpc.ServerStream }

func (s *runIncrementalDiscoveryServerStream) Send(m *TODDelta) error {
	return s.ServerStream.SendMsg(m)
}

func runIncrementalDiscoveryHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(PortSelector)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RemotePortServer).RunIncrementalDiscovery(m, &runIncrementalDiscoveryServerStream{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RemotePortServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WriteDMX",
			Handler:       writeDMXHandler,
			ClientStreams: true,
		},
		{
			StreamName:    "SendRDMRequest",
			Handler:       sendRDMRequestHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "RunFullDiscovery",
			Handler:       runFullDiscoveryHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "RunIncrementalDiscovery",
			Handler:       runIncrementalDiscoveryHandler,
			ServerStreams: true,
		},
	},
}

// RegisterRemotePortServer registers impl as the handler for the RemotePort
// service on s, the same way protoc-gen-go-grpc's Register*Server functions
// do.
func RegisterRemotePortServer(s grpc.ServiceRegistrar, impl RemotePortServer) {
	s.RegisterService(&serviceDesc, impl)
}
