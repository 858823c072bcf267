package sparusrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "luclerpc.Lucle"

	// SparusMethod is the full name of the plugin event stream.
	SparusMethod = "/luclerpc.Lucle/Sparus"
)

// LucleClient is the client API for the Lucle service.
type LucleClient interface {
	Sparus(ctx context.Context, in *Plugins, opts ...grpc.CallOption) (SparusStreamClient, error)
}

// SparusStreamClient receives the plugin event stream.
type SparusStreamClient interface {
	Recv() (*PluginEvent, error)
	grpc.ClientStream
}

type lucleClient struct {
	cc grpc.ClientConnInterface
}

// NewLucleClient creates a client on an existing connection.
func NewLucleClient(cc grpc.ClientConnInterface) LucleClient {
	return &lucleClient{cc}
}

func (c *lucleClient) Sparus(ctx context.Context, in *Plugins, opts ...grpc.CallOption) (SparusStreamClient, error) {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], SparusMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &sparusStreamClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type sparusStreamClient struct {
	grpc.ClientStream
}

func (x *sparusStreamClient) Recv() (*PluginEvent, error) {
	m := new(PluginEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// LucleServer is the server API for the Lucle service.
type LucleServer interface {
	Sparus(*Plugins, SparusStreamServer) error
}

// SparusStreamServer sends the plugin event stream.
type SparusStreamServer interface {
	Send(*PluginEvent) error
	grpc.ServerStream
}

// UnimplementedLucleServer can be embedded to have forward compatible
// implementations.
type UnimplementedLucleServer struct{}

func (UnimplementedLucleServer) Sparus(*Plugins, SparusStreamServer) error {
	return status.Errorf(codes.Unimplemented, "method Sparus not implemented")
}

// RegisterLucleServer registers srv on s. The server must be created with
// grpc.ForceServerCodec(Codec{}).
func RegisterLucleServer(s grpc.ServiceRegistrar, srv LucleServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func sparusHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(Plugins)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(LucleServer).Sparus(m, &sparusStreamServer{stream})
}

type sparusStreamServer struct {
	grpc.ServerStream
}

func (x *sparusStreamServer) Send(m *PluginEvent) error {
	return x.ServerStream.SendMsg(m)
}

// ServiceDesc is the grpc.ServiceDesc for the Lucle service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LucleServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Sparus",
			Handler:       sparusHandler,
			ServerStreams: true,
		},
	},
	Metadata: "luclerpc.proto",
}
