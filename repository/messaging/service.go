package messaging

import (
	"context"

	"github.com/golang/protobuf/ptypes/empty"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "txgroup.message.Notify"
	requestMethod   = "/" + ServiceName + "/Request"
	pingMethod      = "/" + ServiceName + "/Ping"
	serviceMetadata = "txgroup/message/notify.proto"
)

// NotifyServer is implemented by processes hosting transaction units.
type NotifyServer interface {
	Request(ctx context.Context, msg *MessageDto) (*MessageDto, error)
	Ping(ctx context.Context, in *empty.Empty) (*empty.Empty, error)
}

func RegisterNotifyServer(s grpc.ServiceRegistrar, srv NotifyServer) {
	s.RegisterService(&NotifyServiceDesc, srv)
}

func requestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	handle := func(ctx context.Context, req any) (any, error) {
		msg, err := decode(req.(*wrapperspb.BytesValue).GetValue())
		if err != nil {
			return nil, err
		}

		resp, err := srv.(NotifyServer).Request(ctx, msg)
		if err != nil {
			return nil, err
		}

		data, err := encode(resp)
		if err != nil {
			return nil, err
		}

		return wrapperspb.Bytes(data), nil
	}

	if interceptor == nil {
		return handle(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: requestMethod}

	return interceptor(ctx, in, info, handle)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(empty.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(NotifyServer).Ping(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pingMethod}
	handle := func(ctx context.Context, req any) (any, error) {
		return srv.(NotifyServer).Ping(ctx, req.(*empty.Empty))
	}

	return interceptor(ctx, in, info, handle)
}

// NotifyServiceDesc carries MessageDto JSON inside a BytesValue.
var NotifyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotifyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Request", Handler: requestHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: serviceMetadata,
}
