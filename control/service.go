package control

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
	"google.golang.org/grpc"
)

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Reply any](
	method string,
	fn func(*Server, context.Context, *Req) (*Reply, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv any,
			ctx context.Context,
			dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			handler := func(ctx context.Context, req any) (any, error) {
				ctx = s.ctx(ctx)
				logger.Debugf(ctx, "%s(%#+v)", method, req)
				reply, err := fn(s, ctx, req.(*Req))
				logger.Debugf(ctx, "/%s: %v", method, err)
				if err != nil {
					return nil, toStatus(err)
				}
				return reply, nil
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			return interceptor(ctx, req, &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}, handler)
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := &SubscribeRequest{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return toStatus(srv.(*Server).Subscribe(req, stream))
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlService)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartRecording", (*Server).StartRecording),
		unary("StopRecording", (*Server).StopRecording),
		unary("CurrentRecording", (*Server).CurrentRecording),
		unary("GetRecordingOptions", (*Server).GetRecordingOptions),
		unary("SetRecordingOptions", (*Server).SetRecordingOptions),
		unary("ListArchive", (*Server).ListArchive),
		unary("Render", (*Server).Render),
		unary("GetSessionMetadata", (*Server).GetSessionMetadata),
		unary("GetScreenVideoMetadata", (*Server).GetScreenVideoMetadata),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "screencap/control",
}

var subscribeStreamDesc = &serviceDesc.Streams[0]
