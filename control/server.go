// Package control is the command and event transport between the core
// and its front-ends: a gRPC service with JSON-encoded messages.
package control

import (
	"context"
	"fmt"
	"net"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/eventbus"
	"github.com/xaionaro-go/screencap/render"
	"github.com/xaionaro-go/screencap/session"
	"github.com/xaionaro-go/xsync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const ServiceName = "screencap.Control"

type controlService interface {
	isControlService()
}

type Server struct {
	GRPCServer *grpc.Server
	IsStarted  bool

	Manager  *session.Manager
	Renderer *render.Renderer
	Bus      *eventbus.Bus

	BeltLocker xsync.Mutex
	Belt       *belt.Belt
}

var _ controlService = (*Server)(nil)

func (*Server) isControlService() {}

func NewServer(
	manager *session.Manager,
	renderer *render.Renderer,
	bus *eventbus.Bus,
) *Server {
	srv := &Server{
		GRPCServer: grpc.NewServer(),
		Manager:    manager,
		Renderer:   renderer,
		Bus:        bus,
	}
	srv.GRPCServer.RegisterService(&serviceDesc, srv)
	return srv
}

func (srv *Server) Serve(
	ctx context.Context,
	listener net.Listener,
) error {
	if srv.IsStarted {
		panic("this control server was already started at least once")
	}
	srv.IsStarted = true
	srv.BeltLocker.Do(xsync.WithNoLogging(ctx, true), func() {
		srv.Belt = belt.CtxBelt(ctx)
	})
	logger.Debugf(ctx, "serving the control service at %s", listener.Addr())
	return srv.GRPCServer.Serve(listener)
}

func (srv *Server) Stop() {
	srv.GRPCServer.Stop()
}

func (srv *Server) belt() *belt.Belt {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &srv.BeltLocker, func() *belt.Belt {
		return srv.Belt
	})
}

func (srv *Server) ctx(ctx context.Context) context.Context {
	if b := srv.belt(); b != nil {
		ctx = belt.CtxWithBelt(ctx, b)
	}
	return ctx
}

func (srv *Server) StartRecording(
	ctx context.Context,
	req *StartRecordingRequest,
) (*StartRecordingReply, error) {
	info, err := srv.Manager.StartRecording(ctx, req.Options)
	if err != nil {
		return nil, err
	}
	return &StartRecordingReply{Session: info}, nil
}

func (srv *Server) StopRecording(
	ctx context.Context,
	_ *StopRecordingRequest,
) (*StopRecordingReply, error) {
	result, err := srv.Manager.StopRecording(ctx)
	if err != nil {
		return nil, err
	}
	return NewStopRecordingReply(result), nil
}

func (srv *Server) CurrentRecording(
	context.Context,
	*CurrentRecordingRequest,
) (*CurrentRecordingReply, error) {
	info, _ := srv.Manager.CurrentRecording()
	return &CurrentRecordingReply{Session: info}, nil
}

func (srv *Server) GetRecordingOptions(
	context.Context,
	*GetRecordingOptionsRequest,
) (*GetRecordingOptionsReply, error) {
	return &GetRecordingOptionsReply{Options: srv.Manager.RecordingOptions()}, nil
}

func (srv *Server) SetRecordingOptions(
	ctx context.Context,
	req *SetRecordingOptionsRequest,
) (*SetRecordingOptionsReply, error) {
	if err := srv.Manager.SetRecordingOptions(ctx, req.Options); err != nil {
		return nil, err
	}
	return &SetRecordingOptionsReply{}, nil
}

func (srv *Server) ListArchive(
	_ context.Context,
	req *ListArchiveRequest,
) (*ListArchiveReply, error) {
	if req.Order == nil {
		return &ListArchiveReply{Entries: srv.Manager.ListArchive()}, nil
	}
	return &ListArchiveReply{Entries: srv.Manager.ListArchive(*req.Order)}, nil
}

func (srv *Server) Render(
	ctx context.Context,
	req *RenderRequest,
) (*RenderReply, error) {
	if srv.Renderer == nil {
		return nil, fmt.Errorf("%w: rendering is not configured", screencap.ErrConfiguration)
	}
	dir, err := srv.Manager.SessionDir(req.VideoID)
	if err != nil {
		return nil, screencap.RenderError(err)
	}
	project := screencap.DefaultProjectConfiguration()
	if req.Project != nil {
		project = *req.Project
	}
	path, err := srv.Renderer.Render(ctx, dir, project, render.OptionForce(req.Force))
	if err != nil {
		return nil, err
	}
	return &RenderReply{Path: path}, nil
}

func (srv *Server) GetSessionMetadata(
	ctx context.Context,
	req *GetSessionMetadataRequest,
) (*GetSessionMetadataReply, error) {
	m, err := srv.Manager.SessionMetadata(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	return &GetSessionMetadataReply{Meta: m}, nil
}

func (srv *Server) GetScreenVideoMetadata(
	ctx context.Context,
	req *GetScreenVideoMetadataRequest,
) (*GetScreenVideoMetadataReply, error) {
	md, err := srv.Manager.ScreenVideoMetadata(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	return &GetScreenVideoMetadataReply{Metadata: md}, nil
}

// Subscribe streams the core events until the client goes away.
func (srv *Server) Subscribe(
	_ *SubscribeRequest,
	stream grpc.ServerStream,
) error {
	ctx := srv.ctx(stream.Context())
	sub := srv.Bus.Subscribe(ctx)
	defer sub.Close()
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return fmt.Errorf("unable to send the header: %w", err)
	}
	logger.Debugf(ctx, "a control client subscribed to the events")
	for ev := range sub.C() {
		if err := stream.SendMsg(&ev); err != nil {
			return fmt.Errorf("unable to send event %s: %w", ev, err)
		}
	}
	return nil
}
