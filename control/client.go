package control

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/meta"
	"github.com/xaionaro-go/screencap/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Client struct {
	Target string
}

func NewClient(target string) *Client {
	return &Client{Target: target}
}

func (c *Client) conn(ctx context.Context) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		c.Target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a gRPC client to '%s': %w", c.Target, err)
	}
	logger.Tracef(ctx, "connected to %s", c.Target)
	return conn, nil
}

func (c *Client) invoke(
	ctx context.Context,
	method string,
	req any,
	reply any,
) (_err error) {
	logger.Debugf(ctx, "invoke(ctx, %s)", method)
	defer func() { logger.Debugf(ctx, "/invoke(ctx, %s): %v", method, _err) }()
	conn, err := c.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.Invoke(ctx, fullMethod(method), req, reply); err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *Client) StartRecording(
	ctx context.Context,
	opts *screencap.RecordingOptions,
) (*session.Info, error) {
	reply := &StartRecordingReply{}
	if err := c.invoke(ctx, "StartRecording", &StartRecordingRequest{Options: opts}, reply); err != nil {
		return nil, err
	}
	return reply.Session, nil
}

func (c *Client) StopRecording(ctx context.Context) (*StopRecordingReply, error) {
	reply := &StopRecordingReply{}
	if err := c.invoke(ctx, "StopRecording", &StopRecordingRequest{}, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) CurrentRecording(ctx context.Context) (*session.Info, error) {
	reply := &CurrentRecordingReply{}
	if err := c.invoke(ctx, "CurrentRecording", &CurrentRecordingRequest{}, reply); err != nil {
		return nil, err
	}
	return reply.Session, nil
}

func (c *Client) GetRecordingOptions(ctx context.Context) (*screencap.RecordingOptions, error) {
	reply := &GetRecordingOptionsReply{}
	if err := c.invoke(ctx, "GetRecordingOptions", &GetRecordingOptionsRequest{}, reply); err != nil {
		return nil, err
	}
	return &reply.Options, nil
}

func (c *Client) SetRecordingOptions(
	ctx context.Context,
	opts screencap.RecordingOptions,
) error {
	return c.invoke(ctx, "SetRecordingOptions", &SetRecordingOptionsRequest{Options: opts}, &SetRecordingOptionsReply{})
}

// ListArchive lists the archived sessions; a nil order is the order
// configured in the daemon.
func (c *Client) ListArchive(
	ctx context.Context,
	order *session.ArchiveOrder,
) ([]session.ArchiveEntry, error) {
	reply := &ListArchiveReply{}
	if err := c.invoke(ctx, "ListArchive", &ListArchiveRequest{Order: order}, reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

func (c *Client) Render(
	ctx context.Context,
	videoID string,
	project *screencap.ProjectConfiguration,
	force bool,
) (string, error) {
	reply := &RenderReply{}
	req := &RenderRequest{VideoID: videoID, Project: project, Force: force}
	if err := c.invoke(ctx, "Render", req, reply); err != nil {
		return "", err
	}
	return reply.Path, nil
}

func (c *Client) GetSessionMetadata(
	ctx context.Context,
	videoID string,
) (*meta.RecordingMeta, error) {
	reply := &GetSessionMetadataReply{}
	if err := c.invoke(ctx, "GetSessionMetadata", &GetSessionMetadataRequest{VideoID: videoID}, reply); err != nil {
		return nil, err
	}
	return reply.Meta, nil
}

func (c *Client) GetScreenVideoMetadata(
	ctx context.Context,
	videoID string,
) (*screencap.VideoMetadata, error) {
	reply := &GetScreenVideoMetadataReply{}
	if err := c.invoke(ctx, "GetScreenVideoMetadata", &GetScreenVideoMetadataRequest{VideoID: videoID}, reply); err != nil {
		return nil, err
	}
	return reply.Metadata, nil
}

// Subscribe returns the events published by the server. The channel is
// closed when ctx is cancelled or the connection breaks.
func (c *Client) Subscribe(ctx context.Context) (<-chan screencap.Event, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.NewStream(ctx, subscribeStreamDesc, fullMethod("Subscribe"))
	if err != nil {
		conn.Close()
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(&SubscribeRequest{}); err != nil {
		conn.Close()
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		conn.Close()
		return nil, fromStatus(err)
	}
	// the subscription is active only after the server received the request
	if _, err := stream.Header(); err != nil {
		conn.Close()
		return nil, fromStatus(err)
	}

	ch := make(chan screencap.Event)
	observability.Go(ctx, func(ctx context.Context) {
		defer conn.Close()
		defer close(ch)
		for {
			var ev screencap.Event
			err := stream.RecvMsg(&ev)
			switch {
			case err == nil:
			case errors.Is(err, io.EOF):
				return
			default:
				if ctx.Err() == nil {
					logger.Errorf(ctx, "unable to receive an event: %v", err)
				}
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	})
	return ch, nil
}
