// Package render composites the captures of a finalized session into a
// single output video.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/meta"
	"github.com/xaionaro-go/xcontext"
	"golang.org/x/sync/singleflight"
)

type Renderer struct {
	Encoder      screencap.Encoder
	Prober       screencap.Prober
	EncodeConfig screencap.EncodeVideoConfig
	Events       screencap.EventPublisher

	group singleflight.Group
}

func New(
	encoder screencap.Encoder,
	prober screencap.Prober,
	encodeCfg screencap.EncodeVideoConfig,
	events screencap.EventPublisher,
) *Renderer {
	if events == nil {
		events = screencap.EventPublisherNoop{}
	}
	return &Renderer{
		Encoder:      encoder,
		Prober:       prober,
		EncodeConfig: encodeCfg,
		Events:       events,
	}
}

// Render returns the path of the composited video of the session,
// producing it if it does not exist yet. Concurrent requests for the same
// session share one encoder invocation. Once started, a render is not
// cancelled by ctx.
func (r *Renderer) Render(
	ctx context.Context,
	sessionDir string,
	cfg screencap.ProjectConfiguration,
	opts ...Option,
) (_ret string, _err error) {
	logger.Debugf(ctx, "Render(ctx, '%s', %#+v, %v)", sessionDir, cfg, opts)
	defer func() { logger.Debugf(ctx, "/Render(ctx, '%s'): '%s' %v", sessionDir, _ret, _err) }()

	options := Options(opts).config()
	layout := screencap.SessionLayout{Dir: sessionDir}
	outputPath := layout.OutputPath()

	if st, err := os.Stat(sessionDir); err != nil || !st.IsDir() {
		return "", screencap.RenderError(fmt.Errorf("%w: session directory '%s'", screencap.ErrNotFound, sessionDir))
	}

	if !options.Force && r.cached(ctx, layout, cfg) {
		return outputPath, nil
	}

	_, err, shared := r.group.Do(outputPath, func() (any, error) {
		ctx := xcontext.DetachDone(ctx)
		if !options.Force && r.cached(ctx, layout, cfg) {
			return nil, nil
		}
		return nil, r.render(ctx, layout, cfg)
	})
	if shared {
		logger.Debugf(ctx, "the render of '%s' was shared with a concurrent request", sessionDir)
	}
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

// cached reports whether the output exists. The cache is keyed on the
// existence only; a configuration differing from the one recorded next to
// the output is logged, but the cached output is still served.
func (r *Renderer) cached(
	ctx context.Context,
	layout screencap.SessionLayout,
	cfg screencap.ProjectConfiguration,
) bool {
	if _, err := os.Stat(layout.OutputPath()); err != nil {
		return false
	}
	stored, err := os.ReadFile(layout.RenderConfigPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debugf(ctx, "'%s' has no recorded render configuration", layout.OutputPath())
	case err != nil:
		logger.Warnf(ctx, "unable to read '%s': %v", layout.RenderConfigPath(), err)
	default:
		current, err := json.Marshal(cfg)
		if err != nil {
			logger.Warnf(ctx, "unable to JSON-ize the project configuration: %v", err)
			break
		}
		if !bytes.Equal(bytes.TrimSpace(stored), current) {
			logger.Warnf(ctx, "serving the cached '%s' rendered with a different project configuration; use force to re-render", layout.OutputPath())
		}
	}
	return true
}

func (r *Renderer) render(
	ctx context.Context,
	layout screencap.SessionLayout,
	cfg screencap.ProjectConfiguration,
) (_err error) {
	videoID := layout.VideoID()
	r.Events.Publish(ctx, screencap.NewEvent(screencap.EventTypeRenderStarted, videoID))
	defer func() {
		if _err != nil {
			r.Events.Publish(ctx, screencap.NewEvent(screencap.EventTypeRenderFailed, videoID).WithError(_err))
			return
		}
		r.Events.Publish(ctx, screencap.NewEvent(screencap.EventTypeRenderFinished, videoID).WithPath(layout.OutputPath()))
	}()

	err := r.doRender(ctx, layout, cfg)
	if err != nil {
		return screencap.RenderError(err)
	}
	return nil
}

func (r *Renderer) doRender(
	ctx context.Context,
	layout screencap.SessionLayout,
	cfg screencap.ProjectConfiguration,
) error {
	m, err := meta.Load(layout.MetaPath())
	if err != nil {
		return fmt.Errorf("unable to load the recording metadata: %w", err)
	}

	in := inputs{Display: layout.DisplayPath()}
	if err := requireFile(in.Display); err != nil {
		return err
	}
	if m.HasCamera() {
		in.Camera = layout.CameraPath()
		if err := requireFile(in.Camera); err != nil {
			return err
		}
	}

	l, err := ComputeLayout(m, cfg)
	if err != nil {
		return err
	}
	logger.Tracef(ctx, "layout: %s", spew.Sdump(l))
	in.FrameRate = r.frameRate(ctx, in.Display)

	if err := os.MkdirAll(layout.OutputDir(), 0o755); err != nil {
		return fmt.Errorf("%w: unable to create '%s': %w", screencap.ErrIO, layout.OutputDir(), err)
	}
	layersDir, err := os.MkdirTemp(layout.OutputDir(), ".layers-")
	if err != nil {
		return fmt.Errorf("%w: unable to create a temporary directory in '%s': %w", screencap.ErrIO, layout.OutputDir(), err)
	}
	defer os.RemoveAll(layersDir)

	in.Layers, err = writeLayers(layersDir, l, cfg.Background)
	if err != nil {
		return err
	}

	partialPath := layout.PartialOutputPath()
	args, err := encodeArgs(l, in, r.EncodeConfig, partialPath)
	if err != nil {
		return err
	}

	os.Remove(partialPath)
	if err := r.Encoder.Encode(ctx, args); err != nil {
		os.Remove(partialPath)
		return fmt.Errorf("unable to encode '%s': %w", layout.OutputPath(), err)
	}
	if err := requireFile(partialPath); err != nil {
		os.Remove(partialPath)
		return fmt.Errorf("the encoder exited successfully but: %w", err)
	}
	if err := os.Rename(partialPath, layout.OutputPath()); err != nil {
		os.Remove(partialPath)
		return fmt.Errorf("%w: unable to rename '%s' to '%s': %w", screencap.ErrIO, partialPath, layout.OutputPath(), err)
	}

	b, err := json.Marshal(cfg)
	if err == nil {
		err = meta.WriteFileAtomic(layout.RenderConfigPath(), b)
	}
	if err != nil {
		logger.Warnf(ctx, "unable to record the render configuration: %v", err)
	}
	return nil
}

func (r *Renderer) frameRate(ctx context.Context, displayPath string) float64 {
	if r.Prober == nil {
		return DefaultFrameRate
	}
	info, err := r.Prober.Probe(ctx, displayPath)
	if err != nil {
		logger.Warnf(ctx, "unable to probe '%s', assuming %d fps: %v", displayPath, DefaultFrameRate, err)
		return DefaultFrameRate
	}
	if info.FrameRate <= 0 {
		return DefaultFrameRate
	}
	return info.FrameRate
}

func requireFile(path string) error {
	st, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: '%s'", screencap.ErrNotFound, path)
	case err != nil:
		return fmt.Errorf("%w: unable to stat '%s': %w", screencap.ErrIO, path, err)
	case st.Size() == 0:
		return fmt.Errorf("'%s' is empty", path)
	}
	return nil
}
