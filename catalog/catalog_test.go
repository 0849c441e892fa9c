package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/eventbus"
	"github.com/xaionaro-go/screencap/meta"
)

func ctx() context.Context {
	return logger.CtxWithLogger(context.Background(), logrus.Default().WithLevel(logger.LevelDebug))
}

func openTest(t *testing.T) *Catalog {
	c, err := Open(ctx(), filepath.Join(t.TempDir(), "db", "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUpsertList(t *testing.T) {
	ctx := ctx()
	c := openTest(t)
	ts := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.Upsert(ctx, Entry{
		VideoID:    "b",
		Dir:        "/r/b.cap",
		ArchivedAt: ts.Add(time.Minute),
		Display:    screencap.Dimensions{Width: 1920, Height: 1080},
	}))
	require.NoError(t, c.Upsert(ctx, Entry{
		VideoID:    "a",
		Dir:        "/r/a.cap",
		ArchivedAt: ts,
		Display:    screencap.Dimensions{Width: 1280, Height: 720},
		Camera:     &screencap.Dimensions{Width: 640, Height: 480},
		Degraded:   []string{"camera"},
	}))
	require.NoError(t, c.MarkRendered(ctx, "a", "/r/a.cap/output/result.mp4", ts.Add(time.Hour)))

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].VideoID)
	require.Equal(t, &screencap.Dimensions{Width: 640, Height: 480}, entries[0].Camera)
	require.Equal(t, []string{"camera"}, entries[0].Degraded)
	require.Equal(t, "/r/a.cap/output/result.mp4", entries[0].RenderedPath)
	require.True(t, ts.Add(time.Hour).Equal(entries[0].RenderedAt))
	require.Equal(t, "b", entries[1].VideoID)
	require.Nil(t, entries[1].Camera)
	require.True(t, entries[1].RenderedAt.IsZero())

	require.NoError(t, c.Upsert(ctx, Entry{
		VideoID:    "a",
		Dir:        "/r/a.cap",
		ArchivedAt: ts,
		Display:    screencap.Dimensions{Width: 1280, Height: 720},
	}))
	e, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, e.Camera)
	require.Empty(t, e.Degraded)
	require.Equal(t, "/r/a.cap/output/result.mp4", e.RenderedPath, "the upsert keeps the render columns")

	_, err = c.Get(ctx, "missing")
	require.ErrorIs(t, err, screencap.ErrNotFound)
	require.ErrorIs(t, c.MarkRendered(ctx, "missing", "x", ts), screencap.ErrNotFound)
}

func TestFollow(t *testing.T) {
	ctx, cancelFn := context.WithCancel(ctx())
	defer cancelFn()
	c := openTest(t)

	layout := screencap.NewSessionLayout(t.TempDir(), "v1")
	require.NoError(t, os.MkdirAll(layout.Dir, 0o755))
	require.NoError(t, meta.Save(layout.MetaPath(), meta.New(screencap.Dimensions{Width: 1920, Height: 1080}, nil)))

	bus := eventbus.New()
	sub := bus.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Follow(ctx, sub.C())
	}()

	stopped := screencap.NewEvent(screencap.EventTypeRecordingStopped, "v1").WithPath(layout.Dir)
	stopped.Degraded = []string{"camera"}
	bus.Publish(ctx, stopped)
	bus.Publish(ctx, screencap.NewEvent(screencap.EventTypeSessionArchived, "v1").WithPath(layout.Dir))
	bus.Publish(ctx, screencap.NewEvent(screencap.EventTypeRenderFinished, "v1").WithPath(layout.OutputPath()))

	require.Eventually(t, func() bool {
		e, err := c.Get(ctx, "v1")
		return err == nil && e.RenderedPath == layout.OutputPath()
	}, 10*time.Second, 10*time.Millisecond)

	e, err := c.Get(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, layout.Dir, e.Dir)
	require.Equal(t, []string{"camera"}, e.Degraded)
	require.Equal(t, screencap.Dimensions{Width: 1920, Height: 1080}, e.Display)

	sub.Close()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Follow has not returned")
	}
}
