package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/catalog"
	"github.com/xaionaro-go/screencap/eventbus"
	"github.com/xaionaro-go/screencap/ffmpeg"
	"github.com/xaionaro-go/screencap/internal/config"
	"github.com/xaionaro-go/screencap/notify"
	"github.com/xaionaro-go/screencap/probe"
	"github.com/xaionaro-go/screencap/render"
	"github.com/xaionaro-go/screencap/session"
)

// core is the in-process recorder: everything but the control transport.
type core struct {
	Config   *config.Config
	Bus      *eventbus.Bus
	Manager  *session.Manager
	Renderer *render.Renderer
	Catalog  *catalog.Catalog
}

func newCore(
	ctx context.Context,
	cfg *config.Config,
) (*core, error) {
	bus := eventbus.New()
	ffmpegCfg := cfg.FFmpeg()
	runner := ffmpeg.NewRunner(ffmpegCfg)
	prober := probe.New(cfg.Probe())

	manager, err := session.NewManager(ctx, cfg.Session(), session.Deps{
		Factory:     ffmpeg.NewFactory(ffmpegCfg),
		Thumbnailer: runner,
		Prober:      prober,
	}, bus)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the session manager: %w", err)
	}

	c := &core{
		Config:   cfg,
		Bus:      bus,
		Manager:  manager,
		Renderer: render.New(runner, prober, cfg.Render, bus),
	}

	if cfg.CatalogPath != "" {
		c.Catalog, err = catalog.Open(ctx, cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("unable to open the catalog: %w", err)
		}
		sub := bus.Subscribe(ctx)
		if err := c.backfillCatalog(ctx); err != nil {
			logger.Errorf(ctx, "unable to backfill the catalog: %v", err)
		}
		observability.Go(ctx, func(ctx context.Context) {
			c.Catalog.Follow(ctx, sub.C())
		})
	}

	if cfg.Notifications {
		sub := bus.Subscribe(ctx)
		observability.Go(ctx, func(ctx context.Context) {
			notify.New().Run(ctx, sub.C())
		})
	}
	return c, nil
}

// backfillCatalog indexes the archived sessions the catalog does not know yet.
func (c *core) backfillCatalog(ctx context.Context) error {
	var result *multierror.Error
	for _, entry := range c.Manager.ListArchive(session.ArchiveOrderOldestFirst) {
		_, err := c.Catalog.Get(ctx, entry.VideoID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, screencap.ErrNotFound):
			result = multierror.Append(result, err)
			continue
		}
		if err := c.Catalog.Index(ctx, entry.VideoID, entry.Dir, entry.ArchivedAt, nil); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *core) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := c.Manager.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Catalog != nil {
		if err := c.Catalog.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
