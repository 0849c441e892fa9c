package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screencap/control"
)

func newDaemonCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the recorder and serve the control protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := flags.config(ctx)
			if err != nil {
				return err
			}
			if flags.Addr != "" {
				cfg.ListenAddr = flags.Addr
			}

			c, err := newCore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Errorf(ctx, "unable to close: %v", err)
				}
			}()

			listener, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return fmt.Errorf("unable to listen at '%s': %w", cfg.ListenAddr, err)
			}
			srv := control.NewServer(c.Manager, c.Renderer, c.Bus)
			observability.Go(ctx, func(ctx context.Context) {
				<-ctx.Done()
				srv.Stop()
			})
			logger.Infof(ctx, "listening at %s", listener.Addr())
			return srv.Serve(ctx, listener)
		},
	}
}

func newRecordCmd(flags *globalFlags) *cobra.Command {
	var (
		target   targetFlags
		duration time.Duration
		doRender bool
		project  string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record in this process until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := flags.config(ctx)
			if err != nil {
				return err
			}
			cfg.CatalogPath = ""
			cfg.Notifications = false
			projectCfg, err := loadProject(project)
			if err != nil {
				return err
			}

			c, err := newCore(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close(context.WithoutCancel(ctx))

			opts, err := target.options(c.Manager.RecordingOptions())
			if err != nil {
				return err
			}
			info, err := c.Manager.StartRecording(ctx, &opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "recording %s, press Ctrl+C to stop\n", info.VideoID)

			var timeout <-chan time.Time
			if duration > 0 {
				timeout = time.After(duration)
			}
			select {
			case <-ctx.Done():
			case <-timeout:
			}

			ctx = context.WithoutCancel(ctx)
			result, err := c.Manager.StopRecording(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, control.NewStopRecordingReply(result)); err != nil {
				return err
			}
			if !doRender {
				return nil
			}
			path, err := c.Renderer.Render(ctx, result.Dir, projectCfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	target.register(cmd.Flags())
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (default: until interrupted)")
	cmd.Flags().BoolVar(&doRender, "render", false, "render the session after stopping")
	cmd.Flags().StringVar(&project, "project", "", "YAML file with the project configuration to render with")
	return cmd
}
