package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/catalog"
	"github.com/xaionaro-go/screencap/control"
	"github.com/xaionaro-go/screencap/ffmpeg"
	"github.com/xaionaro-go/screencap/internal/clipboard"
	"github.com/xaionaro-go/screencap/session"
)

func newStartCmd(flags *globalFlags) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a recording in the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			var opts *screencap.RecordingOptions
			if target.isSet() {
				base, err := client.GetRecordingOptions(ctx)
				if err != nil {
					return err
				}
				o, err := target.options(*base)
				if err != nil {
					return err
				}
				opts = &o
			}
			info, err := client.StartRecording(ctx, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
	target.register(cmd.Flags())
	return cmd
}

func newStopCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			reply, err := client.StopRecording(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}
			return printJSON(cmd, reply)
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			info, err := client.CurrentRecording(ctx)
			if err != nil {
				return err
			}
			if info == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not recording")
				return nil
			}
			return printJSON(cmd, info)
		},
	}
}

func newListCmd(flags *globalFlags) *cobra.Command {
	var (
		order session.ArchiveOrder
		long  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the archived sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if long {
				return listCatalog(cmd, flags)
			}
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			var orderPtr *session.ArchiveOrder
			if cmd.Flags().Changed("order") {
				orderPtr = &order
			}
			entries, err := client.ListArchive(ctx, orderPtr)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entry.VideoID, entry.Dir)
			}
			return nil
		},
	}
	cmd.Flags().Var(&order, "order", "oldest-first or newest-first (default: archive_order of the daemon configuration)")
	cmd.Flags().BoolVar(&long, "long", false, "show dimensions and render state from the catalog")
	return cmd
}

func listCatalog(cmd *cobra.Command, flags *globalFlags) error {
	ctx := cmd.Context()
	cfg, err := flags.config(ctx)
	if err != nil {
		return err
	}
	if cfg.CatalogPath == "" {
		return fmt.Errorf("%w: catalog_path is not set", screencap.ErrConfiguration)
	}
	cat, err := catalog.Open(ctx, cfg.CatalogPath)
	if err != nil {
		return err
	}
	defer cat.Close()
	entries, err := cat.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tARCHIVED\tDISPLAY\tCAMERA\tDEGRADED\tRENDERED")
	for _, e := range entries {
		camera := "-"
		if e.Camera != nil {
			camera = e.Camera.String()
		}
		rendered := "-"
		if e.RenderedPath != "" {
			rendered = e.RenderedPath
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
			e.VideoID, e.ArchivedAt.Local().Format(time.DateTime), e.Display, camera, e.Degraded, rendered)
	}
	return w.Flush()
}

type renderFlags struct {
	Project string
	Force   bool
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Project, "project", "", "YAML file with the project configuration (default: built-in defaults)")
	cmd.Flags().BoolVar(&f.Force, "force", false, "render even if the output already exists")
}

func (f *renderFlags) render(
	ctx context.Context,
	flags *globalFlags,
	videoID string,
) (string, error) {
	var project *screencap.ProjectConfiguration
	if f.Project != "" {
		cfg, err := loadProject(f.Project)
		if err != nil {
			return "", err
		}
		project = &cfg
	}
	client, err := flags.client(ctx)
	if err != nil {
		return "", err
	}
	return client.Render(ctx, videoID, project, f.Force)
}

func newRenderCmd(flags *globalFlags) *cobra.Command {
	var rf renderFlags
	cmd := &cobra.Command{
		Use:   "render VIDEO_ID",
		Short: "Composite a session into a single video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rf.render(cmd.Context(), flags, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}

func newCopyCmd(flags *globalFlags) *cobra.Command {
	var rf renderFlags
	cmd := &cobra.Command{
		Use:   "copy VIDEO_ID",
		Short: "Render a session and put the video path on the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := rf.render(ctx, flags, args[0])
			if err != nil {
				return err
			}
			if err := clipboard.WriteText(ctx, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}

func newMetaCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "meta VIDEO_ID",
		Short: "Show the recording metadata of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			m, err := client.GetSessionMetadata(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
}

func newVideoInfoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "video-info VIDEO_ID",
		Short: "Show the duration and size of the display capture of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			md, err := client.GetScreenVideoMetadata(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, md)
		},
	}
}

func newOptionsCmd(flags *globalFlags) *cobra.Command {
	options := &cobra.Command{
		Use:   "options",
		Short: "Show the stored recording options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			opts, err := client.GetRecordingOptions(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, opts)
		},
	}

	var (
		target targetFlags
		screen bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the stored recording options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := flags.client(ctx)
			if err != nil {
				return err
			}
			base, err := client.GetRecordingOptions(ctx)
			if err != nil {
				return err
			}
			if screen {
				base.CaptureTarget = screencap.CaptureTargetScreen{}
			}
			opts, err := target.options(*base)
			if err != nil {
				return err
			}
			if err := client.SetRecordingOptions(ctx, opts); err != nil {
				return err
			}
			return printJSON(cmd, opts)
		},
	}
	target.register(set.Flags())
	set.Flags().BoolVar(&screen, "screen", false, "capture the whole screen")
	set.MarkFlagsMutuallyExclusive("screen", "window")
	options.AddCommand(set)
	return options
}

func newDoctorCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the encoder binaries, the recordings directory and the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := flags.config(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			check := func(name string, detail string, err error) {
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %s: %v\n", name, err)
					return
				}
				fmt.Fprintf(out, "ok    %s: %s\n", name, detail)
			}

			version, err := ffmpeg.NewRunner(cfg.FFmpeg()).Version(ctx)
			check("ffmpeg", version, err)

			ffprobe := cfg.FFprobePath
			if ffprobe == "" {
				ffprobe = "ffprobe"
			}
			ffprobePath, err := exec.LookPath(ffprobe)
			check("ffprobe", ffprobePath, err)

			check("recordings directory", cfg.RecordingsDir, checkWritable(cfg.RecordingsDir))

			addr := cfg.ListenAddr
			if flags.Addr != "" {
				addr = flags.Addr
			}
			client := control.NewClient(addr)
			dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_, err = client.CurrentRecording(dialCtx)
			check("daemon", addr, err)

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}
