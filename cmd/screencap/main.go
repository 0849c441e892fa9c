package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/screencap/control"
	"github.com/xaionaro-go/screencap/ffmpeg/process"
	"github.com/xaionaro-go/screencap/internal/config"
)

type globalFlags struct {
	ConfigPath string
	LogLevel   logger.Level
	Addr       string
}

func main() {
	err := newRootCmd().Execute()
	process.Dispose()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{LogLevel: logger.LevelWarning}
	defaultConfigPath, _ := config.DefaultPath()

	root := &cobra.Command{
		Use:           "screencap",
		Short:         "Screen and webcam recorder with a compositing renderer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			l := logrus.Default().WithLevel(flags.LogLevel)
			logger.Default = func() logger.Logger {
				return l
			}
			ctx := logger.CtxWithLogger(cmd.Context(), l)
			ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			cobra.OnFinalize(func() {
				cancelFn()
				belt.Flush(ctx)
			})
			cmd.SetContext(ctx)
		},
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", defaultConfigPath, "path to the configuration file")
	root.PersistentFlags().Var(&flags.LogLevel, "log-level", "log level")
	root.PersistentFlags().StringVar(&flags.Addr, "addr", "", "address of the daemon (default: listen_addr of the configuration)")

	root.AddCommand(
		newDaemonCmd(flags),
		newRecordCmd(flags),
		newStartCmd(flags),
		newStopCmd(flags),
		newStatusCmd(flags),
		newListCmd(flags),
		newRenderCmd(flags),
		newCopyCmd(flags),
		newMetaCmd(flags),
		newVideoInfoCmd(flags),
		newOptionsCmd(flags),
		newDoctorCmd(flags),
	)
	return root
}

func (flags *globalFlags) config(ctx context.Context) (*config.Config, error) {
	return config.Load(ctx, flags.ConfigPath)
}

func (flags *globalFlags) client(ctx context.Context) (*control.Client, error) {
	if flags.Addr != "" {
		return control.NewClient(flags.Addr), nil
	}
	cfg, err := flags.config(ctx)
	if err != nil {
		return nil, err
	}
	return control.NewClient(cfg.ListenAddr), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
