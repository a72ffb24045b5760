package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"hapticscan/internal/config"
	"hapticscan/internal/web"
)

func main() {
	if err := fang.Execute(context.Background(), newRootCmd()); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "hapticscan",
		Short: "Rotating ultrasonic obstacle scanner with haptic feedback",
		Long: `hapticscan sweeps an ultrasonic ranger around 360° on a stepper motor and
drives four vibration actuators so the wearer feels where obstacles are.

The locate command runs the GPS reporter, which forwards decoded fixes over a
Bluetooth serial link.`,
		Version:      web.BuildInfo().Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (error, warn, info, debug)")

	root.AddCommand(newScanCmd(opts), newLocateCmd(opts), newVersionCmd())
	return root
}

// loadConfig reads the config and applies command line overrides.
func loadConfig(opts *globalOptions) (config.Config, error) {
	cfg := config.Defaults()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("config load failed: %w", err)
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

// setup loads the config and builds the process logger, which writes to
// stderr and to the in-memory buffer served at /api/logs.
func setup(opts *globalOptions, stderr io.Writer) (config.Config, *slog.Logger, *web.LogBuffer, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	logger, err := newLogger(cfg.Log.Level, io.MultiWriter(stderr, logs))
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, logs, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bi := web.BuildInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s)\n", bi.Service, versionOrDevel(bi.Version), bi.GoVersion)
			if bi.Commit != "" {
				dirty := ""
				if bi.Dirty {
					dirty = " (dirty)"
				}
				fmt.Fprintf(out, "commit: %s%s\n", bi.Commit, dirty)
			}
			return nil
		},
	}
}

func versionOrDevel(v string) string {
	if v == "" || v == "(devel)" {
		return "devel"
	}
	return v
}
