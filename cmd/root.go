// Package cmd implements the pupiltrack command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"go.universe.tf/pupiltrack/internal/config"
	"go.universe.tf/pupiltrack/internal/log"
)

// Version is the application version.
const Version = "0.1.0"

// app is the state shared by all subcommands.
type app struct {
	cfg     config.Config
	cfgPath string
	log     *zap.SugaredLogger
}

// NewRootCommand returns the pupiltrack command tree. Running it without a
// subcommand starts a tracking session.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	a.cfg = config.Default()
	root := &cobra.Command{
		Use:   "pupiltrack",
		Short: "Live pupil tracker streaming gaze coordinates to a stimulus computer",
		Long: `pupiltrack grabs frames from an eye camera, locates the pupil in a region of
interest and streams its normalized position to a single consumer over TCP or
WebSocket, one "x,y,0,0" record per frame.

While the live view has focus: s selects a new region of interest, r resets it
and q quits.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: a.setup,
		RunE:              a.runSession,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	a.bindFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start a tracking session (the default)",
			Args:  cobra.NoArgs,
			RunE:  a.runSession,
		},
		newDetectCommand(a),
		newROICommand(a),
	)
	return root
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	c := &a.cfg
	fs.StringVarP(&a.cfgPath, "config", "c", "", "YAML config file (default $"+config.EnvPath+")")
	fs.StringVar(&c.Source, "source", c.Source, "frame source: camera or synthetic")
	fs.StringVarP(&c.Device, "device", "d", c.Device, "camera index, device path or stream URL")
	fs.IntVar(&c.Width, "width", c.Width, "requested capture width, 0 for the device default")
	fs.IntVar(&c.Height, "height", c.Height, "requested capture height, 0 for the device default")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "longest wait for one frame")
	fs.StringVar(&c.ROIFile, "roi-file", c.ROIFile, "file the region of interest is kept in")
	fs.StringVarP(&c.Listen, "listen", "l", c.Listen, "address the consumer connects to")
	fs.StringVarP(&c.Transport, "transport", "t", c.Transport, "consumer transport: tcp or websocket")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "longest wait to deliver one record, 0 for no limit")
	fs.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "longest wait for the handshake once connected, 0 for no limit")
	fs.IntVar(&c.Precision, "precision", c.Precision, "decimals per coordinate")
	fs.StringVar(&c.Detector, "detector", c.Detector, "pupil detector: contour, bbox or hough")
	fs.Float64Var(&c.Threshold, "threshold", c.Threshold, "binary threshold of the contour detector")
	fs.BoolVar(&c.Headless, "headless", c.Headless, "run without a window; stop with Ctrl+C")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "also show the detector's binary mask")
	fs.StringVar(&c.Window, "window", c.Window, "live view window title")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

// setup resolves the configuration and builds the logger. Values come
// from defaults, then the config file, then flags set on the command line.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.loadConfig(cmd.Flags()); err != nil {
		return err
	}
	if a.log == nil {
		if err := log.Init(a.cfg.LogLevel); err != nil {
			return err
		}
		a.log = log.L()
	}
	return nil
}

func (a *app) loadConfig(fs *pflag.FlagSet) error {
	changed := map[string]string{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = f.Value.String() })

	path := a.cfgPath
	if path == "" {
		path = os.Getenv(config.EnvPath)
	}
	a.cfg = config.Default()
	if path != "" {
		if err := config.LoadInto(path, &a.cfg); err != nil {
			return err
		}
	}
	for name, val := range changed {
		if err := fs.Set(name, val); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Execute runs the command line and exits 1 on error. SIGINT and SIGTERM
// cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func closeQuietly(c io.Closer, what string, logger *zap.SugaredLogger) {
	if err := c.Close(); err != nil {
		logger.Warnw("close failed", "what", what, "error", err)
	}
}
