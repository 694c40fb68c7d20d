package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.universe.tf/pupiltrack/internal/acquisition"
	"go.universe.tf/pupiltrack/internal/camera"
	"go.universe.tf/pupiltrack/internal/config"
	"go.universe.tf/pupiltrack/internal/display"
	"go.universe.tf/pupiltrack/internal/location"
	"go.universe.tf/pupiltrack/internal/roi"
	"go.universe.tf/pupiltrack/internal/transport"
)

// runSession sets up every part of a session in order, runs the loop and
// prints the throughput report on a clean stop.
func (a *app) runSession(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()
	cfg := a.cfg

	src, err := openSource(cfg, a.log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, src.Close()) }()

	store := roi.Load(cfg.ROIFile, a.log)

	det, err := location.New(cfg.Detector, location.Options{Threshold: cfg.Threshold})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, det.Close()) }()

	ch, err := a.connect(ctx, cfg)
	if err != nil {
		return err
	}
	if ch == nil {
		// Cancelled while waiting for the consumer.
		return nil
	}
	defer func() { err = multierr.Append(err, ch.Close()) }()

	var disp display.Display = display.Headless{}
	if !cfg.Headless {
		disp = display.NewWindow(cfg.Window)
	}
	defer func() { err = multierr.Append(err, disp.Close()) }()

	loop := acquisition.New(src, det, ch, disp, store, acquisition.Options{
		ReadTimeout: cfg.ReadTimeout,
		Precision:   cfg.Precision,
		Debug:       cfg.Debug,
	}, a.log)
	stats, err := loop.Run(ctx)
	if err != nil {
		return err
	}
	a.log.Infow("session finished", "frames", stats.Frames, "incomplete", stats.Incomplete, "elapsed", stats.Elapsed)
	return acquisition.Report(cmd.OutOrStdout(), stats)
}

func openSource(cfg config.Config, logger *zap.SugaredLogger) (camera.Source, error) {
	switch cfg.Source {
	case config.SourceSynthetic:
		opts := camera.DefaultSyntheticOptions()
		if cfg.Width > 0 {
			opts.Width = cfg.Width
		}
		if cfg.Height > 0 {
			opts.Height = cfg.Height
		}
		logger.Infow("using synthetic camera", "width", opts.Width, "height", opts.Height)
		return camera.NewSynthetic(opts)
	case config.SourceCamera:
		return camera.OpenVideoCapture(camera.Options{
			Device:      cfg.Device,
			Width:       cfg.Width,
			Height:      cfg.Height,
			ReadTimeout: cfg.ReadTimeout,
		}, logger)
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

// connect waits for the consumer. It returns a nil Channel and no error if
// ctx is cancelled first.
func (a *app) connect(ctx context.Context, cfg config.Config) (transport.Channel, error) {
	ln, err := transport.Listen(ctx, cfg.Transport, cfg.Listen, transport.Options{
		Precision:        cfg.Precision,
		WriteTimeout:     cfg.WriteTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, a.log)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}
	defer closeQuietly(ln, "listener", a.log)

	a.log.Infow("waiting for consumer", "transport", cfg.Transport, "addr", ln.Addr())
	ch, err := ln.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			a.log.Infow("interrupted before a consumer connected")
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}
