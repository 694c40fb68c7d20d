// Package acquisition runs the live tracking loop: grab a frame, crop it to
// the region of interest, locate the pupil, stream the coordinates and show
// the result to the operator.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"go.universe.tf/pupiltrack/internal/camera"
	"go.universe.tf/pupiltrack/internal/display"
	"go.universe.tf/pupiltrack/internal/location"
	"go.universe.tf/pupiltrack/internal/roi"
	"go.universe.tf/pupiltrack/internal/transport"
)

var (
	// ErrDevice reports a capture device failure.
	ErrDevice = errors.New("device fault")
	// ErrTransmission reports a failure to deliver a record to the
	// consumer.
	ErrTransmission = errors.New("transmission fault")
)

// Operator keys.
const (
	KeySelectROI = 's'
	KeyResetROI  = 'r'
	KeyQuit      = 'q'
)

// DefaultReadTimeout bounds each wait for a frame.
const DefaultReadTimeout = time.Second

var (
	overlayOrigin = image.Pt(0, 10)
	overlayColor  = color.RGBA{G: 255, B: 100, A: 255}
)

// ROIStore holds the region of interest. *roi.Store implements it.
type ROIStore interface {
	Rect() roi.Rect
	Set(r roi.Rect) error
	Reset() error
}

// Options tunes a Loop.
type Options struct {
	// ReadTimeout bounds each Source.Next. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
	// Precision is the number of decimals shown in the overlay.
	Precision int
	// Debug shows the detector's binary mask next to the live view, for
	// detectors that expose one.
	Debug bool
	// OnState, if set, is called on every state transition.
	OnState func(State)
}

// Loop is one tracking session. It is not safe for concurrent use.
type Loop struct {
	src  camera.Source
	det  location.Detector
	ch   transport.Channel
	disp display.Display
	rois ROIStore
	opts Options
	log  *zap.SugaredLogger

	state   State
	stats   Stats
	clamped roi.Rect
}

// New assembles a session from its parts. The Loop does not close any of
// them.
func New(src camera.Source, det location.Detector, ch transport.Channel, disp display.Display, rois ROIStore, opts Options, logger *zap.SugaredLogger) *Loop {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return &Loop{
		src:  src,
		det:  det,
		ch:   ch,
		disp: disp,
		rois: rois,
		opts: opts,
		log:  logger,
	}
}

// State returns the current state.
func (l *Loop) State() State { return l.state }

func (l *Loop) setState(s State) {
	if s == l.state {
		return
	}
	l.log.Debugw("state change", "from", l.state, "to", s)
	l.state = s
	if l.opts.OnState != nil {
		l.opts.OnState(s)
	}
}

// Run processes frames until the operator quits, ctx is cancelled or a
// fault occurs. A quit or cancellation returns a nil error. Faults wrap
// ErrDevice or ErrTransmission. The returned Stats are valid on every
// path.
func (l *Loop) Run(ctx context.Context) (stats Stats, err error) {
	l.stats = Stats{Start: time.Now()}
	defer func() {
		l.stats.Elapsed = time.Since(l.stats.Start)
		stats = l.stats
		l.setState(StateStopped)
		if err != nil {
			l.log.Errorw("acquisition stopped", "error", err)
		}
	}()

	l.setState(StateRunning)
	for l.state != StateStopped {
		if ctx.Err() != nil {
			l.log.Infow("interrupted, closing")
			return
		}
		if err = l.step(); err != nil {
			return
		}
	}
	return
}

// step grabs and handles one frame. The frame, if any, is released before
// step returns.
func (l *Loop) step() (err error) {
	g := l.src.Next(l.opts.ReadTimeout)
	if g.Status == camera.StatusFault {
		return fmt.Errorf("%w: %w", ErrDevice, g.Err)
	}
	if g.Frame != nil {
		defer func() {
			if rerr := g.Frame.Release(); rerr != nil {
				err = multierr.Append(err, fmt.Errorf("%w: release frame %d: %w", ErrDevice, g.Frame.Seq, rerr))
			}
		}()
	}

	switch g.Status {
	case camera.StatusIncomplete:
		l.stats.Incomplete++
		l.log.Warnw("image incomplete", "status", g.ImageStatus)
		return nil
	case camera.StatusOK:
		if g.Frame == nil {
			return fmt.Errorf("%w: source returned no frame", ErrDevice)
		}
		return l.process(g.Frame)
	}
	return fmt.Errorf("%w: unexpected grab status %v", ErrDevice, g.Status)
}

func (l *Loop) process(f *camera.Frame) error {
	bounds := image.Rect(0, 0, f.Mat.Cols(), f.Mat.Rows())
	crop := l.cropRect(bounds)
	region := f.Mat.Region(crop)
	defer region.Close()

	res := l.det.Detect(region)
	defer res.Close()

	if err := l.ch.Send(transport.Record{X: res.X, Y: res.Y}); err != nil {
		return fmt.Errorf("%w: %w", ErrTransmission, err)
	}
	l.stats.Sent++

	label := fmt.Sprintf("(%.*f, %.*f)", l.opts.Precision, res.X, l.opts.Precision, res.Y)
	gocv.PutTextWithParams(&res.Annotated, label, overlayOrigin, gocv.FontHersheySimplex, 0.4, overlayColor, 2, gocv.LineAA, false)
	l.disp.Show(res.Annotated)

	if l.opts.Debug {
		if dbg, ok := l.det.(location.Debugger); ok {
			mask := dbg.Mask(region)
			l.disp.ShowDebug("mask", mask)
			mask.Close()
		}
	}

	l.handleKey(l.disp.PollKey(), f)
	l.stats.Frames++
	return nil
}

// cropRect returns the current region of interest clipped to bounds. A
// region entirely outside the frame falls back to the whole frame.
func (l *Loop) cropRect(bounds image.Rectangle) image.Rectangle {
	cur := l.rois.Rect()
	crop, ok := ClampROI(cur.Rectangle(), bounds)
	if crop != cur.Rectangle() && cur != l.clamped {
		l.clamped = cur
		if ok {
			l.log.Warnw("roi exceeds frame, clipping", "roi", cur, "frame", bounds.Size(), "crop", roi.FromRectangle(crop))
		} else {
			l.log.Warnw("roi outside frame, using full frame", "roi", cur, "frame", bounds.Size())
		}
	}
	return crop
}

// ClampROI intersects r with bounds. If the intersection is empty it
// returns bounds and false.
func ClampROI(r, bounds image.Rectangle) (image.Rectangle, bool) {
	in := r.Intersect(bounds)
	if in.Empty() {
		return bounds, false
	}
	return in, true
}

func (l *Loop) handleKey(key int, f *camera.Frame) {
	switch key {
	case KeySelectROI:
		l.setState(StateSelectROI)
		sel := l.disp.SelectROI(f.Mat)
		if sel.Empty() {
			l.log.Infow("roi selection cancelled, keeping current", "roi", l.rois.Rect())
		} else if err := l.rois.Set(roi.FromRectangle(sel)); err != nil {
			l.log.Errorw("cannot update roi", "error", err)
		}
		l.setState(StateRunning)
	case KeyResetROI:
		l.setState(StateResetROI)
		if err := l.rois.Reset(); err != nil {
			l.log.Errorw("cannot reset roi", "error", err)
		}
		l.setState(StateRunning)
	case KeyQuit:
		l.log.Infow("closing on operator request")
		l.setState(StateStopped)
	}
}
