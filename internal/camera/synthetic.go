package camera

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/image/vector"
)

// SyntheticOptions configures a Synthetic source.
type SyntheticOptions struct {
	Width, Height int
	// Radius of the pupil disk in pixels.
	Radius float64
	// Period is the number of frames the pupil takes to trace its path
	// once.
	Period int
	// FPS paces Next; zero delivers frames as fast as they are asked for.
	FPS float64
	// IncompleteEvery makes every n-th frame incomplete; zero never does.
	IncompleteEvery int
	Background      uint8
	Pupil           uint8
}

// DefaultSyntheticOptions returns a 540x720 eye with a 40 pixel pupil
// wandering at 60 frames per second.
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Width:      540,
		Height:     720,
		Radius:     40,
		Period:     240,
		FPS:        60,
		Background: 200,
		Pupil:      15,
	}
}

// Synthetic is a Source that renders a dark disk moving along a Lissajous
// curve over a bright background. It stands in for a camera when none is
// attached.
type Synthetic struct {
	opts   SyntheticOptions
	seq    uint64
	last   time.Time
	closed bool
}

// NewSynthetic returns a Synthetic source.
func NewSynthetic(opts SyntheticOptions) (*Synthetic, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("synthetic camera: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.Radius <= 0 || 2*opts.Radius >= float64(min(opts.Width, opts.Height)) {
		return nil, fmt.Errorf("synthetic camera: radius %v does not fit %dx%d", opts.Radius, opts.Width, opts.Height)
	}
	if opts.Period <= 0 {
		opts.Period = 1
	}
	return &Synthetic{opts: opts}, nil
}

// Center returns where the pupil is drawn in frame seq.
func (s *Synthetic) Center(seq uint64) (x, y float64) {
	w, h := float64(s.opts.Width), float64(s.opts.Height)
	ax := w/2 - s.opts.Radius - 1
	ay := h/2 - s.opts.Radius - 1
	t := 2 * math.Pi * float64(seq%uint64(s.opts.Period)) / float64(s.opts.Period)
	return w/2 + 0.6*ax*math.Sin(t), h/2 + 0.6*ay*math.Sin(2*t)
}

// Next renders the next frame.
func (s *Synthetic) Next(timeout time.Duration) Grab {
	if s.closed {
		return Fault(fmt.Errorf("synthetic camera: %w", ErrClosed))
	}
	s.pace(timeout)
	s.seq++

	if n := s.opts.IncompleteEvery; n > 0 && s.seq%uint64(n) == 0 {
		return Incomplete(nil, ImageStatusEmpty)
	}

	img := s.render(s.Center(s.seq))
	borrowed, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return Fault(fmt.Errorf("synthetic camera: %w", err))
	}
	defer borrowed.Close()
	m := borrowed.Clone()
	runtime.KeepAlive(img)
	return OK(NewFrame(m, s.seq, nil))
}

func (s *Synthetic) pace(timeout time.Duration) {
	if s.opts.FPS <= 0 {
		return
	}
	interval := time.Duration(float64(time.Second) / s.opts.FPS)
	if wait := interval - time.Since(s.last); wait > 0 {
		time.Sleep(min(wait, timeout))
	}
	s.last = time.Now()
}

// render rasterizes the pupil as a 64-gon centered on (cx, cy).
func (s *Synthetic) render(cx, cy float64) *image.Gray {
	w, h := s.opts.Width, s.opts.Height
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = s.opts.Background
	}

	const segments = 64
	r := vector.NewRasterizer(w, h)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / segments
		x := float32(cx + s.opts.Radius*math.Cos(a))
		y := float32(cy + s.opts.Radius*math.Sin(a))
		if i == 0 {
			r.MoveTo(x, y)
		} else {
			r.LineTo(x, y)
		}
	}
	r.ClosePath()
	r.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: s.opts.Pupil}), image.Point{})
	return img
}

// Close stops the source. Later calls to Next report StatusFault.
func (s *Synthetic) Close() error {
	s.closed = true
	return nil
}
