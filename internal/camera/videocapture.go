package camera

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// OpenCV's CAP_PROP_READ_TIMEOUT_MSEC, which gocv has no name for.
const videoCaptureReadTimeout gocv.VideoCaptureProperties = 54

// DefaultMaxMisses is the number of consecutive failed reads after which a
// VideoCapture gives up on the device.
const DefaultMaxMisses = 30

// Options configures a VideoCapture.
type Options struct {
	// Device is a device index ("0"), a device path or a stream URL.
	Device string
	// Width and Height request a capture resolution; zero keeps the
	// device default.
	Width, Height int
	ReadTimeout   time.Duration
	// MaxMisses is the number of consecutive failed reads reported as
	// incomplete before the device is declared faulty. Zero means
	// DefaultMaxMisses.
	MaxMisses int
}

// VideoCapture is a Source backed by an OpenCV capture device.
//
// The device buffer is shrunk to one frame so that every read returns the
// newest image rather than a backlog.
type VideoCapture struct {
	cap     *gocv.VideoCapture
	opts    Options
	timeout time.Duration
	raw     gocv.Mat
	seq     uint64
	misses  int
	closed  bool
	log     *zap.SugaredLogger
}

// OpenVideoCapture opens the device described by opts.
func OpenVideoCapture(opts Options, logger *zap.SugaredLogger) (*VideoCapture, error) {
	var device interface{} = opts.Device
	if id, err := strconv.Atoi(opts.Device); err == nil {
		device = id
	}
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrNoCamera, opts.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %q is not available", ErrNoCamera, opts.Device)
	}
	if opts.MaxMisses <= 0 {
		opts.MaxMisses = DefaultMaxMisses
	}

	vc.Set(gocv.VideoCaptureBufferSize, 1)
	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	v := &VideoCapture{cap: vc, opts: opts, raw: gocv.NewMat(), log: logger}
	v.setTimeout(opts.ReadTimeout)

	logger.Infow("camera opened",
		"device", opts.Device,
		"codec", vc.CodecString(),
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)
	return v, nil
}

func (v *VideoCapture) setTimeout(d time.Duration) {
	if d <= 0 || d == v.timeout {
		return
	}
	v.cap.Set(videoCaptureReadTimeout, float64(d.Milliseconds()))
	v.timeout = d
}

// Next reads the newest frame and converts it to grayscale.
func (v *VideoCapture) Next(timeout time.Duration) Grab {
	if v.closed || !v.cap.IsOpened() {
		return Fault(fmt.Errorf("camera %q: %w", v.opts.Device, ErrClosed))
	}
	v.setTimeout(timeout)

	if ok := v.cap.Read(&v.raw); !ok {
		return v.miss(ImageStatusReadFailed)
	}
	if v.raw.Empty() {
		return v.miss(ImageStatusEmpty)
	}
	v.misses = 0
	v.seq++

	gray := gocv.NewMat()
	switch v.raw.Channels() {
	case 1:
		v.raw.CopyTo(&gray)
	case 4:
		gocv.CvtColor(v.raw, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(v.raw, &gray, gocv.ColorBGRToGray)
	}
	return OK(NewFrame(gray, v.seq, nil))
}

func (v *VideoCapture) miss(status int) Grab {
	v.misses++
	v.log.Debugw("camera read missed", "device", v.opts.Device, "status", status, "misses", v.misses)
	if v.misses >= v.opts.MaxMisses {
		return Fault(fmt.Errorf("camera %q: %d consecutive failed reads", v.opts.Device, v.misses))
	}
	return Incomplete(nil, status)
}

// Close releases the device.
func (v *VideoCapture) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	return multierr.Append(v.raw.Close(), v.cap.Close())
}
