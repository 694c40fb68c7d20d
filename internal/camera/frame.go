// Package camera delivers grayscale frames from a capture device one at a
// time.
//
// A Source hands out a Grab per call to Next. Frames must be released
// before the next one is requested, or devices with a fixed pool of
// buffers stall.
package camera

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

var (
	// ErrNoCamera is returned when no capture device could be opened.
	ErrNoCamera = errors.New("no camera detected")
	// ErrReleased is returned when a frame is released a second time.
	ErrReleased = errors.New("frame already released")
	// ErrClosed is reported by a Source used after Close.
	ErrClosed = errors.New("source closed")
)

// Frame is a single-channel 8-bit image delivered by a Source.
type Frame struct {
	Mat        gocv.Mat
	Seq        uint64
	CapturedAt time.Time

	release  func() error
	released bool
}

// NewFrame wraps m as frame number seq. release, if not nil, runs when the
// frame is released, after m is closed.
func NewFrame(m gocv.Mat, seq uint64, release func() error) *Frame {
	return &Frame{Mat: m, Seq: seq, CapturedAt: time.Now(), release: release}
}

// Release hands the frame back to its source. It must be called exactly
// once; later calls return ErrReleased.
func (f *Frame) Release() error {
	if f.released {
		return fmt.Errorf("frame %d: %w", f.Seq, ErrReleased)
	}
	f.released = true
	err := f.Mat.Close()
	if f.release != nil {
		err = multierr.Append(err, f.release())
	}
	return err
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool { return f.released }

// Status tags the outcome of Source.Next.
type Status int

const (
	// StatusOK means Grab.Frame holds a complete image.
	StatusOK Status = iota
	// StatusIncomplete means the device delivered a partial or empty
	// image. It is transient; the next call may succeed.
	StatusIncomplete
	// StatusFault means the device failed. The session cannot continue.
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusIncomplete:
		return "incomplete"
	case StatusFault:
		return "fault"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Image status codes reported with StatusIncomplete.
const (
	ImageStatusReadFailed = 1
	ImageStatusEmpty      = 2
)

// Grab is the result of one Source.Next call.
type Grab struct {
	Status Status
	// Frame is set for StatusOK, and for StatusIncomplete when the device
	// handed back a buffer that still has to be released.
	Frame *Frame
	// ImageStatus is the device specific reason for StatusIncomplete.
	ImageStatus int
	// Err is the reason for StatusFault.
	Err error
}

// OK returns a successful Grab of f.
func OK(f *Frame) Grab { return Grab{Status: StatusOK, Frame: f} }

// Incomplete returns a Grab for a partial image. f may be nil.
func Incomplete(f *Frame, imageStatus int) Grab {
	return Grab{Status: StatusIncomplete, Frame: f, ImageStatus: imageStatus}
}

// Fault returns a Grab reporting a device failure.
func Fault(err error) Grab { return Grab{Status: StatusFault, Err: err} }

// Source is a camera, or anything that behaves like one.
type Source interface {
	// Next blocks for at most timeout waiting for the newest frame.
	Next(timeout time.Duration) Grab
	Close() error
}
