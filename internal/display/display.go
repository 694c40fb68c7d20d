// Package display shows annotated frames to the operator and reads their
// keystrokes.
package display

import (
	"image"
	"strconv"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// NoKey is returned by PollKey when no key was pressed.
const NoKey = -1

// DefaultTitle is the title of the live view window.
const DefaultTitle = "Realtime"

// Display is where the tracker shows frames and where operator input
// comes from.
type Display interface {
	// Show replaces the image in the live view.
	Show(m gocv.Mat)
	// PollKey returns the key pressed since the last poll, or NoKey. It
	// does not block.
	PollKey() int
	// SelectROI lets the operator draw a rectangle on m. An empty
	// rectangle means the selection was cancelled.
	SelectROI(m gocv.Mat) image.Rectangle
	// ShowDebug shows m in an auxiliary view called name.
	ShowDebug(name string, m gocv.Mat)
	Close() error
}

// Window is a Display backed by OpenCV highgui windows.
type Window struct {
	win   *gocv.Window
	debug map[string]*gocv.Window
}

// NewWindow opens the live view window.
func NewWindow(title string) *Window {
	if title == "" {
		title = DefaultTitle
	}
	return &Window{win: gocv.NewWindow(title), debug: map[string]*gocv.Window{}}
}

func (w *Window) Show(m gocv.Mat) {
	w.win.IMShow(m)
}

// PollKey waits one millisecond for a key, which also lets highgui process
// its events.
func (w *Window) PollKey() int {
	k := w.win.WaitKey(1)
	if k < 0 {
		return NoKey
	}
	return k & 0xFF
}

func (w *Window) SelectROI(m gocv.Mat) image.Rectangle {
	return w.win.SelectROI(m).Canon()
}

func (w *Window) ShowDebug(name string, m gocv.Mat) {
	dw, ok := w.debug[name]
	if !ok {
		dw = gocv.NewWindow(name)
		w.debug[name] = dw
	}
	dw.IMShow(m)
}

// Close destroys the live view and every debug window.
func (w *Window) Close() error {
	var err error
	for name, dw := range w.debug {
		err = multierr.Append(err, dw.Close())
		delete(w.debug, name)
	}
	return multierr.Append(err, w.win.Close())
}

// Inspect shows each of ms in its own numbered window and blocks until a
// key is pressed in any of them.
func Inspect(ms ...gocv.Mat) error {
	if len(ms) == 0 {
		return nil
	}
	windows := make([]*gocv.Window, 0, len(ms))
	for i, m := range ms {
		w := gocv.NewWindow(strconv.Itoa(i))
		w.IMShow(m)
		windows = append(windows, w)
	}
	windows[len(windows)-1].WaitKey(0)
	var err error
	for _, w := range windows {
		err = multierr.Append(err, w.Close())
	}
	return err
}

// Headless is a Display for running without a screen. It shows nothing
// and never reports a key, so a headless session stops only on
// cancellation or a fault.
type Headless struct{}

func (Headless) Show(gocv.Mat)                      {}
func (Headless) PollKey() int                       { return NoKey }
func (Headless) SelectROI(gocv.Mat) image.Rectangle { return image.Rectangle{} }
func (Headless) ShowDebug(string, gocv.Mat)         {}
func (Headless) Close() error                       { return nil }
