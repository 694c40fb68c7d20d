// Package location finds the pupil in a grayscale eye image.
//
// Several strategies are available behind the Detector interface. All of
// them take a single-channel image (typically the ROI crop of a camera
// frame) and return the pupil center in normalized coordinates, its radius
// in pixels and an annotated BGR copy of the input.
package location

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// Circle is a circle in pixel coordinates.
type Circle struct {
	image.Point
	R int
}

func (p Circle) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.R)
}

// Result is the outcome of locating a pupil in one image.
type Result struct {
	// X and Y are the pupil center, normalized with Normalize against the
	// image width and height.
	X, Y float64
	// Pupil is the center and radius in pixels. R is 0 when nothing was
	// found.
	Pupil Circle
	Found bool
	// Annotated is a BGR copy of the input with the detection drawn on
	// it. The caller owns it and must Close it.
	Annotated gocv.Mat
}

// Close releases the annotated image.
func (r Result) Close() error {
	return r.Annotated.Close()
}

// Detector locates a pupil in a single-channel image.
//
// Not finding a pupil is a valid outcome, not an error: the result then
// has radius 0 and the image center as its position.
type Detector interface {
	Detect(im gocv.Mat) Result
	Close() error
}

// Debugger is implemented by detectors that can expose the binary image
// they search, for display next to the annotated preview.
type Debugger interface {
	Mask(im gocv.Mat) gocv.Mat
}

// Options tunes the detectors built by New.
type Options struct {
	// Threshold is the binary threshold of the contour detector, applied
	// after inversion. Zero means DefaultThreshold.
	Threshold float64
}

// Strategy names accepted by New.
const (
	StrategyContour     = "contour"
	StrategyBoundingBox = "bbox"
	StrategyHough       = "hough"
)

var strategies = map[string]func(Options) Detector{
	StrategyContour:     func(o Options) Detector { return NewContourDetector(o.Threshold) },
	StrategyBoundingBox: func(Options) Detector { return NewBoundingBoxDetector() },
	StrategyHough:       func(Options) Detector { return NewHoughDetector() },
}

// New returns the detector registered under name.
func New(name string, opts Options) (Detector, error) {
	mk, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown detector %q (want one of %v)", name, Strategies())
	}
	return mk(opts), nil
}

// Strategies lists the registered detector names.
func Strategies() []string {
	ret := make([]string, 0, len(strategies))
	for name := range strategies {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// centered returns the "nothing found" result for an image of the given
// size: the exact image center, radius 0.
func centered(cols, rows int) Result {
	return Result{
		X:     Normalize(float64(cols)/2, float64(cols)),
		Y:     Normalize(float64(rows)/2, float64(rows)),
		Pupil: Circle{Point: image.Pt(cols/2, rows/2)},
	}
}

// located fills in a result for a pupil found at c.
func located(c Circle, cols, rows int) Result {
	return Result{
		X:     Normalize(float64(c.X), float64(cols)),
		Y:     Normalize(float64(c.Y), float64(rows)),
		Pupil: c,
		Found: true,
	}
}

// grayscale returns im as a single-channel image. The second return value
// reports whether a new Mat was allocated that the caller must close.
func grayscale(im gocv.Mat) (gocv.Mat, bool) {
	switch im.Channels() {
	case 3:
		gray := gocv.NewMat()
		gocv.CvtColor(im, &gray, gocv.ColorBGRToGray)
		return gray, true
	case 4:
		gray := gocv.NewMat()
		gocv.CvtColor(im, &gray, gocv.ColorBGRAToGray)
		return gray, true
	}
	return im, false
}

// largestContour returns the index of the contour with the largest area,
// or -1 if there are none. Ties go to the contour extracted first.
func largestContour(contours gocv.PointsVector) int {
	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if best < 0 || area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
