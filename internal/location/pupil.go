package location

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// DefaultThreshold is the intensity, after inversion, above which a pixel
// is considered part of the pupil.
const DefaultThreshold = 220

// ContourDetector finds the pupil as the largest dark blob in the image,
// and fits the smallest circle enclosing it.
//
// The pupil is the darkest thing in the images we get, so the image is
// inverted and thresholded high: what survives is the formerly darkest
// pixels.
type ContourDetector struct {
	threshold float64
	kernel    gocv.Mat
}

// NewContourDetector returns a ContourDetector thresholding at threshold,
// or DefaultThreshold if threshold is zero.
func NewContourDetector(threshold float64) *ContourDetector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &ContourDetector{
		threshold: threshold,
		kernel:    gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2)),
	}
}

// Close releases the erosion kernel.
func (d *ContourDetector) Close() error {
	return d.kernel.Close()
}

// Mask returns the binary image the detector extracts contours from.
func (d *ContourDetector) Mask(im gocv.Mat) gocv.Mat {
	gray, owned := grayscale(im)
	if owned {
		defer gray.Close()
	}

	inv := gocv.NewMat()
	defer inv.Close()
	gocv.BitwiseNot(gray, &inv)

	// A single 2x2 erosion removes isolated speckle before thresholding.
	eroded := gocv.NewMat()
	defer eroded.Close()
	gocv.Erode(inv, &eroded, d.kernel)

	mask := gocv.NewMat()
	gocv.Threshold(eroded, &mask, float32(d.threshold), 255, gocv.ThresholdBinary)
	return mask
}

// Detect locates the pupil in im.
func (d *ContourDetector) Detect(im gocv.Mat) Result {
	if im.Empty() {
		return Result{Annotated: gocv.NewMat()}
	}
	gray, owned := grayscale(im)
	if owned {
		defer gray.Close()
	}
	cols, rows := gray.Cols(), gray.Rows()

	mask := d.Mask(gray)
	defer mask.Close()
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	annotated := annotationBase(gray)
	ret := centered(cols, rows)
	if i := largestContour(contours); i >= 0 {
		x, y, r := gocv.MinEnclosingCircle(contours.At(i))
		c := Circle{
			Point: image.Pt(int(math.Round(float64(x))), int(math.Round(float64(y)))),
			R:     max(int(math.Round(float64(r))), 0),
		}
		ret = located(c, cols, rows)
		gocv.Circle(&annotated, c.Point, c.R, outlineColor, lineThickness)
		drawCrosshair(&annotated, c.Point)
	}
	drawReference(&annotated)
	ret.Annotated = annotated
	return ret
}
