package location

import (
	"image"

	"gocv.io/x/gocv"
)

// BoundingBoxDetector takes the bounding rectangle of the largest dark
// region after a blur and a low inverted threshold. It is cheaper and
// less precise than ContourDetector and tolerates softer pupil edges.
type BoundingBoxDetector struct {
	Blur      image.Point
	Threshold float32
}

// NewBoundingBoxDetector returns a BoundingBoxDetector with a 7x7 blur and
// a threshold of 35.
func NewBoundingBoxDetector() *BoundingBoxDetector {
	return &BoundingBoxDetector{Blur: image.Pt(7, 7), Threshold: 35}
}

// Close is a no-op.
func (d *BoundingBoxDetector) Close() error { return nil }

// Mask returns the inverted binary image the detector searches.
func (d *BoundingBoxDetector) Mask(im gocv.Mat) gocv.Mat {
	gray, owned := grayscale(im)
	if owned {
		defer gray.Close()
	}
	blur := gocv.NewMat()
	defer blur.Close()
	gocv.GaussianBlur(gray, &blur, d.Blur, 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	gocv.Threshold(blur, &mask, d.Threshold, 255, gocv.ThresholdBinaryInv)
	return mask
}

// Detect locates the pupil in im. The reported radius is half the longer
// side of the bounding rectangle.
func (d *BoundingBoxDetector) Detect(im gocv.Mat) Result {
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
	contours := gocv.FindContours(mask, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	annotated := annotationBase(gray)
	ret := centered(cols, rows)
	if i := largestContour(contours); i >= 0 {
		box := gocv.BoundingRect(contours.At(i))
		c := Circle{
			Point: image.Pt(box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2),
			R:     max(box.Dx(), box.Dy()) / 2,
		}
		ret = located(c, cols, rows)
		gocv.Rectangle(&annotated, box, outlineColor, lineThickness)
		drawCrosshair(&annotated, c.Point)
	}
	drawReference(&annotated)
	ret.Annotated = annotated
	return ret
}
