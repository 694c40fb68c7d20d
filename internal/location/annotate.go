package location

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// gocv takes RGBA and converts to OpenCV's BGR order itself.
var (
	outlineColor   = color.RGBA{R: 0, G: 0, B: 255}
	crosshairColor = color.RGBA{R: 0, G: 255, B: 0}
	referenceColor = color.RGBA{R: 169, G: 169, B: 169}
)

const (
	lineThickness = 2
	referenceArm  = 5
)

// annotationBase returns a BGR copy of the single-channel image gray.
func annotationBase(gray gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.CvtColor(gray, &out, gocv.ColorGrayToBGR)
	return out
}

// drawCrosshair draws a vertical and a horizontal line through c, each
// spanning the whole image.
func drawCrosshair(im *gocv.Mat, c image.Point) {
	cols, rows := im.Cols(), im.Rows()
	gocv.Line(im, image.Pt(c.X, 0), image.Pt(c.X, rows), crosshairColor, lineThickness)
	gocv.Line(im, image.Pt(0, c.Y), image.Pt(cols, c.Y), crosshairColor, lineThickness)
}

// drawReference draws the small gray crosshair marking the image center.
// It is drawn whether or not a pupil was found.
func drawReference(im *gocv.Mat) {
	cx, cy := im.Cols()/2, im.Rows()/2
	gocv.Line(im, image.Pt(cx-referenceArm, cy), image.Pt(cx+referenceArm, cy), referenceColor, lineThickness)
	gocv.Line(im, image.Pt(cx, cy-referenceArm), image.Pt(cx, cy+referenceArm), referenceColor, lineThickness)
}
