package location

import (
	"image"
	"math"
	"runtime"

	"gocv.io/x/gocv"
)

// HoughDetector locates the pupil with the edge map intersection and
// circular Hough transform from "Accurate Iris Localization Using Edge Map
// Generation and Adaptive Circular Hough Transform for Less Constrained
// Iris Images" (Kumar, Asati and Gupta).
//
// It is much slower than ContourDetector but does not depend on a fixed
// intensity threshold for the pupil itself.
type HoughDetector struct {
	// CoarseHeight is the height the edge map is shrunk to for the first,
	// exhaustive voting pass.
	CoarseHeight int
	// circlePoints holds the pixel offsets of a circle for each radius
	// tried in the coarse pass.
	circlePoints map[int][]image.Point
}

// NewHoughDetector returns a HoughDetector trying coarse radii 5 to 14 on
// a 60 pixel high copy of the edge map.
func NewHoughDetector() *HoughDetector {
	d := &HoughDetector{CoarseHeight: 60, circlePoints: map[int][]image.Point{}}
	for r := 5; r < 15; r++ {
		d.circlePoints[r] = calcCirclePoints(r)
	}
	return d
}

// Close is a no-op.
func (d *HoughDetector) Close() error { return nil }

// Detect locates the pupil in im.
func (d *HoughDetector) Detect(im gocv.Mat) Result {
	if im.Empty() {
		return Result{Annotated: gocv.NewMat()}
	}
	gray, owned := grayscale(im)
	if owned {
		defer gray.Close()
	}
	cols, rows := gray.Cols(), gray.Rows()

	edge := d.Mask(gray)
	defer edge.Close()

	annotated := annotationBase(gray)
	ret := centered(cols, rows)
	if c, ok := d.bestCircle(edge); ok {
		ret = located(c, cols, rows)
		gocv.Circle(&annotated, c.Point, c.R, outlineColor, lineThickness)
		drawCrosshair(&annotated, c.Point)
	}
	drawReference(&annotated)
	ret.Annotated = annotated
	return ret
}

// Mask returns the edge map the circle search votes on: the AND of an
// edge map of the thresholded, hole-filled pupil and a plain edge map of
// the image. Only the pupil boundary is common to both.
func (d *HoughDetector) Mask(im gocv.Mat) gocv.Mat {
	gray, owned := grayscale(im)
	if owned {
		defer gray.Close()
	}

	// Stretch intensities so the pupil lands in the darkest 10% even on
	// images with a high brightness floor.
	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(gray, &norm, 255, 0, gocv.NormMinMax)

	blur := gocv.NewMat()
	defer blur.Close()
	gocv.GaussianBlur(norm, &blur, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	pupilEdges := pupilEdgeMap(blur)
	defer pupilEdges.Close()
	allEdges := sobelEdge(blur)
	defer allEdges.Close()

	edge := gocv.NewMat()
	gocv.BitwiseAnd(pupilEdges, allEdges, &edge)
	return edge
}

// bestCircle finds the best supported circle in the edge map im. Non-zero
// pixels are candidate circle points.
func (d *HoughDetector) bestCircle(im gocv.Mat) (Circle, bool) {
	small, mult := shrink(im, d.CoarseHeight)
	defer small.Close()

	// Coarse pass: every candidate pixel votes for all centers that would
	// put it on a circle of radius r. Keep the most voted (center, r).
	srows, scols := small.Rows(), small.Cols()
	pix := small.ToBytes()
	votes := make([]int16, srows*scols)
	var (
		winner      Circle
		winnerVotes int16
	)
	for r := 5; r < 15; r++ {
		clear(votes)
		for row := 0; row < srows; row++ {
			for col := 0; col < scols; col++ {
				if pix[row*scols+col] == 0 {
					continue
				}
				for _, cp := range d.circlePoints[r] {
					a, b := row+cp.Y, col+cp.X
					if a < 0 || a >= srows || b < 0 || b >= scols {
						continue
					}
					votes[a*scols+b]++
				}
			}
		}
		for i, v := range votes {
			if v > winnerVotes {
				winner = Circle{Point: image.Pt(i%scols, i/scols), R: r}
				winnerVotes = v
			}
		}
	}
	if winnerVotes == 0 {
		return Circle{}, false
	}

	approx := Circle{
		Point: image.Pt(int(float64(winner.X)*mult), int(float64(winner.Y)*mult)),
		R:     int(float64(winner.R) * mult),
	}
	if mult == 1 {
		return approx, true
	}

	// Fine pass: the coarse answer can be off by up to mult pixels in
	// center and radius, so search that cube exhaustively on the full
	// size edge map.
	rows, cols := im.Rows(), im.Cols()
	full := im.ToBytes()
	u := int(math.Ceil(mult / 2))
	best, bestVotes := approx, 0
	for r := approx.R - u; r < approx.R+u; r++ {
		if r <= 0 {
			continue
		}
		points := calcCirclePoints(r)
		for row := approx.Y - u; row <= approx.Y+u; row++ {
			for col := approx.X - u; col <= approx.X+u; col++ {
				n := 0
				for _, cp := range points {
					a, b := row+cp.Y, col+cp.X
					if a < 0 || a >= rows || b < 0 || b >= cols {
						continue
					}
					if full[a*cols+b] != 0 {
						n++
					}
				}
				if n > bestVotes {
					best, bestVotes = Circle{Point: image.Pt(col, row), R: r}, n
				}
			}
		}
	}
	return best, true
}

// calcCirclePoints computes the distinct (x,y) pixel offsets on a circle
// of radius r.
func calcCirclePoints(r int) []image.Point {
	var (
		ret  []image.Point
		last image.Point
	)
	for i := 0; i < 360; i++ {
		p := image.Pt(
			int(float64(r)*math.Cos(float64(i)*math.Pi/180)),
			int(float64(r)*math.Sin(float64(i)*math.Pi/180)),
		)
		if p != last {
			ret = append(ret, p)
			last = p
		}
	}
	return ret
}

// pupilEdgeMap thresholds src so the pupil is black, fills reflections
// inside it, opens away small noise and returns the edges of what is left.
func pupilEdgeMap(src gocv.Mat) gocv.Mat {
	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(src, &thresh, 25, 255, gocv.ThresholdBinary)

	filled := fillHoles(thresh)
	defer filled.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(7, 7))
	defer kernel.Close()
	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(filled, &opened, gocv.MorphOpen, kernel)

	return sobelEdge(opened)
}

// sobelEdge returns the approximate gradient magnitude of src, stretched
// to the full 8-bit range.
func sobelEdge(src gocv.Mat) gocv.Mat {
	dx := gocv.NewMat()
	defer dx.Close()
	gocv.Sobel(src, &dx, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.ConvertScaleAbs(dx, &dx, 1, 0)

	dy := gocv.NewMat()
	defer dy.Close()
	gocv.Sobel(src, &dy, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)
	gocv.ConvertScaleAbs(dy, &dy, 1, 0)

	// Averaging |dx| and |dy| stands in for the true magnitude.
	ret := gocv.NewMat()
	gocv.AddWeighted(dx, 0.5, dy, 0.5, 0, &ret)
	gocv.Normalize(ret, &ret, 255, 0, gocv.NormMinMax)
	return ret
}

// fillHoles blackens every white region of the binary image src that is
// not connected to the image border. Camera light reflections inside the
// pupil are such regions and would otherwise show up as false circles.
func fillHoles(src gocv.Mat) gocv.Mat {
	rows, cols := src.Rows(), src.Cols()
	pix := src.ToBytes()

	// Flood from every white border pixel; whatever white is not reached
	// is a hole.
	reached := make([]bool, len(pix))
	var stack []int
	push := func(row, col int) {
		i := row*cols + col
		if pix[i] != 0 && !reached[i] {
			reached[i] = true
			stack = append(stack, i)
		}
	}
	for row := 0; row < rows; row++ {
		push(row, 0)
		push(row, cols-1)
	}
	for col := 0; col < cols; col++ {
		push(0, col)
		push(rows-1, col)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		row, col := i/cols, i%cols
		if row > 0 {
			push(row-1, col)
		}
		if row < rows-1 {
			push(row+1, col)
		}
		if col > 0 {
			push(row, col-1)
		}
		if col < cols-1 {
			push(row, col+1)
		}
	}

	for i := range pix {
		if !reached[i] {
			pix[i] = 0
		}
	}
	// The Mat borrows pix; clone it into OpenCV-owned memory.
	borrowed, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8U, pix)
	if err != nil {
		return src.Clone()
	}
	defer borrowed.Close()
	ret := borrowed.Clone()
	runtime.KeepAlive(pix)
	return ret
}

// shrink resizes im down so that its height is at most maxHeight. Returns
// the shrunken image, as well as the factor you'd need to multiply by to
// get back to the original image.
func shrink(im gocv.Mat, maxHeight int) (gocv.Mat, float64) {
	ret := im.Clone()
	mult := float64(1)

	sz := float64(im.Rows())
	tgt := float64(maxHeight)
	if sz > tgt {
		gocv.Resize(ret, &ret, image.Point{}, tgt/sz, tgt/sz, gocv.InterpolationDefault)
		mult = sz / tgt
	}
	return ret, mult
}
