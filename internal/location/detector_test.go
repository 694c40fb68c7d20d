package location

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// eyeImage returns a rows x cols gray image of intensity bg with a filled
// disk of intensity fg for each circle.
func eyeImage(t *testing.T, cols, rows int, bg, fg uint8, circles ...Circle) gocv.Mat {
	t.Helper()
	im := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(bg), 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
	for _, c := range circles {
		gocv.Circle(&im, c.Point, c.R, color.RGBA{R: fg, G: fg, B: fg}, -1)
	}
	t.Cleanup(func() { im.Close() })
	return im
}

func within(t *testing.T, want, got, tol int, msg string) {
	t.Helper()
	assert.LessOrEqual(t, math.Abs(float64(want-got)), float64(tol), "%s: want %d, got %d", msg, want, got)
}

func TestContourDetectorUniformImage(t *testing.T) {
	d := NewContourDetector(0)
	defer d.Close()

	for _, size := range []image.Point{{540, 720}, {101, 57}} {
		im := eyeImage(t, size.X, size.Y, 128, 128)
		res := d.Detect(im)

		assert.False(t, res.Found)
		assert.Equal(t, 0, res.Pupil.R)
		assert.InDelta(t, 0, res.X, 1e-9)
		assert.InDelta(t, 0, res.Y, 1e-9)
		assert.Equal(t, image.Pt(size.X/2, size.Y/2), res.Pupil.Point)

		require.False(t, res.Annotated.Empty())
		assert.Equal(t, 3, res.Annotated.Channels())
		assert.Equal(t, size.X, res.Annotated.Cols())
		assert.Equal(t, size.Y, res.Annotated.Rows())
		require.NoError(t, res.Close())
	}
}

func TestContourDetectorDisk(t *testing.T) {
	tests := []struct {
		name       string
		cols, rows int
		pupil      Circle
	}{
		{name: "centered", cols: 200, rows: 150, pupil: Circle{Point: image.Pt(100, 75), R: 20}},
		{name: "top left", cols: 200, rows: 150, pupil: Circle{Point: image.Pt(40, 35), R: 15}},
		{name: "large", cols: 540, rows: 720, pupil: Circle{Point: image.Pt(300, 410), R: 60}},
	}

	d := NewContourDetector(DefaultThreshold)
	defer d.Close()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			im := eyeImage(t, tc.cols, tc.rows, 200, 0, tc.pupil)
			res := d.Detect(im)
			defer res.Close()

			require.True(t, res.Found)
			within(t, tc.pupil.X, res.Pupil.X, 2, "center x")
			within(t, tc.pupil.Y, res.Pupil.Y, 2, "center y")
			within(t, tc.pupil.R, res.Pupil.R, 2, "radius")

			assert.InDelta(t, Normalize(float64(tc.pupil.X), float64(tc.cols)), res.X, 20.0*2/float64(tc.cols))
			assert.InDelta(t, Normalize(float64(tc.pupil.Y), float64(tc.rows)), res.Y, 20.0*2/float64(tc.rows))
			assert.Equal(t, Normalize(float64(res.Pupil.X), float64(tc.cols)), res.X)
		})
	}
}

func TestContourDetectorPicksLargestBlob(t *testing.T) {
	d := NewContourDetector(0)
	defer d.Close()

	small := Circle{Point: image.Pt(40, 40), R: 8}
	big := Circle{Point: image.Pt(140, 90), R: 25}
	im := eyeImage(t, 200, 150, 200, 0, small, big)
	res := d.Detect(im)
	defer res.Close()

	require.True(t, res.Found)
	within(t, big.X, res.Pupil.X, 2, "center x")
	within(t, big.Y, res.Pupil.Y, 2, "center y")
}

func TestContourDetectorIgnoresGrayPupil(t *testing.T) {
	d := NewContourDetector(0)
	defer d.Close()

	// 60 inverts to 195, below the threshold.
	im := eyeImage(t, 200, 150, 200, 60, Circle{Point: image.Pt(100, 75), R: 20})
	res := d.Detect(im)
	defer res.Close()

	assert.False(t, res.Found)
	assert.Equal(t, 0, res.Pupil.R)
}

func TestContourDetectorColorInput(t *testing.T) {
	d := NewContourDetector(0)
	defer d.Close()

	gray := eyeImage(t, 200, 150, 200, 0, Circle{Point: image.Pt(120, 60), R: 18})
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)

	res := d.Detect(bgr)
	defer res.Close()
	require.True(t, res.Found)
	within(t, 120, res.Pupil.X, 2, "center x")
	within(t, 60, res.Pupil.Y, 2, "center y")
}

func TestContourDetectorMask(t *testing.T) {
	d := NewContourDetector(0)
	defer d.Close()

	im := eyeImage(t, 100, 80, 200, 0, Circle{Point: image.Pt(50, 40), R: 10})
	mask := d.Mask(im)
	defer mask.Close()

	assert.Equal(t, 1, mask.Channels())
	assert.Equal(t, uint8(255), mask.GetUCharAt(40, 50))
	assert.Equal(t, uint8(0), mask.GetUCharAt(5, 5))
}

func TestDetectEmptyImage(t *testing.T) {
	for _, name := range Strategies() {
		d, err := New(name, Options{})
		require.NoError(t, err)

		empty := gocv.NewMat()
		res := d.Detect(empty)
		assert.False(t, res.Found, name)
		assert.True(t, res.Annotated.Empty(), name)
		require.NoError(t, res.Close())
		require.NoError(t, empty.Close())
		require.NoError(t, d.Close())
	}
}

func TestBoundingBoxDetectorDisk(t *testing.T) {
	d := NewBoundingBoxDetector()
	defer d.Close()

	pupil := Circle{Point: image.Pt(70, 90), R: 22}
	im := eyeImage(t, 200, 150, 200, 10, pupil)
	res := d.Detect(im)
	defer res.Close()

	require.True(t, res.Found)
	within(t, pupil.X, res.Pupil.X, 2, "center x")
	within(t, pupil.Y, res.Pupil.Y, 2, "center y")
	within(t, pupil.R, res.Pupil.R, 3, "radius")
}

func TestBoundingBoxDetectorUniformImage(t *testing.T) {
	d := NewBoundingBoxDetector()
	defer d.Close()

	res := d.Detect(eyeImage(t, 200, 150, 200, 200))
	defer res.Close()
	assert.False(t, res.Found)
	assert.InDelta(t, 0, res.X, 1e-9)
	assert.InDelta(t, 0, res.Y, 1e-9)
}

func TestHoughDetectorDisk(t *testing.T) {
	d := NewHoughDetector()
	defer d.Close()

	pupil := Circle{Point: image.Pt(80, 60), R: 16}
	im := eyeImage(t, 160, 120, 200, 10, pupil)
	res := d.Detect(im)
	defer res.Close()

	require.True(t, res.Found)
	within(t, pupil.X, res.Pupil.X, pupil.R/2, "center x")
	within(t, pupil.Y, res.Pupil.Y, pupil.R/2, "center y")
}

func TestCalcCirclePoints(t *testing.T) {
	for _, r := range []int{5, 9, 14} {
		points := calcCirclePoints(r)
		require.NotEmpty(t, points)
		for _, p := range points {
			d := math.Hypot(float64(p.X), float64(p.Y))
			assert.InDelta(t, float64(r), d, 1.5, "point %v off the r=%d circle", p, r)
		}
	}
}

func TestLargestContourTieBreak(t *testing.T) {
	square := func(x, y, side int) []image.Point {
		return []image.Point{{x, y}, {x + side, y}, {x + side, y + side}, {x, y + side}}
	}

	tests := []struct {
		name     string
		contours [][]image.Point
		want     int
	}{
		{name: "none", want: -1},
		{name: "equal areas keep first", contours: [][]image.Point{square(0, 0, 10), square(20, 20, 10)}, want: 0},
		{name: "larger later wins", contours: [][]image.Point{square(0, 0, 10), square(20, 20, 11), square(50, 50, 11)}, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pv := gocv.NewPointsVectorFromPoints(tc.contours)
			defer pv.Close()
			assert.Equal(t, tc.want, largestContour(pv))
		})
	}
}

func TestNew(t *testing.T) {
	assert.Equal(t, []string{StrategyBoundingBox, StrategyContour, StrategyHough}, Strategies())

	d, err := New(StrategyContour, Options{Threshold: 200})
	require.NoError(t, err)
	defer d.Close()
	cd, ok := d.(*ContourDetector)
	require.True(t, ok)
	assert.Equal(t, 200.0, cd.threshold)
	_, ok = d.(Debugger)
	assert.True(t, ok)

	_, err = New("ellipse", Options{})
	assert.ErrorContains(t, err, "unknown detector")
}

func TestCircleString(t *testing.T) {
	assert.Equal(t, "(3,4,5)", Circle{Point: image.Pt(3, 4), R: 5}.String())
}
