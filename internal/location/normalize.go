package location

// Normalize maps the pixel coordinate n on an axis of length maxVal
// linearly onto [-10, 10]: 0 maps to -10, maxVal/2 to 0 and maxVal to 10.
//
// Consumers of the coordinate stream rely on this range being independent
// of sensor resolution and ROI size. maxVal <= 0 yields 0.
func Normalize(n, maxVal float64) float64 {
	if maxVal <= 0 {
		return 0
	}
	return -10 + n*(20/maxVal)
}
