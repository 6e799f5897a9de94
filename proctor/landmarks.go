package proctor

import "math"

// Indices into the 68-point facial landmark scheme.
const (
	LandmarkCount = 68

	LeftEyeStart  = 36
	RightEyeStart = 42
	eyePoints     = 6

	InnerLipTop    = 62
	InnerLipBottom = 66
)

// LeftEye returns the six left-eye contour points, or nil when the
// landmark set is too short.
func (d FaceDetection) LeftEye() []Point {
	return d.span(LeftEyeStart, eyePoints)
}

// RightEye returns the six right-eye contour points, or nil.
func (d FaceDetection) RightEye() []Point {
	return d.span(RightEyeStart, eyePoints)
}

func (d FaceDetection) span(start, n int) []Point {
	if len(d.Landmarks) < start+n {
		return nil
	}
	return d.Landmarks[start : start+n]
}

func distance(p1, p2 Point) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func centroid(pts []Point) Point {
	var c Point
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(pts))
	c.Y /= float64(len(pts))
	return c
}
