package proctor

import "math"

// LipDetector flags an open mouth from the inner-lip landmark gap.
type LipDetector struct {
	Threshold float64
}

func NewLipDetector(cfg Config) LipDetector {
	return LipDetector{Threshold: cfg.LipThreshold}
}

// Open reports whether the inner lips of face are further apart than the
// threshold. A nil face is closed.
func (l LipDetector) Open(face *FaceDetection) bool {
	if face == nil || len(face.Landmarks) <= InnerLipBottom {
		return false
	}
	gap := math.Abs(face.Landmarks[InnerLipTop].Y - face.Landmarks[InnerLipBottom].Y)
	return gap > l.Threshold
}
