package proctor

import "math"

// GazeClassifier derives eye openness and horizontal gaze direction
// from the two 6-point eye contours.
type GazeClassifier struct {
	EARThreshold float64
	LeftRatio    float64
	RightRatio   float64
}

func NewGazeClassifier(cfg Config) GazeClassifier {
	return GazeClassifier{
		EARThreshold: cfg.EARThreshold,
		LeftRatio:    cfg.GazeLeftRatio,
		RightRatio:   cfg.GazeRightRatio,
	}
}

// EyeAspectRatio is the corner-to-corner distance over the eyelid opening
// (points 0-3 over points 1-5). A closed lid yields +Inf.
func EyeAspectRatio(eye []Point) float64 {
	if len(eye) < eyePoints {
		return 0
	}
	horizontal := distance(eye[0], eye[3])
	vertical := distance(eye[1], eye[5])
	if vertical == 0 {
		return math.Inf(1)
	}
	return horizontal / vertical
}

// Classify returns the gaze state for one face in a frame of the given width.
// A nil face gives the default state.
func (g GazeClassifier) Classify(face *FaceDetection, frameWidth int) GazeState {
	if face == nil {
		return GazeState{}
	}
	left, right := face.LeftEye(), face.RightEye()
	if left == nil || right == nil {
		return GazeState{}
	}

	if EyeAspectRatio(left) <= g.EARThreshold || EyeAspectRatio(right) <= g.EARThreshold {
		return GazeState{}
	}

	eyeCenterX := (centroid(left).X + centroid(right).X) / 2
	return GazeState{
		Tracking:  true,
		Direction: g.direction(eyeCenterX, frameWidth),
	}
}

func (g GazeClassifier) direction(x float64, frameWidth int) Direction {
	if frameWidth <= 0 {
		frameWidth = ReferenceFrameWidth
	}
	w := float64(frameWidth)
	switch {
	case x < g.LeftRatio*w:
		return Left
	case x > g.RightRatio*w:
		return Right
	default:
		return Center
	}
}
