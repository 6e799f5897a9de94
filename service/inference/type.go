package inference

import "github.com/khaledhikmat/proctor-go/proctor"

// IService is a face and landmark detector the video loop can drive.
// There should be more input to CanSkipFrame than just frames
type IService interface {
	proctor.Detector
	CanSkipFrame(frames int) bool
	Close() error
}

// canSkip evaluates every stride-th frame.
func canSkip(frames, stride int) bool {
	if stride <= 1 {
		return false
	}
	return frames%stride != 0
}
