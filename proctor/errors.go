package proctor

import "golang.org/x/xerrors"

var (
	// ErrDeviceUnavailable is returned when a camera or microphone cannot be opened.
	// Fatal for the camera, degrading for the microphone.
	ErrDeviceUnavailable = xerrors.New("capture device unavailable")

	// ErrFrameDecode marks a single malformed frame. The cycle is skipped.
	ErrFrameDecode = xerrors.New("frame could not be decoded")

	// ErrDetectionTimeout marks a detection call that outlived its per-frame deadline.
	// The cycle proceeds with zero detections.
	ErrDetectionTimeout = xerrors.New("face detection deadline exceeded")
)
