package proctor

import (
	"time"

	"golang.org/x/xerrors"
)

// Reference calibration the pixel thresholds were tuned against.
const (
	ReferenceFrameWidth = 640
	referenceLeftBound  = 200
	referenceRightBound = 440
)

// Config holds every policy threshold of the engine.
type Config struct {
	// Gaze
	EARThreshold         float64 `yaml:"earThreshold"`
	GazeLeftRatio        float64 `yaml:"gazeLeftRatio"`  // fraction of frame width
	GazeRightRatio       float64 `yaml:"gazeRightRatio"` // fraction of frame width
	OffCenterIsDeviation bool    `yaml:"offCenterIsDeviation"`
	GazeDebounceCycles   int     `yaml:"gazeDebounceCycles"`

	// Lips
	LipThreshold float64 `yaml:"lipThreshold"` // pixels between landmarks 62 and 66

	// Audio
	AudioThreshold         float64 `yaml:"audioThreshold"` // RMS in raw sample units
	AudioCalibrationChunks int     `yaml:"audioCalibrationChunks"`
	AudioCalibrationFactor float64 `yaml:"audioCalibrationFactor"`

	// Smoothing
	WindowSize  int     `yaml:"windowSize"`
	WindowRatio float64 `yaml:"windowRatio"`

	// Persons
	MatchIoU             float64 `yaml:"matchIoU"`
	MaxPersons           int     `yaml:"maxPersons"`
	PersonDebounceCycles int     `yaml:"personDebounceCycles"` // 0 disables the rule

	DetectionTimeout time.Duration `yaml:"detectionTimeout"`
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		EARThreshold:           0.25,
		GazeLeftRatio:          float64(referenceLeftBound) / ReferenceFrameWidth,
		GazeRightRatio:         float64(referenceRightBound) / ReferenceFrameWidth,
		OffCenterIsDeviation:   true,
		GazeDebounceCycles:     15,
		LipThreshold:           3,
		AudioThreshold:         300,
		AudioCalibrationChunks: 0,
		AudioCalibrationFactor: 2.0,
		WindowSize:             15,
		WindowRatio:            0.4,
		MatchIoU:               0.3,
		MaxPersons:             1,
		PersonDebounceCycles:   15,
		DetectionTimeout:       2 * time.Second,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return xerrors.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.WindowRatio < 0 || c.WindowRatio >= 1 {
		return xerrors.Errorf("window ratio must be in [0,1), got %f", c.WindowRatio)
	}
	if c.GazeLeftRatio < 0 || c.GazeRightRatio > 1 || c.GazeLeftRatio >= c.GazeRightRatio {
		return xerrors.Errorf("gaze ratios must satisfy 0 <= left < right <= 1, got %f/%f", c.GazeLeftRatio, c.GazeRightRatio)
	}
	if c.GazeDebounceCycles < 1 {
		return xerrors.Errorf("gaze debounce must be at least 1 cycle, got %d", c.GazeDebounceCycles)
	}
	if c.PersonDebounceCycles < 0 || c.MaxPersons < 1 {
		return xerrors.Errorf("invalid person policy: max=%d debounce=%d", c.MaxPersons, c.PersonDebounceCycles)
	}
	if c.MatchIoU <= 0 || c.MatchIoU > 1 {
		return xerrors.Errorf("match IoU must be in (0,1], got %f", c.MatchIoU)
	}
	if c.DetectionTimeout <= 0 {
		return xerrors.Errorf("detection timeout must be positive, got %s", c.DetectionTimeout)
	}
	return nil
}
