package proctor

import (
	"math"
	"sync/atomic"
)

// RMS computes the root mean square amplitude of the chunk in raw sample units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// AudioDetector turns audio chunks into a binary "sound present" signal.
// It is owned by the audio loop and is not safe for concurrent use.
type AudioDetector struct {
	threshold float64

	// Noise floor calibration
	calibrationChunks int
	calibrationFactor float64
	calibrated        int
	noiseSum          float64
}

func NewAudioDetector(cfg Config) *AudioDetector {
	return &AudioDetector{
		threshold:         cfg.AudioThreshold,
		calibrationChunks: cfg.AudioCalibrationChunks,
		calibrationFactor: cfg.AudioCalibrationFactor,
	}
}

// Threshold is the RMS level currently in effect.
func (a *AudioDetector) Threshold() float64 {
	return a.threshold
}

// Calibrating reports whether the detector is still sampling the noise floor.
func (a *AudioDetector) Calibrating() bool {
	return a.calibrated < a.calibrationChunks
}

// Active reports whether the chunk is louder than the threshold. Chunks seen
// during calibration only feed the noise floor and read as silent.
func (a *AudioDetector) Active(chunk AudioChunk) bool {
	rms := RMS(chunk.Samples)

	if a.Calibrating() {
		a.noiseSum += rms
		a.calibrated++
		if !a.Calibrating() {
			floor := a.noiseSum / float64(a.calibrated) * a.calibrationFactor
			a.threshold = math.Max(a.threshold, floor)
		}
		return false
	}

	return rms > a.threshold
}

// AudioSignal carries the audio loop's latest reading to the video loop.
// Written by exactly one goroutine and read by exactly one other; a stale
// value by one chunk is acceptable.
type AudioSignal struct {
	active    atomic.Bool
	available atomic.Bool
}

// Publish stores the latest audio activity reading.
func (s *AudioSignal) Publish(active bool) {
	s.active.Store(active)
}

// SetAvailable records whether the microphone is delivering chunks.
// Marking it unavailable also clears the activity reading.
func (s *AudioSignal) SetAvailable(ok bool) {
	if !ok {
		s.active.Store(false)
	}
	s.available.Store(ok)
}

// Active is the latest reading, always false while the microphone is unavailable.
func (s *AudioSignal) Active() bool {
	return s.available.Load() && s.active.Load()
}

func (s *AudioSignal) Available() bool {
	return s.available.Load()
}
