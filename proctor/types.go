package proctor

import (
	"encoding/json"
	"fmt"
	"image"
	"time"
)

// Frame is one captured video frame, JPEG-encoded for the landmark engine.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// Valid reports whether the frame carries decodable content.
func (f Frame) Valid() bool {
	return len(f.Data) > 0 && f.Width > 0 && f.Height > 0
}

// AudioChunk is a fixed-size run of 16-bit mono PCM samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Timestamp  time.Time
}

// Point is a landmark position in frame pixel coordinates.
type Point struct {
	X, Y float64
}

// FaceDetection is one face located in one frame. It is only meaningful
// for the frame it came from.
type FaceDetection struct {
	Box       image.Rectangle
	Landmarks []Point
}

// ID identifies the detection by its bounding region.
func (d FaceDetection) ID() string {
	return fmt.Sprintf("%d,%d,%d,%d", d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y)
}

// Area is the bounding box area in pixels.
func (d FaceDetection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

type Direction int

const (
	Center Direction = iota
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "Left"
	case Right:
		return "Right"
	default:
		return "Center"
	}
}

// GazeState is the per-frame gaze reading. The zero value is the
// "no face" state: not tracking, looking Center.
type GazeState struct {
	Tracking  bool      `json:"tracking"`
	Direction Direction `json:"-"`
}

func (g GazeState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tracking  bool   `json:"tracking"`
		Direction string `json:"direction"`
	}{g.Tracking, g.Direction.String()})
}

type Category int

const (
	GazeMovement Category = iota
	LipMovement
	MultiplePersons
)

func (c Category) String() string {
	switch c {
	case GazeMovement:
		return "Gaze Movement"
	case LipMovement:
		return "Lip Movement"
	case MultiplePersons:
		return "Multiple Persons"
	default:
		return "Unknown"
	}
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Gaze Movement":
		*c = GazeMovement
	case "Lip Movement":
		*c = LipMovement
	case "Multiple Persons":
		*c = MultiplePersons
	default:
		return fmt.Errorf("unknown cheating category %q", string(text))
	}
	return nil
}

// CheatingEvent is an immutable record of one positive decision cycle.
type CheatingEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"type"`
}
