package status

import (
	"fmt"
	"image"
	"image/color"

	"github.com/khaledhikmat/proctor-go/proctor"
)

// OverlayLine is one line of the annotated video overlay.
type OverlayLine struct {
	Text  string
	Color color.RGBA
	Scale float64
	At    image.Point
}

var (
	overlayRed    = color.RGBA{R: 255, A: 255}
	overlayGreen  = color.RGBA{G: 255, A: 255}
	overlayNotice = color.RGBA{G: 255, B: 255, A: 255}
)

// OverlayLines renders a cycle result as the lines drawn on the monitor
// feed, top to bottom.
func OverlayLines(res proctor.CycleResult) []OverlayLine {
	lipColor := overlayGreen
	if res.LipCheating {
		lipColor = overlayRed
	}
	gazeColor := overlayRed
	if res.Gaze.Tracking {
		gazeColor = overlayGreen
	}
	mic := "Not Detected"
	if res.MicAvailable {
		mic = "Active"
	}
	audio := "Silent"
	if res.AudioActive {
		audio = "Detected"
	}

	return []OverlayLine{
		{Text: fmt.Sprintf("Lip Cheating: %s", pyBool(res.LipCheating)), Color: lipColor, Scale: 1, At: image.Pt(10, 30)},
		{Text: fmt.Sprintf("Gaze Tracking: %s", pyBool(res.Gaze.Tracking)), Color: gazeColor, Scale: 0.8, At: image.Pt(10, 70)},
		{Text: fmt.Sprintf("Eye: %s", res.Gaze.Direction), Color: overlayNotice, Scale: 0.8, At: image.Pt(10, 100)},
		{Text: fmt.Sprintf("Person Count: %d", res.PersonCount), Color: overlayNotice, Scale: 0.8, At: image.Pt(10, 130)},
		{Text: fmt.Sprintf("Mic: %s", mic), Color: overlayNotice, Scale: 0.8, At: image.Pt(10, 160)},
		{Text: fmt.Sprintf("Audio: %s", audio), Color: overlayNotice, Scale: 0.8, At: image.Pt(10, 190)},
	}
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
