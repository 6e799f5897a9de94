package proctor

import (
	"context"
	"image"
	"sync"
)

// eye returns a 6-point contour centred on (cx, cy). Open eyes have a short
// lid-to-lid span relative to the corner span.
func eye(cx, cy float64, open bool) []Point {
	lid := 2.0
	if !open {
		lid = 50
	}
	return []Point{
		{cx - 10, cy},
		{cx - 3, cy - lid},
		{cx + 3, cy - lid},
		{cx + 10, cy},
		{cx + 3, cy + lid},
		{cx - 3, cy + lid},
	}
}

// testFace builds a 68-landmark face whose eye centre sits at eyeX and whose
// inner lips are lipGap pixels apart.
func testFace(box image.Rectangle, eyeX float64, open bool, lipGap float64) FaceDetection {
	lm := make([]Point, LandmarkCount)
	copy(lm[LeftEyeStart:], eye(eyeX-30, 200, open))
	copy(lm[RightEyeStart:], eye(eyeX+30, 200, open))
	lm[InnerLipTop] = Point{X: eyeX, Y: 300}
	lm[InnerLipBottom] = Point{X: eyeX, Y: 300 + lipGap}
	return FaceDetection{Box: box, Landmarks: lm}
}

func boxAt(x, y int) image.Rectangle {
	return image.Rect(x, y, x+100, y+100)
}

func testFrame() Frame {
	return Frame{Data: []byte{0xff, 0xd8}, Width: 640, Height: 480}
}

// scriptedDetector returns queued results in order, then no faces.
type scriptedDetector struct {
	mu    sync.Mutex
	steps []detectStep
}

type detectStep struct {
	faces []FaceDetection
	err   error
	block bool // wait for the context deadline
}

func (d *scriptedDetector) push(steps ...detectStep) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.steps = append(d.steps, steps...)
}

func (d *scriptedDetector) Detect(ctx context.Context, _ Frame) ([]FaceDetection, error) {
	d.mu.Lock()
	var step detectStep
	if len(d.steps) > 0 {
		step = d.steps[0]
		d.steps = d.steps[1:]
	}
	d.mu.Unlock()

	if step.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return step.faces, step.err
}
