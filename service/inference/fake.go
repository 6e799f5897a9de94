package inference

import (
	"context"
	"sync"

	"github.com/khaledhikmat/proctor-go/proctor"
)

type fakeService struct {
	mu     sync.Mutex
	script [][]proctor.FaceDetection
	next   int
	stride int
}

// NewFake replays script one entry per call, looping. An empty script
// never sees a face.
func NewFake(stride int, script ...[]proctor.FaceDetection) IService {
	return &fakeService{
		script: script,
		stride: stride,
	}
}

func (svc *fakeService) Detect(ctx context.Context, _ proctor.Frame) ([]proctor.FaceDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if len(svc.script) == 0 {
		return nil, nil
	}
	faces := svc.script[svc.next%len(svc.script)]
	svc.next++
	return faces, nil
}

func (svc *fakeService) CanSkipFrame(frames int) bool {
	return canSkip(frames, svc.stride)
}

func (svc *fakeService) Close() error {
	return nil
}
