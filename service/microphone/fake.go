package microphone

import (
	"time"

	"github.com/khaledhikmat/proctor-go/proctor"
)

type fakeService struct {
	chunks  []proctor.AudioChunk
	next    int
	openErr error
	opened  bool
}

// NewFake delivers chunks once, in order, then reports end of stream.
// A non-nil openErr makes Open fail, as an absent device would.
func NewFake(openErr error, chunks ...proctor.AudioChunk) IService {
	return &fakeService{chunks: chunks, openErr: openErr}
}

func (svc *fakeService) Open() error {
	if svc.openErr != nil {
		return svc.openErr
	}
	svc.opened = true
	return nil
}

func (svc *fakeService) Read() (proctor.AudioChunk, bool) {
	if !svc.opened || svc.next >= len(svc.chunks) {
		return proctor.AudioChunk{}, false
	}
	c := svc.chunks[svc.next]
	svc.next++
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	return c, true
}

func (svc *fakeService) Err() error {
	return nil
}

func (svc *fakeService) Close() error {
	svc.opened = false
	return nil
}
