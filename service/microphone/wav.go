package microphone

import (
	"math"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/proctor"
)

type wavService struct {
	path       string
	chunkSize  int
	sampleRate int
	realtime   bool

	file     *os.File
	streamer beep.StreamSeekCloser
	source   beep.Streamer
	buf      [][2]float64
	err      error
	next     time.Time
}

// NewWAV replays a recorded WAV file as microphone input, resampled to
// sampleRate. With realtime set, chunks are paced at the rate a live
// device would deliver them.
func NewWAV(path string, chunkSize, sampleRate int, realtime bool) IService {
	return &wavService{
		path:       path,
		chunkSize:  chunkSize,
		sampleRate: sampleRate,
		realtime:   realtime,
	}
}

func (svc *wavService) Open() error {
	f, err := os.Open(svc.path)
	if err != nil {
		return xerrors.Errorf("opening %s: %v: %w", svc.path, err, proctor.ErrDeviceUnavailable)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return xerrors.Errorf("decoding %s: %v: %w", svc.path, err, proctor.ErrDeviceUnavailable)
	}

	svc.file = f
	svc.streamer = streamer
	svc.source = streamer
	if target := beep.SampleRate(svc.sampleRate); format.SampleRate != target {
		svc.source = beep.Resample(4, format.SampleRate, target, streamer)
	}
	svc.buf = make([][2]float64, svc.chunkSize)
	svc.next = time.Now()
	return nil
}

func (svc *wavService) Read() (proctor.AudioChunk, bool) {
	if svc.source == nil || svc.err != nil {
		return proctor.AudioChunk{}, false
	}

	n, ok := svc.source.Stream(svc.buf)
	if !ok || n < len(svc.buf) {
		svc.err = svc.source.Err()
		if !ok || n == 0 {
			return proctor.AudioChunk{}, false
		}
	}

	if svc.realtime {
		svc.next = svc.next.Add(time.Duration(len(svc.buf)) * time.Second / time.Duration(svc.sampleRate))
		time.Sleep(time.Until(svc.next))
	}

	// A short final chunk keeps its own length so padding does not dilute it
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = toInt16((svc.buf[i][0] + svc.buf[i][1]) / 2)
	}
	return proctor.AudioChunk{
		Samples:    samples,
		SampleRate: svc.sampleRate,
		Timestamp:  time.Now(),
	}, true
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * math.MaxInt16))
}

func (svc *wavService) Err() error {
	return svc.err
}

func (svc *wavService) Close() error {
	if svc.streamer == nil {
		return nil
	}
	err := svc.streamer.Close()
	svc.streamer = nil
	svc.source = nil
	if svc.file != nil {
		svc.file.Close()
	}
	return err
}
