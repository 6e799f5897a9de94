package microphone

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/khaledhikmat/proctor-go/proctor"
)

// IService is a source of fixed-size mono PCM chunks. Read returning false
// means end of stream or a device fault; the caller stops reading.
type IService interface {
	Open() error
	Read() (proctor.AudioChunk, bool)
	Err() error
	Close() error
}

// pcmReader cuts a raw s16le byte stream into chunks.
type pcmReader struct {
	r          io.Reader
	chunkSize  int
	sampleRate int
	buf        []byte
	err        error
}

func newPCMReader(r io.Reader, chunkSize, sampleRate int) *pcmReader {
	return &pcmReader{
		r:          r,
		chunkSize:  chunkSize,
		sampleRate: sampleRate,
		buf:        make([]byte, 2*chunkSize),
	}
}

func (p *pcmReader) read() (proctor.AudioChunk, bool) {
	if p.err != nil {
		return proctor.AudioChunk{}, false
	}
	if _, err := io.ReadFull(p.r, p.buf); err != nil {
		// A short trailing chunk is dropped with the end of stream
		p.err = err
		return proctor.AudioChunk{}, false
	}

	samples := make([]int16, p.chunkSize)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(p.buf[2*i:]))
	}
	return proctor.AudioChunk{
		Samples:    samples,
		SampleRate: p.sampleRate,
		Timestamp:  time.Now(),
	}, true
}

// streamErr reports the error that ended the stream; a clean end is nil.
func (p *pcmReader) streamErr() error {
	if p.err == io.EOF || p.err == io.ErrUnexpectedEOF {
		return nil
	}
	return p.err
}
