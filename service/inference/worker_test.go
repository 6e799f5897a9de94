package inference

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/proctor"
)

// mockCloser lets in-memory buffers stand in for the worker's pipes.
type mockCloser struct {
	*bytes.Buffer
}

func (m *mockCloser) Close() error { return nil }

func frame(data ...byte) proctor.Frame {
	return proctor.Frame{Data: data, Width: 640, Height: 480}
}

// respond frames a response body with its length header.
func respond(dst io.Writer, body []byte) {
	binary.Write(dst, binary.BigEndian, uint32(len(body)))
	dst.Write(body)
}

func facesBody(faces ...proctor.FaceDetection) []byte {
	b := new(bytes.Buffer)
	b.WriteByte(statusFaces)
	binary.Write(b, binary.BigEndian, uint32(len(faces)))
	for _, f := range faces {
		binary.Write(b, binary.BigEndian, [4]int32{int32(f.Box.Min.X), int32(f.Box.Min.Y), int32(f.Box.Max.X), int32(f.Box.Max.Y)})
		binary.Write(b, binary.BigEndian, uint32(len(f.Landmarks)))
		for _, p := range f.Landmarks {
			binary.Write(b, binary.BigEndian, [2]int32{int32(p.X), int32(p.Y)})
		}
	}
	return b.Bytes()
}

func TestCommunicateFaces(t *testing.T) {
	stdin := &mockCloser{Buffer: new(bytes.Buffer)}
	data := &mockCloser{Buffer: new(bytes.Buffer)}

	want := proctor.FaceDetection{
		Box:       image.Rect(10, 20, 110, 140),
		Landmarks: make([]proctor.Point, proctor.LandmarkCount),
	}
	want.Landmarks[proctor.InnerLipTop] = proctor.Point{X: 60, Y: 100}
	want.Landmarks[proctor.InnerLipBottom] = proctor.Point{X: 60, Y: 108}
	respond(data, facesBody(want))

	p := &landmarkProcess{stdin: stdin, data: data}
	input := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	faces, err := p.communicate(input)
	require.NoError(t, err)

	// Request is [len][jpeg]
	sent := stdin.Bytes()
	require.Len(t, sent, 4+len(input))
	assert.Equal(t, uint32(len(input)), binary.BigEndian.Uint32(sent[:4]))
	assert.Equal(t, input, sent[4:])

	require.Len(t, faces, 1)
	assert.Equal(t, want, faces[0])
}

func TestCommunicateNoFaces(t *testing.T) {
	data := &mockCloser{Buffer: new(bytes.Buffer)}
	respond(data, facesBody())

	p := &landmarkProcess{stdin: &mockCloser{Buffer: new(bytes.Buffer)}, data: data}
	faces, err := p.communicate([]byte("frame"))
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestCommunicateErrors(t *testing.T) {
	engineErr := new(bytes.Buffer)
	engineErr.WriteByte(statusError)
	msg := "shape predictor not loaded"
	binary.Write(engineErr, binary.BigEndian, uint32(len(msg)))
	engineErr.WriteString(msg)

	tests := []struct {
		name  string
		body  []byte
		check func(t *testing.T, err error)
	}{
		{"engine error", engineErr.Bytes(), func(t *testing.T, err error) {
			assert.EqualError(t, err, "landmark worker error: "+msg)
		}},
		{"decode error", []byte{statusDecodeError}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, proctor.ErrFrameDecode)
		}},
		{"unknown status", []byte{9}, func(t *testing.T, err error) {
			assert.Error(t, err)
		}},
		{"truncated faces", []byte{statusFaces, 0, 0, 0, 1, 0}, func(t *testing.T, err error) {
			assert.Error(t, err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &mockCloser{Buffer: new(bytes.Buffer)}
			respond(data, tt.body)
			p := &landmarkProcess{stdin: &mockCloser{Buffer: new(bytes.Buffer)}, data: data}
			_, err := p.communicate([]byte("frame"))
			tt.check(t, err)
		})
	}
}

func TestCommunicateClosedPipe(t *testing.T) {
	p := &landmarkProcess{stdin: &mockCloser{Buffer: new(bytes.Buffer)}, data: &mockCloser{Buffer: new(bytes.Buffer)}}
	_, err := p.communicate([]byte("frame"))
	assert.ErrorIs(t, err, io.EOF)
}

// nopWriteCloser swallows requests.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestWorkerRestartsAfterTimeout(t *testing.T) {
	spawned := 0
	var hung *io.PipeReader
	svc := &workerService{
		spawn: func() (*landmarkProcess, error) {
			spawned++
			if spawned == 1 {
				// First engine never answers.
				r, _ := io.Pipe()
				hung = r
				return &landmarkProcess{stdin: nopWriteCloser{io.Discard}, data: r}, nil
			}
			data := &mockCloser{Buffer: new(bytes.Buffer)}
			respond(data, facesBody(proctor.FaceDetection{Box: image.Rect(0, 0, 50, 50)}))
			return &landmarkProcess{stdin: &mockCloser{Buffer: new(bytes.Buffer)}, data: data}, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Detect(ctx, frame(1, 2, 3))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, proctor.ErrDetectionTimeout))
	assert.Nil(t, svc.proc)

	// The hung reader was closed by the kill.
	_, readErr := hung.Read(make([]byte, 1))
	assert.ErrorIs(t, readErr, io.ErrClosedPipe)

	faces, err := svc.Detect(context.Background(), frame(1, 2, 3))
	require.NoError(t, err)
	assert.Len(t, faces, 1)
	assert.Equal(t, 2, spawned)
	require.NoError(t, svc.Close())
}

func TestWorkerKeepsProcessOnDecodeError(t *testing.T) {
	data := &mockCloser{Buffer: new(bytes.Buffer)}
	respond(data, []byte{statusDecodeError})
	proc := &landmarkProcess{stdin: &mockCloser{Buffer: new(bytes.Buffer)}, data: data}

	svc := &workerService{spawn: func() (*landmarkProcess, error) { return proc, nil }}
	_, err := svc.Detect(context.Background(), frame(1))
	assert.ErrorIs(t, err, proctor.ErrFrameDecode)
	assert.Same(t, proc, svc.proc)
}

func TestWorkerSpawnFailure(t *testing.T) {
	svc := NewWorker(nil, 1)
	_, err := svc.Detect(context.Background(), frame(1))
	assert.Error(t, err)
}

func TestCanSkipFrame(t *testing.T) {
	assert.False(t, NewFake(1).CanSkipFrame(7))
	assert.False(t, NewFake(0).CanSkipFrame(7))

	svc := NewFake(3)
	assert.True(t, svc.CanSkipFrame(1))
	assert.True(t, svc.CanSkipFrame(2))
	assert.False(t, svc.CanSkipFrame(3))
}

func TestFakeReplaysScript(t *testing.T) {
	one := []proctor.FaceDetection{{Box: image.Rect(0, 0, 10, 10)}}
	svc := NewFake(1, one, nil)

	got, err := svc.Detect(context.Background(), frame(1))
	require.NoError(t, err)
	assert.Equal(t, one, got)

	got, err = svc.Detect(context.Background(), frame(1))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, _ = svc.Detect(context.Background(), frame(1))
	assert.Equal(t, one, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Detect(ctx, frame(1))
	assert.ErrorIs(t, err, context.Canceled)
}
