package inference

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

// Response status bytes written by the landmark worker.
const (
	statusFaces       byte = 0
	statusError       byte = 1
	statusDecodeError byte = 2
)

// Upper bounds that guard against a corrupted stream allocating garbage.
const (
	maxResponseSize = 16 << 20
	maxFaces        = 64
	maxPoints       = 512
)

// landmarkProcess is one running landmark engine. Requests go in on stdin
// as [u32 len][jpeg]; responses come back on FD 3 as [u32 len][body] so
// anything the engine prints on stdout cannot corrupt the stream.
//
// Body: [status u8] then, for statusFaces, [u32 n] and per face
// [4 x i32 box l,t,r,b][u32 points][points x (i32 x, i32 y)];
// for statusError, [u32 len][message].
type landmarkProcess struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	stdin  io.WriteCloser
	data   io.ReadCloser
}

func startLandmarkProcess(command []string) (*landmarkProcess, error) {
	if len(command) == 0 {
		return nil, xerrors.New("no landmark worker command configured")
	}

	cmd := exec.Command(command[0], command[1:]...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	// Side-channel pipe, FD 3 in the child
	r, w, err := os.Pipe()
	if err != nil {
		return nil, xerrors.Errorf("failed to create pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, xerrors.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, xerrors.Errorf("landmark worker failed to start: %w", err)
	}

	// Only the child holds the write end
	w.Close()

	return &landmarkProcess{
		cmd:    cmd,
		stderr: stderr,
		stdin:  stdin,
		data:   r,
	}, nil
}

func (p *landmarkProcess) communicate(jpeg []byte) ([]proctor.FaceDetection, error) {
	if err := binary.Write(p.stdin, binary.BigEndian, uint32(len(jpeg))); err != nil {
		return nil, err
	}
	if _, err := p.stdin.Write(jpeg); err != nil {
		return nil, err
	}

	var respLen uint32
	if err := binary.Read(p.data, binary.BigEndian, &respLen); err != nil {
		return nil, err
	}
	if respLen == 0 || respLen > maxResponseSize {
		return nil, xerrors.Errorf("landmark worker response of %d bytes", respLen)
	}

	body := make([]byte, respLen)
	if _, err := io.ReadFull(p.data, body); err != nil {
		return nil, err
	}
	return decodeResponse(body)
}

func decodeResponse(body []byte) ([]proctor.FaceDetection, error) {
	r := bytes.NewReader(body)
	status, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch status {
	case statusDecodeError:
		return nil, proctor.ErrFrameDecode

	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, err
		}
		if int(msgLen) > r.Len() {
			return nil, xerrors.New("landmark worker error message truncated")
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, err
		}
		return nil, xerrors.Errorf("landmark worker error: %s", msg)

	case statusFaces:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		if n > maxFaces {
			return nil, xerrors.Errorf("landmark worker reported %d faces", n)
		}

		faces := make([]proctor.FaceDetection, 0, n)
		for i := uint32(0); i < n; i++ {
			var box [4]int32
			if err := binary.Read(r, binary.BigEndian, &box); err != nil {
				return nil, err
			}
			var np uint32
			if err := binary.Read(r, binary.BigEndian, &np); err != nil {
				return nil, err
			}
			if np > maxPoints {
				return nil, xerrors.Errorf("landmark worker reported %d points", np)
			}
			pts := make([][2]int32, np)
			if err := binary.Read(r, binary.BigEndian, pts); err != nil {
				return nil, err
			}

			face := proctor.FaceDetection{
				Box:       image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])),
				Landmarks: make([]proctor.Point, np),
			}
			for j, p := range pts {
				face.Landmarks[j] = proctor.Point{X: float64(p[0]), Y: float64(p[1])}
			}
			faces = append(faces, face)
		}
		return faces, nil

	default:
		return nil, xerrors.Errorf("unknown landmark worker status %d", status)
	}
}

// kill tears the process down without waiting for a graceful exit.
func (p *landmarkProcess) kill() {
	p.stdin.Close()
	p.data.Close()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
}

func (p *landmarkProcess) close() error {
	p.stdin.Close()
	defer p.data.Close()
	if p.cmd == nil {
		return nil
	}
	return p.cmd.Wait()
}

type workerService struct {
	mu     sync.Mutex
	proc   *landmarkProcess
	spawn  func() (*landmarkProcess, error)
	stride int
}

// NewWorker drives an external landmark engine started from command. The
// process is started on first use and restarted after a hang or crash.
func NewWorker(command []string, stride int) IService {
	return &workerService{
		spawn:  func() (*landmarkProcess, error) { return startLandmarkProcess(command) },
		stride: stride,
	}
}

type detectResult struct {
	faces []proctor.FaceDetection
	err   error
}

func (svc *workerService) Detect(ctx context.Context, frame proctor.Frame) ([]proctor.FaceDetection, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.proc == nil {
		proc, err := svc.spawn()
		if err != nil {
			return nil, err
		}
		svc.proc = proc
	}

	proc := svc.proc
	done := make(chan detectResult, 1)
	go func() {
		faces, err := proc.communicate(frame.Data)
		done <- detectResult{faces: faces, err: err}
	}()

	select {
	case <-ctx.Done():
		// A hung engine cannot be interrupted mid-frame; replace it.
		lgr.Logger.Warn("landmark worker outlived its deadline, restarting")
		proc.kill()
		svc.proc = nil
		return nil, xerrors.Errorf("%v: %w", ctx.Err(), proctor.ErrDetectionTimeout)

	case res := <-done:
		if res.err == nil || xerrors.Is(res.err, proctor.ErrFrameDecode) {
			return res.faces, res.err
		}
		proc.kill()
		svc.proc = nil

		// Safe to read once the process has been reaped
		var stderr string
		if proc.stderr != nil {
			stderr = proc.stderr.String()
		}
		lgr.Logger.Error("landmark worker failed, restarting",
			slog.Any("error", res.err),
			slog.String("stderr", stderr),
		)
		return nil, res.err
	}
}

func (svc *workerService) CanSkipFrame(frames int) bool {
	return canSkip(frames, svc.stride)
}

func (svc *workerService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.proc == nil {
		return nil
	}
	err := svc.proc.close()
	svc.proc = nil
	return err
}
