package microphone

import (
	"bytes"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/proctor"
)

type ffmpegService struct {
	input      string
	chunkSize  int
	sampleRate int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	pcm    *pcmReader
}

// NewFFmpeg captures audio through an ffmpeg child process resampled to
// mono s16le. input is "<format>:<device>" for a capture device (for
// example "pulse:default" or "alsa:hw:0") or a plain path/URL.
func NewFFmpeg(input string, chunkSize, sampleRate int) IService {
	return &ffmpegService{
		input:      input,
		chunkSize:  chunkSize,
		sampleRate: sampleRate,
	}
}

func ffmpegArgs(input string, sampleRate int) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if format, device, ok := strings.Cut(input, ":"); ok && isCaptureFormat(format) {
		args = append(args, "-f", format, "-i", device)
	} else {
		args = append(args, "-re", "-i", input)
	}
	return append(args, "-vn", "-ac", "1", "-ar", strconv.Itoa(sampleRate), "-f", "s16le", "pipe:1")
}

func isCaptureFormat(f string) bool {
	switch f {
	case "pulse", "alsa", "avfoundation", "dshow", "jack", "openal":
		return true
	}
	return false
}

func (svc *ffmpegService) Open() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return xerrors.Errorf("ffmpeg not found: %w", proctor.ErrDeviceUnavailable)
	}

	cmd := exec.Command("ffmpeg", ffmpegArgs(svc.input, svc.sampleRate)...)
	svc.stderr = &bytes.Buffer{}
	cmd.Stderr = svc.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return xerrors.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return xerrors.Errorf("starting ffmpeg on %s: %v: %w", svc.input, err, proctor.ErrDeviceUnavailable)
	}

	svc.cmd = cmd
	svc.stdout = stdout
	svc.pcm = newPCMReader(stdout, svc.chunkSize, svc.sampleRate)
	return nil
}

func (svc *ffmpegService) Read() (proctor.AudioChunk, bool) {
	if svc.pcm == nil {
		return proctor.AudioChunk{}, false
	}
	return svc.pcm.read()
}

func (svc *ffmpegService) Err() error {
	if svc.pcm == nil {
		return nil
	}
	return svc.pcm.streamErr()
}

func (svc *ffmpegService) Close() error {
	if svc.cmd == nil {
		return nil
	}
	if svc.cmd.Process != nil {
		_ = svc.cmd.Process.Kill()
	}
	err := svc.cmd.Wait()
	svc.cmd = nil
	if err != nil && svc.stderr != nil && svc.stderr.Len() > 0 {
		return xerrors.Errorf("ffmpeg: %s", strings.TrimSpace(svc.stderr.String()))
	}
	return nil
}
