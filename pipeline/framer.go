package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline/stream"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

const randomFramerInterval = time.Second / 15

// openVideo opens the candidate's camera or recording. The random source
// needs no device and returns nil.
func openVideo(candidate model.Candidate) (*gocv.VideoCapture, error) {
	if candidate.VideoSource == model.VideoRandom {
		return nil, nil
	}

	url := candidate.VideoURL
	if url == "" && candidate.VideoSource == model.VideoWebcam {
		url = "0"
	}

	capture, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, xerrors.Errorf("opening video %q: %v: %w", url, err, proctor.ErrDeviceUnavailable)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, xerrors.Errorf("video %q not opened: %w", url, proctor.ErrDeviceUnavailable)
	}
	return capture, nil
}

// framer reads the video source until it ends or the context is cancelled
// and fans each kept frame out to the streamers. It takes ownership of
// capture and, as their only sender, closes the streamer inputs on return.
func framer(canxCtx context.Context, svcs ServicesFactory, session *Session, capture *gocv.VideoCapture, errorStream chan interface{}, statsStream chan interface{}, streamChannels []chan FrameData) error {
	defer stream.CloseAll(streamChannels)

	if capture == nil {
		return randomFramer(canxCtx, svcs, session, statsStream, streamChannels)
	}
	defer capture.Close()
	return videoFramer(canxCtx, svcs, session, capture, errorStream, statsStream, streamChannels)
}

func videoFramer(canxCtx context.Context, svcs ServicesFactory, session *Session, capture *gocv.VideoCapture, _ chan interface{}, statsStream chan interface{}, streamChannels []chan FrameData) error {
	var startTime = time.Now().Unix()
	var frames = 0
	var skippedFrames = 0
	var errors = 0

	defer func() {
		uptime := time.Now().Unix() - startTime
		fps := 0
		if uptime > 0 {
			fps = int(float64(frames) / float64(uptime))
		}
		statsStream <- model.FramerStats{
			Name:          "videoFramer",
			Session:       session.ID,
			Frames:        frames,
			SkippedFrames: skippedFrames,
			Errors:        errors,
			Uptime:        uptime,
			FPS:           fps,
		}
	}()

	// Recordings are paced at their own frame rate so audio replayed beside
	// them stays aligned. A progress bar shows how far the replay got.
	var pacer *time.Ticker
	var bar *progressbar.ProgressBar
	if session.Candidate.VideoSource == model.VideoFile {
		if fps := capture.Get(gocv.VideoCaptureFPS); fps > 0 {
			pacer = time.NewTicker(time.Duration(float64(time.Second) / fps))
			defer pacer.Stop()
		}
		if total := int64(capture.Get(gocv.VideoCaptureFrameCount)); total > 0 {
			bar = progressbar.Default(total, "replaying")
			defer bar.Finish()
		}
	}

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"videoFramer context cancelled",
			)
			return nil

		default:
			if pacer != nil {
				<-pacer.C
			}

			img := gocv.NewMat()
			if ok := capture.Read(&img); !ok {
				img.Close() // Crucial to close the image to avoid memory leaks
				lgr.Logger.Info(
					"video source ended",
					slog.String("session", session.ID),
					slog.Int("frames", frames),
				)
				return nil
			}
			if img.Empty() {
				errors++
				img.Close()
				continue
			}

			frames++
			svcs.Metrics.FramesRead.Add(1)
			if bar != nil {
				_ = bar.Add(1)
			}

			// Determine if we should skip the frame
			if svcs.InferenceSvc.CanSkipFrame(frames) {
				skippedFrames++
				svcs.Metrics.FramesSkipped.Add(1)
				img.Close()
				continue
			}

			if !fanOut(canxCtx, img, streamChannels) {
				lgr.Logger.Info("videoFramer context cancelled while sending!!")
				img.Close()
				return nil
			}
			img.Close()
		}
	}
}

func randomFramer(canxCtx context.Context, svcs ServicesFactory, session *Session, statsStream chan interface{}, streamChannels []chan FrameData) error {
	var startTime = time.Now().Unix()
	var frames = 0
	var skippedFrames = 0

	defer func() {
		uptime := time.Now().Unix() - startTime
		fps := 0
		if uptime > 0 {
			fps = int(float64(frames) / float64(uptime))
		}
		statsStream <- model.FramerStats{
			Name:          "randomFramer",
			Session:       session.ID,
			Frames:        frames,
			SkippedFrames: skippedFrames,
			Uptime:        uptime,
			FPS:           fps,
		}
	}()

	ticker := time.NewTicker(randomFramerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"randomFramer context cancelled",
			)
			return nil

		case <-ticker.C:
			frames++
			svcs.Metrics.FramesRead.Add(1)
			if svcs.InferenceSvc.CanSkipFrame(frames) {
				skippedFrames++
				svcs.Metrics.FramesSkipped.Add(1)
				continue
			}

			// 480x640 BGR noise
			img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
			gocv.RandU(&img, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(255, 255, 255, 0))

			if !fanOut(canxCtx, img, streamChannels) {
				lgr.Logger.Info("randomFramer context cancelled while sending!!")
				img.Close()
				return nil
			}
			img.Close()
		}
	}
}

// fanOut hands every streamer its own clone of img. It reports false when
// the context was cancelled before all streamers received the frame.
func fanOut(canxCtx context.Context, img gocv.Mat, streamChannels []chan FrameData) bool {
	now := time.Now()
	for _, streamChan := range streamChannels {
		clone := img.Clone()
		select {
		case <-canxCtx.Done():
			clone.Close()
			return false
		case streamChan <- FrameData{Mat: clone, Timestamp: now}:
		}
	}
	return true
}
