package pipeline

import (
	"bytes"
	"context"
	"image/color"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline/stream"
	"github.com/khaledhikmat/proctor-go/service/lgr"
	"github.com/khaledhikmat/proctor-go/service/status"
)

var faceBoxColor = color.RGBA{G: 255, A: 255}

// OverlayBroadcaster annotates frames with the latest cycle result and
// publishes them as JPEGs for the monitor's video feed. MJPEG is served
// instead of WebRTC: gocv hands out raw frames and has no encoder chain
// WebRTC could use.
func OverlayBroadcaster(canx context.Context, svcs ServicesFactory, session *Session, _ chan interface{}, statsStream chan interface{}, _ chan AlertData) (chan FrameData, <-chan struct{}) {
	in := make(chan FrameData, 100)

	lgr.Logger.Info(
		"overlay broadcaster initialized...",
		slog.String("session", session.ID),
	)

	proc := func(frame FrameData) bool {
		// Nobody is watching
		if session.Board.Clients() == 0 || frame.Mat.Empty() {
			return true
		}

		if res, ok := session.Board.Latest(); ok {
			for _, face := range res.Faces {
				gocv.Rectangle(&frame.Mat, face.Box, faceBoxColor, 2)
			}
			for _, line := range status.OverlayLines(res) {
				gocv.PutText(&frame.Mat, line.Text, line.At, gocv.FontHersheySimplex, line.Scale, line.Color, 2)
			}
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame.Mat)
		if err != nil {
			return false
		}
		session.Board.PublishFrame(bytes.Clone(buf.GetBytes()))
		buf.Close()
		return true
	}

	// Launch worker processes that compete on emptying/procesing frames
	done := stream.Workers(svcs.CfgSvc.GetStreamerMaxWorkers(), func(worker int) {
		frames := 0
		beginTime := time.Now().Unix()
		errors := 0

		var totalProcTime time.Duration // Track total processing time

		defer func() {
			uptime := time.Now().Unix() - beginTime
			fps := 0
			if uptime > 0 {
				fps = int(float64(frames) / float64(uptime))
			}

			// Calculate average processing time
			var avgProcTime float64
			if frames > 0 {
				avgProcTime = totalProcTime.Seconds() / float64(frames)
			}

			statsStream <- model.StreamerStats{
				Name:        "overlayBroadcaster",
				Worker:      worker,
				Session:     session.ID,
				Frames:      frames,
				Errors:      errors,
				Uptime:      uptime,
				FPS:         fps,
				AvgProcTime: avgProcTime,
			}
		}()

		stream.Consume(canx, in, func(f FrameData) {
			defer f.Mat.Close()
			start := time.Now()
			if !proc(f) {
				errors++
			}
			frames++
			totalProcTime += time.Since(start) // Accumulate processing time
		}, func(f FrameData) {
			f.Mat.Close()
		})
		lgr.Logger.Debug(
			"overlayBroadcaster worker done",
			slog.Int("worker", worker),
		)
	})

	return in, done
}
