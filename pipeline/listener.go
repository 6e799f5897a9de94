package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

// listener runs the audio loop: every chunk is classified and published to
// the session's audio signal for the video loop to pick up. A microphone
// that cannot be opened or fails mid-session leaves the signal
// unavailable and the session carries on without audio.
func listener(canxCtx context.Context, svcs ServicesFactory, session *Session, errorStream chan interface{}, statsStream chan interface{}) error {
	signal := session.Engine.Audio()
	mic := svcs.MicrophoneSvc

	var startTime = time.Now().Unix()
	var chunks = 0
	var activeChunks = 0
	var errors = 0

	defer func() {
		statsStream <- model.ListenerStats{
			Name:         "listener",
			Session:      session.ID,
			Chunks:       chunks,
			ActiveChunks: activeChunks,
			Errors:       errors,
			MicAvailable: signal.Available(),
			Uptime:       time.Now().Unix() - startTime,
		}
	}()

	if err := mic.Open(); err != nil {
		errors++
		signal.SetAvailable(false)
		svcs.Metrics.MicAvailable.Store(false)
		errorStream <- model.GenError("listener",
			err,
			map[string]interface{}{"session": session.ID},
			"microphone unavailable, continuing without audio")
		return nil
	}
	defer mic.Close()

	signal.SetAvailable(true)
	svcs.Metrics.MicAvailable.Store(true)

	detector := proctor.NewAudioDetector(svcs.CfgSvc.GetProctorConfig())
	lgr.Logger.Info("listener started",
		slog.String("session", session.ID),
		slog.Float64("threshold", detector.Threshold()),
	)

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"listener context cancelled",
			)
			return nil
		default:
		}

		chunk, ok := mic.Read()
		if !ok {
			signal.SetAvailable(false)
			svcs.Metrics.MicAvailable.Store(false)
			if err := mic.Err(); err != nil {
				errors++
				errorStream <- model.GenError("listener",
					err,
					map[string]interface{}{"session": session.ID},
					"microphone read failed")
			}
			lgr.Logger.Info("audio stream ended",
				slog.String("session", session.ID),
				slog.Int("chunks", chunks),
			)
			return nil
		}

		chunks++
		svcs.Metrics.AudioChunks.Add(1)
		wasCalibrating := detector.Calibrating()
		active := detector.Active(chunk)
		if active {
			activeChunks++
			svcs.Metrics.AudioActiveChunks.Add(1)
		}
		signal.Publish(active)

		if wasCalibrating && !detector.Calibrating() {
			lgr.Logger.Info("audio calibration done",
				slog.String("session", session.ID),
				slog.Float64("threshold", detector.Threshold()),
			)
		}
	}
}
