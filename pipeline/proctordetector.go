package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/natefinch/lumberjack"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline/stream"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

type journalEntry struct {
	Time         string            `json:"time"`
	Session      string            `json:"session"`
	Candidate    string            `json:"candidate"`
	Type         proctor.Category  `json:"type"`
	Gaze         proctor.GazeState `json:"gaze"`
	LipsTalking  bool              `json:"lipsTalking"`
	AudioTalking bool              `json:"audioTalking"`
	PersonCount  int               `json:"personCount"`
}

// ProctorDetector runs every frame through the session's engine. The
// engine keeps temporal state, so frames are evaluated by a single worker
// in the order the framer produced them. The returned channel closes once
// every frame handed over has been judged or discarded.
func ProctorDetector(canx context.Context, svcs ServicesFactory, session *Session, errorStream chan interface{}, statsStream chan interface{}, alertStream chan AlertData) (chan FrameData, <-chan struct{}) {
	in := make(chan FrameData, 100)

	lgr.Logger.Info("proctor detector starting...",
		slog.String("session", session.ID),
		slog.String("candidate", session.Candidate.Name),
		slog.String("openCV", gocv.Version()),
	)

	// One cheating event per line
	journal := &lumberjack.Logger{
		Filename:   svcs.CfgSvc.GetJournalFile(),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7,    // days
		Compress:   true, // compress old logs
	}

	frames := 0
	errors := 0
	timeouts := 0
	events := 0
	beginTime := time.Now().Unix()
	var totalProcTime time.Duration

	proc := func(frame FrameData) {
		defer frame.Mat.Close()

		if frame.Mat.Empty() {
			errors++
			return
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame.Mat)
		if err != nil {
			errors++
			errorStream <- model.GenError("proctor_detector", err, nil, "error encoding frame")
			return
		}
		data := bytes.Clone(buf.GetBytes())
		buf.Close()

		start := time.Now()
		res, err := session.Engine.Evaluate(canx, proctor.Frame{
			Data:      data,
			Width:     frame.Mat.Cols(),
			Height:    frame.Mat.Rows(),
			Timestamp: frame.Timestamp,
		})
		totalProcTime += time.Since(start)
		frames++

		if err != nil {
			if canx.Err() != nil {
				return
			}
			errors++
			svcs.Metrics.DetectionErrors.Add(1)
			if xerrors.Is(err, proctor.ErrFrameDecode) {
				lgr.Logger.Debug("skipping undecodable frame", slog.Any("error", err))
				return
			}
			errorStream <- model.GenError("proctor_detector",
				err,
				map[string]interface{}{"session": session.ID},
				"detection cycle skipped")
			return
		}

		if res.DetectionTimedOut {
			timeouts++
		}
		svcs.Metrics.ObserveCycle(res, time.Since(start))
		session.Board.Publish(res)

		for _, e := range res.Events {
			events++
			writeJournal(journal, session, e, res)

			if err := svcs.BrokerSvc.Publish(canx, session.ID, e); err != nil && canx.Err() == nil {
				errorStream <- model.GenError("proctor_detector", err, nil, "error publishing cheating event")
			}

			select {
			case alertStream <- AlertData{
				Mat:     frame.Mat.Clone(),
				Session: session.ID,
				Event:   e,
				Result:  res,
			}:
			default:
				lgr.Logger.Warn("alertStream full, dropping alert")
			}
		}
	}

	// The engine needs frames in order, so there is one worker. It reads
	// until the framer closes in: frames queued when the video ends are
	// still judged, and only a cancelled session discards them.
	done := stream.Workers(1, func(_ int) {
		defer journal.Close()
		defer func() {
			uptime := time.Now().Unix() - beginTime
			fps := 0
			if uptime > 0 {
				fps = int(float64(frames) / float64(uptime))
			}
			var avgProcTime float64
			if frames > 0 {
				avgProcTime = totalProcTime.Seconds() / float64(frames)
			}
			statsStream <- model.StreamerStats{
				Name:        "proctorDetector",
				Session:     session.ID,
				Frames:      frames,
				Errors:      errors,
				Timeouts:    timeouts,
				Events:      events,
				Uptime:      uptime,
				FPS:         fps,
				AvgProcTime: avgProcTime,
			}
		}()

		_, discarded := stream.Consume(canx, in, proc, func(f FrameData) {
			f.Mat.Close()
		})
		lgr.Logger.Info("proctorDetector input closed",
			slog.String("session", session.ID),
			slog.Int("frames", frames),
			slog.Int("discarded", discarded),
		)
	})

	return in, done
}

func writeJournal(journal *lumberjack.Logger, session *Session, e proctor.CheatingEvent, res proctor.CycleResult) {
	entry := journalEntry{
		Time:         e.Timestamp.Format(time.RFC3339),
		Session:      session.ID,
		Candidate:    session.Candidate.Name,
		Type:         e.Category,
		Gaze:         res.Gaze,
		LipsTalking:  res.LipsTalking,
		AudioTalking: res.AudioTalking,
		PersonCount:  res.PersonCount,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		lgr.Logger.Error("error marshalling journal entry", slog.Any("error", err))
		return
	}

	if _, err := journal.Write(append(jsonData, '\n')); err != nil {
		lgr.Logger.Error("error writing to journal", slog.Any("error", err))
	}
}
