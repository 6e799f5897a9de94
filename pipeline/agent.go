package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
	"github.com/khaledhikmat/proctor-go/service/status"
)

const tracerName = "github.com/khaledhikmat/proctor-go/pipeline"

// Agent proctors one candidate until the video source ends or the context
// is cancelled, then drains whatever events were not yet submitted into a
// final report. A camera that cannot be opened fails the session before
// anything starts. statusAddr empty runs the session headless.
func Agent(canxCtx context.Context,
	svcs ServicesFactory,
	errorStream chan interface{},
	statsStream chan interface{},
	candidate model.Candidate,
	streamers []Streamer,
	alerter Alerter,
	statusAddr string) (model.Report, error) {
	sessionID := uuid.NewString()
	lgr.Logger.Info(
		"session starting....",
		slog.String("session", sessionID),
		slog.String("candidate", candidate.Name),
		slog.String("video", candidate.VideoSource),
		slog.String("audio", candidate.AudioSource),
		slog.Int("streamers", len(streamers)),
	)

	capture, err := openVideo(candidate)
	if err != nil {
		return model.Report{}, err
	}

	events := proctor.NewEventLog()
	engine, err := proctor.NewEngine(svcs.CfgSvc.GetProctorConfig(),
		svcs.InferenceSvc,
		events,
		&proctor.AudioSignal{},
		proctor.WithTracer(otel.Tracer(tracerName)),
	)
	if err != nil {
		if capture != nil {
			capture.Close()
		}
		return model.Report{}, xerrors.Errorf("creating engine: %w", err)
	}

	session := &Session{
		ID:        sessionID,
		Candidate: candidate,
		StartedAt: time.Now(),
		Engine:    engine,
		Board:     status.NewBoard(),
	}

	server := status.NewServer(status.Config{
		SessionID: session.ID,
		Candidate: candidate,
		StartedAt: session.StartedAt,
		Events:    events,
		Board:     session.Board,
		Data:      svcs.DataSvc,
		Broker:    svcs.BrokerSvc,
		Metrics:   svcs.Metrics,
	})

	sessionCtx, sessionCancel := context.WithCancel(canxCtx)
	defer sessionCancel()
	g, gctx := errgroup.WithContext(sessionCtx)

	// Streamers and the alerter outlive the session context: the end of
	// the video stops the loops, but frames and alerts already queued are
	// still judged. Only canxCtx discards them.
	alertCtx, alertCancel := context.WithCancel(canxCtx)
	defer alertCancel()
	alertStream, alerterDone := alerter(alertCtx, svcs, session, errorStream, statsStream)

	streamChannels := []chan FrameData{}
	streamersDone := []<-chan struct{}{}
	for _, streamer := range streamers {
		in, done := streamer(canxCtx, svcs, session, errorStream, statsStream, alertStream)
		streamChannels = append(streamChannels, in)
		streamersDone = append(streamersDone, done)
	}

	if statusAddr != "" {
		g.Go(func() error {
			return server.Run(gctx, statusAddr)
		})
	}

	g.Go(func() error {
		return listener(gctx, svcs, session, errorStream, statsStream)
	})

	// The end of the video ends the session
	g.Go(func() error {
		defer sessionCancel()
		return framer(gctx, svcs, session, capture, errorStream, statsStream, streamChannels)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(time.Duration(svcs.CfgSvc.GetSessionPeriodicTimeout()) * time.Second):
				statsStream <- model.SessionStats{
					ID:        session.ID,
					Candidate: candidate.Name,
					Events:    events.Len(),
					Reports:   server.Reports(),
					Uptime:    int64(time.Since(session.StartedAt).Seconds()),
				}
			}
		}
	})

	runErr := g.Wait()

	// The framer has closed the streamer inputs; wait for what they still
	// hold, then for the alerts it produced.
	for _, done := range streamersDone {
		<-done
	}
	alertCancel()
	<-alerterDone

	report, err := server.Submit(true)
	if err != nil {
		return model.Report{}, xerrors.Errorf("final report: %w", err)
	}

	statsStream <- model.SessionStats{
		ID:        session.ID,
		Candidate: candidate.Name,
		Events:    len(report.Events),
		Reports:   server.Reports(),
		Uptime:    int64(time.Since(session.StartedAt).Seconds()),
	}

	lgr.Logger.Info(
		"session ended",
		slog.String("session", session.ID),
		slog.Int("finalEvents", len(report.Events)),
		slog.Any("counts", report.Counts),
	)
	return report, runErr
}
