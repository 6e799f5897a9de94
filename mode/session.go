package mode

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

// Stats still trickle in from the streamers after the agent returns
const waitAfterAgent = time.Second

type agentFunc func(errorStream chan interface{}, statsStream chan interface{}) (model.Report, error)

type agentResult struct {
	report model.Report
	err    error
}

// Session proctors a live candidate and serves the status endpoints until
// the exam ends.
func Session(canxCtx context.Context, svcs pipeline.ServicesFactory, candidate model.Candidate) error {
	_, err := supervise(canxCtx, svcs, "session", func(errorStream chan interface{}, statsStream chan interface{}) (model.Report, error) {
		return pipeline.Agent(canxCtx, svcs, errorStream, statsStream, candidate,
			[]pipeline.Streamer{
				pipeline.ProctorDetector,
				pipeline.OverlayBroadcaster,
			},
			pipeline.ProctorAlerter,
			svcs.CfgSvc.GetStatusAddress())
	})
	return err
}

// supervise runs an agent while persisting the stats and errors its
// pipeline reports, then keeps draining them for a bounded time after the
// agent stops.
func supervise(canxCtx context.Context, svcs pipeline.ServicesFactory, name string, agent agentFunc) (model.Report, error) {
	// Senders may outlive this function by a few milliseconds, so the
	// streams are left open.
	errorStream := make(chan interface{})
	statsStream := make(chan interface{})

	done := make(chan agentResult, 1)
	go func() {
		report, err := agent(errorStream, statsStream)
		done <- agentResult{report, err}
	}()

	var result *agentResult

	// Wait for cancellation, the agent, stats or errors
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				name+" context cancelled",
			)
			goto resume

		case r := <-done:
			result = &r
			goto resume

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

	// Wait in a non-blocking way for all the go routines to exit
	// This is needed because the go routines may need to report stats as they are exiting
resume:
	lgr.Logger.Info(
		name + " is waiting for all go routines to exit",
	)

	period := time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second
	if result != nil {
		period = waitAfterAgent
	}
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if result == nil {
				lgr.Logger.Info(
					name+" shutdown waiting period expired. Exiting now",
					slog.Duration("period", period),
				)
				return model.Report{}, xerrors.Errorf("%s did not stop within %s", name, period)
			}
			return result.report, result.err

		case r := <-done:
			result = &r
			timer.Reset(waitAfterAgent)

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}
}
