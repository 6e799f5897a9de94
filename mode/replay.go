package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

// Replay runs a recorded exam through the pipeline headless and logs the
// stored report totals.
func Replay(canxCtx context.Context, svcs pipeline.ServicesFactory, candidate model.Candidate) error {
	report, err := supervise(canxCtx, svcs, "replay", func(errorStream chan interface{}, statsStream chan interface{}) (model.Report, error) {
		return pipeline.Agent(canxCtx, svcs, errorStream, statsStream, candidate,
			[]pipeline.Streamer{
				pipeline.ProctorDetector,
			},
			pipeline.ProctorAlerter,
			"")
	})
	if err != nil {
		return err
	}

	reports, err := svcs.DataSvc.RetrieveReports(report.SessionID)
	if err != nil {
		return err
	}

	totals := map[string]int{}
	events := 0
	for _, r := range reports {
		events += len(r.Events)
		for c, n := range r.Counts {
			totals[c] += n
		}
	}

	lgr.Logger.Info(
		"replay finished",
		slog.String("session", report.SessionID),
		slog.String("candidate", candidate.Name),
		slog.Int("reports", len(reports)),
		slog.Int("events", events),
		slog.Int(proctor.GazeMovement.String(), totals[proctor.GazeMovement.String()]),
		slog.Int(proctor.LipMovement.String(), totals[proctor.LipMovement.String()]),
		slog.Int(proctor.MultiplePersons.String(), totals[proctor.MultiplePersons.String()]),
	)
	return nil
}
