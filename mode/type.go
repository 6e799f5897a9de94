package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline"
	"github.com/khaledhikmat/proctor-go/service/data"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

type Processor func(canxCtx context.Context,
	svcs pipeline.ServicesFactory,
	candidate model.Candidate) error

func procStats(datasvc data.IService, stats interface{}) {
	var err error
	switch stats := stats.(type) {
	case model.SessionStats:
		err = datasvc.NewSessionStats(stats)
	case model.FramerStats:
		err = datasvc.NewFramerStats(stats)
	case model.ListenerStats:
		err = datasvc.NewListenerStats(stats)
	case model.StreamerStats:
		err = datasvc.NewStreamerStats(stats)
	case model.AlerterStats:
		err = datasvc.NewAlerterStats(stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
		return
	}

	if err != nil {
		lgr.Logger.Error(
			"failed to store stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	if e, ok := err.(error); ok {
		lgr.Logger.Warn("pipeline error", slog.String("error", e.Error()))
	}

	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
