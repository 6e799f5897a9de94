package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline/stream"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
	"github.com/khaledhikmat/proctor-go/service/webhook"
)

// ProctorAlerter turns cheating events into alerts: an evidence snapshot
// in storage and a webhook post. Each category alerts at most once per
// cooldown period; events in between are still in the event log. Alerts
// queued when canx ends are still handled before the returned channel
// closes.
func ProctorAlerter(canx context.Context, svcs ServicesFactory, session *Session, errorStream chan interface{}, statsStream chan interface{}) (chan AlertData, <-chan struct{}) {
	// Producers send without blocking and never close, so the channel is
	// drained rather than closed on exit.
	in := make(chan AlertData, 100)

	var startTime = time.Now().Unix()
	var alerts = 0
	var throttled = 0
	var errors = 0
	var lastAlertTime = map[proctor.Category]time.Time{}
	var cooldown = time.Duration(svcs.CfgSvc.GetAlerterCoolDown()) * time.Second

	stats := func() model.AlerterStats {
		return model.AlerterStats{
			Name:      "proctorAlerter",
			Session:   session.ID,
			Alerts:    alerts,
			Throttled: throttled,
			Errors:    errors,
			Uptime:    time.Now().Unix() - startTime,
		}
	}

	handle := func(alert AlertData) {
		defer alert.Mat.Close()

		category := alert.Event.Category
		if last, ok := lastAlertTime[category]; ok && alert.Event.Timestamp.Sub(last) < cooldown {
			throttled++
			svcs.Metrics.AlertsThrottled.Add(1)
			return
		}
		lastAlertTime[category] = alert.Event.Timestamp

		if err := dispatchAlert(svcs, session, alert); err != nil {
			errors++
			errorStream <- model.GenError("proctor_alerter",
				err,
				map[string]interface{}{"session": session.ID, "type": category.String()},
				"error dispatching alert")
		}
		alerts++
		svcs.Metrics.Alerts.Add(1)
	}

	flush := func() {
		for {
			select {
			case alert := <-in:
				handle(alert)
			default:
				statsStream <- stats()
				return
			}
		}
	}

	done := stream.Workers(1, func(_ int) {
		defer flush()

		for {
			select {
			case <-canx.Done():
				lgr.Logger.Info(
					"alerter context cancelled",
				)
				return

			case <-time.After(time.Duration(svcs.CfgSvc.GetAlerterPeriodicTimeout()) * time.Second):
				statsStream <- stats()

			case alert := <-in:
				handle(alert)
			}
		}
	})

	return in, done
}

func dispatchAlert(svcs ServicesFactory, session *Session, alert AlertData) error {
	var evidence string
	if !alert.Mat.Empty() {
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, alert.Mat)
		if err != nil {
			return xerrors.Errorf("encoding evidence: %w", err)
		}
		name := fmt.Sprintf("%s_%s_%d.jpg",
			session.ID,
			strings.ReplaceAll(strings.ToLower(alert.Event.Category.String()), " ", "-"),
			alert.Event.Timestamp.UnixMilli())
		evidence, err = svcs.StorageSvc.StoreFile(name, buf.GetBytes())
		buf.Close()
		if err != nil {
			return xerrors.Errorf("storing evidence: %w", err)
		}
	}

	lgr.Logger.Info(
		"cheating alert",
		slog.String("session", session.ID),
		slog.String("candidate", session.Candidate.Name),
		slog.String("type", alert.Event.Category.String()),
		slog.Time("timestamp", alert.Event.Timestamp),
		slog.String("evidence", evidence),
	)

	payload := map[string]interface{}{
		"session":       session.ID,
		"candidate":     session.Candidate.ID,
		"candidateName": session.Candidate.Name,
		"type":          alert.Event.Category.String(),
		"timestamp":     alert.Event.Timestamp.Format(model.ReportTimeLayout),
		"evidence":      evidence,
		"personCount":   alert.Result.PersonCount,
		"gaze":          alert.Result.Gaze,
	}
	if err := svcs.WebhookSvc.Post(payload); err != nil {
		if xerrors.Is(err, webhook.ErrRateLimited) {
			lgr.Logger.Debug("webhook rate limited", slog.String("session", session.ID))
			return nil
		}
		return err
	}
	return nil
}
