package pipeline

import (
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/broker"
	"github.com/khaledhikmat/proctor-go/service/config"
	"github.com/khaledhikmat/proctor-go/service/data"
	"github.com/khaledhikmat/proctor-go/service/inference"
	"github.com/khaledhikmat/proctor-go/service/metrics"
	"github.com/khaledhikmat/proctor-go/service/microphone"
	"github.com/khaledhikmat/proctor-go/service/status"
	"github.com/khaledhikmat/proctor-go/service/storage"
	"github.com/khaledhikmat/proctor-go/service/webhook"
)

type FrameData struct {
	Mat       gocv.Mat
	Timestamp time.Time
}

type AlertData struct {
	Mat     gocv.Mat
	Session string
	Event   proctor.CheatingEvent
	Result  proctor.CycleResult
}

type ServicesFactory struct {
	CfgSvc        config.IService
	DataSvc       data.IService
	InferenceSvc  inference.IService
	MicrophoneSvc microphone.IService
	StorageSvc    storage.IService
	WebhookSvc    webhook.IService
	BrokerSvc     broker.IService
	Metrics       *metrics.Metrics
}

// Session is one candidate's exam: the engine that judges it and the board
// the monitor pages read.
type Session struct {
	ID        string
	Candidate model.Candidate
	StartedAt time.Time
	Engine    *proctor.Engine
	Board     *status.Board
}

// Signature of streamer function. The framer is the only sender on the
// returned input and closes it when the video ends; done closes once the
// streamer has dealt with every frame it was handed.
type Streamer func(canx context.Context, svcs ServicesFactory, session *Session, errorStream chan interface{}, statsStream chan interface{}, alertStream chan AlertData) (in chan FrameData, done <-chan struct{})

// Signature of alerter function. done closes after canx ends and the
// queued alerts are handled.
type Alerter func(canx context.Context, svcs ServicesFactory, session *Session, errorStream chan interface{}, statsStream chan interface{}) (in chan AlertData, done <-chan struct{})
