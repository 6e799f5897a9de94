package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/mode"
	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/pipeline"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/broker"
	"github.com/khaledhikmat/proctor-go/service/config"
	"github.com/khaledhikmat/proctor-go/service/data"
	"github.com/khaledhikmat/proctor-go/service/inference"
	"github.com/khaledhikmat/proctor-go/service/lgr"
	"github.com/khaledhikmat/proctor-go/service/metrics"
	"github.com/khaledhikmat/proctor-go/service/microphone"
	"github.com/khaledhikmat/proctor-go/service/storage"
	"github.com/khaledhikmat/proctor-go/service/webhook"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var (
	configPath string
	candidate  model.Candidate

	cameraURL   string
	randomVideo bool
	audioInput  string
	wavPath     string
	noAudio     bool
)

var rootCmd = &cobra.Command{
	Use:          "proctor",
	Short:        "Real-time exam proctoring from webcam video and microphone audio",
	SilenceUsage: true,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Proctor a live candidate from the webcam and microphone",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := candidate
		c.VideoSource = model.VideoWebcam
		c.VideoURL = cameraURL
		if randomVideo {
			c.VideoSource = model.VideoRandom
		}
		c.AudioSource = model.AudioFFmpeg
		c.AudioURL = audioInput
		if noAudio {
			c.AudioSource = model.AudioNone
		}
		return run(cmd.Context(), mode.Session, c)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <video>",
	Short: "Run a recorded exam through the detectors and store its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := candidate
		c.VideoSource = model.VideoFile
		c.VideoURL = args[0]
		// The recording's own audio track unless a WAV is given
		c.AudioSource = model.AudioFFmpeg
		c.AudioURL = args[0]
		switch {
		case noAudio:
			c.AudioSource = model.AudioNone
		case wavPath != "":
			c.AudioSource = model.AudioWAV
			c.AudioURL = wavPath
		}
		return run(cmd.Context(), mode.Replay, c)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&candidate.ID, "candidate", "", "candidate id (generated when empty)")
	rootCmd.PersistentFlags().StringVar(&candidate.Name, "name", "", "candidate name")
	rootCmd.PersistentFlags().StringVar(&candidate.Email, "email", "", "candidate email")
	rootCmd.PersistentFlags().BoolVar(&noAudio, "no-audio", false, "run without a microphone")

	sessionCmd.Flags().StringVar(&cameraURL, "camera", "0", "camera device index or stream URL")
	sessionCmd.Flags().BoolVar(&randomVideo, "random", false, "use generated frames and a scripted detector instead of a camera")
	sessionCmd.Flags().StringVar(&audioInput, "audio", "pulse:default", "ffmpeg audio input as <format>:<device>")

	replayCmd.Flags().StringVar(&wavPath, "wav", "", "WAV file to replay as microphone input")

	rootCmd.AddCommand(sessionCmd, replayCmd)
}

func run(canxCtx context.Context, modeProc mode.Processor, c model.Candidate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	cfgSvc := config.NewHardCoded()
	if configPath != "" {
		var err error
		cfgSvc, err = config.NewFile(configPath)
		if err != nil {
			return err
		}
	}

	svcs, closeFn, err := newServices(canxCtx, cfgSvc, c)
	if err != nil {
		return err
	}
	defer closeFn()

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, c)
	}()

	// Wait for cancellation or the mode proc
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"proctor context cancelled",
		)

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"proctor mode processor exited",
				slog.Any("error", xerrors.New(err.Error())),
			)
		}
		return err
	}

	lgr.Logger.Info(
		"proctor is waiting for the mode processor to exit",
	)

	// The mode processor writes the final report on its way out
	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"proctor shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)
		return nil

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"proctor mode processor exited",
				slog.Any("error", xerrors.New(err.Error())),
			)
		}
		return err
	}
}

// newServices creates the services the pipeline runs on. Optional
// backends (Postgres, Redis, webhook) are used when configured.
func newServices(ctx context.Context, cfgSvc config.IService, c model.Candidate) (pipeline.ServicesFactory, func(), error) {
	var closers []func() error
	closeFn := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				lgr.Logger.Warn("error closing service", slog.Any("error", err))
			}
		}
	}

	// Data service
	var dataSvc data.IService = data.NewFilesDB(cfgSvc)
	if dsn := cfgSvc.GetPostgresDSN(); dsn != "" {
		pg, err := data.NewPostgres(ctx, dsn)
		if err != nil {
			return pipeline.ServicesFactory{}, nil, err
		}
		dataSvc = pg
	}
	closers = append(closers, dataSvc.Close)

	// Broker service
	var brokerSvc broker.IService = broker.NewMemory()
	if url := cfgSvc.GetRedisURL(); url != "" {
		rb, err := broker.NewRedisURL(ctx, url)
		if err != nil {
			closeFn()
			return pipeline.ServicesFactory{}, nil, err
		}
		brokerSvc = rb
	}
	closers = append(closers, brokerSvc.Close)

	// Inference service
	var inferenceSvc inference.IService
	if c.VideoSource == model.VideoRandom {
		inferenceSvc = inference.NewFake(cfgSvc.GetFrameStride())
	} else {
		inferenceSvc = inference.NewWorker(cfgSvc.GetInferenceCommand(), cfgSvc.GetFrameStride())
	}
	closers = append(closers, inferenceSvc.Close)

	// Webhook service
	var webhookSvc webhook.IService = webhook.NewFake()
	if url := cfgSvc.GetWebhookURL(); url != "" {
		webhookSvc = webhook.NewHTTP(url, cfgSvc.GetWebhookRatePerMinute())
	}

	return pipeline.ServicesFactory{
		CfgSvc:        cfgSvc,
		DataSvc:       dataSvc,
		InferenceSvc:  inferenceSvc,
		MicrophoneSvc: newMicrophone(cfgSvc, c),
		StorageSvc:    storage.NewLocal(cfgSvc.GetEvidenceFolder()),
		WebhookSvc:    webhookSvc,
		BrokerSvc:     brokerSvc,
		Metrics:       metrics.New(),
	}, closeFn, nil
}

func newMicrophone(cfgSvc config.IService, c model.Candidate) microphone.IService {
	switch c.AudioSource {
	case model.AudioFFmpeg:
		return microphone.NewFFmpeg(c.AudioURL, cfgSvc.GetAudioChunkSize(), cfgSvc.GetAudioSampleRate())
	case model.AudioWAV:
		return microphone.NewWAV(c.AudioURL, cfgSvc.GetAudioChunkSize(), cfgSvc.GetAudioSampleRate(), true)
	default:
		return microphone.NewFake(xerrors.Errorf("audio disabled: %w", proctor.ErrDeviceUnavailable))
	}
}
