package config

import (
	"github.com/khaledhikmat/proctor-go/proctor"
)

type settingsService struct {
	settings Settings
}

func NewHardCoded() IService {
	return &settingsService{
		settings: Defaults(),
	}
}

// Defaults returns the built-in settings every other source starts from.
func Defaults() Settings {
	return Settings{
		ModeMaxShutdownTime:    5,
		DataFolder:             "./data",
		EvidenceFolder:         "./evidence",
		JournalFile:            "./data/cheating.log",
		SessionPeriodicTimeout: 30,
		StreamerMaxWorkers:     1,
		FrameStride:            1,
		AudioChunkSize:         1024,
		AudioSampleRate:        16000,
		InferenceCommand:       []string{"python3", "landmarks/worker.py", "--model", "landmarks/shape_predictor_68_face_landmarks.dat"},
		AlerterCoolDown:        10,
		AlerterPeriodicTimeout: 5 * 60,
		WebhookURL:             "",
		WebhookRatePerMinute:   30,
		RedisURL:               "",
		PostgresDSN:            "",
		StatusAddress:          ":8080",
		Proctor:                proctor.DefaultConfig(),
	}
}

func (svc *settingsService) GetModeMaxShutdownTime() int {
	return svc.settings.ModeMaxShutdownTime
}

func (svc *settingsService) GetDataFolder() string {
	return svc.settings.DataFolder
}

func (svc *settingsService) GetEvidenceFolder() string {
	return svc.settings.EvidenceFolder
}

func (svc *settingsService) GetJournalFile() string {
	return svc.settings.JournalFile
}

func (svc *settingsService) GetSessionPeriodicTimeout() int {
	return svc.settings.SessionPeriodicTimeout
}

// The landmark engine is stateful across frames (smoothing window, tracker),
// so the detector streamer runs a single ordered worker regardless.
func (svc *settingsService) GetStreamerMaxWorkers() int {
	return svc.settings.StreamerMaxWorkers
}

func (svc *settingsService) GetFrameStride() int {
	return svc.settings.FrameStride
}

func (svc *settingsService) GetAudioChunkSize() int {
	return svc.settings.AudioChunkSize
}

func (svc *settingsService) GetAudioSampleRate() int {
	return svc.settings.AudioSampleRate
}

func (svc *settingsService) GetInferenceCommand() []string {
	return svc.settings.InferenceCommand
}

func (svc *settingsService) GetAlerterCoolDown() int {
	return svc.settings.AlerterCoolDown
}

func (svc *settingsService) GetAlerterPeriodicTimeout() int {
	return svc.settings.AlerterPeriodicTimeout
}

func (svc *settingsService) GetWebhookURL() string {
	return svc.settings.WebhookURL
}

func (svc *settingsService) GetWebhookRatePerMinute() int {
	return svc.settings.WebhookRatePerMinute
}

func (svc *settingsService) GetRedisURL() string {
	return svc.settings.RedisURL
}

func (svc *settingsService) GetPostgresDSN() string {
	return svc.settings.PostgresDSN
}

func (svc *settingsService) GetStatusAddress() string {
	return svc.settings.StatusAddress
}

func (svc *settingsService) GetProctorConfig() proctor.Config {
	return svc.settings.Proctor
}
