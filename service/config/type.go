package config

import "github.com/khaledhikmat/proctor-go/proctor"

type IService interface {
	GetModeMaxShutdownTime() int
	GetDataFolder() string
	GetEvidenceFolder() string
	GetJournalFile() string
	GetSessionPeriodicTimeout() int
	GetStreamerMaxWorkers() int
	GetFrameStride() int
	GetAudioChunkSize() int
	GetAudioSampleRate() int
	GetInferenceCommand() []string
	GetAlerterCoolDown() int
	GetAlerterPeriodicTimeout() int
	GetWebhookURL() string
	GetWebhookRatePerMinute() int
	GetRedisURL() string
	GetPostgresDSN() string
	GetStatusAddress() string
	GetProctorConfig() proctor.Config
}

// Settings is the on-disk shape of the configuration. Zero-valued fields
// in a loaded file keep their defaults.
type Settings struct {
	ModeMaxShutdownTime    int      `yaml:"modeMaxShutdownTime"` // seconds
	DataFolder             string   `yaml:"dataFolder"`
	EvidenceFolder         string   `yaml:"evidenceFolder"`
	JournalFile            string   `yaml:"journalFile"`
	SessionPeriodicTimeout int      `yaml:"sessionPeriodicTimeout"` // seconds
	StreamerMaxWorkers     int      `yaml:"streamerMaxWorkers"`
	FrameStride            int      `yaml:"frameStride"`
	AudioChunkSize         int      `yaml:"audioChunkSize"` // samples
	AudioSampleRate        int      `yaml:"audioSampleRate"`
	InferenceCommand       []string `yaml:"inferenceCommand"`
	AlerterCoolDown        int      `yaml:"alerterCoolDown"`        // seconds
	AlerterPeriodicTimeout int      `yaml:"alerterPeriodicTimeout"` // seconds
	WebhookURL             string   `yaml:"webhookUrl"`
	WebhookRatePerMinute   int      `yaml:"webhookRatePerMinute"`
	RedisURL               string   `yaml:"redisUrl"`
	PostgresDSN            string   `yaml:"postgresDsn"`
	StatusAddress          string   `yaml:"statusAddress"`

	Proctor proctor.Config `yaml:"proctor"`
}
