package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// NewFile layers a YAML settings file (optional when path is empty) and
// then PROCTOR_* environment variables over the defaults.
func NewFile(path string) (IService, error) {
	settings := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, xerrors.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(&settings, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := settings.Proctor.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid proctor settings: %w", err)
	}

	return &settingsService{settings: settings}, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(s *Settings, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return xerrors.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return xerrors.Errorf("%s: %w", key, err)
		}
		*dst = f
		return nil
	}

	str("PROCTOR_DATA_FOLDER", &s.DataFolder)
	str("PROCTOR_EVIDENCE_FOLDER", &s.EvidenceFolder)
	str("PROCTOR_JOURNAL_FILE", &s.JournalFile)
	str("PROCTOR_WEBHOOK_URL", &s.WebhookURL)
	str("PROCTOR_REDIS_URL", &s.RedisURL)
	str("PROCTOR_POSTGRES_DSN", &s.PostgresDSN)
	str("PROCTOR_STATUS_ADDR", &s.StatusAddress)
	if v, ok := lookup("PROCTOR_INFERENCE_CMD"); ok {
		s.InferenceCommand = strings.Fields(v)
	}

	if v, ok := lookup("PROCTOR_DETECTION_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return xerrors.Errorf("PROCTOR_DETECTION_TIMEOUT: %w", err)
		}
		s.Proctor.DetectionTimeout = d
	}

	for _, f := range []func() error{
		func() error { return integer("PROCTOR_FRAME_STRIDE", &s.FrameStride) },
		func() error { return integer("PROCTOR_ALERTER_COOLDOWN", &s.AlerterCoolDown) },
		func() error { return integer("PROCTOR_GAZE_DEBOUNCE", &s.Proctor.GazeDebounceCycles) },
		func() error { return integer("PROCTOR_WINDOW_SIZE", &s.Proctor.WindowSize) },
		func() error { return integer("PROCTOR_MAX_PERSONS", &s.Proctor.MaxPersons) },
		func() error { return float("PROCTOR_AUDIO_THRESHOLD", &s.Proctor.AudioThreshold) },
		func() error { return float("PROCTOR_LIP_THRESHOLD", &s.Proctor.LipThreshold) },
		func() error { return float("PROCTOR_EAR_THRESHOLD", &s.Proctor.EARThreshold) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}
