package webhook

import (
	"log/slog"
	"sync"

	"github.com/khaledhikmat/proctor-go/service/lgr"
)

type fakeService struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
}

// NewFake logs payloads instead of posting them. It is used when no
// webhook URL is configured.
func NewFake() IService {
	return &fakeService{}
}

func (svc *fakeService) Post(payload map[string]interface{}) error {
	svc.mu.Lock()
	svc.payloads = append(svc.payloads, payload)
	svc.mu.Unlock()

	lgr.Logger.Debug(
		"webhook payload",
		slog.Any("payload", payload),
	)
	return nil
}
