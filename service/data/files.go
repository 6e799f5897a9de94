package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/service/config"
)

type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
}

// NewFilesDB keeps every entity kind in its own JSON array file under the
// configured data folder.
func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) StoreReport(report model.Report) error {
	return svc.newEntity(report, "reports")
}

func (svc *filesDBService) RetrieveReports(sessionID string) ([]model.Report, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	reports, err := retrieveEntites[model.Report](svc.path("reports"))
	if err != nil {
		return nil, err
	}

	var result []model.Report
	for _, r := range reports {
		if sessionID == "" || r.SessionID == sessionID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (svc *filesDBService) NewError(err interface{}) error {
	return svc.newEntity(toErrorRecord(err, time.Now().Unix()), "errors")
}

func (svc *filesDBService) NewSessionStats(stats model.SessionStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newEntity(stats, "session-stats")
}

func (svc *filesDBService) NewFramerStats(stats model.FramerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newEntity(stats, "framer-stats")
}

func (svc *filesDBService) NewListenerStats(stats model.ListenerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newEntity(stats, "listener-stats")
}

func (svc *filesDBService) NewStreamerStats(stats model.StreamerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newEntity(stats, "streamer-stats")
}

func (svc *filesDBService) NewAlerterStats(stats model.AlerterStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newEntity(stats, "alerter-stats")
}

func (svc *filesDBService) Close() error {
	return nil
}

func (svc *filesDBService) path(name string) string {
	return filepath.Join(svc.CfgSvc.GetDataFolder(), fmt.Sprintf("%s.json", name))
}

func (svc *filesDBService) newEntity(entity interface{}, name string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	output := svc.path(name)
	entities, err := retrieveEntites[json.RawMessage](output)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	entities = append(entities, raw)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	return os.WriteFile(output, data, 0o644)
}

func retrieveEntites[T any](path string) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(path)
	if err != nil {
		// WARNING: File not found, return empty slice
		if os.IsNotExist(err) {
			return entities, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, err
	}

	return entities, nil
}
