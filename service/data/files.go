package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/config"
)

type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
}

// NewFilesDB keeps one JSON array file per entity under the data folder.
func NewFilesDB(cfgsvc config.IService) (IService, error) {
	if err := os.MkdirAll(cfgsvc.GetDataFolder(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data folder: %w", err)
	}

	return &filesDBService{
		CfgSvc: cfgsvc,
	}, nil
}

func (svc *filesDBService) NewError(err interface{}) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(toErrorRecord(err, time.Now().Unix()), "errors", svc.CfgSvc)
}

func (svc *filesDBService) NewSessionStats(stats model.SessionStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "session-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewDispatcherStats(stats model.DispatcherStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "dispatcher-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewCountSample(sample model.CountSample) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().Unix()
	}
	return newEntity(sample, "count-samples", svc.CfgSvc)
}

// RetrieveCountSamples returns the most recent samples, newest first.
func (svc *filesDBService) RetrieveCountSamples(limit int) ([]model.CountSample, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	samples, err := retrieveEntities[model.CountSample]("count-samples", svc.CfgSvc)
	if err != nil {
		return nil, err
	}

	result := []model.CountSample{}
	for i := len(samples) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		result = append(result, samples[i])
	}
	return result, nil
}

func (svc *filesDBService) Close() error {
	return nil
}

func entityPath(filename string, cfgsvc config.IService) string {
	return filepath.Join(cfgsvc.GetDataFolder(), filename+".json")
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntities[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	return os.WriteFile(entityPath(filename, cfgsvc), data, 0644)
}

func retrieveEntities[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(entityPath(filename, cfgsvc))
	if os.IsNotExist(err) {
		// WARNING: File not found, return empty slice
		return entities, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("corrupt %s store: %w", filename, err)
	}

	return entities, nil
}
