package service

import (
	"fmt"

	"monitoring-pipeline/models"
)

// TaskStatistics is the summary view for one task.
type TaskStatistics struct {
	Task *models.MonitoringTask `json:"task"`

	TotalResults       int `json:"total_results"`
	AlertCount         int `json:"alert_count"`
	AcknowledgedAlerts int `json:"acknowledged_alerts"`
	EvidenceCount      int `json:"evidence_count"`

	MediaFiles int   `json:"media_files"`
	MediaBytes int64 `json:"media_bytes"`

	RecentChecks []*models.MonitoringCheckLog `json:"recent_checks"`
}

// GetTaskStatistics assembles counters, storage usage and the recent
// check history for a task.
func (s *Service) GetTaskStatistics(taskID int64) (*TaskStatistics, error) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", taskID)
	}

	total, alerts, acked, evidence, err := s.db.ResultCounts(taskID)
	if err != nil {
		return nil, err
	}

	files, bytes, err := s.downloader.StorageStats(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage stats for task %d: %w", taskID, err)
	}

	recent, err := s.db.RecentCheckLogs(taskID, 10)
	if err != nil {
		return nil, err
	}

	return &TaskStatistics{
		Task:               task,
		TotalResults:       total,
		AlertCount:         alerts,
		AcknowledgedAlerts: acked,
		EvidenceCount:      evidence,
		MediaFiles:         files,
		MediaBytes:         bytes,
		RecentChecks:       recent,
	}, nil
}

// GetTask loads one task.
func (s *Service) GetTask(taskID int64) (*models.MonitoringTask, error) {
	return s.db.GetTask(taskID)
}

// GetTaskResults loads the captured results of a task.
func (s *Service) GetTaskResults(taskID int64) ([]*models.MonitoringResult, error) {
	return s.db.TaskResults(taskID, false)
}
