package service

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
)

// AcknowledgeAlert records an investigator's review of an alert and
// decrements the task's unread counter.
func (s *Service) AcknowledgeAlert(resultID, userID int64, notes string) error {
	result, err := s.db.GetResult(resultID)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("result %d not found", resultID)
	}
	if !result.IsAlert {
		return fmt.Errorf("result %d is not an alert", resultID)
	}
	if result.AlertAcknowledged {
		return fmt.Errorf("alert %d is already acknowledged", resultID)
	}

	now := time.Now()
	result.AcknowledgeAlert(userID, notes, now)
	return s.db.AcknowledgeAlert(resultID, result.TaskID, userID, notes, now)
}

// MarkAlertsRead zeroes a task's unread alert counter without touching
// the per-result acknowledgement state.
func (s *Service) MarkAlertsRead(taskID int64) error {
	return s.db.MarkTaskAlertsRead(taskID)
}

// ReanalyzeResults re-runs AI analysis over a task's results. By
// default only unanalyzed results are scored, picking up items whose
// original analysis failed or that were captured while analysis was
// disabled; force re-scores everything, which is what an objective
// change needs. Returns how many results were scored and how many new
// alerts were raised.
func (s *Service) ReanalyzeResults(ctx context.Context, taskID int64, force bool) (int, int, error) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return 0, 0, err
	}
	if task == nil {
		return 0, 0, fmt.Errorf("task %d not found", taskID)
	}

	pending, err := s.db.TaskResults(taskID, !force)
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	log.Infof("reanalyzing %d results for task %d", len(pending), taskID)
	analyzed, alerts := s.analyzeResults(ctx, task, pending)
	return analyzed, alerts, nil
}

// VerifyResultIntegrity recomputes a result's content hash and, when
// media was downloaded, every stored file hash.
func (s *Service) VerifyResultIntegrity(resultID int64) (contentOK bool, mediaOK bool, err error) {
	result, err := s.db.GetResult(resultID)
	if err != nil {
		return false, false, err
	}
	if result == nil {
		return false, false, fmt.Errorf("result %d not found", resultID)
	}

	contentOK = result.VerifyIntegrity()
	mediaOK = true
	for i, path := range result.MediaLocalPaths {
		if i >= len(result.MediaHashes) {
			mediaOK = false
			break
		}
		ok, verifyErr := s.verifyMediaFile(path, result.MediaHashes[i])
		if verifyErr != nil || !ok {
			mediaOK = false
			break
		}
	}
	return contentOK, mediaOK, nil
}
