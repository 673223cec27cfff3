package service

import (
	"fmt"

	"monitoring-pipeline/media"
	"monitoring-pipeline/models"
)

// EvidenceStore is the case-management side that owns evidence records.
// The pipeline links results to evidence it creates but never manages
// the evidence lifecycle itself.
type EvidenceStore interface {
	CreateFromResult(result *models.MonitoringResult) (evidenceID int64, err error)
}

// PromoteToEvidence creates an evidence record from a captured result
// and links the result to it. Promoting an already promoted result is
// rejected so the link stays stable.
func (s *Service) PromoteToEvidence(store EvidenceStore, resultID int64) (int64, error) {
	result, err := s.db.GetResult(resultID)
	if err != nil {
		return 0, err
	}
	if result == nil {
		return 0, fmt.Errorf("result %d not found", resultID)
	}
	if result.SavedAsEvidence {
		return 0, fmt.Errorf("result %d is already saved as evidence", resultID)
	}
	if !result.VerifyIntegrity() {
		return 0, fmt.Errorf("result %d failed integrity verification", resultID)
	}

	evidenceID, err := store.CreateFromResult(result)
	if err != nil {
		return 0, fmt.Errorf("failed to create evidence from result %d: %w", resultID, err)
	}
	if err := s.db.MarkResultAsEvidence(resultID, evidenceID); err != nil {
		return 0, err
	}
	return evidenceID, nil
}

func (s *Service) verifyMediaFile(path, wantHash string) (bool, error) {
	return media.VerifyFile(path, wantHash)
}
