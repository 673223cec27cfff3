package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"monitoring-pipeline/models"
)

// ResultExists reports whether a result with the same platform identity is
// already stored. This backs the (task_id, source_id, external_id)
// uniqueness guarantee independently of the cursor-based dedup.
func (d *Database) ResultExists(taskID, sourceID int64, externalID string) (bool, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM monitoring_results
		 WHERE task_id = ? AND source_id = ? AND external_id = ?`,
		taskID, sourceID, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check result existence: %w", err)
	}
	return n > 0, nil
}

// InsertResult stores a newly captured content item and fills in its ID.
func (d *Database) InsertResult(r *models.MonitoringResult) error {
	res, err := d.db.Exec(`INSERT INTO monitoring_results
		(task_id, source_id, external_id, external_url, content_text, content_metadata,
		 author_username, author_display_name, author_profile_url,
		 has_media, media_count, media_urls, source_timestamp, captured_at, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, r.SourceID, r.ExternalID, nullString(r.ExternalURL),
		r.ContentText, nullString(r.ContentMetadata),
		nullString(r.AuthorUsername), nullString(r.AuthorDisplayName), nullString(r.AuthorProfileURL),
		r.HasMedia, r.MediaCount, jsonOrNull(r.MediaURLs),
		nullTime(r.SourceTimestamp), r.CapturedAt, r.ContentHash)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get result id: %w", err)
	}
	return nil
}

// UpdateResultMedia persists the outcome of a media download.
func (d *Database) UpdateResultMedia(r *models.MonitoringResult) error {
	_, err := d.db.Exec(`UPDATE monitoring_results SET
		media_downloaded = ?, media_local_paths = ?, media_hashes = ?
		WHERE id = ?`,
		r.MediaDownloaded, jsonOrNull(r.MediaLocalPaths), jsonOrNull(r.MediaHashes), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update result %d media: %w", r.ID, err)
	}
	return nil
}

// UpdateResultAnalysis persists AI analysis outputs.
func (d *Database) UpdateResultAnalysis(r *models.MonitoringResult) error {
	_, err := d.db.Exec(`UPDATE monitoring_results SET
		ai_analyzed = ?, ai_analysis_timestamp = ?, ai_provider_used = ?, ai_model_used = ?,
		ai_relevance_score = ?, ai_summary = ?, ai_flags = ?, ai_error = ?
		WHERE id = ?`,
		r.AIAnalyzed, nullTime(r.AIAnalysisTimestamp),
		nullString(r.AIProviderUsed), nullString(r.AIModelUsed),
		nullFloat64(r.AIRelevanceScore), nullString(r.AISummary),
		jsonOrNull(r.AIFlags), nullString(r.AIError), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update result %d analysis: %w", r.ID, err)
	}
	return nil
}

// MarkResultAlert flags a result and bumps the owning task's alert
// counters in the same transaction. The counters move by exactly one per
// result transitioning to alert; re-marking an already-alerted result is
// a no-op for the counters.
func (d *Database) MarkResultAlert(r *models.MonitoringResult) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin alert transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE monitoring_results SET
		is_alert = TRUE, ai_relevance_score = ?, ai_flags = ?
		WHERE id = ? AND is_alert = FALSE`,
		nullFloat64(r.AIRelevanceScore), jsonOrNull(r.AIFlags), r.ID)
	if err != nil {
		return fmt.Errorf("failed to mark result %d as alert: %w", r.ID, err)
	}

	transitioned, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read alert rows affected: %w", err)
	}

	if transitioned > 0 {
		_, err = tx.Exec(`UPDATE monitoring_tasks SET
			alerts_count = alerts_count + 1, unread_alerts_count = unread_alerts_count + 1
			WHERE id = ?`, r.TaskID)
		if err != nil {
			return fmt.Errorf("failed to increment alert counters for task %d: %w", r.TaskID, err)
		}
	}

	return tx.Commit()
}

// AcknowledgeAlert records the review and decrements the task's unread
// counter, floored at zero.
func (d *Database) AcknowledgeAlert(resultID, taskID, userID int64, notes string, now time.Time) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin acknowledge transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE monitoring_results SET
		alert_acknowledged = TRUE, alert_acknowledged_by_id = ?, alert_acknowledged_at = ?, alert_notes = ?
		WHERE id = ? AND is_alert = TRUE`,
		userID, now, nullString(notes), resultID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", resultID, err)
	}

	_, err = tx.Exec(`UPDATE monitoring_tasks SET
		unread_alerts_count = GREATEST(unread_alerts_count - 1, 0)
		WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to decrement unread alerts for task %d: %w", taskID, err)
	}

	return tx.Commit()
}

// MarkResultAsEvidence links a result to externally created evidence.
func (d *Database) MarkResultAsEvidence(resultID, evidenceID int64) error {
	_, err := d.db.Exec(`UPDATE monitoring_results SET
		saved_as_evidence = TRUE, evidence_id = ?
		WHERE id = ? AND saved_as_evidence = FALSE`, evidenceID, resultID)
	if err != nil {
		return fmt.Errorf("failed to mark result %d as evidence: %w", resultID, err)
	}
	return nil
}

const resultColumns = `id, task_id, source_id, external_id, external_url,
	content_text, content_metadata, author_username, author_display_name, author_profile_url,
	has_media, media_count, media_urls, media_downloaded, media_local_paths, media_hashes,
	source_timestamp, captured_at,
	ai_analyzed, ai_analysis_timestamp, ai_provider_used, ai_model_used,
	ai_relevance_score, ai_summary, ai_flags, ai_error,
	is_alert, alert_acknowledged, alert_acknowledged_by_id, alert_acknowledged_at, alert_notes,
	saved_as_evidence, evidence_id, content_hash`

func scanResult(row interface{ Scan(...any) error }) (*models.MonitoringResult, error) {
	var r models.MonitoringResult
	var externalURL, contentText, metadata, username, displayName, profileURL sql.NullString
	var mediaURLs, mediaPaths, mediaHashes, aiFlags sql.NullString
	var providerUsed, modelUsed, summary, aiError, notes sql.NullString
	var sourceTS, analysisTS, ackAt sql.NullTime
	var score sql.NullFloat64
	var ackBy, evidenceID sql.NullInt64

	err := row.Scan(
		&r.ID, &r.TaskID, &r.SourceID, &r.ExternalID, &externalURL,
		&contentText, &metadata, &username, &displayName, &profileURL,
		&r.HasMedia, &r.MediaCount, &mediaURLs, &r.MediaDownloaded, &mediaPaths, &mediaHashes,
		&sourceTS, &r.CapturedAt,
		&r.AIAnalyzed, &analysisTS, &providerUsed, &modelUsed,
		&score, &summary, &aiFlags, &aiError,
		&r.IsAlert, &r.AlertAcknowledged, &ackBy, &ackAt, &notes,
		&r.SavedAsEvidence, &evidenceID, &r.ContentHash,
	)
	if err != nil {
		return nil, err
	}

	r.ExternalURL = externalURL.String
	r.ContentText = contentText.String
	r.ContentMetadata = metadata.String
	r.AuthorUsername = username.String
	r.AuthorDisplayName = displayName.String
	r.AuthorProfileURL = profileURL.String
	r.AIProviderUsed = providerUsed.String
	r.AIModelUsed = modelUsed.String
	r.AISummary = summary.String
	r.AIError = aiError.String
	r.AlertNotes = notes.String
	r.MediaURLs = decodeStrings(mediaURLs)
	r.MediaLocalPaths = decodeStrings(mediaPaths)
	r.MediaHashes = decodeStrings(mediaHashes)
	r.AIFlags = decodeStrings(aiFlags)
	if sourceTS.Valid {
		r.SourceTimestamp = &sourceTS.Time
	}
	if analysisTS.Valid {
		r.AIAnalysisTimestamp = &analysisTS.Time
	}
	if ackAt.Valid {
		r.AlertAcknowledgedAt = &ackAt.Time
	}
	if score.Valid {
		r.AIRelevanceScore = &score.Float64
	}
	if ackBy.Valid {
		r.AlertAcknowledgedBy = &ackBy.Int64
	}
	if evidenceID.Valid {
		r.EvidenceID = &evidenceID.Int64
	}
	return &r, nil
}

// GetResult loads a result by ID. Returns nil when not found.
func (d *Database) GetResult(id int64) (*models.MonitoringResult, error) {
	row := d.db.QueryRow(`SELECT `+resultColumns+` FROM monitoring_results WHERE id = ?`, id)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result %d: %w", id, err)
	}
	return r, nil
}

// TaskResults loads results for a task. When unanalyzedOnly is set, only
// results not yet scored by the AI are returned.
func (d *Database) TaskResults(taskID int64, unanalyzedOnly bool) ([]*models.MonitoringResult, error) {
	query := `SELECT ` + resultColumns + ` FROM monitoring_results WHERE task_id = ?`
	if unanalyzedOnly {
		query += ` AND ai_analyzed = FALSE`
	}
	query += ` ORDER BY id`

	rows, err := d.db.Query(query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var results []*models.MonitoringResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ResultCounts returns total, alert, acknowledged-alert and
// saved-as-evidence counts for a task in one query.
func (d *Database) ResultCounts(taskID int64) (total, alerts, acknowledged, evidence int, err error) {
	err = d.db.QueryRow(`SELECT
		COUNT(*),
		COALESCE(SUM(is_alert), 0),
		COALESCE(SUM(is_alert AND alert_acknowledged), 0),
		COALESCE(SUM(saved_as_evidence), 0)
		FROM monitoring_results WHERE task_id = ?`, taskID).
		Scan(&total, &alerts, &acknowledged, &evidence)
	if err != nil {
		err = fmt.Errorf("failed to count results for task %d: %w", taskID, err)
	}
	return
}

func jsonOrNull(values []string) sql.NullString {
	if len(values) == 0 {
		return sql.NullString{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func decodeStrings(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil
	}
	return out
}
