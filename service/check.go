package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"monitoring-pipeline/adapters"
	"monitoring-pipeline/ai"
	"monitoring-pipeline/metrics"
	"monitoring-pipeline/models"
)

// ExecuteCheck runs one full check for a task: fetch every active
// source, persist new content, download media, run AI analysis and
// raise alerts. Sources are checked sequentially so each source's dedup
// marker commits only after its items are safely stored; AI analysis
// runs in parallel afterwards.
//
// Concurrent executions for the same task are prevented with a
// database advisory lock; losing the race is not an error.
func (s *Service) ExecuteCheck(ctx context.Context, taskID int64, triggeredBy string,
	triggeredByUserID *int64, jobID string) error {

	lock, err := s.db.AcquireCheckLock(ctx, taskID)
	if err != nil {
		return err
	}
	if lock == nil {
		log.Infof("check for task %d already running elsewhere, skipping", taskID)
		return nil
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warnf("failed to release check lock for task %d: %v", taskID, err)
		}
	}()

	task, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d not found", taskID)
	}
	if task.Status != models.StatusActive {
		log.Infof("task %d is %s, skipping check", taskID, task.Status)
		return nil
	}

	started := time.Now()
	checkLog := &models.MonitoringCheckLog{
		TaskID:            taskID,
		CheckStartedAt:    started,
		TriggeredBy:       triggeredBy,
		TriggeredByUserID: triggeredByUserID,
		JobID:             jobID,
	}
	if err := s.db.InsertCheckLog(checkLog); err != nil {
		return err
	}

	var newResults []*models.MonitoringResult
	var sourceErrors []string

	sources, err := s.db.ActiveSources(taskID)
	if err != nil {
		sourceErrors = append(sourceErrors, err.Error())
	}

	for _, source := range sources {
		results, err := s.checkSource(ctx, task, source)
		checkLog.SourcesChecked++
		newResults = append(newResults, results...)
		if len(results) > 0 {
			metrics.ResultsCapturedTotal.
				WithLabelValues(string(source.Platform)).Add(float64(len(results)))
		}
		if err == nil {
			continue
		}

		checkLog.ErrorsCount++
		sourceErrors = append(sourceErrors, fmt.Sprintf("source %d: %v", source.ID, err))

		// Fetch failures are isolated per source. A failed database
		// write means the pipeline's own bookkeeping can no longer be
		// trusted, so the whole check fails.
		var se *storageError
		if errors.As(err, &se) {
			checkLog.NewResultsCount = len(newResults)
			checkLog.Complete(false, strings.Join(sourceErrors, "; "), time.Now())
			if logErr := s.db.CompleteCheckLog(checkLog); logErr != nil {
				log.Errorf("failed to complete check log %d: %v", checkLog.ID, logErr)
			}
			metrics.ChecksTotal.WithLabelValues(triggeredBy, "failure").Inc()
			return fmt.Errorf("check for task %d aborted: %w", taskID, err)
		}
		metrics.FetchErrorsTotal.WithLabelValues(string(source.Platform)).Inc()
	}
	checkLog.NewResultsCount = len(newResults)

	if task.AIAnalysisEnabled && len(newResults) > 0 {
		analyzed, alerts := s.analyzeResults(ctx, task, newResults)
		checkLog.AIAnalysesCount = analyzed
		checkLog.AlertsGenerated = alerts
	}

	// A check where every source failed is a failed check; partial
	// source failures still count as success.
	success := len(sourceErrors) == 0 ||
		(checkLog.SourcesChecked > 0 && checkLog.ErrorsCount < checkLog.SourcesChecked)
	checkLog.Complete(success, strings.Join(sourceErrors, "; "), time.Now())
	if err := s.db.CompleteCheckLog(checkLog); err != nil {
		log.Errorf("failed to complete check log %d: %v", checkLog.ID, err)
	}

	now := time.Now()
	task.LastCheckAt = &now
	task.TotalChecks++
	task.TotalResults += len(newResults)
	task.CalculateNextCheck(now)
	if err := s.db.UpdateTaskSchedule(task); err != nil {
		return fmt.Errorf("failed to reschedule task %d: %w", taskID, err)
	}

	result := "success"
	if !success {
		result = "failure"
	}
	metrics.ChecksTotal.WithLabelValues(triggeredBy, result).Inc()
	metrics.CheckDurationSeconds.Observe(time.Since(started).Seconds())

	log.Infof("check for task %d finished: %d sources, %d new results, %d alerts, %d errors",
		taskID, checkLog.SourcesChecked, checkLog.NewResultsCount,
		checkLog.AlertsGenerated, checkLog.ErrorsCount)
	return nil
}

// checkSource fetches one source and persists its new items. The dedup
// marker is written only after every new item is stored, so a crash
// mid-source re-fetches rather than loses content.
func (s *Service) checkSource(ctx context.Context, task *models.MonitoringTask,
	source *models.MonitoringSource) ([]*models.MonitoringResult, error) {

	adapter, err := s.registry.For(source.Platform)
	if err != nil {
		return nil, err
	}

	fetched, err := adapter.Fetch(ctx, adapters.Query{
		Type:       source.QueryType,
		Value:      source.QueryValue,
		MaxResults: source.MaxResultsPerCheck,
		SinceID:    source.LastResultID,
		SinceTime:  source.LastResultTimestamp,
	})
	now := time.Now()
	source.LastCheckAt = &now
	if err != nil {
		source.RecordError(err.Error())
		if updateErr := s.db.UpdateSourceState(source); updateErr != nil {
			log.Errorf("failed to record source %d error: %v", source.ID, updateErr)
		}
		return nil, err
	}

	// Rank-ordered platforms get no cursor cut: a new item can appear
	// anywhere in the list, so every item goes through the identity
	// check instead.
	fresh := fetched
	if adapter.RecencyOrdered() {
		fresh = adapters.FilterNew(fetched, source.LastResultID, source.LastResultTimestamp)
	}

	var stored []*models.MonitoringResult
	// Insert oldest first so database ids follow chronology.
	for i := len(fresh) - 1; i >= 0; i-- {
		item := fresh[i]
		exists, err := s.db.ResultExists(task.ID, source.ID, item.ExternalID)
		if err != nil {
			return stored, &storageError{err}
		}
		if exists {
			continue
		}

		result := &models.MonitoringResult{
			TaskID:            task.ID,
			SourceID:          source.ID,
			ExternalID:        item.ExternalID,
			ExternalURL:       item.URL,
			ContentText:       item.Text,
			ContentMetadata:   item.Metadata,
			AuthorUsername:    item.AuthorUsername,
			AuthorDisplayName: item.AuthorDisplayName,
			AuthorProfileURL:  item.AuthorProfileURL,
			HasMedia:          len(item.MediaURLs) > 0,
			MediaCount:        len(item.MediaURLs),
			MediaURLs:         item.MediaURLs,
			SourceTimestamp:   item.Timestamp,
			CapturedAt:        time.Now(),
		}
		result.ContentHash = models.CalculateContentHash(result.ContentText, result.ExternalID, result.SourceTimestamp)

		if err := s.db.InsertResult(result); err != nil {
			return stored, &storageError{err}
		}

		if source.IncludeMedia && result.HasMedia {
			s.downloadMedia(ctx, result)
		}
		stored = append(stored, result)
	}

	// Advance the watermark to the newest item seen, even when every
	// item turned out to be a duplicate.
	if adapter.RecencyOrdered() {
		id, ts := adapters.NewestMarker(fetched)
		source.AdvanceMarker(id, ts)
	}
	source.ClearErrors()
	if err := s.db.UpdateSourceState(source); err != nil {
		return stored, &storageError{fmt.Errorf("failed to commit source %d markers: %w", source.ID, err)}
	}
	return stored, nil
}

// storageError marks database write failures inside source processing,
// which abort the whole check instead of being isolated per source.
type storageError struct{ err error }

func (e *storageError) Error() string { return e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

func (s *Service) downloadMedia(ctx context.Context, result *models.MonitoringResult) {
	files := s.downloader.DownloadAll(ctx, result.TaskID, result.ID, result.MediaURLs)
	if len(files) == 0 {
		return
	}
	for _, f := range files {
		result.MediaLocalPaths = append(result.MediaLocalPaths, f.LocalPath)
		result.MediaHashes = append(result.MediaHashes, f.SHA256)
		metrics.MediaDownloadedBytes.Add(float64(f.Size))
	}
	result.MediaDownloaded = true
	if err := s.db.UpdateResultMedia(result); err != nil {
		log.Errorf("failed to store media paths for result %d: %v", result.ID, err)
		// Files the database does not know about are unverifiable as
		// evidence; drop them rather than leave orphans.
		if rmErr := s.downloader.RemoveResultMedia(result.TaskID, result.ID); rmErr != nil {
			log.Warnf("failed to remove orphaned media for result %d: %v", result.ID, rmErr)
		}
		result.MediaLocalPaths = nil
		result.MediaHashes = nil
		result.MediaDownloaded = false
	}
}

// analyzeResults scores new results in parallel and raises alerts.
// Returns how many analyses succeeded and how many alerts were raised.
func (s *Service) analyzeResults(ctx context.Context, task *models.MonitoringTask,
	results []*models.MonitoringResult) (int, int) {

	var wg sync.WaitGroup
	var mu sync.Mutex
	analyzed, alerts := 0, 0

	for _, result := range results {
		wg.Add(1)
		go func(r *models.MonitoringResult) {
			defer wg.Done()

			analysis := s.analyzer.Analyze(ctx, task, r)
			isAlert := s.applyAnalysis(r, analysis)

			mu.Lock()
			defer mu.Unlock()
			if analysis.Success {
				analyzed++
			}
			if isAlert {
				alerts++
			}
		}(result)
	}
	wg.Wait()
	return analyzed, alerts
}

// applyAnalysis persists an analysis on its result and flags the alert
// when warranted. Returns whether the result transitioned to alert.
func (s *Service) applyAnalysis(r *models.MonitoringResult, analysis ai.Analysis) bool {
	now := time.Now()
	r.AIAnalyzed = true
	r.AIAnalysisTimestamp = &now
	r.AIProviderUsed = analysis.Provider
	r.AIModelUsed = analysis.Model

	if !analysis.Success {
		r.AIError = analysis.Err
		if err := s.db.UpdateResultAnalysis(r); err != nil {
			log.Errorf("failed to store analysis failure for result %d: %v", r.ID, err)
		}
		metrics.AnalysesTotal.WithLabelValues(orUnknown(analysis.Provider), "failure").Inc()
		return false
	}

	score := analysis.RelevanceScore
	r.AIRelevanceScore = &score
	r.AISummary = analysis.Summary
	r.AIFlags = analysis.Flags
	if err := s.db.UpdateResultAnalysis(r); err != nil {
		log.Errorf("failed to store analysis for result %d: %v", r.ID, err)
	}
	metrics.AnalysesTotal.WithLabelValues(analysis.Provider, "success").Inc()

	if !analysis.IsAlert {
		return false
	}
	if !r.MarkAsAlert(&score, analysis.Flags) {
		return false
	}
	if err := s.db.MarkResultAlert(r); err != nil {
		log.Errorf("failed to mark result %d as alert: %v", r.ID, err)
		return false
	}
	metrics.AlertsGeneratedTotal.Inc()
	return true
}

func orUnknown(provider string) string {
	if provider == "" {
		return "unknown"
	}
	return provider
}
