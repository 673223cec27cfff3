// Package service implements the monitoring pipeline's business logic:
// task and source lifecycle, check execution, alert handling and
// evidence promotion.
package service

import (
	"fmt"
	"time"

	"monitoring-pipeline/adapters"
	"monitoring-pipeline/ai"
	"monitoring-pipeline/config"
	"monitoring-pipeline/database"
	"monitoring-pipeline/media"
	"monitoring-pipeline/models"
)

// Service coordinates the pipeline around the database.
type Service struct {
	db         *database.Database
	registry   *adapters.Registry
	analyzer   *ai.Analyzer
	downloader *media.Downloader
	cfg        *config.Config
}

// New creates the pipeline service.
func New(db *database.Database, registry *adapters.Registry, analyzer *ai.Analyzer,
	downloader *media.Downloader, cfg *config.Config) *Service {
	return &Service{
		db:         db,
		registry:   registry,
		analyzer:   analyzer,
		downloader: downloader,
		cfg:        cfg,
	}
}

// CreateTaskParams are the user-supplied fields for a new task.
type CreateTaskParams struct {
	CaseID               int64
	Name                 string
	Description          string
	Objective            string
	AIProvider           string
	AIAnalysisEnabled    bool
	AIPromptTemplate     string
	CheckIntervalMinutes int
	StartDate            time.Time
	EndDate              *time.Time
	CreatedByID          int64
}

// CreateTask stores a new task in draft status.
func (s *Service) CreateTask(p CreateTaskParams) (*models.MonitoringTask, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if p.Objective == "" {
		return nil, fmt.Errorf("task objective is required")
	}
	if p.CheckIntervalMinutes < 1 {
		return nil, fmt.Errorf("check interval must be at least 1 minute")
	}
	if p.EndDate != nil && !p.EndDate.After(p.StartDate) {
		return nil, fmt.Errorf("end date must be after start date")
	}

	task := &models.MonitoringTask{
		CaseID:               p.CaseID,
		Name:                 p.Name,
		Description:          p.Description,
		Objective:            p.Objective,
		AIProvider:           p.AIProvider,
		AIAnalysisEnabled:    p.AIAnalysisEnabled,
		AIPromptTemplate:     p.AIPromptTemplate,
		CheckIntervalMinutes: p.CheckIntervalMinutes,
		StartDate:            p.StartDate,
		EndDate:              p.EndDate,
		Status:               models.StatusDraft,
		CreatedByID:          p.CreatedByID,
	}
	if task.AIProvider == "" {
		task.AIProvider = "deepseek"
	}
	if err := s.db.InsertTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies user edits to a task's configuration. Interval and
// date changes take effect from the next schedule computation.
func (s *Service) UpdateTask(taskID int64, p CreateTaskParams) (*models.MonitoringTask, error) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", taskID)
	}
	if p.CheckIntervalMinutes < 1 {
		return nil, fmt.Errorf("check interval must be at least 1 minute")
	}

	task.Name = p.Name
	task.Description = p.Description
	task.Objective = p.Objective
	if p.AIProvider != "" {
		task.AIProvider = p.AIProvider
	}
	task.AIAnalysisEnabled = p.AIAnalysisEnabled
	task.AIPromptTemplate = p.AIPromptTemplate
	task.CheckIntervalMinutes = p.CheckIntervalMinutes
	task.StartDate = p.StartDate
	task.EndDate = p.EndDate

	if err := s.db.UpdateTaskConfig(task); err != nil {
		return nil, err
	}
	if task.Status == models.StatusActive {
		task.CalculateNextCheck(time.Now())
		if err := s.db.UpdateTaskSchedule(task); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// AddSource attaches a platform query to a task after validating the
// platform supports the query type.
func (s *Service) AddSource(taskID int64, platform models.Platform, queryType models.QueryType,
	queryValue string, maxResults int, includeMedia bool) (*models.MonitoringSource, error) {

	task, err := s.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", taskID)
	}
	if queryValue == "" {
		return nil, fmt.Errorf("query value is required")
	}
	if !supportedQuery(platform, queryType) {
		return nil, fmt.Errorf("platform %s does not support query type %s", platform, queryType)
	}
	if _, err := s.registry.For(platform); err != nil {
		return nil, err
	}
	if maxResults < 1 {
		maxResults = 20
	}

	source := &models.MonitoringSource{
		TaskID:             taskID,
		Platform:           platform,
		QueryType:          queryType,
		QueryValue:         queryValue,
		MaxResultsPerCheck: maxResults,
		IncludeMedia:       includeMedia,
		IsActive:           true,
	}
	if err := s.db.InsertSource(source); err != nil {
		return nil, err
	}
	return source, nil
}

func supportedQuery(platform models.Platform, queryType models.QueryType) bool {
	switch platform {
	case models.PlatformX:
		return queryType == models.QueryUserProfile ||
			queryType == models.QueryHashtag || queryType == models.QuerySearch
	case models.PlatformInstagram:
		return queryType == models.QueryUserProfile || queryType == models.QueryHashtag
	case models.PlatformWebSearch:
		return queryType == models.QuerySearch
	}
	return false
}

// SetSourceActive toggles a source without touching its dedup markers,
// so a re-enabled source resumes from where it stopped.
func (s *Service) SetSourceActive(sourceID int64, active bool) error {
	return s.db.SetSourceActive(sourceID, active)
}

// ActivateTask transitions a task to active. A task with no sources
// cannot be activated.
func (s *Service) ActivateTask(taskID int64) (*models.MonitoringTask, error) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", taskID)
	}

	count, err := s.db.CountTaskSources(taskID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("task %d has no sources to monitor", taskID)
	}

	if !task.Activate(time.Now()) {
		return nil, fmt.Errorf("task %d cannot be activated from status %s", taskID, task.Status)
	}
	if err := s.db.UpdateTaskSchedule(task); err != nil {
		return nil, err
	}
	return task, nil
}

// PauseTask suspends scheduling for an active task.
func (s *Service) PauseTask(taskID int64) (*models.MonitoringTask, error) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", taskID)
	}
	if !task.Pause() {
		return nil, fmt.Errorf("task %d cannot be paused from status %s", taskID, task.Status)
	}
	if err := s.db.UpdateTaskSchedule(task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask soft deletes a task, keeping every captured result and
// check log for forensic history.
func (s *Service) DeleteTask(taskID, userID int64) error {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d not found", taskID)
	}
	task.SoftDelete(userID, time.Now())
	return s.db.SoftDeleteTask(task)
}
