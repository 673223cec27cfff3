// Package handlers exposes the pipeline's HTTP API.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"monitoring-pipeline/models"
	"monitoring-pipeline/scheduler"
	"monitoring-pipeline/secrets"
	"monitoring-pipeline/service"
)

// Handlers wires HTTP routes to the service layer.
type Handlers struct {
	svc   *service.Service
	sched *scheduler.Scheduler
	keys  *secrets.Store
}

// New creates the HTTP handlers.
func New(svc *service.Service, sched *scheduler.Scheduler, keys *secrets.Store) *Handlers {
	return &Handlers{svc: svc, sched: sched, keys: keys}
}

// Register mounts all routes on the router.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api/v1")
	{
		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks/:id", h.GetTask)
		api.PUT("/tasks/:id", h.UpdateTask)
		api.DELETE("/tasks/:id", h.DeleteTask)

		api.POST("/tasks/:id/sources", h.AddSource)
		api.POST("/tasks/:id/activate", h.ActivateTask)
		api.POST("/tasks/:id/pause", h.PauseTask)
		api.POST("/tasks/:id/check", h.TriggerCheck)
		api.POST("/tasks/:id/reanalyze", h.ReanalyzeResults)
		api.POST("/tasks/:id/alerts/read", h.MarkAlertsRead)

		api.GET("/tasks/:id/results", h.GetTaskResults)
		api.GET("/tasks/:id/stats", h.GetTaskStatistics)

		api.POST("/results/:id/acknowledge", h.AcknowledgeAlert)
		api.GET("/results/:id/verify", h.VerifyIntegrity)

		api.POST("/sources/:id/toggle", h.ToggleSource)

		api.PUT("/keys/:service", h.RotateKey)
	}
}

// HealthCheck returns service health status.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "monitoring-pipeline",
		"time":    time.Now().UTC(),
	})
}

type taskRequest struct {
	CaseID               int64      `json:"case_id" binding:"required"`
	Name                 string     `json:"name" binding:"required"`
	Description          string     `json:"description"`
	Objective            string     `json:"objective" binding:"required"`
	AIProvider           string     `json:"ai_provider"`
	AIAnalysisEnabled    *bool      `json:"ai_analysis_enabled"`
	AIPromptTemplate     string     `json:"ai_prompt_template"`
	CheckIntervalMinutes int        `json:"check_interval_minutes"`
	StartDate            time.Time  `json:"start_date"`
	EndDate              *time.Time `json:"end_date"`
	CreatedByID          int64      `json:"created_by_id"`
}

func (r *taskRequest) toParams() service.CreateTaskParams {
	enabled := true
	if r.AIAnalysisEnabled != nil {
		enabled = *r.AIAnalysisEnabled
	}
	interval := r.CheckIntervalMinutes
	if interval == 0 {
		interval = 60
	}
	start := r.StartDate
	if start.IsZero() {
		start = time.Now()
	}
	return service.CreateTaskParams{
		CaseID:               r.CaseID,
		Name:                 r.Name,
		Description:          r.Description,
		Objective:            r.Objective,
		AIProvider:           r.AIProvider,
		AIAnalysisEnabled:    enabled,
		AIPromptTemplate:     r.AIPromptTemplate,
		CheckIntervalMinutes: interval,
		StartDate:            start,
		EndDate:              r.EndDate,
		CreatedByID:          r.CreatedByID,
	}
}

// CreateTask creates a new monitoring task in draft status.
func (h *Handlers) CreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.svc.CreateTask(req.toParams())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, task)
}

// GetTask returns one task.
func (h *Handlers) GetTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := h.svc.GetTask(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTask applies configuration changes to a task.
func (h *Handlers) UpdateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.svc.UpdateTask(id, req.toParams())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask soft deletes a task.
func (h *Handlers) DeleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err := h.svc.DeleteTask(id, userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type sourceRequest struct {
	Platform           models.Platform  `json:"platform" binding:"required"`
	QueryType          models.QueryType `json:"query_type" binding:"required"`
	QueryValue         string           `json:"query_value" binding:"required"`
	MaxResultsPerCheck int              `json:"max_results_per_check"`
	IncludeMedia       *bool            `json:"include_media"`
}

// AddSource attaches a platform query to a task.
func (h *Handlers) AddSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	includeMedia := true
	if req.IncludeMedia != nil {
		includeMedia = *req.IncludeMedia
	}
	source, err := h.svc.AddSource(id, req.Platform, req.QueryType,
		req.QueryValue, req.MaxResultsPerCheck, includeMedia)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, source)
}

// ToggleSource enables or disables a source.
func (h *Handlers) ToggleSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	active := c.Query("active") != "false"
	if err := h.svc.SetSourceActive(id, active); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}

// ActivateTask starts monitoring.
func (h *Handlers) ActivateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := h.svc.ActivateTask(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// PauseTask suspends monitoring.
func (h *Handlers) PauseTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := h.svc.PauseTask(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// TriggerCheck queues a manual check for a task.
func (h *Handlers) TriggerCheck(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := h.svc.GetTask(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if task.Status != models.StatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "task is not active"})
		return
	}

	var userID *int64
	if v, err := strconv.ParseInt(c.Query("user_id"), 10, 64); err == nil {
		userID = &v
	}
	jobID := h.sched.Dispatch(id, models.TriggerManual, userID)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// ReanalyzeResults re-runs AI analysis over a task's results.
// ?force=true re-scores already-analyzed results too, for use after the
// monitoring objective changes.
func (h *Handlers) ReanalyzeResults(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	analyzed, alerts, err := h.svc.ReanalyzeResults(c.Request.Context(), id, force)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyzed": analyzed, "alerts": alerts})
}

// MarkAlertsRead zeroes the task's unread alert counter.
func (h *Handlers) MarkAlertsRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.MarkAlertsRead(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_alerts_count": 0})
}

// GetTaskResults returns a task's captured results.
func (h *Handlers) GetTaskResults(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	results, err := h.svc.GetTaskResults(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// GetTaskStatistics returns the task summary view.
func (h *Handlers) GetTaskStatistics(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stats, err := h.svc.GetTaskStatistics(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type acknowledgeRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Notes  string `json:"notes"`
}

// AcknowledgeAlert records an investigator's review of an alert.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.AcknowledgeAlert(id, req.UserID, req.Notes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// VerifyIntegrity recomputes content and media hashes for a result.
func (h *Handlers) VerifyIntegrity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	contentOK, mediaOK, err := h.svc.VerifyResultIntegrity(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content_intact": contentOK,
		"media_intact":   mediaOK,
	})
}

type rotateKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// RotateKey replaces the active credential for an external service.
func (h *Handlers) RotateKey(c *gin.Context) {
	var req rotateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.keys.UpsertKey(c.Param("service"), req.APIKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rotated": true})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
