// Package scheduler polls for due monitoring tasks and dispatches their
// checks, either onto the shared job queue or inline when no broker is
// configured.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"monitoring-pipeline/database"
	"monitoring-pipeline/metrics"
	"monitoring-pipeline/models"
	"monitoring-pipeline/rabbitmq"
	"monitoring-pipeline/service"
)

// JobPublisher enqueues check jobs for the worker pool.
type JobPublisher interface {
	PublishCheckJob(job *rabbitmq.CheckJob) error
}

// Scheduler runs the polling loop.
type Scheduler struct {
	db        *database.Database
	svc       *service.Service
	publisher JobPublisher

	interval    time.Duration
	softTimeout time.Duration
	hardTimeout time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler. publisher may be nil; checks then run inline
// in this process.
func New(db *database.Database, svc *service.Service, publisher JobPublisher,
	interval, softTimeout, hardTimeout time.Duration) *Scheduler {
	return &Scheduler{
		db:          db,
		svc:         svc,
		publisher:   publisher,
		interval:    interval,
		softTimeout: softTimeout,
		hardTimeout: hardTimeout,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the polling loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Infof("scheduler started, polling every %s", s.interval)
		for {
			select {
			case <-s.stopChan:
				log.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.poll()
			}
		}
	}()
}

// Stop shuts the polling loop down and waits for it.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) poll() {
	due, err := s.db.DueTasks(time.Now())
	if err != nil {
		log.Errorf("failed to query due tasks: %v", err)
		return
	}
	metrics.DueTasksGauge.Set(float64(len(due)))
	if len(due) == 0 {
		return
	}

	log.Infof("dispatching %d due tasks", len(due))
	for _, task := range due {
		s.dispatch(task, models.TriggerScheduled, nil)
	}
}

// Dispatch queues a check for one task, or runs it inline without a
// broker. Manual triggers from the API land here too.
func (s *Scheduler) Dispatch(taskID int64, triggeredBy string, userID *int64) string {
	return s.dispatch(&models.MonitoringTask{ID: taskID}, triggeredBy, userID)
}

func (s *Scheduler) dispatch(task *models.MonitoringTask, triggeredBy string, userID *int64) string {
	job := &rabbitmq.CheckJob{
		JobID:             uuid.New().String(),
		TaskID:            task.ID,
		TriggeredBy:       triggeredBy,
		TriggeredByUserID: userID,
		EnqueuedAt:        time.Now(),
	}

	if s.publisher != nil {
		err := s.publisher.PublishCheckJob(job)
		if err == nil {
			return job.JobID
		}
		log.Errorf("failed to publish check job for task %d, running inline: %v", task.ID, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunCheck(job)
	}()
	return job.JobID
}

// RunCheck executes one check job with the configured time budgets. The
// soft budget cancels the check's context, which aborts in-flight
// fetches and AI calls gracefully: results already committed stay
// committed and the check log records the partial counts. The hard
// limit is a watchdog for checks stuck past cancellation; the queue's
// redelivery handles those.
func (s *Scheduler) RunCheck(job *rabbitmq.CheckJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.softTimeout)
	defer cancel()

	hard := time.AfterFunc(s.hardTimeout, func() {
		log.Errorf("check for task %d is stuck past the %s hard limit", job.TaskID, s.hardTimeout)
	})
	defer hard.Stop()

	err := s.svc.ExecuteCheck(ctx, job.TaskID, job.TriggeredBy, job.TriggeredByUserID, job.JobID)
	if err != nil {
		log.Errorf("check for task %d failed: %v", job.TaskID, err)
	}
	return err
}
