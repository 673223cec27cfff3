// Package rabbitmq distributes check jobs across pipeline workers. The
// scheduler publishes one job per due task; consumers pull jobs off a
// shared durable queue so multiple instances split the load. The
// per-task advisory lock in the database makes duplicate deliveries
// harmless.
package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"monitoring-pipeline/metrics"
)

// CheckJob is one queued check execution.
type CheckJob struct {
	JobID             string    `json:"job_id"`
	TaskID            int64     `json:"task_id"`
	TriggeredBy       string    `json:"triggered_by"`
	TriggeredByUserID *int64    `json:"triggered_by_user_id,omitempty"`
	EnqueuedAt        time.Time `json:"enqueued_at"`
}

// PermanentError marks a job failure as non-retriable.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError (non-retriable).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func isPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

// Client holds one AMQP connection with a publish channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// New connects to the broker and declares the durable check queue.
func New(amqpURL, queue string) (*Client, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	metrics.QueueConnected.Set(1)
	return &Client{conn: conn, channel: channel, queue: queue}, nil
}

// Close shuts down the channel and connection.
func (c *Client) Close() {
	metrics.QueueConnected.Set(0)
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// PublishCheckJob enqueues one check job as persistent JSON.
func (c *Client) PublishCheckJob(job *CheckJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal check job: %w", err)
	}

	err = c.channel.Publish("", c.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish check job: %w", err)
	}
	return nil
}

// HandlerFunc processes one check job. Return:
// - nil on success (will Ack)
// - Permanent(err) for permanent failure (will Nack requeue=false)
// - any other error for transient failure (will Nack requeue=true)
type HandlerFunc func(job *CheckJob) error

// Consume runs a worker pool over the check queue until stopCh closes.
func (c *Client) Consume(concurrency int, handler HandlerFunc, stopCh <-chan struct{}) error {
	if err := c.channel.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopCh:
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(d, handler)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (c *Client) handleDelivery(d amqp.Delivery, handler HandlerFunc) {
	var job CheckJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Errorf("dropping malformed check job: %v", err)
		d.Nack(false, false)
		return
	}

	err := handler(&job)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Warnf("failed to ack job %s: %v", job.JobID, ackErr)
		}
	case isPermanent(err):
		log.Errorf("permanent failure for job %s: %v", job.JobID, err)
		d.Nack(false, false)
	default:
		log.Warnf("transient failure for job %s, requeueing: %v", job.JobID, err)
		d.Nack(false, true)
	}
}
