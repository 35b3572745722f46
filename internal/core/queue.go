package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thermalink/thermalink/internal/config"
	"github.com/thermalink/thermalink/internal/db"
	"github.com/thermalink/thermalink/internal/escpos"
	"github.com/thermalink/thermalink/internal/transport"
)

// PrinterSession is the transport surface the queue drives.
type PrinterSession interface {
	Connect(ctx context.Context) error
	WriteJob(ctx context.Context, job escpos.Job) error
	Disconnect()
	State() transport.State
	Handle() *transport.DeviceHandle
}

type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// Queue persists submitted jobs and drains them to the printer session.
// It runs exactly one worker: jobs reach the wire strictly in submission
// order and never interleave.
type Queue struct {
	session PrinterSession
	cfg     *config.QueueConfig
	events  EventSender
	log     *logrus.Entry

	stopCh chan struct{}
	jobCh  chan int64
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

func NewQueue(session PrinterSession, cfg *config.QueueConfig, events EventSender, log *logrus.Logger) *Queue {
	if cfg == nil {
		cfg = &config.QueueConfig{MaxRetries: 3, RetryDelay: 10 * time.Second}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Queue{
		session: session,
		cfg:     cfg,
		events:  events,
		log:     log.WithField("component", "queue"),
		stopCh:  make(chan struct{}),
		jobCh:   make(chan int64, 256),
	}
}

func (q *Queue) Start() error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.mu.Unlock()

	if err := q.recoverJobs(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	q.wg.Add(2)
	go q.worker()
	go q.dispatcher()
	return nil
}

func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
}

// Enqueue validates the payload, persists the job and queues it for the
// worker. Validation faults surface immediately to the caller and leave
// no record.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any, submittedBy string) (*db.PrintJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if _, err := BuildJob(kind, string(raw)); err != nil {
		return nil, err
	}

	job := &db.PrintJob{
		PublicID:    uuid.NewString(),
		Kind:        kind,
		PayloadJSON: string(raw),
		Status:      string(JobStatusPending),
		MaxRetries:  q.cfg.MaxRetries,
		SubmittedBy: submittedBy,
	}
	if err := db.Jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if q.events != nil {
		q.events.SendJobEvent("job_queued", job)
	}

	select {
	case q.jobCh <- job.ID:
	default:
	}
	return job, nil
}

// recoverJobs requeues work that was in flight when the process died.
func (q *Queue) recoverJobs() error {
	ctx := context.Background()
	if err := db.Jobs.ResetProcessing(ctx); err != nil {
		return err
	}
	q.fillFromDB()
	return nil
}

func (q *Queue) dispatcher() {
	defer q.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.fillFromDB()
		}
	}
}

func (q *Queue) fillFromDB() {
	id, err := db.Jobs.NextPending(context.Background())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			q.log.WithError(err).Error("failed to poll pending jobs")
		}
		return
	}
	select {
	case q.jobCh <- id:
	default:
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case jobID := <-q.jobCh:
			q.processJob(jobID)
		}
	}
}

func (q *Queue) processJob(jobID int64) {
	ctx := context.Background()

	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			q.log.WithError(err).WithField("job_id", jobID).Error("failed to load job")
		}
		return
	}
	if job.Status != string(JobStatusPending) {
		return
	}

	printJob, err := BuildJob(job.Kind, job.PayloadJSON)
	if err != nil {
		q.fail(job, fmt.Sprintf("payload rejected: %v", err))
		return
	}

	now := time.Now()
	job.Status = string(JobStatusProcessing)
	job.StartedAt = &now
	if err := db.Jobs.UpdateStatus(ctx, job.ID, job.Status, "", &now, nil); err != nil {
		q.log.WithError(err).WithField("job_id", job.ID).Error("failed to mark job processing")
		return
	}
	if q.events != nil {
		q.events.SendJobEvent("job_started", job)
	}

	if err := q.deliver(ctx, printJob); err != nil {
		q.handleFailure(job, err)
		return
	}

	done := time.Now()
	job.Status = string(JobStatusCompleted)
	job.CompletedAt = &done
	if err := db.Jobs.UpdateStatus(ctx, job.ID, job.Status, "", nil, &done); err != nil {
		q.log.WithError(err).WithField("job_id", job.ID).Error("failed to mark job completed")
	}
	if q.events != nil {
		q.events.SendJobEvent("job_completed", job)
	}
	q.log.WithFields(logrus.Fields{"job_id": job.ID, "kind": job.Kind}).Info("job printed")
}

func (q *Queue) deliver(ctx context.Context, job escpos.Job) error {
	if err := q.session.Connect(ctx); err != nil {
		return err
	}
	err := q.session.WriteJob(ctx, job)
	if errors.Is(err, transport.ErrNotConnected) {
		// The link dropped between jobs; one reconnect attempt before
		// the retry machinery takes over.
		if cerr := q.session.Connect(ctx); cerr != nil {
			return cerr
		}
		err = q.session.WriteJob(ctx, job)
	}
	return err
}

// handleFailure retries environment faults with exponential backoff and
// resubmits the whole job from scratch; partial jobs are never resumed.
func (q *Queue) handleFailure(job *db.PrintJob, cause error) {
	ctx := context.Background()

	if job.RetryCount < job.MaxRetries {
		if err := db.Jobs.IncrementRetry(ctx, job.ID); err != nil {
			q.log.WithError(err).WithField("job_id", job.ID).Error("failed to increment retry count")
		}
		delay := q.backoff(job.RetryCount)
		q.log.WithFields(logrus.Fields{
			"job_id": job.ID,
			"retry":  job.RetryCount + 1,
			"delay":  delay,
		}).WithError(cause).Warn("job delivery failed, retrying")

		if err := db.Jobs.UpdateStatus(ctx, job.ID, string(JobStatusPending), cause.Error(), nil, nil); err != nil {
			q.log.WithError(err).WithField("job_id", job.ID).Error("failed to requeue job")
			return
		}
		time.AfterFunc(delay, func() {
			select {
			case q.jobCh <- job.ID:
			case <-q.stopCh:
			}
		})
		return
	}

	q.fail(job, cause.Error())
}

func (q *Queue) fail(job *db.PrintJob, errMsg string) {
	now := time.Now()
	job.Status = string(JobStatusFailed)
	job.ErrorMessage = errMsg
	job.CompletedAt = &now
	if err := db.Jobs.UpdateStatus(context.Background(), job.ID, job.Status, errMsg, nil, &now); err != nil {
		q.log.WithError(err).WithField("job_id", job.ID).Error("failed to mark job failed")
	}
	if q.events != nil {
		q.events.SendJobEvent("job_failed", job)
	}
	q.log.WithFields(logrus.Fields{"job_id": job.ID, "error": errMsg}).Error("job failed")
}

func (q *Queue) backoff(retryCount int) time.Duration {
	base := q.cfg.RetryDelay
	if base == 0 {
		base = 10 * time.Second
	}
	backoff := base * time.Duration(1<<uint(retryCount))
	const maxBackoff = 5 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func (q *Queue) Cancel(ctx context.Context, id int64) error {
	ok, err := db.Jobs.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job cannot be cancelled (already started or finished)")
	}
	return nil
}

// Retry puts a failed job back in line with a fresh retry budget.
func (q *Queue) Retry(ctx context.Context, id int64) error {
	ok, err := db.Jobs.RequeueFailed(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("only failed jobs can be retried")
	}
	select {
	case q.jobCh <- id:
	default:
	}
	return nil
}

func (q *Queue) GetStats(ctx context.Context) *QueueStats {
	stats := &QueueStats{}
	counts, err := db.Jobs.CountByStatus(ctx)
	if err != nil {
		q.log.WithError(err).Error("failed to collect queue stats")
		return stats
	}
	for status, count := range counts {
		stats.Total += count
		switch JobStatus(status) {
		case JobStatusPending:
			stats.Pending = count
		case JobStatusProcessing:
			stats.Processing = count
		case JobStatusCompleted:
			stats.Completed = count
		case JobStatusFailed:
			stats.Failed = count
		case JobStatusCancelled:
			stats.Cancelled = count
		}
	}
	return stats
}
