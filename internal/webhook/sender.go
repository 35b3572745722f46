package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thermalink/thermalink/internal/db"
)

// Event names delivered to subscribers.
const (
	EventJobQueued    = "job_queued"
	EventJobStarted   = "job_started"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
)

type Payload struct {
	DeliveryID string    `json:"delivery_id"`
	Event      string    `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	Data       any       `json:"data"`
}

type JobEventData struct {
	JobID        string `json:"job_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
	SubmittedBy  string `json:"submitted_by,omitempty"`
}

type SenderConfig struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type task struct {
	hook    *db.Webhook
	payload *Payload
	attempt int
}

// Sender fans job lifecycle events out to every enabled webhook with
// HMAC-SHA256 signatures and per-delivery retries.
type Sender struct {
	cfg        SenderConfig
	httpClient *http.Client
	log        *logrus.Entry
	queue      chan *task
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewSender(cfg SenderConfig, log *logrus.Logger) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Sender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.WithField("component", "webhook"),
		queue:      make(chan *task, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// SendJobEvent implements core.EventSender.
func (s *Sender) SendJobEvent(event string, job *db.PrintJob) {
	data := &JobEventData{
		JobID:        job.PublicID,
		Kind:         job.Kind,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		RetryCount:   job.RetryCount,
		SubmittedBy:  job.SubmittedBy,
	}
	s.enqueue(event, data)
}

func (s *Sender) enqueue(event string, data any) {
	hooks, err := db.Webhooks.ListEnabled(context.Background())
	if err != nil {
		s.log.WithError(err).WithField("event", event).Error("failed to load webhooks")
		return
	}

	for _, hook := range hooks {
		if !subscribed(hook.Events, event) {
			continue
		}
		t := &task{
			hook: hook,
			payload: &Payload{
				DeliveryID: uuid.NewString(),
				Event:      event,
				Timestamp:  time.Now().UTC(),
				Data:       data,
			},
		}
		select {
		case s.queue <- t:
		default:
			s.log.WithFields(logrus.Fields{
				"webhook_id": hook.ID,
				"event":      event,
			}).Warn("webhook queue full, dropping delivery")
		}
	}
}

// subscribed checks an event against the hook's comma-separated event
// list; an empty list subscribes to everything.
func subscribed(events, event string) bool {
	if strings.TrimSpace(events) == "" {
		return true
	}
	for _, e := range strings.Split(events, ",") {
		if strings.TrimSpace(e) == event {
			return true
		}
	}
	return false
}

func (s *Sender) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"webhook_id":  t.hook.ID,
					"event":       t.payload.Event,
					"delivery_id": t.payload.DeliveryID,
					"attempts":    t.attempt,
				}).Error("webhook delivery failed")
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.cfg.RetryCount {
		t.attempt++

		err := s.sendRequest(t.hook, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			return err
		}

		if t.attempt < s.cfg.RetryCount {
			backoff := s.cfg.RetryDelay * time.Duration(1<<(t.attempt-1))
			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(hook *db.Webhook, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", payload.Event)
	req.Header.Set("X-Webhook-Delivery", payload.DeliveryID)
	if hook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, hook.Secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers
// verify deliveries by recomputing it over the raw request body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "http error: 4")
}
