package core

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermalink/thermalink/internal/config"
	"github.com/thermalink/thermalink/internal/db"
	"github.com/thermalink/thermalink/internal/escpos"
	"github.com/thermalink/thermalink/internal/transport"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "thermalink-queue-test-*")
	if err != nil {
		panic(err)
	}
	if err := db.Init(db.Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		panic(err)
	}
	code := m.Run()
	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

type mockSession struct {
	mu          sync.Mutex
	connectErr  error
	writeErr    error
	connects    int
	writtenJobs []escpos.Job
}

func (m *mockSession) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	return m.connectErr
}

func (m *mockSession) WriteJob(ctx context.Context, job escpos.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenJobs = append(m.writtenJobs, job)
	return nil
}

func (m *mockSession) Disconnect() {}

func (m *mockSession) State() transport.State { return transport.StateConnected }

func (m *mockSession) Handle() *transport.DeviceHandle { return nil }

func (m *mockSession) written() []escpos.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]escpos.Job(nil), m.writtenJobs...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) SendJobEvent(event string, job *db.PrintJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestQueue(session PrinterSession, events EventSender) *Queue {
	cfg := &config.QueueConfig{MaxRetries: 1, RetryDelay: 10 * time.Millisecond}
	return NewQueue(session, cfg, events, quietLogger())
}

func TestEnqueueRejectsBadPayload(t *testing.T) {
	q := newTestQueue(&mockSession{}, nil)

	_, err := q.Enqueue(context.Background(), "feed", FeedPayload{Lines: 0}, "test")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, escpos.ErrInvalidParameter) {
		t.Errorf("unexpected error class: %v", err)
	}
}

func TestEnqueuePersistsJob(t *testing.T) {
	rec := &eventRecorder{}
	q := newTestQueue(&mockSession{}, rec)

	job, err := q.Enqueue(context.Background(), "text", TextPayload{Text: "hi"}, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.PublicID == "" {
		t.Error("missing public id")
	}
	if job.Status != string(JobStatusPending) {
		t.Errorf("status = %q, want pending", job.Status)
	}

	stored, err := db.Jobs.GetJobByPublicID(context.Background(), job.PublicID)
	if err != nil {
		t.Fatalf("GetJobByPublicID: %v", err)
	}
	if stored.Kind != "text" {
		t.Errorf("kind = %q, want text", stored.Kind)
	}

	events := rec.all()
	if len(events) != 1 || events[0] != "job_queued" {
		t.Errorf("events = %v, want [job_queued]", events)
	}
}

func TestProcessJobCompletes(t *testing.T) {
	session := &mockSession{}
	rec := &eventRecorder{}
	q := newTestQueue(session, rec)

	job, err := q.Enqueue(context.Background(), "feed", FeedPayload{Lines: 2}, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	q.processJob(job.ID)

	stored, err := db.Jobs.GetJobByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if stored.Status != string(JobStatusCompleted) {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}

	written := session.written()
	if len(written) != 1 {
		t.Fatalf("written jobs = %d, want 1", len(written))
	}
	if feed, ok := written[0].(escpos.Feed); !ok || feed.Lines != 2 {
		t.Errorf("unexpected job on wire: %#v", written[0])
	}

	events := rec.all()
	want := []string{"job_queued", "job_started", "job_completed"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestProcessJobRetriesThenFails(t *testing.T) {
	session := &mockSession{writeErr: transport.ErrLinkLost, connectErr: transport.ErrDeviceUnreachable}
	rec := &eventRecorder{}
	q := newTestQueue(session, rec)

	job, err := q.Enqueue(context.Background(), "feed", FeedPayload{Lines: 1}, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// First attempt requeues, second exhausts the retry budget.
	q.processJob(job.ID)

	stored, _ := db.Jobs.GetJobByID(context.Background(), job.ID)
	if stored.Status != string(JobStatusPending) {
		t.Fatalf("status after first attempt = %q, want pending", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", stored.RetryCount)
	}

	q.processJob(job.ID)

	stored, _ = db.Jobs.GetJobByID(context.Background(), job.ID)
	if stored.Status != string(JobStatusFailed) {
		t.Fatalf("status after second attempt = %q, want failed", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Error("missing error message")
	}

	events := rec.all()
	if events[len(events)-1] != "job_failed" {
		t.Errorf("last event = %q, want job_failed", events[len(events)-1])
	}
}

func TestCancelPendingJob(t *testing.T) {
	q := newTestQueue(&mockSession{}, nil)

	job, err := q.Enqueue(context.Background(), "text", TextPayload{Text: "cancel me"}, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := q.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	stored, _ := db.Jobs.GetJobByID(context.Background(), job.ID)
	if stored.Status != string(JobStatusCancelled) {
		t.Errorf("status = %q, want cancelled", stored.Status)
	}

	// Cancelled jobs never reach the printer.
	if err := q.Cancel(context.Background(), job.ID); err == nil {
		t.Error("second cancel should fail")
	}
}

func TestCancelledJobSkippedByWorker(t *testing.T) {
	session := &mockSession{}
	q := newTestQueue(session, nil)

	job, err := q.Enqueue(context.Background(), "feed", FeedPayload{Lines: 1}, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	q.processJob(job.ID)

	if len(session.written()) != 0 {
		t.Error("cancelled job was written to the printer")
	}
}

func TestRetryRequeuesFailedJob(t *testing.T) {
	session := &mockSession{connectErr: transport.ErrDeviceUnreachable}
	q := NewQueue(session, &config.QueueConfig{MaxRetries: 0, RetryDelay: time.Millisecond}, nil, quietLogger())

	job, err := q.Enqueue(context.Background(), "feed", FeedPayload{Lines: 1}, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.processJob(job.ID)

	stored, _ := db.Jobs.GetJobByID(context.Background(), job.ID)
	if stored.Status != string(JobStatusFailed) {
		t.Fatalf("status = %q, want failed", stored.Status)
	}

	if err := q.Retry(context.Background(), job.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	stored, _ = db.Jobs.GetJobByID(context.Background(), job.ID)
	if stored.Status != string(JobStatusPending) {
		t.Errorf("status = %q, want pending", stored.Status)
	}
	if stored.RetryCount != 0 {
		t.Errorf("retry count = %d, want reset to 0", stored.RetryCount)
	}
	if stored.ErrorMessage != "" {
		t.Errorf("error message = %q, want cleared", stored.ErrorMessage)
	}

	// Retrying a pending job is a conflict.
	if err := q.Retry(context.Background(), job.ID); err == nil {
		t.Error("second retry should fail")
	}
}

func TestConnectFailureDoesNotMarkCompleted(t *testing.T) {
	session := &mockSession{connectErr: transport.ErrConnectTimeout}
	q := NewQueue(session, &config.QueueConfig{MaxRetries: 0, RetryDelay: time.Millisecond}, nil, quietLogger())

	job, err := q.Enqueue(context.Background(), "feed", FeedPayload{Lines: 1}, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	q.processJob(job.ID)

	stored, _ := db.Jobs.GetJobByID(context.Background(), job.ID)
	if stored.Status != string(JobStatusFailed) {
		t.Errorf("status = %q, want failed", stored.Status)
	}
	if len(session.written()) != 0 {
		t.Error("nothing should reach the wire without a connection")
	}
}
