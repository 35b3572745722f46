package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "thermalink-db-test-*")
	if err != nil {
		panic(err)
	}
	if err := Init(Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		panic(err)
	}
	code := m.Run()
	Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func mustCreateJob(t *testing.T, publicID, kind, status string) *PrintJob {
	t.Helper()
	j := &PrintJob{
		PublicID:    publicID,
		Kind:        kind,
		PayloadJSON: `{"lines":1}`,
		Status:      status,
		MaxRetries:  3,
		SubmittedBy: "test",
	}
	if err := Jobs.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func TestJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := mustCreateJob(t, "rt-1", "feed", "pending")

	byID, err := Jobs.GetJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if byID.PublicID != "rt-1" || byID.Kind != "feed" || byID.Status != "pending" {
		t.Errorf("round trip mismatch: %+v", byID)
	}
	if byID.StartedAt != nil || byID.CompletedAt != nil {
		t.Error("fresh job should have no timestamps")
	}

	byPublic, err := Jobs.GetJobByPublicID(ctx, "rt-1")
	if err != nil {
		t.Fatalf("GetJobByPublicID: %v", err)
	}
	if byPublic.ID != j.ID {
		t.Errorf("public lookup id = %d, want %d", byPublic.ID, j.ID)
	}
}

func TestJobNotFound(t *testing.T) {
	_, err := Jobs.GetJobByPublicID(context.Background(), "no-such-job")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestUpdateStatusAndTimestamps(t *testing.T) {
	ctx := context.Background()
	j := mustCreateJob(t, "st-1", "text", "pending")

	started := time.Now().UTC().Truncate(time.Second)
	if err := Jobs.UpdateStatus(ctx, j.ID, "processing", "", &started, nil); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	done := started.Add(time.Second)
	if err := Jobs.UpdateStatus(ctx, j.ID, "completed", "", nil, &done); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, _ := Jobs.GetJobByID(ctx, j.ID)
	if got.Status != "completed" {
		t.Errorf("status = %q", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatal("started_at lost on the second update")
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestCancelOnlyPending(t *testing.T) {
	ctx := context.Background()

	pending := mustCreateJob(t, "cn-1", "feed", "pending")
	ok, err := Jobs.Cancel(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !ok {
		t.Error("pending job should cancel")
	}

	processing := mustCreateJob(t, "cn-2", "feed", "processing")
	ok, err = Jobs.Cancel(ctx, processing.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ok {
		t.Error("processing job must not cancel")
	}
}

func TestNextPendingIsOldestFirst(t *testing.T) {
	ctx := context.Background()

	// Clear jobs left behind by earlier tests; this test depends on order.
	if _, err := GetDB().ExecContext(ctx, "DELETE FROM print_jobs"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	first := mustCreateJob(t, "np-1", "feed", "pending")
	mustCreateJob(t, "np-2", "feed", "pending")

	id, err := Jobs.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if id != first.ID {
		t.Errorf("next pending = %d, want %d", id, first.ID)
	}
}

func TestResetProcessing(t *testing.T) {
	ctx := context.Background()
	j := mustCreateJob(t, "rp-1", "feed", "processing")

	if err := Jobs.ResetProcessing(ctx); err != nil {
		t.Fatalf("ResetProcessing: %v", err)
	}

	got, _ := Jobs.GetJobByID(ctx, j.ID)
	if got.Status != "pending" {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestIncrementRetry(t *testing.T) {
	ctx := context.Background()
	j := mustCreateJob(t, "ir-1", "feed", "pending")

	if err := Jobs.IncrementRetry(ctx, j.ID); err != nil {
		t.Fatalf("IncrementRetry: %v", err)
	}
	got, _ := Jobs.GetJobByID(ctx, j.ID)
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}
}

func TestWebhookRoundTrip(t *testing.T) {
	ctx := context.Background()

	w := &Webhook{URL: "https://example.com/hook", Secret: "s", Events: "job_completed", Enabled: true}
	if err := Webhooks.CreateWebhook(ctx, w); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}
	disabled := &Webhook{URL: "https://example.com/off", Enabled: false}
	if err := Webhooks.CreateWebhook(ctx, disabled); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	all, err := Webhooks.ListWebhooks(ctx)
	if err != nil {
		t.Fatalf("ListWebhooks: %v", err)
	}
	if len(all) < 2 {
		t.Fatalf("listed %d webhooks, want >= 2", len(all))
	}

	enabled, err := Webhooks.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	for _, h := range enabled {
		if !h.Enabled {
			t.Errorf("disabled webhook %d in enabled list", h.ID)
		}
	}

	if err := Webhooks.DeleteWebhook(ctx, disabled.ID); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()

	if _, err := Settings.GetSetting(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing setting err = %v, want sql.ErrNoRows", err)
	}

	if err := Settings.SetSetting(ctx, "greeting", "hello"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := Settings.SetSetting(ctx, "greeting", "hej"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	s, err := Settings.GetSetting(ctx, "greeting")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if s.Value != "hej" {
		t.Errorf("value = %q, want hej", s.Value)
	}
}
