package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var (
	Jobs     = &JobOperations{}
	Webhooks = &WebhookOperations{}
	Settings = &SettingsOperations{}
)

type JobOperations struct{}

func (o *JobOperations) CreateJob(ctx context.Context, j *PrintJob) error {
	if j.Status == "" {
		j.Status = "pending"
	}
	result, err := GetDB().ExecContext(ctx, InsertJob,
		j.PublicID, j.Kind, j.PayloadJSON, j.Status, j.MaxRetries, j.SubmittedBy)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	j.ID = id
	return nil
}

func scanJob(row interface{ Scan(...any) error }) (*PrintJob, error) {
	j := &PrintJob{}
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.PublicID, &j.Kind, &j.PayloadJSON, &j.Status,
		&j.RetryCount, &j.MaxRetries, &j.ErrorMessage, &j.SubmittedBy,
		&j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}

func (o *JobOperations) GetJobByID(ctx context.Context, id int64) (*PrintJob, error) {
	j, err := scanJob(GetDB().QueryRowContext(ctx, GetJobByID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) GetJobByPublicID(ctx context.Context, publicID string) (*PrintJob, error) {
	j, err := scanJob(GetDB().QueryRowContext(ctx, GetJobByPublicID, publicID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) ListJobs(ctx context.Context, status string, limit, offset int) ([]*PrintJob, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = GetDB().QueryContext(ctx, ListJobsByStatus, status, limit, offset)
	} else {
		rows, err = GetDB().QueryContext(ctx, ListJobs, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (o *JobOperations) NextPending(ctx context.Context) (int64, error) {
	var id int64
	err := GetDB().QueryRowContext(ctx, NextPendingJob).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, sql.ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query pending job: %w", err)
	}
	return id, nil
}

func (o *JobOperations) UpdateStatus(ctx context.Context, id int64, status, errMsg string, startedAt, completedAt *time.Time) error {
	var startedVal, completedVal any
	if startedAt != nil {
		startedVal = *startedAt
	}
	if completedAt != nil {
		completedVal = *completedAt
	}
	_, err := GetDB().ExecContext(ctx, UpdateJobStatus, status, errMsg, startedVal, completedVal, id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (o *JobOperations) IncrementRetry(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, IncrementJobRetry, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

func (o *JobOperations) ResetProcessing(ctx context.Context) error {
	_, err := GetDB().ExecContext(ctx, ResetProcessingJobs)
	if err != nil {
		return fmt.Errorf("failed to reset processing jobs: %w", err)
	}
	return nil
}

func (o *JobOperations) Cancel(ctx context.Context, id int64) (bool, error) {
	result, err := GetDB().ExecContext(ctx, CancelJob, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (o *JobOperations) RequeueFailed(ctx context.Context, id int64) (bool, error) {
	result, err := GetDB().ExecContext(ctx, RequeueFailedJob, id)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (o *JobOperations) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := GetDB().QueryContext(ctx, CountJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (o *JobOperations) ListArchivable(ctx context.Context, before time.Time) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, SelectArchivableJobs, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list archivable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (o *JobOperations) Delete(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteArchivedJob, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

type WebhookOperations struct{}

func (o *WebhookOperations) CreateWebhook(ctx context.Context, w *Webhook) error {
	result, err := GetDB().ExecContext(ctx, InsertWebhook, w.URL, w.Secret, w.Events, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get webhook id: %w", err)
	}
	w.ID = id
	return nil
}

func (o *WebhookOperations) list(ctx context.Context, query string) ([]*Webhook, error) {
	rows, err := GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*Webhook
	for rows.Next() {
		w := &Webhook{}
		if err := rows.Scan(&w.ID, &w.URL, &w.Secret, &w.Events, &w.Enabled, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

func (o *WebhookOperations) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	return o.list(ctx, ListWebhooks)
}

func (o *WebhookOperations) ListEnabled(ctx context.Context) ([]*Webhook, error) {
	return o.list(ctx, ListEnabledWebhooks)
}

func (o *WebhookOperations) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteWebhook, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string) error {
	_, err := GetDB().ExecContext(ctx, UpsertSetting, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
