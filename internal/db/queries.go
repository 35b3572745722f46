package db

const (
	InsertJob = `
		INSERT INTO print_jobs (public_id, kind, payload_json, status, max_retries, submitted_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	GetJobByID = `
		SELECT id, public_id, kind, payload_json, status, retry_count, max_retries, error_message, submitted_by, created_at, started_at, completed_at
		FROM print_jobs WHERE id = ?
	`

	GetJobByPublicID = `
		SELECT id, public_id, kind, payload_json, status, retry_count, max_retries, error_message, submitted_by, created_at, started_at, completed_at
		FROM print_jobs WHERE public_id = ?
	`

	ListJobs = `
		SELECT id, public_id, kind, payload_json, status, retry_count, max_retries, error_message, submitted_by, created_at, started_at, completed_at
		FROM print_jobs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`

	ListJobsByStatus = `
		SELECT id, public_id, kind, payload_json, status, retry_count, max_retries, error_message, submitted_by, created_at, started_at, completed_at
		FROM print_jobs WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`

	NextPendingJob = `
		SELECT id FROM print_jobs WHERE status = 'pending' ORDER BY created_at ASC, id ASC LIMIT 1
	`

	UpdateJobStatus = `
		UPDATE print_jobs SET status = ?, error_message = ?, started_at = COALESCE(?, started_at), completed_at = ? WHERE id = ?
	`

	IncrementJobRetry = `
		UPDATE print_jobs SET retry_count = retry_count + 1 WHERE id = ?
	`

	ResetProcessingJobs = `
		UPDATE print_jobs SET status = 'pending' WHERE status = 'processing'
	`

	CancelJob = `
		UPDATE print_jobs SET status = 'cancelled', completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'
	`

	RequeueFailedJob = `
		UPDATE print_jobs SET status = 'pending', retry_count = 0, error_message = '', started_at = NULL, completed_at = NULL
		WHERE id = ? AND status = 'failed'
	`

	CountJobsByStatus = `
		SELECT status, COUNT(*) FROM print_jobs GROUP BY status
	`

	SelectArchivableJobs = `
		SELECT id, public_id, kind, payload_json, status, retry_count, max_retries, error_message, submitted_by, created_at, started_at, completed_at
		FROM print_jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND created_at < ?
		ORDER BY created_at ASC
	`

	DeleteArchivedJob = `
		DELETE FROM print_jobs WHERE id = ?
	`

	InsertWebhook = `
		INSERT INTO webhooks (url, secret, events, enabled) VALUES (?, ?, ?, ?)
	`

	ListWebhooks = `
		SELECT id, url, secret, events, enabled, created_at FROM webhooks ORDER BY id ASC
	`

	ListEnabledWebhooks = `
		SELECT id, url, secret, events, enabled, created_at FROM webhooks WHERE enabled = 1
	`

	DeleteWebhook = `
		DELETE FROM webhooks WHERE id = ?
	`

	GetSetting = `
		SELECT key, value, updated_at FROM settings WHERE key = ?
	`

	UpsertSetting = `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
)
