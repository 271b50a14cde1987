package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"news-publisher/internal/domain"
)

var jobColumns = []string{
	"id", "content_id", "version_no", "scheduled_at", "status", "attempt_count", "max_attempts", "next_retry_at",
	"target_platforms", "is_emergency", "silence_push", "last_error", "claimed_at", "created_at", "updated_at",
}

func scanJob(row pgx.Row) (domain.PublishJob, error) {
	var (
		job       domain.PublishJob
		platforms []string
	)
	err := row.Scan(&job.ID, &job.ContentID, &job.VersionNo, &job.ScheduledAt, &job.Status, &job.AttemptCount,
		&job.MaxAttempts, &job.NextRetryAt, &platforms, &job.IsEmergency, &job.SilencePush, &job.LastError,
		&job.ClaimedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return domain.PublishJob{}, err
	}
	job.TargetPlatforms = stringsToPlatforms(platforms)
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.PublishJob, error) {
	defer rows.Close()
	var out []domain.PublishJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CreateJobIfAbsent реализует domain.PublishJobRepo. Уникальность незавершённой задачи
// по (content_id, version_no) держит частичный индекс publish_jobs_active_uidx.
func (p *Postgres) CreateJobIfAbsent(ctx context.Context, job domain.PublishJob) (domain.PublishJob, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	for attempt := 0; attempt < insertRetries; attempt++ {
		start := time.Now()
		created, err := scanJob(p.pool.QueryRow(ctx, `
INSERT INTO publish_jobs (id, content_id, version_no, scheduled_at, status, attempt_count, max_attempts, next_retry_at,
                          target_platforms, is_emergency, silence_push, last_error, created_at, updated_at)
VALUES (COALESCE(NULLIF($1::bigint, 0), nextval('publish_jobs_id_seq')), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (content_id, version_no) WHERE status IN ('pending', 'processing') DO NOTHING
RETURNING `+joinColumns(jobColumns),
			job.ID, job.ContentID, job.VersionNo, job.ScheduledAt, job.Status, job.AttemptCount, job.MaxAttempts,
			job.NextRetryAt, platformsToStrings(job.TargetPlatforms), job.IsEmergency, job.SilencePush, job.LastError,
			job.CreatedAt, job.UpdatedAt))
		observe("publish_jobs_insert", "publish_jobs", start, err)
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.PublishJob{}, false, err
		}

		start = time.Now()
		existing, err := scanJob(p.pool.QueryRow(ctx, `
SELECT `+joinColumns(jobColumns)+`
FROM publish_jobs
WHERE content_id = $1 AND version_no = $2 AND status IN ('pending', 'processing')
ORDER BY id DESC
LIMIT 1
`, job.ContentID, job.VersionNo))
		observe("publish_jobs_get_active", "publish_jobs", start, err)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.PublishJob{}, false, err
		}
		// активная задача успела завершиться между запросами, пробуем вставить снова
	}
	return domain.PublishJob{}, false, fmt.Errorf("create job for %s v%d: %w", job.ContentID, job.VersionNo, domain.ErrVersionConflict)
}

// GetJob реализует domain.PublishJobRepo.
func (p *Postgres) GetJob(ctx context.Context, id int64) (domain.PublishJob, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	job, err := scanJob(p.pool.QueryRow(ctx, `SELECT `+joinColumns(jobColumns)+` FROM publish_jobs WHERE id = $1`, id))
	observe("publish_jobs_get", "publish_jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PublishJob{}, domain.ErrNotFound
	}
	return job, err
}

// ClaimDueJobs реализует domain.PublishJobRepo. Конкурирующие воркеры пропускают
// заблокированные строки, поэтому одна задача достаётся ровно одному из них.
func (p *Postgres) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.PublishJob, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
UPDATE publish_jobs
SET status = 'processing', claimed_at = $1, updated_at = $1
WHERE id IN (
    SELECT id FROM publish_jobs
    WHERE status = 'pending' AND COALESCE(next_retry_at, scheduled_at) <= $1
    ORDER BY scheduled_at, id
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING `+joinColumns(jobColumns), now, int64(limitOrDefault(limit)))
	observe("publish_jobs_claim", "publish_jobs", start, err)
	if err != nil {
		return nil, err
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].ScheduledAt.Equal(jobs[j].ScheduledAt) {
			return jobs[i].ScheduledAt.Before(jobs[j].ScheduledAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// FinishAttempt реализует domain.PublishJobRepo.
func (p *Postgres) FinishAttempt(ctx context.Context, jobID int64, outcome domain.AttemptOutcome, now time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE publish_jobs
SET status = $2,
    attempt_count = $3,
    next_retry_at = $4,
    scheduled_at = COALESCE($5, scheduled_at),
    last_error = $6,
    claimed_at = NULL,
    updated_at = $7
WHERE id = $1 AND status = 'processing'
`, jobID, outcome.Status, outcome.AttemptCount, outcome.NextRetryAt, outcome.ScheduledAt, outcome.LastError, now)
	observe("publish_jobs_finish", "publish_jobs", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM publish_jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrClaimLost
}

// ReleaseStaleJobs реализует domain.PublishJobRepo.
func (p *Postgres) ReleaseStaleJobs(ctx context.Context, claimedBefore, now time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE publish_jobs
SET status = 'pending', claimed_at = NULL, updated_at = $2
WHERE status = 'processing' AND claimed_at < $1
`, claimedBefore, now)
	observe("publish_jobs_release_stale", "publish_jobs", start, err)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// FailPendingJobs реализует domain.PublishJobRepo.
func (p *Postgres) FailPendingJobs(ctx context.Context, contentID uuid.UUID, reason string, now time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE publish_jobs
SET status = 'failed', last_error = $2, next_retry_at = NULL, updated_at = $3
WHERE content_id = $1 AND status = 'pending'
`, contentID, reason, now)
	observe("publish_jobs_fail_pending", "publish_jobs", start, err)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListJobsByContent реализует domain.PublishJobRepo.
func (p *Postgres) ListJobsByContent(ctx context.Context, contentID uuid.UUID) ([]domain.PublishJob, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sb.Select(jobColumns...).
		From("publish_jobs").
		Where("content_id = ?", contentID).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list jobs: %w", err)
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	observe("publish_jobs_list", "publish_jobs", start, err)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}
