package repo

import (
	"context"
	"fmt"
	"time"

	"news-publisher/internal/domain"
)

// AppendChannelLog реализует domain.ChannelLogRepo.
func (p *Postgres) AppendChannelLog(ctx context.Context, entry domain.ChannelPublishLog) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO channel_publish_logs (id, job_id, content_id, channel, version_no, attempt, status, external_post_id, error, error_kind, created_at)
VALUES (COALESCE(NULLIF($1::bigint, 0), nextval('channel_publish_logs_id_seq')), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`, entry.ID, entry.JobID, entry.ContentID, entry.Channel, entry.VersionNo, entry.Attempt, entry.Status,
		entry.ExternalPostID, entry.Error, entry.ErrorKind, entry.CreatedAt)
	observe("channel_publish_logs_insert", "channel_publish_logs", start, err)
	return err
}

// ListChannelLogs реализует domain.ChannelLogRepo.
func (p *Postgres) ListChannelLogs(ctx context.Context, jobID int64) ([]domain.ChannelPublishLog, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sb.Select("id", "job_id", "content_id", "channel", "version_no", "attempt", "status",
		"external_post_id", "error", "error_kind", "created_at").
		From("channel_publish_logs").
		Where("job_id = ?", jobID).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list logs: %w", err)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	observe("channel_publish_logs_list", "channel_publish_logs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChannelPublishLog
	for rows.Next() {
		var e domain.ChannelPublishLog
		if err := rows.Scan(&e.ID, &e.JobID, &e.ContentID, &e.Channel, &e.VersionNo, &e.Attempt, &e.Status,
			&e.ExternalPostID, &e.Error, &e.ErrorKind, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SucceededChannels реализует domain.ChannelLogRepo.
func (p *Postgres) SucceededChannels(ctx context.Context, jobID int64) ([]domain.Platform, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT channel FROM channel_publish_logs
WHERE job_id = $1 AND status = 'success'
GROUP BY channel
ORDER BY min(id)
`, jobID)
	observe("channel_publish_logs_succeeded", "channel_publish_logs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Platform
	for rows.Next() {
		var ch domain.Platform
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// PlatformCounters реализует domain.ChannelLogRepo.
func (p *Postgres) PlatformCounters(ctx context.Context, platform domain.Platform, dayStart time.Time) (domain.PlatformCounters, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var counters domain.PlatformCounters
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FILTER (WHERE created_at >= $2), max(created_at)
FROM channel_publish_logs
WHERE channel = $1 AND status = 'success'
`, platform, dayStart).Scan(&counters.PublishedToday, &counters.LastPublishedAt)
	observe("channel_publish_logs_counters", "channel_publish_logs", start, err)
	return counters, err
}
