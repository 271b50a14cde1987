package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"news-publisher/internal/domain"
)

var emergencyColumns = []string{
	"id", "content_id", "priority", "matched_keywords", "reason", "status", "detected_at", "resolved_at", "job_id",
}

func scanEmergency(row pgx.Row) (domain.EmergencyQueueItem, error) {
	var item domain.EmergencyQueueItem
	err := row.Scan(&item.ID, &item.ContentID, &item.Priority, &item.MatchedKeywords, &item.Reason, &item.Status,
		&item.DetectedAt, &item.ResolvedAt, &item.JobID)
	return item, err
}

// AddEmergency реализует domain.EmergencyQueueRepo.
func (p *Postgres) AddEmergency(ctx context.Context, item domain.EmergencyQueueItem) (domain.EmergencyQueueItem, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	keywords := item.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	for attempt := 0; attempt < insertRetries; attempt++ {
		start := time.Now()
		created, err := scanEmergency(p.pool.QueryRow(ctx, `
INSERT INTO emergency_queue (content_id, priority, matched_keywords, reason, status, detected_at)
VALUES ($1, $2, $3, $4, 'pending', $5)
ON CONFLICT (content_id) WHERE status = 'pending' DO NOTHING
RETURNING `+joinColumns(emergencyColumns),
			item.ContentID, item.Priority, keywords, item.Reason, item.DetectedAt))
		observe("emergency_queue_insert", "emergency_queue", start, err)
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.EmergencyQueueItem{}, false, err
		}

		start = time.Now()
		existing, err := scanEmergency(p.pool.QueryRow(ctx, `
SELECT `+joinColumns(emergencyColumns)+`
FROM emergency_queue WHERE content_id = $1 AND status = 'pending'
`, item.ContentID))
		observe("emergency_queue_get_pending", "emergency_queue", start, err)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.EmergencyQueueItem{}, false, err
		}
	}
	return domain.EmergencyQueueItem{}, false, fmt.Errorf("add emergency %s: %w", item.ContentID, domain.ErrVersionConflict)
}

// GetEmergency реализует domain.EmergencyQueueRepo.
func (p *Postgres) GetEmergency(ctx context.Context, id int64) (domain.EmergencyQueueItem, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	item, err := scanEmergency(p.pool.QueryRow(ctx, `SELECT `+joinColumns(emergencyColumns)+` FROM emergency_queue WHERE id = $1`, id))
	observe("emergency_queue_get", "emergency_queue", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EmergencyQueueItem{}, domain.ErrNotFound
	}
	return item, err
}

// ListPendingEmergencies реализует domain.EmergencyQueueRepo.
func (p *Postgres) ListPendingEmergencies(ctx context.Context, limit int) ([]domain.EmergencyQueueItem, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sb.Select(emergencyColumns...).
		From("emergency_queue").
		Where("status = ?", domain.EmergencyPending).
		OrderBy("priority DESC", "detected_at", "id").
		Limit(limitOrDefault(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending emergencies: %w", err)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	observe("emergency_queue_list_pending", "emergency_queue", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmergencyQueueItem
	for rows.Next() {
		item, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ResolveEmergency реализует domain.EmergencyQueueRepo.
func (p *Postgres) ResolveEmergency(ctx context.Context, id int64, status domain.EmergencyStatus, jobID *int64, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE emergency_queue
SET status = $2, job_id = $3, resolved_at = $4
WHERE id = $1 AND status = 'pending'
`, id, status, jobID, at)
	observe("emergency_queue_resolve", "emergency_queue", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return p.pendingMiss(ctx, id)
	}
	return nil
}

// UpdateEmergencyPriority реализует domain.EmergencyQueueRepo.
func (p *Postgres) UpdateEmergencyPriority(ctx context.Context, id int64, priority int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE emergency_queue SET priority = $2 WHERE id = $1 AND status = 'pending'`, id, priority)
	observe("emergency_queue_priority", "emergency_queue", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return p.pendingMiss(ctx, id)
	}
	return nil
}

// pendingMiss различает отсутствующую запись и уже разрешённую.
func (p *Postgres) pendingMiss(ctx context.Context, id int64) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM emergency_queue WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrVersionConflict
}
