package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"news-publisher/internal/domain"
)

var contentColumns = []string{
	"id", "source_id", "external_id", "title", "summary", "body", "url", "image_url", "channels",
	"status", "decision_type", "decision_reason", "matched_rule_id", "scheduled_at",
	"current_version_no", "published_version_no", "is_breaking", "is_retracted", "created_at", "updated_at",
}

func scanContent(row pgx.Row) (domain.ContentItem, error) {
	var (
		item     domain.ContentItem
		channels []string
	)
	err := row.Scan(&item.ID, &item.SourceID, &item.ExternalID, &item.Title, &item.Summary, &item.Body, &item.URL,
		&item.ImageURL, &channels, &item.Status, &item.DecisionType, &item.DecisionReason, &item.MatchedRuleID,
		&item.ScheduledAt, &item.CurrentVersionNo, &item.PublishedVersionNo, &item.IsBreaking, &item.IsRetracted,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return domain.ContentItem{}, err
	}
	item.Channels = stringsToPlatforms(channels)
	return item, nil
}

// CreateContent реализует domain.ContentRepo.
func (p *Postgres) CreateContent(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	query, args, err := p.sb.Insert("content_items").
		Columns(contentColumns...).
		Values(item.ID, item.SourceID, item.ExternalID, item.Title, item.Summary, item.Body, item.URL, item.ImageURL,
			platformsToStrings(item.Channels), item.Status, item.DecisionType, item.DecisionReason, item.MatchedRuleID,
			item.ScheduledAt, item.CurrentVersionNo, item.PublishedVersionNo, item.IsBreaking, item.IsRetracted,
			item.CreatedAt, item.UpdatedAt).
		Suffix("RETURNING " + joinColumns(contentColumns)).
		ToSql()
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("build insert content: %w", err)
	}

	start := time.Now()
	created, err := scanContent(p.pool.QueryRow(ctx, query, args...))
	observe("content_items_insert", "content_items", start, err)
	if isUniqueViolation(err) {
		return domain.ContentItem{}, domain.NewValidationError("id", "материал уже существует")
	}
	if err != nil {
		return domain.ContentItem{}, err
	}
	return created, nil
}

// GetContent реализует domain.ContentRepo.
func (p *Postgres) GetContent(ctx context.Context, id uuid.UUID) (domain.ContentItem, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sb.Select(contentColumns...).From("content_items").Where("id = ?", id).ToSql()
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("build select content: %w", err)
	}
	start := time.Now()
	item, err := scanContent(p.pool.QueryRow(ctx, query, args...))
	observe("content_items_get", "content_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ContentItem{}, domain.ErrNotFound
	}
	return item, err
}

// ApplyTransition реализует domain.ContentRepo: обновление материала и запись ревизии в одной транзакции.
func (p *Postgres) ApplyTransition(ctx context.Context, item domain.ContentItem, expectedVersion int, rev domain.ContentRevision) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	observe("begin_tx", "content_items", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query, args, err := p.sb.Update("content_items").
		SetMap(map[string]any{
			"title":                item.Title,
			"summary":              item.Summary,
			"body":                 item.Body,
			"image_url":            item.ImageURL,
			"channels":             platformsToStrings(item.Channels),
			"status":               item.Status,
			"decision_type":        item.DecisionType,
			"decision_reason":      item.DecisionReason,
			"matched_rule_id":      item.MatchedRuleID,
			"scheduled_at":         item.ScheduledAt,
			"current_version_no":   item.CurrentVersionNo,
			"published_version_no": item.PublishedVersionNo,
			"is_breaking":          item.IsBreaking,
			"is_retracted":         item.IsRetracted,
			"updated_at":           item.UpdatedAt,
		}).
		Where("id = ? AND current_version_no = ?", item.ID, expectedVersion).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update content: %w", err)
	}

	start = time.Now()
	tag, err := tx.Exec(ctx, query, args...)
	observe("content_items_update", "content_items", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content_items WHERE id = $1)`, item.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO content_revisions (content_id, version_no, action_type, snapshot, actor, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, rev.ContentID, rev.VersionNo, rev.ActionType, rev.Snapshot, rev.Actor, rev.CreatedAt)
	observe("content_revisions_insert", "content_revisions", start, err)
	if isUniqueViolation(err) {
		return domain.ErrVersionConflict
	}
	if err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	observe("commit_tx", "content_items", start, err)
	return err
}

// ListRevisions реализует domain.ContentRepo.
func (p *Postgres) ListRevisions(ctx context.Context, contentID uuid.UUID) ([]domain.ContentRevision, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, content_id, version_no, action_type, snapshot, actor, created_at
FROM content_revisions WHERE content_id = $1
ORDER BY version_no
`, contentID)
	observe("content_revisions_list", "content_revisions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ContentRevision
	for rows.Next() {
		var rev domain.ContentRevision
		if err := rows.Scan(&rev.ID, &rev.ContentID, &rev.VersionNo, &rev.ActionType, &rev.Snapshot, &rev.Actor, &rev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// ListDueScheduled реализует domain.ContentRepo.
func (p *Postgres) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.ContentItem, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sb.Select(contentColumns...).
		From("content_items").
		Where(sq.Eq{"status": domain.ContentStatusScheduled}).
		Where(sq.LtOrEq{"scheduled_at": now}).
		OrderBy("scheduled_at", "id").
		Limit(limitOrDefault(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due scheduled: %w", err)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	observe("content_items_due_scheduled", "content_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetSource реализует domain.SourceRepo.
func (p *Postgres) GetSource(ctx context.Context, id uuid.UUID) (domain.Source, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var src domain.Source
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, name, trust_level, category, group_id, type, emergency_trigger
FROM sources WHERE id = $1
`, id).Scan(&src.ID, &src.Name, &src.TrustLevel, &src.Category, &src.GroupID, &src.Type, &src.EmergencyTrigger)
	observe("sources_get", "sources", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Source{}, domain.ErrNotFound
	}
	return src, err
}

// UpsertSource сохраняет метаданные источника. Используется загрузчиком справочников.
func (p *Postgres) UpsertSource(ctx context.Context, src domain.Source) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO sources (id, name, trust_level, category, group_id, type, emergency_trigger)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
    SET name = EXCLUDED.name,
        trust_level = EXCLUDED.trust_level,
        category = EXCLUDED.category,
        group_id = EXCLUDED.group_id,
        type = EXCLUDED.type,
        emergency_trigger = EXCLUDED.emergency_trigger
`, src.ID, src.Name, src.TrustLevel, src.Category, src.GroupID, src.Type, src.EmergencyTrigger)
	observe("sources_upsert", "sources", start, err)
	return err
}

// ListRules реализует domain.RuleRepo. Порядок вставки задаёт порядок при равном приоритете.
func (p *Postgres) ListRules(ctx context.Context) ([]domain.RuleRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, priority, decision_type, enabled, min_trust_level, source_ids, group_ids,
       include_keywords, exclude_keywords, target_platforms, created_at
FROM publishing_rules
ORDER BY created_at, id
`)
	observe("publishing_rules_list", "publishing_rules", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RuleRecord
	for rows.Next() {
		var r domain.RuleRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Priority, &r.DecisionType, &r.Enabled, &r.MinTrustLevel, &r.SourceIDs,
			&r.GroupIDs, &r.IncludeKeywords, &r.ExcludeKeywords, &r.TargetPlatforms, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRule добавляет правило в конец списка.
func (p *Postgres) InsertRule(ctx context.Context, r domain.RuleRecord) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO publishing_rules (id, name, priority, decision_type, enabled, min_trust_level, source_ids, group_ids,
                              include_keywords, exclude_keywords, target_platforms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`, r.ID, r.Name, r.Priority, r.DecisionType, r.Enabled, r.MinTrustLevel, r.SourceIDs, r.GroupIDs,
		r.IncludeKeywords, r.ExcludeKeywords, r.TargetPlatforms, r.CreatedAt)
	observe("publishing_rules_insert", "publishing_rules", start, err)
	return err
}
