package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"news-publisher/internal/domain"
)

const publishedColumns = "content_id, path, slug, version_no, is_retracted, published_at, updated_at"

func scanPublished(row pgx.Row) (domain.PublishedContent, error) {
	var pc domain.PublishedContent
	err := row.Scan(&pc.ContentID, &pc.Path, &pc.Slug, &pc.VersionNo, &pc.IsRetracted, &pc.PublishedAt, &pc.UpdatedAt)
	return pc, err
}

// GetPublished реализует domain.PublishedContentRepo.
func (p *Postgres) GetPublished(ctx context.Context, contentID uuid.UUID) (domain.PublishedContent, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	pc, err := scanPublished(p.pool.QueryRow(ctx, `SELECT `+publishedColumns+` FROM published_content WHERE content_id = $1`, contentID))
	observe("published_content_get", "published_content", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PublishedContent{}, domain.ErrNotFound
	}
	return pc, err
}

// EnsurePublished реализует domain.PublishedContentRepo. Path и slug пишутся только при вставке.
func (p *Postgres) EnsurePublished(ctx context.Context, pc domain.PublishedContent) (domain.PublishedContent, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	saved, err := scanPublished(p.pool.QueryRow(ctx, `
INSERT INTO published_content (content_id, path, slug, version_no, is_retracted, published_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $6)
ON CONFLICT (content_id) DO UPDATE
    SET version_no = GREATEST(published_content.version_no, EXCLUDED.version_no),
        updated_at = EXCLUDED.updated_at
RETURNING `+publishedColumns,
		pc.ContentID, pc.Path, pc.Slug, pc.VersionNo, pc.PublishedAt, pc.UpdatedAt))
	observe("published_content_upsert", "published_content", start, err)
	return saved, err
}

// MarkRetracted реализует domain.PublishedContentRepo.
func (p *Postgres) MarkRetracted(ctx context.Context, contentID uuid.UUID, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE published_content SET is_retracted = TRUE, updated_at = $2 WHERE content_id = $1
`, contentID, at)
	observe("published_content_retract", "published_content", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
