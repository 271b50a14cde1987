package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
)

// Postgres реализует репозитории движка на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

var (
	_ domain.ContentRepo          = (*Postgres)(nil)
	_ domain.SourceRepo           = (*Postgres)(nil)
	_ domain.RuleRepo             = (*Postgres)(nil)
	_ domain.EmergencyQueueRepo   = (*Postgres)(nil)
	_ domain.PublishJobRepo       = (*Postgres)(nil)
	_ domain.ChannelLogRepo       = (*Postgres)(nil)
	_ domain.PublishedContentRepo = (*Postgres)(nil)
)

const (
	queryTimeout     = 5 * time.Second
	uniqueViolation  = "23505"
	insertRetries    = 3
	defaultListLimit = 100
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

func observe(op, table string, start time.Time, err error) {
	metrics.ObserveNetworkRequest("postgres", op, table, start, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func platformsToStrings(in []domain.Platform) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, string(p))
	}
	return out
}

func stringsToPlatforms(in []string) []domain.Platform {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Platform, 0, len(in))
	for _, s := range in {
		out = append(out, domain.Platform(s))
	}
	return out
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func limitOrDefault(limit int) uint64 {
	if limit <= 0 {
		return defaultListLimit
	}
	return uint64(limit)
}
