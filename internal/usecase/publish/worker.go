package publish

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WorkerConfig задаёт параллелизм и частоту опроса.
type WorkerConfig struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
	// StaleAfter — через сколько захваченная задача считается брошенной.
	StaleAfter time.Duration
}

// Worker забирает готовые задачи и выполняет их параллельно.
type Worker struct {
	scheduler *Scheduler
	cfg       WorkerConfig
	log       zerolog.Logger
}

// NewWorker создаёт воркер поверх планировщика.
func NewWorker(scheduler *Scheduler, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Concurrency * 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &Worker{scheduler: scheduler, cfg: cfg, log: logger.With().Str("component", "publish_worker").Logger()}
}

// Run обрабатывает очередь до отмены ctx. Между опросами ждёт сигнала о срочной задаче.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Int("concurrency", w.cfg.Concurrency).Dur("poll", w.cfg.PollInterval).Msg("publisher: воркер запущен")
	staleTicker := time.NewTicker(w.cfg.StaleAfter / 2)
	defer staleTicker.Stop()

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error().Err(err).Msg("publisher: ошибка цикла обработки")
		}
		if ctx.Err() != nil {
			w.log.Info().Msg("publisher: воркер остановлен")
			return
		}

		select {
		case <-staleTicker.C:
			if _, err := w.scheduler.ReleaseStale(ctx, w.cfg.StaleAfter); err != nil {
				w.log.Error().Err(err).Msg("publisher: не удалось вернуть зависшие задачи")
			}
		default:
		}

		if processed >= w.cfg.BatchSize {
			continue
		}
		w.wait(ctx)
	}
}

// RunOnce захватывает одну пачку задач и дожидается её обработки.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.scheduler.ClaimDueJobs(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if _, err := w.scheduler.Process(gctx, job); err != nil {
				w.log.Error().Err(err).Int64("job_id", job.ID).Msg("publisher: задача не обработана")
			}
			return nil
		})
	}
	return len(jobs), g.Wait()
}

func (w *Worker) wait(ctx context.Context) {
	signal := w.scheduler.deps.Signal
	if signal == nil {
		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.PollInterval):
		}
		return
	}
	woken, err := signal.Wait(ctx, w.cfg.PollInterval)
	if err != nil && ctx.Err() == nil {
		w.log.Warn().Err(err).Msg("publisher: ошибка ожидания сигнала")
		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.PollInterval):
		}
		return
	}
	if woken {
		w.log.Debug().Msg("publisher: получен сигнал о срочной задаче")
	}
}
