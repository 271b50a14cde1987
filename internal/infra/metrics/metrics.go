package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_jobs_enqueued_total",
		Help: "Поставленные задачи публикации",
	}, []string{"emergency", "result"})
	JobsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publish_jobs_claimed_total",
		Help: "Задачи, захваченные воркерами",
	})
	JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_jobs_finished_total",
		Help: "Итоги циклов отправки",
	}, []string{"status"})
	JobsReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publish_jobs_released_total",
		Help: "Задачи, возвращённые в очередь после истечения захвата",
	})
	ChannelAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_channel_attempts_total",
		Help: "Вызовы каналов публикации",
	}, []string{"channel", "status", "kind"})
	ChannelDeferrals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_channel_deferrals_total",
		Help: "Отложенные по политике отправки",
	}, []string{"channel"})
	ChannelDispatchSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "publish_channel_dispatch_seconds",
		Help:    "Длительность вызова канала",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
	EmergencyQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emergency_queued_total",
		Help: "Срочные кандидаты, добавленные в очередь",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		JobsEnqueued,
		JobsClaimed,
		JobsFinished,
		JobsReleased,
		ChannelAttempts,
		ChannelDeferrals,
		ChannelDispatchSeconds,
		EmergencyQueued,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveChannelAttempt записывает результат вызова канала.
func ObserveChannelAttempt(channel, status, kind string, duration time.Duration) {
	ChannelAttempts.WithLabelValues(channel, status, kind).Inc()
	ChannelDispatchSeconds.WithLabelValues(channel).Observe(duration.Seconds())
}
