// Package httpapi публикует операции редакции по HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
	"news-publisher/internal/usecase/newsroom"
)

// ActorHeader передаёт имя редактора, от которого выполняется действие.
const ActorHeader = "X-Actor"

// Handler связывает маршруты API с newsroom.Service.
type Handler struct {
	svc *newsroom.Service
	log zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(svc *newsroom.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: logger.With().Str("component", "http_api").Logger()}
}

// Register подключает маршруты /api/v1 к роутеру.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/contents", h.ingest)
		r.Route("/contents/{id}", func(r chi.Router) {
			r.Get("/", h.getContent)
			r.Get("/revisions", h.revisions)
			r.Get("/jobs", h.contentJobs)
			r.Get("/rules", h.evaluateRules)
			r.Post("/emergency", h.detectEmergency)
			r.Put("/draft", h.saveDraft)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.simpleAction(h.svc.Reject))
			r.Post("/resubmit", h.simpleAction(h.svc.Resubmit))
			r.Post("/retract", h.simpleAction(h.svc.Retract))
			r.Post("/schedule", h.schedule)
			r.Post("/correct", h.correct)
			r.Post("/breaking", h.markBreaking)
		})
		r.Post("/jobs", h.enqueue)
		r.Get("/jobs/{jobID}/logs", h.channelLogs)
		r.Get("/schedule/stats", h.scheduleOverview)
		r.Get("/schedule/stats/{platform}", h.scheduleStats)
		r.Get("/emergencies", h.listEmergencies)
		r.Post("/emergencies", h.addEmergency)
		r.Post("/emergencies/{emID}/publish", h.publishEmergency)
		r.Post("/emergencies/{emID}/cancel", h.cancelEmergency)
		r.Put("/emergencies/{emID}/priority", h.emergencyPriority)
	})
}

type ingestRequest struct {
	SourceID   uuid.UUID         `json:"source_id"`
	ExternalID string            `json:"external_id"`
	Title      string            `json:"title"`
	Summary    string            `json:"summary"`
	Body       string            `json:"body"`
	URL        string            `json:"url"`
	ImageURL   string            `json:"image_url"`
	Channels   []domain.Platform `json:"channels"`
	IsBreaking bool              `json:"is_breaking"`
}

type patchRequest struct {
	Title    *string           `json:"title"`
	Summary  *string           `json:"summary"`
	Body     *string           `json:"body"`
	ImageURL *string           `json:"image_url"`
	Channels []domain.Platform `json:"channels"`
}

func (p patchRequest) toDomain() domain.ContentPatch {
	return domain.ContentPatch{Title: p.Title, Summary: p.Summary, Body: p.Body, ImageURL: p.ImageURL, Channels: p.Channels}
}

type itemWithJob struct {
	Item domain.ContentItem   `json:"item"`
	Job  domain.EnqueueResult `json:"job"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Ingest(r.Context(), domain.ContentItem{
		SourceID:   req.SourceID,
		ExternalID: req.ExternalID,
		Title:      req.Title,
		Summary:    req.Summary,
		Body:       req.Body,
		URL:        req.URL,
		ImageURL:   req.ImageURL,
		Channels:   req.Channels,
		IsBreaking: req.IsBreaking,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, res)
}

func (h *Handler) getContent(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	item, err := h.svc.Content(r.Context(), id)
	h.respond(w, item, err)
}

func (h *Handler) revisions(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	revs, err := h.svc.Revisions(r.Context(), id)
	h.respond(w, revs, err)
}

func (h *Handler) contentJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	jobs, err := h.svc.Jobs(r.Context(), id)
	h.respond(w, jobs, err)
}

func (h *Handler) evaluateRules(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	decision, err := h.svc.EvaluateRules(r.Context(), id)
	h.respond(w, decision, err)
}

func (h *Handler) detectEmergency(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Priority int `json:"priority"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := h.svc.DetectEmergency(r.Context(), id, req.Priority)
	h.respond(w, res, err)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := h.svc.SaveDraft(r.Context(), id, req.toDomain(), actor(r))
	h.respond(w, item, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	item, job, err := h.svc.Approve(r.Context(), id, actor(r))
	h.respond(w, itemWithJob{Item: item, Job: job}, err)
}

func (h *Handler) simpleAction(action func(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := contentID(w, r)
		if !ok {
			return
		}
		item, err := action(r.Context(), id, actor(r))
		h.respond(w, item, err)
	}
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	var req struct {
		At time.Time `json:"at"`
	}
	if !decode(w, r, &req) {
		return
	}
	item, err := h.svc.Schedule(r.Context(), id, req.At, actor(r))
	h.respond(w, item, err)
}

func (h *Handler) correct(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if !decode(w, r, &req) {
		return
	}
	item, job, err := h.svc.Correct(r.Context(), id, req.toDomain(), actor(r))
	h.respond(w, itemWithJob{Item: item, Job: job}, err)
}

func (h *Handler) markBreaking(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(w, r)
	if !ok {
		return
	}
	var req struct {
		PushRequired bool `json:"push_required"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	item, err := h.svc.MarkBreaking(r.Context(), id, req.PushRequired, actor(r))
	h.respond(w, item, err)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req newsroom.EnqueueRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.EnqueuePublishJob(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyQueued {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, res)
}

func (h *Handler) channelLogs(w http.ResponseWriter, r *http.Request) {
	jobID, ok := int64Param(w, r, "jobID")
	if !ok {
		return
	}
	logs, err := h.svc.ChannelLogs(r.Context(), jobID)
	h.respond(w, logs, err)
}

func (h *Handler) scheduleOverview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.ScheduleOverview(r.Context())
	h.respond(w, stats, err)
}

func (h *Handler) scheduleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetScheduleStats(r.Context(), chi.URLParam(r, "platform"))
	h.respond(w, stats, err)
}

func (h *Handler) listEmergencies(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	items, err := h.svc.ListEmergencies(r.Context(), limit)
	h.respond(w, items, err)
}

func (h *Handler) addEmergency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContentID uuid.UUID `json:"content_id"`
		Priority  int       `json:"priority"`
		Reason    string    `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	item, err := h.svc.AddEmergency(r.Context(), req.ContentID, req.Priority, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, item)
}

func (h *Handler) publishEmergency(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "emID")
	if !ok {
		return
	}
	item, job, err := h.svc.PublishEmergency(r.Context(), id)
	h.respond(w, map[string]any{"item": item, "job": job}, err)
}

func (h *Handler) cancelEmergency(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "emID")
	if !ok {
		return
	}
	item, err := h.svc.CancelEmergency(r.Context(), id)
	h.respond(w, item, err)
}

func (h *Handler) emergencyPriority(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "emID")
	if !ok {
		return
	}
	var req struct {
		Priority int `json:"priority"`
	}
	if !decode(w, r, &req) {
		return
	}
	item, err := h.svc.UpdateEmergencyPriority(r.Context(), id, req.Priority)
	h.respond(w, item, err)
}

func (h *Handler) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, v)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSONStatus(w, http.StatusUnprocessableEntity, map[string]any{"error": verr.Reason, "field": verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, "version conflict")
	default:
		h.log.Error().Err(err).Msg("api: ошибка обработки запроса")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func contentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid content id")
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func actor(r *http.Request) string {
	if v := r.Header.Get(ActorHeader); v != "" {
		return v
	}
	return "api"
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]any{"error": msg})
}
