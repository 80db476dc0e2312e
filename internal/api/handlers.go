package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"uho/internal/models"
	"uho/internal/pages"
	"uho/internal/telemetry"
)

// JobQueue is the part of the job queue the API exposes.
type JobQueue interface {
	Enqueue(ctx context.Context, actions ...string) ([]models.Job, error)
	Repeat(ctx context.Context, id int64) (models.Job, error)
	Get(ctx context.Context, id int64) (models.Job, error)
	List(ctx context.Context, status string, limit int) ([]models.Job, error)
	CountWaiting(ctx context.Context) (int64, error)
	CountCompletedToday(ctx context.Context) (int64, error)
}

// JobsHandler serves /api/jobs:
//
//	GET  /api/jobs              stats and recent jobs (?status=, ?limit=)
//	GET  /api/jobs/{id}         one job
//	POST /api/jobs              {"actions": [...]} or {"action": "..."}
//	POST /api/jobs/{id}/repeat  resubmit a job's action
type JobsHandler struct {
	queue JobQueue
}

func NewJobsHandler(q JobQueue) *JobsHandler {
	return &JobsHandler{queue: q}
}

func (h *JobsHandler) RequiresAuth() bool { return true }

type enqueueRequest struct {
	Action  string   `json:"action"`
	Actions []string `json:"actions"`
}

type jobsOverview struct {
	Stats models.QueueStats `json:"stats"`
	Jobs  []models.Job      `json:"jobs"`
}

func (h *JobsHandler) Serve(ctx context.Context, req *Request) models.Result {
	switch {
	case req.Method == http.MethodGet && len(req.Params) == 0:
		return h.overview(ctx, req)
	case req.Method == http.MethodGet && len(req.Params) == 1:
		id, ok := parseID(req.Params[0])
		if !ok {
			return models.Fail(http.StatusBadRequest, "invalid job id")
		}
		job, err := h.queue.Get(ctx, id)
		if err != nil {
			return queueFailure(err)
		}
		return models.OK(job)
	case req.Method == http.MethodPost && len(req.Params) == 0:
		return h.enqueue(ctx, req)
	case req.Method == http.MethodPost && len(req.Params) == 2 && req.Params[1] == "repeat":
		id, ok := parseID(req.Params[0])
		if !ok {
			return models.Fail(http.StatusBadRequest, "invalid job id")
		}
		job, err := h.queue.Repeat(ctx, id)
		if err != nil {
			return queueFailure(err)
		}
		telemetry.JobsEnqueued.Inc()
		return models.Created(job)
	}
	return models.Fail(http.StatusMethodNotAllowed, "unsupported jobs operation")
}

func (h *JobsHandler) overview(ctx context.Context, req *Request) models.Result {
	waiting, err := h.queue.CountWaiting(ctx)
	if err != nil {
		return queueFailure(err)
	}
	today, err := h.queue.CountCompletedToday(ctx)
	if err != nil {
		return queueFailure(err)
	}
	status := req.Query.Get("status")
	if status != "" && !models.ValidStatus(status) {
		return models.Fail(http.StatusBadRequest, "unknown status filter")
	}
	limit, _ := strconv.Atoi(req.Query.Get("limit"))
	jobs, err := h.queue.List(ctx, status, limit)
	if err != nil {
		return queueFailure(err)
	}
	telemetry.JobsWaiting.Set(float64(waiting))
	return models.OK(jobsOverview{
		Stats: models.QueueStats{Waiting: waiting, CompletedToday: today},
		Jobs:  jobs,
	})
}

func (h *JobsHandler) enqueue(ctx context.Context, req *Request) models.Result {
	var body enqueueRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return models.Fail(http.StatusBadRequest, "invalid json")
	}
	actions := body.Actions
	if body.Action != "" {
		actions = append(actions, body.Action)
	}
	if len(actions) == 0 {
		return models.Fail(http.StatusBadRequest, "action is required")
	}
	jobs, err := h.queue.Enqueue(ctx, actions...)
	if err != nil {
		return queueFailure(err)
	}
	telemetry.JobsEnqueued.Add(float64(len(jobs)))
	return models.Created(jobs)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func queueFailure(err error) models.Result {
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		return models.Fail(http.StatusNotFound, "job not found")
	case errors.Is(err, models.ErrJobFinished), errors.Is(err, models.ErrInvalidStatus):
		return models.Fail(http.StatusConflict, err.Error())
	}
	return models.Fail(http.StatusInternalServerError, "queue unavailable")
}

// PagesHandler serves GET /api/pages?path=... with the page a path resolves to.
type PagesHandler struct {
	pages *pages.Service
}

func NewPagesHandler(svc *pages.Service) *PagesHandler {
	return &PagesHandler{pages: svc}
}

type pageMatch struct {
	Page    models.Page `json:"page"`
	Pattern string      `json:"pattern"`
	Score   int         `json:"score"`
	Params  []string    `json:"params"`
}

func (h *PagesHandler) Serve(ctx context.Context, req *Request) models.Result {
	if req.Method != http.MethodGet {
		return models.Fail(http.StatusMethodNotAllowed, "unsupported pages operation")
	}
	m, ok, err := h.pages.Find(ctx, req.Query.Get("path"))
	if err != nil {
		return models.Fail(http.StatusInternalServerError, "pages unavailable")
	}
	if !ok {
		return models.Fail(http.StatusNotFound, "no page matches path")
	}
	return models.OK(pageMatch{Page: m.Page, Pattern: m.Pattern, Score: m.Score, Params: m.Params})
}

// Purger empties a cache.
type Purger interface {
	Purge(ctx context.Context) error
}

// CacheHandler serves DELETE /api/cache.
type CacheHandler struct {
	cache Purger
}

func NewCacheHandler(cache Purger) *CacheHandler {
	return &CacheHandler{cache: cache}
}

func (h *CacheHandler) RequiresAuth() bool { return true }

func (h *CacheHandler) Serve(ctx context.Context, req *Request) models.Result {
	if req.Method != http.MethodDelete {
		return models.Fail(http.StatusMethodNotAllowed, "unsupported cache operation")
	}
	if err := h.cache.Purge(ctx); err != nil {
		return models.Fail(http.StatusInternalServerError, "cache purge failed")
	}
	return models.OK(map[string]string{"status": "purged"})
}
