// Package worker processes queued jobs. It is meant to be started by an
// external scheduler (cron, a systemd timer) and to stop on its own once the
// queue is empty or its time budget is spent.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"uho/internal/models"
	"uho/internal/telemetry"
)

// Queue is the job store the worker polls.
type Queue interface {
	Enqueue(ctx context.Context, actions ...string) ([]models.Job, error)
	ClaimNext(ctx context.Context) (models.Job, bool, error)
	SetStatus(ctx context.Context, id int64, status string) error
	Repeat(ctx context.Context, id int64) (models.Job, error)
	Get(ctx context.Context, id int64) (models.Job, error)
	List(ctx context.Context, status string, limit int) ([]models.Job, error)
	CountWaiting(ctx context.Context) (int64, error)
	CountCompletedToday(ctx context.Context) (int64, error)
}

// Handler executes one job.
type Handler interface {
	Handle(ctx context.Context, job models.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job models.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job models.Job) error {
	return f(ctx, job)
}

// Envelope is the part of a job action the worker reads to pick a handler.
type Envelope struct {
	Type string `json:"type"`
}

// Action encodes payload as a job action of the given type.
func Action(actionType string, payload map[string]any) (string, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = actionType
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode action: %w", err)
	}
	return string(raw), nil
}

// Worker claims jobs and dispatches them by action type.
type Worker struct {
	queue    Queue
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers map[string]Handler
	started  time.Time
	now      func() time.Time
}

// New creates a worker. The elapsed-time clock starts here.
func New(q Queue, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    q,
		logger:   logger,
		handlers: make(map[string]Handler),
		started:  time.Now(),
		now:      time.Now,
	}
}

// Register binds a handler to an action type.
func (w *Worker) Register(actionType string, h Handler) {
	if actionType == "" || h == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[actionType] = h
}

// Elapsed is the wall time since the worker was constructed.
func (w *Worker) Elapsed() time.Duration {
	return w.now().Sub(w.started)
}

// Remaining is what is left of budget, never negative.
func (w *Worker) Remaining(budget time.Duration) time.Duration {
	if left := budget - w.Elapsed(); left > 0 {
		return left
	}
	return 0
}

// ProcessNext claims and runs one job. It returns false when nothing was
// waiting.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, ok, err := w.queue.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if !ok {
		return false, nil
	}

	log := w.logger.With(zap.Int64("job_id", job.ID))
	status := models.StatusSuccess
	start := w.now()
	if err := w.run(ctx, job); err != nil {
		status = models.StatusError
		log.Warn("job failed", zap.Error(err))
	}

	if err := w.queue.SetStatus(ctx, job.ID, status); err != nil {
		if errors.Is(err, models.ErrJobFinished) {
			// Another poller finished it after our lease expired.
			log.Warn("job already finished elsewhere")
			return true, nil
		}
		return true, fmt.Errorf("set status of job %d: %w", job.ID, err)
	}
	telemetry.JobsFinished.WithLabelValues(status).Inc()
	log.Info("job finished", zap.String("status", status), zap.Duration("took", w.now().Sub(start)))
	return true, nil
}

// RunFor processes jobs until the queue is empty, budget has elapsed since
// construction, or ctx is done. The check happens between jobs, so a long job
// can overrun the budget.
func (w *Worker) RunFor(ctx context.Context, budget time.Duration) (int, error) {
	processed := 0
	for w.Remaining(budget) > 0 {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ok, err := w.ProcessNext(ctx)
		if ok {
			processed++
		}
		if err != nil {
			return processed, err
		}
		if !ok {
			break
		}
	}
	if n, err := w.queue.CountWaiting(ctx); err == nil {
		telemetry.JobsWaiting.Set(float64(n))
	}
	return processed, nil
}

func (w *Worker) run(ctx context.Context, job models.Job) (err error) {
	var env Envelope
	if err := json.Unmarshal([]byte(job.Action), &env); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	w.mu.RLock()
	h, ok := w.handlers[env.Type]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for action %q", env.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %q panicked: %v", env.Type, r)
		}
	}()
	return h.Handle(ctx, job)
}
