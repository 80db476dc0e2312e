package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"uho/internal/models"
	"uho/internal/reqctx"
	"uho/internal/telemetry"
)

// Request is an API call after routing: /api/<Action>/<Params...>.
type Request struct {
	Method  string
	Action  string
	Params  []string
	Query   url.Values
	Body    []byte
	Context *reqctx.Context
}

// Handler serves one API action.
type Handler interface {
	Serve(ctx context.Context, req *Request) models.Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) models.Result

func (f HandlerFunc) Serve(ctx context.Context, req *Request) models.Result {
	return f(ctx, req)
}

// Protected is implemented by handlers that need a verified bearer token.
type Protected interface {
	RequiresAuth() bool
}

const unknownAction = "unknown"

// Dispatcher routes API requests to handlers registered by action name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handlers: make(map[string]Handler), logger: logger}
}

// Register binds h to action.
func (d *Dispatcher) Register(action string, h Handler) {
	if action == "" || h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// Dispatch runs the handler for req.Action. Unknown actions, missing
// credentials and handler panics all come back as failed results.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (res models.Result) {
	d.mu.RLock()
	h, ok := d.handlers[req.Action]
	d.mu.RUnlock()

	// Only registered action names become metric labels.
	label := unknownAction
	if ok {
		label = req.Action
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("api handler panicked", zap.String("action", req.Action), zap.Any("panic", r))
			res = models.Fail(http.StatusInternalServerError, "internal error")
		}
		telemetry.APIRequests.WithLabelValues(label, strconv.Itoa(res.Code)).Inc()
	}()

	if !ok {
		return models.Fail(http.StatusNotFound, fmt.Sprintf("unknown action %q", req.Action))
	}
	if p, ok := h.(Protected); ok && p.RequiresAuth() && !req.Context.Authenticated() {
		return models.Fail(http.StatusUnauthorized, "authorization required")
	}
	return h.Serve(ctx, req)
}
