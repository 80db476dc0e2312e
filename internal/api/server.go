package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"uho/internal/auth"
	"uho/internal/models"
	"uho/internal/pages"
	"uho/internal/ratelimit"
	"uho/internal/reqctx"
	"uho/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// Server wires the page renderer and the API dispatcher behind one router.
type Server struct {
	logger     *zap.Logger
	dispatcher *Dispatcher
	pages      *pages.Service
	verifier   *auth.Verifier
	limiter    ratelimit.Limiter
}

// New constructs the HTTP server. verifier and limiter may be nil.
func New(logger *zap.Logger, dispatcher *Dispatcher, pagesSvc *pages.Service, verifier *auth.Verifier, limiter ratelimit.Limiter) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:     logger,
		dispatcher: dispatcher,
		pages:      pagesSvc,
		verifier:   verifier,
		limiter:    limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestContext)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.HandleFunc("/*", s.handleAPI)
	})

	r.Get("/*", s.handlePage)
	r.Head("/*", s.handlePage)
	return r
}

// requestContext builds the reqctx.Context and resolves the bearer subject.
// A bad token leaves the caller anonymous; protected actions then answer 401.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := reqctx.New(r)
		if s.verifier != nil {
			if token, err := auth.Extract(r); err == nil {
				subject, err := s.verifier.Verify(token)
				if err != nil {
					s.logger.Debug("bearer token rejected", zap.String("request_id", rc.ID), zap.Error(err))
				}
				rc.Subject = subject
			}
		}
		w.Header().Set("X-Request-ID", rc.ID)
		next.ServeHTTP(w, r.WithContext(reqctx.With(r.Context(), rc)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		rc := reqctx.From(r.Context())
		s.logger.Info("http request",
			zap.String("request_id", rc.ID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(rc.Started)),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := s.limiter.Allow(r.Context(), limiterKey(r))
		if err != nil {
			// Redis trouble should not take the API down with it.
			s.logger.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeResult(w, models.Fail(http.StatusTooManyRequests, "rate limited"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limiterKey(r *http.Request) string {
	if rc := reqctx.From(r.Context()); rc.Authenticated() {
		return "sub:" + rc.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	var segments []string
	for _, seg := range strings.Split(chi.URLParam(r, "*"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		writeResult(w, models.Fail(http.StatusNotFound, "action is required"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeResult(w, models.Fail(http.StatusRequestEntityTooLarge, "request body too large"))
			return
		}
		writeResult(w, models.Fail(http.StatusBadRequest, "unreadable body"))
		return
	}

	res := s.dispatcher.Dispatch(r.Context(), &Request{
		Method:  r.Method,
		Action:  segments[0],
		Params:  segments[1:],
		Query:   r.URL.Query(),
		Body:    body,
		Context: reqctx.From(r.Context()),
	})
	writeResult(w, res)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	var buf bytes.Buffer
	status, err := s.pages.Render(r.Context(), rc, &buf)
	telemetry.PageRenders.WithLabelValues(strconv.Itoa(status)).Inc()
	if err != nil {
		s.logger.Error("render page", zap.String("request_id", rc.ID), zap.String("path", rc.Path), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeResult(w http.ResponseWriter, res models.Result) {
	code := res.Code
	if code == 0 {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
