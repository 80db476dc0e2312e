// Package pages resolves request paths to pages and renders their modules.
package pages

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"uho/internal/htmlcache"
	"uho/internal/models"
	"uho/internal/reqctx"
	"uho/internal/router"
	"uho/internal/telemetry"
	"uho/internal/view"
)

// NotFoundPath is the pattern of the page shown for unknown routes.
const NotFoundPath = "404"

// Repository loads pages and modules.
type Repository interface {
	Pages(ctx context.Context) ([]models.Page, error)
	Modules(ctx context.Context, pageID int64) ([]models.Module, error)
}

// Service turns request paths into rendered pages.
type Service struct {
	repo     Repository
	registry *view.Registry
	cache    htmlcache.Cache
	logger   *zap.Logger
}

// New builds a Service. A nil cache disables caching.
func New(repo Repository, registry *view.Registry, cache htmlcache.Cache, logger *zap.Logger) *Service {
	if cache == nil {
		cache = htmlcache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, registry: registry, cache: cache, logger: logger}
}

// Find resolves path against the active pages.
func (s *Service) Find(ctx context.Context, path string) (router.Match, bool, error) {
	pages, err := s.repo.Pages(ctx)
	if err != nil {
		return router.Match{}, false, fmt.Errorf("load pages: %w", err)
	}
	m, ok := router.Resolve(path, pages)
	return m, ok, nil
}

// Render writes the page for rc to w and returns the HTTP status. Unknown
// routes render the "404" page, or a built-in one when that page is missing.
func (s *Service) Render(ctx context.Context, rc *reqctx.Context, w io.Writer) (int, error) {
	key := cacheKey(rc)
	cacheable := rc.Method == http.MethodGet || rc.Method == http.MethodHead
	if cacheable {
		if body, hit, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn("html cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			telemetry.PageCacheHits.Inc()
			_, err := w.Write(body)
			return http.StatusOK, err
		}
	}

	pages, err := s.repo.Pages(ctx)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("load pages: %w", err)
	}

	status := http.StatusOK
	m, ok := router.ResolveSegments(rc.Segments, pages)
	if !ok {
		status = http.StatusNotFound
		m, ok = notFoundPage(pages)
		if !ok {
			return status, view.NotFound().Render(ctx, w)
		}
	}

	var buf bytes.Buffer
	if err := s.renderPage(ctx, rc, m, &buf); err != nil {
		return http.StatusInternalServerError, err
	}
	if status == http.StatusOK && cacheable {
		if err := s.cache.Set(ctx, key, buf.Bytes()); err != nil {
			s.logger.Warn("html cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	_, err = w.Write(buf.Bytes())
	return status, err
}

// cacheKey separates visitors with favourites, since list modules mark them.
func cacheKey(rc *reqctx.Context) string {
	key := strings.Join(rc.Segments, "/")
	if len(rc.Favourites) > 0 {
		key += "?fav=" + strings.Join(rc.Favourites, ",")
	}
	return key
}

func (s *Service) renderPage(ctx context.Context, rc *reqctx.Context, m router.Match, w io.Writer) error {
	modules, err := s.repo.Modules(ctx, m.Page.ID)
	if err != nil {
		return fmt.Errorf("load modules for page %d: %w", m.Page.ID, err)
	}
	pv := view.PageView{Page: m.Page, Params: m.Params, Request: rc}

	body := make([]templ.Component, 0, len(modules))
	for _, mod := range modules {
		renderer, ok := s.registry.Lookup(mod.Type)
		if !ok {
			s.logger.Warn("unknown module type", zap.String("type", mod.Type), zap.Int64("module_id", mod.ID))
			continue
		}
		c, err := renderer.Render(ctx, pv, mod)
		if err != nil {
			s.logger.Warn("module render failed", zap.Int64("module_id", mod.ID), zap.Error(err))
			continue
		}
		body = append(body, c)
	}
	return view.Layout(m.Page.Title, body...).Render(ctx, w)
}

// notFoundPage looks for a page that lists NotFoundPath literally, so wildcard
// pages never stand in for it.
func notFoundPage(pages []models.Page) (router.Match, bool) {
	for _, p := range pages {
		for _, pattern := range router.Patterns(p.Path) {
			if pattern == NotFoundPath {
				return router.Match{Page: p, Pattern: pattern}, true
			}
		}
	}
	return router.Match{}, false
}

// Purge drops every cached page.
func (s *Service) Purge(ctx context.Context) error {
	return s.cache.Purge(ctx)
}
