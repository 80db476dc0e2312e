// Package view renders pages and their modules into HTML components.
package view

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/a-h/templ"

	"uho/internal/models"
	"uho/internal/reqctx"
)

// PageView is what a module sees of the page it is rendered on.
type PageView struct {
	Page models.Page
	// Params are the request segments captured by wildcard route segments.
	Params []string
	// Request is the visitor's request state. It may be nil.
	Request *reqctx.Context
}

// ModuleRenderer turns one module into a component.
type ModuleRenderer interface {
	Render(ctx context.Context, page PageView, m models.Module) (templ.Component, error)
}

// RendererFunc adapts a function to ModuleRenderer.
type RendererFunc func(ctx context.Context, page PageView, m models.Module) (templ.Component, error)

func (f RendererFunc) Render(ctx context.Context, page PageView, m models.Module) (templ.Component, error) {
	return f(ctx, page, m)
}

// Registry maps module types to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]ModuleRenderer
}

// NewRegistry returns a registry preloaded with the built-in module types.
func NewRegistry() *Registry {
	r := &Registry{renderers: make(map[string]ModuleRenderer)}
	r.Register("text", RendererFunc(renderText))
	r.Register("html", RendererFunc(renderHTML))
	r.Register("image", RendererFunc(renderImage))
	r.Register("list", RendererFunc(renderList))
	return r
}

// Register binds a renderer to a module type, replacing any previous one.
func (r *Registry) Register(moduleType string, renderer ModuleRenderer) {
	if moduleType == "" || renderer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[moduleType] = renderer
}

// Lookup returns the renderer for moduleType.
func (r *Registry) Lookup(moduleType string) (ModuleRenderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[moduleType]
	return renderer, ok
}

// Layout wraps module components in the HTML document shell.
func Layout(title string, body ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			"<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body><main>",
			templ.EscapeString(title)); err != nil {
			return err
		}
		for _, c := range body {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</main></body></html>\n")
		return err
	})
}

// NotFound is rendered when neither a route nor a "404" page exists.
func NotFound() templ.Component {
	return Layout("Page not found", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<section class="module module-text"><h2>Page not found</h2></section>`)
		return err
	}))
}
