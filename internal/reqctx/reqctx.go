// Package reqctx carries per-request state explicitly instead of through
// globals. A Context is built once per HTTP request and dropped when the
// request ends.
package reqctx

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"uho/internal/router"
)

// FavouritesCookie holds the visitor's favourite item ids, comma separated.
const FavouritesCookie = "uho_favourites"

// Context is the request state handed to pages and API handlers.
type Context struct {
	ID       string
	Method   string
	Path     string
	Segments []string
	Query    url.Values
	// Subject is the verified bearer token subject, empty for anonymous calls.
	Subject    string
	Favourites []string
	Started    time.Time
}

// New builds a Context for r.
func New(r *http.Request) *Context {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	return &Context{
		ID:         id,
		Method:     r.Method,
		Path:       r.URL.Path,
		Segments:   router.Normalize(r.URL.Path),
		Query:      r.URL.Query(),
		Favourites: favourites(r),
		Started:    time.Now(),
	}
}

// Authenticated reports whether a bearer token was verified.
func (c *Context) Authenticated() bool {
	return c != nil && c.Subject != ""
}

// IsFavourite reports whether id is among the visitor's favourites.
func (c *Context) IsFavourite(id string) bool {
	if c == nil {
		return false
	}
	for _, f := range c.Favourites {
		if f == id {
			return true
		}
	}
	return false
}

func favourites(r *http.Request) []string {
	cookie, err := r.Cookie(FavouritesCookie)
	if err != nil {
		return nil
	}
	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type ctxKey struct{}

// With stores rc in ctx.
func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From returns the request Context stored in ctx, or nil.
func From(ctx context.Context) *Context {
	rc, _ := ctx.Value(ctxKey{}).(*Context)
	return rc
}
