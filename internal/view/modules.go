package view

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"uho/internal/models"
)

func section(kind string, inner func(ctx context.Context, w io.Writer) error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<section class="module module-%s">`, templ.EscapeString(kind)); err != nil {
			return err
		}
		if err := inner(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</section>")
		return err
	})
}

// renderText writes an optional heading and the body split into paragraphs
// on blank lines. "$1", "$2"... in the body are replaced by route params.
func renderText(_ context.Context, page PageView, m models.Module) (templ.Component, error) {
	title := m.String("title")
	body := expandParams(m.String("body"), page.Params)
	return section("text", func(_ context.Context, w io.Writer) error {
		if title != "" {
			if _, err := fmt.Fprintf(w, "<h2>%s</h2>", templ.EscapeString(title)); err != nil {
				return err
			}
		}
		for _, p := range strings.Split(body, "\n\n") {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			if _, err := fmt.Fprintf(w, "<p>%s</p>", templ.EscapeString(p)); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// renderHTML emits trusted markup stored by editors as is.
func renderHTML(_ context.Context, _ PageView, m models.Module) (templ.Component, error) {
	raw := templ.Raw(m.String("html"))
	return section("html", raw.Render), nil
}

func renderImage(_ context.Context, _ PageView, m models.Module) (templ.Component, error) {
	src := m.String("src")
	if src == "" {
		return nil, fmt.Errorf("image module %d: src is required", m.ID)
	}
	alt := m.String("alt")
	caption := m.String("caption")
	return section("image", func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<figure><img src="%s" alt="%s">`,
			templ.EscapeString(string(templ.URL(src))), templ.EscapeString(alt)); err != nil {
			return err
		}
		if caption != "" {
			if _, err := fmt.Fprintf(w, "<figcaption>%s</figcaption>", templ.EscapeString(caption)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</figure>")
		return err
	}), nil
}

// renderList writes a list; items the visitor marked as favourite get the
// "favourite" class.
func renderList(_ context.Context, page PageView, m models.Module) (templ.Component, error) {
	var items []string
	switch v := m.Content["items"].(type) {
	case []string:
		items = v
	case []any:
		for _, it := range v {
			items = append(items, fmt.Sprint(it))
		}
	case nil:
	default:
		return nil, fmt.Errorf("list module %d: items must be a list", m.ID)
	}
	title := m.String("title")
	return section("list", func(_ context.Context, w io.Writer) error {
		if title != "" {
			if _, err := fmt.Fprintf(w, "<h2>%s</h2>", templ.EscapeString(title)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "<ul>"); err != nil {
			return err
		}
		for _, it := range items {
			open := "<li>"
			if page.Request.IsFavourite(it) {
				open = `<li class="favourite">`
			}
			if _, err := fmt.Fprintf(w, "%s%s</li>", open, templ.EscapeString(it)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul>")
		return err
	}), nil
}

func expandParams(s string, params []string) string {
	for i := len(params); i >= 1; i-- {
		s = strings.ReplaceAll(s, fmt.Sprintf("$%d", i), params[i-1])
	}
	return s
}
