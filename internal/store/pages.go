package store

import (
	"context"
	"encoding/json"
	"fmt"

	"uho/internal/models"
)

// Pages returns every active page in id order. Routing depends on this order
// to break ties between equally specific patterns.
func (s *Store) Pages(ctx context.Context) ([]models.Page, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, path, title, active FROM pages WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.ID, &p.Path, &p.Title, &p.Active); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// Modules returns the modules attached to a page ordered by level.
func (s *Store) Modules(ctx context.Context, pageID int64) ([]models.Module, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, page_id, level, type, content FROM modules
		WHERE page_id = $1
		ORDER BY level, id
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	var modules []models.Module
	for rows.Next() {
		var m models.Module
		var content []byte
		if err := rows.Scan(&m.ID, &m.PageID, &m.Level, &m.Type, &content); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		if len(content) > 0 {
			if err := json.Unmarshal(content, &m.Content); err != nil {
				return nil, fmt.Errorf("unmarshal module %d content: %w", m.ID, err)
			}
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}
