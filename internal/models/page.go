package models

// Page is a routable content page. Path holds one or more ";"-separated
// patterns made of "/"-separated segments, where "%" matches any segment.
type Page struct {
	ID     int64  `json:"id"`
	Path   string `json:"path"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Module is a content block attached to a page. Modules render in Level order.
type Module struct {
	ID      int64          `json:"id"`
	PageID  int64          `json:"page_id"`
	Level   int            `json:"level"`
	Type    string         `json:"type"`
	Content map[string]any `json:"content"`
}

// String returns Content[key] when it is a string.
func (m Module) String(key string) string {
	if m.Content == nil {
		return ""
	}
	if v, ok := m.Content[key].(string); ok {
		return v
	}
	return ""
}
