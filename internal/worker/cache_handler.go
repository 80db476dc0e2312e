package worker

import (
	"context"
	"fmt"

	"uho/internal/htmlcache"
	"uho/internal/models"
)

// ActionCachePurge empties the rendered page cache.
const ActionCachePurge = "cache:purge"

// CachePurgeHandler returns a handler that purges cache.
func CachePurgeHandler(cache htmlcache.Cache) Handler {
	return HandlerFunc(func(ctx context.Context, _ models.Job) error {
		if err := cache.Purge(ctx); err != nil {
			return fmt.Errorf("purge html cache: %w", err)
		}
		return nil
	})
}
