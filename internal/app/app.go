// Package app opens the backends shared by the web server and the worker.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"uho/internal/config"
	"uho/internal/htmlcache"
	"uho/internal/queue"
	"uho/internal/store"
	"uho/internal/upload"
	"uho/internal/worker"
)

// Deps holds opened backends. Store is nil when Postgres was not needed.
type Deps struct {
	Store *store.Store
	Redis *redis.Client
	Queue worker.Queue
	Cache htmlcache.Cache
}

// Open connects the backends cfg selects. Postgres is always opened when
// withStore is set, since pages live there whatever the queue backend is.
func Open(ctx context.Context, cfg config.Config, withStore bool) (*Deps, error) {
	d := &Deps{Redis: queue.NewClient(cfg)}

	backend := strings.ToLower(cfg.QueueBackend)
	if withStore || backend != "redis" {
		st, err := store.New(ctx, cfg.PostgresDSN,
			store.WithClaimLease(cfg.ClaimLease),
			store.WithLocation(cfg.Location()),
		)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Store = st
	}

	switch backend {
	case "redis":
		d.Queue = queue.NewRedisQueue(d.Redis, cfg.ClaimLease, cfg.Location())
	case "postgres", "":
		d.Queue = d.Store
	default:
		d.Close()
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	cache, err := NewCache(cfg, d.Redis)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Cache = cache
	return d, nil
}

// Close releases every opened backend.
func (d *Deps) Close() {
	if d.Store != nil {
		d.Store.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// NewCache builds the HTML cache named by cfg.CacheBackend.
func NewCache(cfg config.Config, client *redis.Client) (htmlcache.Cache, error) {
	switch strings.ToLower(cfg.CacheBackend) {
	case "file", "":
		return htmlcache.NewFileCache(cfg.CacheDir, cfg.CacheTTL), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis cache needs a redis client")
		}
		return htmlcache.NewRedisCache(client, cfg.CacheTTL), nil
	case "none", "off":
		return htmlcache.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
}

// NewUploads returns the upload router: the local directory always, S3 when
// a bucket is configured and its client can be built.
func NewUploads(ctx context.Context, cfg config.Config, logger *zap.Logger) *upload.Router {
	local := upload.NewLocal(cfg.UploadDir)
	if cfg.S3Bucket == "" {
		return upload.NewRouter(local, nil)
	}
	s3, err := upload.NewS3(ctx, cfg, logger)
	if err != nil {
		logger.Warn("s3 uploads disabled", zap.Error(err))
		return upload.NewRouter(local, nil)
	}
	return upload.NewRouter(local, s3)
}
