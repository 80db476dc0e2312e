package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)
	now := time.Now()
	bucket.now = func() time.Time { return now }

	allowed, err := bucket.Allow(ctx, "client")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _ = bucket.Allow(ctx, "client")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _ = bucket.Allow(ctx, "client")
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}

	// Other callers have their own bucket.
	if allowed, _ = bucket.Allow(ctx, "other"); !allowed {
		t.Fatalf("expected separate bucket for other key")
	}

	// The clock is injected, so refill can be tested by moving it forward.
	now = now.Add(1500 * time.Millisecond)
	allowed, tokens, err := bucket.Take(ctx, "client")
	if err != nil || !allowed {
		t.Fatalf("expected refilled token allowed got allowed=%v err=%v", allowed, err)
	}
	if tokens < 0.4 || tokens > 0.6 {
		t.Fatalf("expected ~0.5 tokens left, got %v", tokens)
	}
}
