package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBucketGrantsUpToCapacity(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ai := ForService(client, "ai", 2, 1, time.Minute)

	allowed, remaining, err := ai.Allow(ctx)
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed, got allowed=%v err=%v", allowed, err)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 token remaining, got %v", remaining)
	}
	if allowed, _, _ = ai.Allow(ctx); !allowed {
		t.Fatal("expected second token allowed")
	}
	if allowed, _, _ = ai.Allow(ctx); allowed {
		t.Fatal("expected third token to be rejected")
	}
}

func TestBucketsArePerService(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ai := ForService(client, "ai", 1, 1, time.Minute)
	mail := ForService(client, "mailer", 1, 1, time.Minute)

	if allowed, _, _ := ai.Allow(ctx); !allowed {
		t.Fatal("expected ai token allowed")
	}
	if allowed, _, _ := ai.Allow(ctx); allowed {
		t.Fatal("expected ai bucket drained")
	}
	// The mailer budget is untouched by ai traffic.
	if allowed, _, _ := mail.Allow(ctx); !allowed {
		t.Fatal("expected fresh bucket for a different service")
	}

	// Note: refill cannot be tested with miniredis.FastForward() because the
	// script receives time from Go's time.Now(), not Redis's clock.
}
