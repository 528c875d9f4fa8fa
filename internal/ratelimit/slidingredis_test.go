package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterSlidingWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := Limiter{Client: client, Prefix: "rl:"}

	ctx := context.Background()
	window := 2 * time.Second
	const max = 3

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "1.2.3.4:/promos", window, max)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("hit %d should be allowed", i)
		}
		if remaining != max-(i+1) {
			t.Fatalf("hit %d: remaining = %d, want %d", i, remaining, max-(i+1))
		}
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "1.2.3.4:/promos", window, max)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed || remaining != 0 {
		t.Fatalf("over-limit hit: allowed=%v remaining=%d", allowed, remaining)
	}

	// a different key has its own budget
	allowed, _, _, err = limiter.Allow(ctx, "5.6.7.8:/promos", window, max)
	if err != nil {
		t.Fatalf("allow other key: %v", err)
	}
	if !allowed {
		t.Fatal("separate key should not share the window")
	}

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "1.2.3.4:/promos", window, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("hit after the window lapsed should be allowed")
	}
}

func TestLimiterNoClientAllowsAll(t *testing.T) {
	allowed, _, _, err := Limiter{}.Allow(context.Background(), "k", time.Second, 1)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !allowed {
		t.Fatal("nil client limiter should allow everything")
	}
}
