package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestCaptchaThresholdAndReset(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{CaptchaThreshold: 3, IPWindow: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	need, err := l.NeedsCaptcha(ctx, "10.0.0.1")
	if err != nil || need {
		t.Fatalf("expected no captcha after 2 failures, got %v %v", need, err)
	}

	_ = l.RecordFailure(ctx, "10.0.0.1")
	if need, _ = l.NeedsCaptcha(ctx, "10.0.0.1"); !need {
		t.Fatal("expected captcha after threshold")
	}
	if need, _ = l.NeedsCaptcha(ctx, "10.0.0.2"); need {
		t.Fatal("other IPs must not be affected")
	}

	if err := l.Reset(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if need, _ = l.NeedsCaptcha(ctx, "10.0.0.1"); need {
		t.Fatal("expected counter cleared")
	}
}

func TestWindowExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, Config{CaptchaThreshold: 1, IPWindow: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "ip")
	mr.FastForward(2 * time.Minute)
	if need, _ := l.NeedsCaptcha(ctx, "ip"); need {
		t.Fatal("window should have expired")
	}
}

func TestEnforce(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := Enforce(ctx, rdb, "k", 2, time.Minute); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
	if err := Enforce(ctx, rdb, "k", 2, time.Minute); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestDisabledLimiterIsNoop(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = l.RecordFailure(ctx, "ip")
	}
	if need, err := l.NeedsCaptcha(ctx, "ip"); need || err != nil {
		t.Fatalf("disabled limiter must never demand a captcha: %v %v", need, err)
	}

	var nilLimiter *Limiter
	if need, err := nilLimiter.NeedsCaptcha(ctx, "ip"); need || err != nil {
		t.Fatal("nil limiter must be safe")
	}
}

func TestRedisDownWrapsError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, Config{CaptchaThreshold: 1})
	mr.Close()

	if err := l.RecordFailure(context.Background(), "ip"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
