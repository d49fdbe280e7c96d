package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(3, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}
	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	time.Sleep(250 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected tokens to be refilled after waiting")
	}

	tb.tokens = 0
	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWaitBlocksUntilRefill(t *testing.T) {
	tb := NewTokenBucket(1, 100*time.Millisecond)
	tb.Allow()

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("Wait returned before the bucket refilled")
	}
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestJitterStaysInWindow(t *testing.T) {
	j := NewJitter(1500*time.Millisecond, 3*time.Second)
	for i := 0; i < 200; i++ {
		d := j.Next()
		if d < 1500*time.Millisecond || d > 3*time.Second {
			t.Fatalf("pause %v outside window", d)
		}
	}
}

func TestJitterDegenerateWindow(t *testing.T) {
	j := &Jitter{}
	if d := j.Next(); d != 0 {
		t.Errorf("expected zero pause, got %v", d)
	}
	if err := j.Wait(context.Background()); err != nil {
		t.Errorf("zero pause should not fail: %v", err)
	}
}

func TestJitterWaitCancelled(t *testing.T) {
	j := NewJitter(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
}
