package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowConsumesCapacity(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("api", 3, 0.0001) {
			t.Fatalf("request %d should pass within capacity", i)
		}
	}
	if l.Allow("api", 3, 0.0001) {
		t.Fatal("request over capacity should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0.0001) {
		t.Fatal("first token for key a")
	}
	if l.Allow("a", 1, 0.0001) {
		t.Fatal("key a is drained")
	}
	if !l.Allow("b", 1, 0.0001) {
		t.Fatal("key b has its own bucket")
	}
}

func TestRefillOverTime(t *testing.T) {
	l := New()
	if !l.Allow("api", 1, 100) {
		t.Fatal("initial token")
	}
	time.Sleep(30 * time.Millisecond) // 100/s refills well over one token
	if !l.Allow("api", 1, 100) {
		t.Fatal("bucket should refill at 100 tokens/s")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New()
	if !l.Allow("api", 1, 0.0001) {
		t.Fatal("initial token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "api", 1, 0.0001); err == nil {
		t.Fatal("Wait must fail when the context expires before refill")
	}
}
