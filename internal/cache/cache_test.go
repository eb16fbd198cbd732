package cache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if err := c.Set(ctx, "/node?hasExitNode=true", []byte(`["exit1"]`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, ok, err := c.Get(ctx, "/node?hasExitNode=true")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit within ttl")
	}
	if !bytes.Equal(value, []byte(`["exit1"]`)) {
		t.Fatalf("unexpected value %s", value)
	}
}

func TestMemoryCache_MissSignalsContinue(t *testing.T) {
	c := NewMemory()

	_, ok, err := c.Get(context.Background(), "/node")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestMemoryCache_LazyExpiration(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "k", []byte("v"), 100*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(101 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after ttl elapsed")
	}
}

func TestMemoryCache_LastWriterWins(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("first"), time.Minute)
	_ = c.Set(ctx, "k", []byte("second"), time.Minute)

	value, ok, _ := c.Get(ctx, "k")
	if !ok || string(value) != "second" {
		t.Fatalf("expected second write to win, got %q ok=%v", value, ok)
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), time.Minute)
	_ = c.Set(ctx, "b", []byte("2"), time.Minute)

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatal("expected cleared cache to miss")
	}
}

func TestMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), 0)
	now = now.Add(24 * time.Hour)

	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("zero ttl entries must not expire")
	}
}

func TestMemoryCache_ValueIsolation(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	original := []byte("original")
	_ = c.Set(ctx, "k", original, time.Minute)
	original[0] = 'X'

	value, _, _ := c.Get(ctx, "k")
	if string(value) != "original" {
		t.Fatalf("cache must not alias caller buffers, got %q", value)
	}
	value[0] = 'Y'

	again, _, _ := c.Get(ctx, "k")
	if string(again) != "original" {
		t.Fatalf("returned buffers must not alias stored state, got %q", again)
	}
}
