package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewLRUCache(4, time.Minute)
	c.Set("k", "v")

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("got %v, %v", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("missing key must not hit")
	}
}

func TestEvictionOrder(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	// Touch a so b is the oldest.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewLRUCache(4, 10*time.Millisecond)
	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry must miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len = %d", c.Len())
	}
}

func TestUpdateExistingKey(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Set("k", 1)
	c.Set("k", 2)

	got, _ := c.Get("k")
	if got != 2 {
		t.Fatalf("got %v", got)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestClear(t *testing.T) {
	c := NewLRUCache(4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len = %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("cleared entry must miss")
	}
}

func TestHashKeyStable(t *testing.T) {
	if HashKey("x") != HashKey("x") {
		t.Fatal("hash must be deterministic")
	}
	if HashKey("x") == HashKey("y") {
		t.Fatal("distinct inputs must hash apart")
	}
	if len(HashKey("x")) != 64 {
		t.Fatalf("unexpected digest length %d", len(HashKey("x")))
	}
}
