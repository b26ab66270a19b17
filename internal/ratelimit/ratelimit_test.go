package ratelimit

import (
	"testing"
	"time"
)

// stubClock is a manually advanced Clock; the tests are single-goroutine so
// no locking is needed.
type stubClock struct{ t time.Time }

func (c *stubClock) Now() time.Time          { return c.t }
func (c *stubClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	clk := &stubClock{t: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 10, 10)

	if !b.Allow(10) {
		t.Fatalf("initial burst of 10 should be allowed")
	}
	if b.Allow(1) {
		t.Fatalf("drained bucket should reject")
	}

	clk.advance(100 * time.Millisecond) // one token at 10 tokens/sec
	if !b.Allow(1) {
		t.Fatalf("one token should have refilled")
	}
	if b.Allow(1) {
		t.Fatalf("bucket should be drained again")
	}
}

func TestTokenBucket_CapacityClamp(t *testing.T) {
	clk := &stubClock{t: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 2, 1)

	if !b.Allow(2) {
		t.Fatalf("initial tokens should be available")
	}

	clk.advance(time.Hour)
	if !b.Allow(2) {
		t.Fatalf("refill should restore full capacity")
	}
	if b.Allow(1) {
		t.Fatalf("refill must clamp at capacity")
	}
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clk := &stubClock{t: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow(1) {
		t.Fatalf("initial token should be available")
	}

	clk.advance(-time.Minute)
	if b.Allow(1) {
		t.Fatalf("a backwards clock must not mint tokens")
	}

	clk.advance(time.Minute + time.Second)
	if !b.Allow(1) {
		t.Fatalf("refill should resume after the clock recovers")
	}
}

func TestTokenBucket_NonPositiveCost(t *testing.T) {
	b := NewTokenBucket(&stubClock{}, 0, 0)
	if !b.Allow(0) {
		t.Fatalf("zero cost must always be allowed")
	}
	if b.Allow(1) {
		t.Fatalf("a zero-capacity bucket must reject")
	}
}
