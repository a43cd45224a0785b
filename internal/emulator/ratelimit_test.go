package emulator

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRateLimiter(2, time.Minute)
	r.now = func() time.Time { return now }

	if !r.allow() || !r.allow() {
		t.Fatalf("first two events must pass")
	}
	if r.allow() {
		t.Fatalf("third event in the window must be limited")
	}

	now = now.Add(time.Minute)
	if !r.allow() {
		t.Fatalf("new window must reset the counter")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := newRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !r.allow() {
			t.Fatalf("zero limit must never block")
		}
	}
}
