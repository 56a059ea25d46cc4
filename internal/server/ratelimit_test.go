package server

import (
	"testing"
	"time"
)

// TestRateLimiterRefillsAndSweeps 以假時鐘驗證配額、補充與閒置清除。
func TestRateLimiterRefillsAndSweeps(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	// 1️⃣ 容量 2，第三次被拒；其他 IP 不受影響
	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("third request within the minute should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("another client should have its own bucket")
	}

	// 2️⃣ 每 30 秒補一個 token
	now = now.Add(31 * time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("one token should be refilled after 30s")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("only one token should be refilled")
	}

	// 3️⃣ 閒置超過 TTL 的 bucket 被清除
	now = now.Add(bucketIdleTTL + time.Second)
	rl.Allow("10.0.0.3")
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["10.0.0.2"]; ok {
		t.Fatal("idle visitor should be swept")
	}
	if len(rl.visitors) != 1 {
		t.Fatalf("want 1 visitor after sweep, got %d", len(rl.visitors))
	}
}
