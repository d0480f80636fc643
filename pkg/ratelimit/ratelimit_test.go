package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAllowUnderCapacity(t *testing.T) {
	l := New(nil, 3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow(context.Background(), "sensor-1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow(context.Background(), "sensor-1") {
		t.Fatal("request over capacity should be rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(nil, 1, time.Minute)
	if !l.Allow(context.Background(), "sensor-1") {
		t.Fatal("first key should be allowed")
	}
	if !l.Allow(context.Background(), "sensor-2") {
		t.Fatal("second key has its own window")
	}
	if l.Allow(context.Background(), "sensor-1") {
		t.Fatal("first key is exhausted")
	}
}

func TestWindowSlides(t *testing.T) {
	l := New(nil, 1, 50*time.Millisecond)
	if !l.Allow(context.Background(), "sensor-1") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow(context.Background(), "sensor-1") {
		t.Fatal("second request inside the window should be rejected")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.Allow(context.Background(), "sensor-1") {
		t.Fatal("request after the window expired should be allowed")
	}
}

func TestConcurrentAllowNeverExceedsCapacity(t *testing.T) {
	const capacity = 10
	l := New(nil, capacity, time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "sensor-1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != capacity {
		t.Fatalf("allowed = %d, want exactly %d", allowed, capacity)
	}
}
