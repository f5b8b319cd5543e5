package testutil

import (
	"sync"
	"testing"
)

func TestMillisClockAdvance(t *testing.T) {
	c := NewMillisClock(1000)
	if got := c.NowMs(); got != 1000 {
		t.Fatalf("NowMs() = %d, want 1000", got)
	}
	if got := c.Advance(500); got != 1500 {
		t.Fatalf("Advance(500) = %d, want 1500", got)
	}
	if got := c.Advance(-100); got != 1500 {
		t.Fatalf("Advance(-100) = %d, want 1500 (monotonic)", got)
	}
}

func TestMillisClockSetNeverRewinds(t *testing.T) {
	c := NewMillisClock(1000)
	if got := c.Set(500); got != 1000 {
		t.Fatalf("Set(500) = %d, want 1000", got)
	}
	if got := c.Set(2000); got != 2000 {
		t.Fatalf("Set(2000) = %d, want 2000", got)
	}
}

func TestMillisClockConcurrentAdvance(t *testing.T) {
	c := NewMillisClock(0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Advance(1)
			}
		}()
	}
	wg.Wait()
	if got := c.NowMs(); got != 1000 {
		t.Fatalf("NowMs() = %d, want 1000", got)
	}
}
