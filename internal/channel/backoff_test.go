package channel

import (
	"testing"
	"time"

	"github.com/EvanL1/VoltageEMS-sub005/internal/config"
)

func TestBackoffGrowth(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, w := range want {
		if got := b.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, 期望 %v", attempt, got, w)
		}
	}
}

func TestBackoffNonDecreasing(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   1.5,
	})
	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v 小于前值 %v", attempt, d, prev)
		}
		if d > time.Minute {
			t.Fatalf("Delay(%d) = %v 超出上限", attempt, d)
		}
		prev = d
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.5,
	})
	for i := 0; i < 100; i++ {
		d := b.Delay(2) // 基准 400ms
		if d < 400*time.Millisecond || d > 600*time.Millisecond {
			t.Fatalf("抖动越界: %v", d)
		}
		if m := b.Delay(10); m > time.Second {
			t.Fatalf("抖动后超出上限: %v", m)
		}
	}
}
