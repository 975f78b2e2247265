package channel

import (
	"math"
	"math/rand"
	"time"

	"github.com/EvanL1/VoltageEMS-sub005/internal/config"
)

// Backoff 指数退避。现场设备默认无限重试，
// 每次间隔按倍数增长并受上限约束。
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func NewBackoff(cfg config.RetryConfig) Backoff {
	return Backoff{
		Initial:    cfg.InitialDelay,
		Max:        cfg.MaxDelay,
		Multiplier: cfg.Multiplier,
		Jitter:     cfg.Jitter,
	}
}

// Delay 第 attempt 次失败后的等待时长:
// delay = min(max, initial * multiplier^attempt)，可叠加随机抖动
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * rand.Float64()
		if d > float64(b.Max) {
			d = float64(b.Max)
		}
	}
	return time.Duration(d)
}
