package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Delay computes the retry wait before attempt n (1-indexed) per spec §4.G:
// delay(n) = min(cap, initial * multiplier^(n-1)); optional uniform ±20%
// jitter; clamp to >= 0.
func Delay(n int, p RetryPolicy) time.Duration {
	if n < 1 {
		n = 1
	}
	raw := float64(p.Initial) * math.Pow(p.Multiplier, float64(n-1))
	if cap := float64(p.Cap); cap > 0 && raw > cap {
		raw = cap
	}
	if p.Jitter {
		// uniform noise in [-20%, +20%]
		noise := (rand.Float64()*2 - 1) * 0.2
		raw += raw * noise
	}
	if raw < 0 {
		raw = 0
	}
	return time.Duration(raw)
}
