package feed

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: Initial * Factor^(attempt-1), capped at
// Max, with up to Jitter (a fraction) of the delay added or removed.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64

	rand func() float64
}

func (b Backoff) Duration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	base := float64(b.Initial) * math.Pow(factor, float64(attempt-1))
	if max := float64(b.Max); b.Max > 0 && base > max {
		base = max
	}

	if b.Jitter > 0 {
		r := b.rand
		if r == nil {
			r = rand.Float64
		}
		base += base * b.Jitter * (2*r() - 1)
	}

	d := time.Duration(base)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if d < 0 {
		d = 0
	}
	return d
}
