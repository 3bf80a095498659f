package loader

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate read throughput to
// bytesPerSec. The burst is 1 MB so typical decoder reads pass in one wait.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// rateLimitedReader throttles reads from r through a shared limiter.
type rateLimitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	// Never ask the limiter for more than its burst in one wait.
	if b := rl.limiter.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := rl.r.Read(p)
	if n > 0 {
		if waitErr := rl.limiter.WaitN(rl.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
