package engine

import (
	"context"
	"io"

	"golang.org/x/time/rate"

	"github.com/bamsammich/beamsync/internal/proto"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate outbound
// throughput of all sessions to bytesPerSec. The burst is one data chunk so
// full chunks pass without splitting at high rates. Returns nil (unlimited)
// for bytesPerSec <= 0.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := proto.DataChunkSize
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// chunkSize returns the read size for file data under limiter: never more
// than the limiter's burst, since WaitN rejects larger requests.
func chunkSize(limiter *rate.Limiter) int {
	if limiter == nil {
		return proto.DataChunkSize
	}
	return max(1, min(proto.DataChunkSize, limiter.Burst()))
}

// rateLimitedReader wraps an io.Reader and enforces a shared rate limit.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// newRateLimitedReader wraps r so that reads are throttled by limiter. A nil
// limiter returns r unchanged.
func newRateLimitedReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &rateLimitedReader{r: r, limiter: limiter, ctx: ctx}
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	if len(p) > rl.limiter.Burst() {
		p = p[:rl.limiter.Burst()]
	}
	n, err := rl.r.Read(p)
	if n > 0 {
		if waitErr := rl.limiter.WaitN(rl.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
