package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a provider with a token bucket. Waiting
// honors ctx, so a throttled call still counts against the caller's budget.
type RateLimited struct {
	limiter *rate.Limiter
	text    TextGenerator
	image   ImageGenerator
}

// NewRateLimited wraps text and/or image generators behind one limiter.
// A non-positive requestsPerMinute disables throttling.
func NewRateLimited(requestsPerMinute float64, burst int, text TextGenerator, image ImageGenerator) *RateLimited {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / requestsPerMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		limiter: rate.NewLimiter(limit, burst),
		text:    text,
		image:   image,
	}
}

// GenerateText implements TextGenerator
func (r *RateLimited) GenerateText(ctx context.Context, system, user string, params Params) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", waitError(ctx, err)
	}
	return r.text.GenerateText(ctx, system, user, params)
}

// GenerateImage implements ImageGenerator
func (r *RateLimited) GenerateImage(ctx context.Context, prompt, size string) (Image, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Image{}, waitError(ctx, err)
	}
	return r.image.GenerateImage(ctx, prompt, size)
}

// Wait reports context.DeadlineExceeded when the deadline would pass before a
// token is available; surface that as the context error it anticipates.
func waitError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); ok {
		return context.DeadlineExceeded
	}
	return err
}
