package ai

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limited paces calls to the wrapped provider.
type Limited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewLimited allows perMinute requests per minute with a burst of one;
// perMinute <= 0 disables pacing.
func NewLimited(p Provider, perMinute int) *Limited {
	lim := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &Limited{next: p, limiter: lim}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Generate(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "ai: rate limit wait")
	}
	return l.next.Generate(ctx, req)
}
