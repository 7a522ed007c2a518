package generate

import (
	"context"

	"golang.org/x/time/rate"
)

type limited struct {
	Provider
	limiter *rate.Limiter
}

// Limited caps how often p starts a generation. Waiting for a token honors
// the request context, so an aborted request never reaches the backend.
// A non-positive perSecond returns p unchanged.
func Limited(p Provider, perSecond float64, burst int) Provider {
	if perSecond <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &limited{Provider: p, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *limited) Generate(ctx context.Context, req *Request) Stream {
	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := forward(l.Provider.Generate(ctx, req), emit, nil)
		return err
	})
}
