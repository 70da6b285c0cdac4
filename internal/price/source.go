// Package price provides quote-currency prices for the reference asset.
package price

import (
	"context"
	"errors"
	"time"
)

// ErrPriceUnavailable is returned when a source has no usable price for a mint.
var ErrPriceUnavailable = errors.New("reference price unavailable")

// Source returns the current quote-currency price of a mint.
type Source interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, mint string) (float64, error)

// Price calls f.
func (f SourceFunc) Price(ctx context.Context, mint string) (float64, error) {
	return f(ctx, mint)
}

// Observed wraps src so that every lookup is reported to observe under name.
func Observed(src Source, name string, observe func(source string, d time.Duration, err error)) Source {
	if observe == nil {
		return src
	}
	return SourceFunc(func(ctx context.Context, mint string) (float64, error) {
		start := time.Now()
		p, err := src.Price(ctx, mint)
		observe(name, time.Since(start), err)
		return p, err
	})
}
