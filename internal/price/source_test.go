package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	ctx := context.Background()

	s := NewStaticSource(0)
	_, err := s.Price(ctx, "WSOL")
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	s.Set("WSOL", 150)
	p, err := s.Price(ctx, "WSOL")
	require.NoError(t, err)
	assert.Equal(t, 150.0, p)

	fallback := NewStaticSource(1)
	p, err = fallback.Price(ctx, "USDC")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}

func TestObserved(t *testing.T) {
	var (
		name    string
		gotErr  error
		calls   int
		failing = errors.New("down")
	)
	observe := func(source string, _ time.Duration, err error) {
		name = source
		gotErr = err
		calls++
	}

	src := Observed(SourceFunc(func(context.Context, string) (float64, error) {
		return 0, failing
	}), "static", observe)

	_, err := src.Price(context.Background(), "WSOL")
	assert.ErrorIs(t, err, failing)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "static", name)
	assert.ErrorIs(t, gotErr, failing)

	plain := NewStaticSource(1)
	assert.Same(t, plain, Observed(plain, "x", nil))
}
