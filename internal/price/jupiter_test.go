package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wsol = "So11111111111111111111111111111111111111112"

func TestJupiterSource_Price(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != wsol {
			t.Errorf("expected ids=%s, got %s", wsol, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"` + wsol + `":{"id":"` + wsol + `","type":"derivedPrice","price":"147.4530000"}},"timeTaken":0.003}`))
	}))
	defer server.Close()

	src := NewJupiterSource(server.URL)
	p, err := src.Price(context.Background(), wsol)
	require.NoError(t, err)
	assert.InDelta(t, 147.453, p, 1e-9)
}

func TestJupiterSource_MissingMint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"` + wsol + `":null}}`))
	}))
	defer server.Close()

	_, err := NewJupiterSource(server.URL).Price(context.Background(), wsol)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestJupiterSource_NonPositive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"` + wsol + `":{"price":"0"}}}`))
	}))
	defer server.Close()

	_, err := NewJupiterSource(server.URL).Price(context.Background(), wsol)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestJupiterSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"` + wsol + `":{"price":"150"}}}`))
	}))
	defer server.Close()

	src := NewJupiterSource(server.URL, WithJupiterRetries(3, time.Millisecond))
	p, err := src.Price(context.Background(), wsol)
	require.NoError(t, err)
	assert.Equal(t, 150.0, p)
	assert.Equal(t, int32(3), calls.Load())
}

func TestJupiterSource_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	src := NewJupiterSource(server.URL, WithJupiterRetries(3, time.Millisecond))
	_, err := src.Price(context.Background(), wsol)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
