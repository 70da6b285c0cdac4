package stub

import (
	"context"
	"sync"

	"solana-swap-pricer/internal/solana"
)

// WSClient implements solana.WSClient with one channel per subscription.
type WSClient struct {
	mu     sync.Mutex
	subs   map[string]chan solana.LogNotification // keyed by first mention
	closed bool
}

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{subs: make(map[string]chan solana.LogNotification)}
}

// SubscribeLogs returns the channel for the first mentioned program.
func (c *WSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	key := ""
	if len(filter.Mentions) > 0 {
		key = filter.Mentions[0]
	}
	return c.channel(key), nil
}

// Send delivers a notification to subscribers of program.
func (c *WSClient) Send(program string, n solana.LogNotification) {
	c.channel(program) <- n
}

// Close closes all subscription channels.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	return nil
}

func (c *WSClient) channel(key string) chan solana.LogNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.subs[key]
	if !ok {
		ch = make(chan solana.LogNotification, 100)
		c.subs[key] = ch
	}
	return ch
}

var _ solana.WSClient = (*WSClient)(nil)
