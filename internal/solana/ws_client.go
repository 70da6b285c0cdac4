package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// LogStreamConfig configures LogStream behavior.
type LogStreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds a single read; it must exceed PingInterval.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription ID.
	SubscribeTimeout time.Duration
	// Commitment sent with each subscription.
	Commitment string
	// BufferSize of each notification channel.
	BufferSize int
}

// DefaultLogStreamConfig returns default LogStream configuration.
func DefaultLogStreamConfig() LogStreamConfig {
	return LogStreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        DefaultCommitment,
		BufferSize:        4096,
	}
}

type logSubscription struct {
	filter LogsFilter
	ch     chan LogNotification
}

// LogStream implements WSClient over gorilla/websocket. Subscriptions are
// replayed after a reconnect; notifications delivered while disconnected
// are lost.
type LogStream struct {
	endpoint string
	config   LogStreamConfig

	conn      *websocket.Conn
	connMu    sync.Mutex // guards conn and serializes writes
	closed    atomic.Bool
	requestID atomic.Uint64

	subs   map[int64]*logSubscription
	subsMu sync.RWMutex

	pending   map[uint64]chan int64
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLogStream connects to endpoint and starts the read and ping loops.
func NewLogStream(ctx context.Context, endpoint string, config *LogStreamConfig) (*LogStream, error) {
	cfg := DefaultLogStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &LogStream{
		endpoint: endpoint,
		config:   cfg,
		subs:     make(map[int64]*logSubscription),
		pending:  make(map[uint64]chan int64),
		done:     make(chan struct{}),
	}

	if err := s.dial(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

func (s *LogStream) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// SubscribeLogs subscribes to program logs matching the filter.
func (s *LogStream) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	subID, err := s.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub := &logSubscription{
		filter: filter,
		ch:     make(chan LogNotification, s.config.BufferSize),
	}
	s.subsMu.Lock()
	s.subs[subID] = sub
	s.subsMu.Unlock()

	return sub.ch, nil
}

// subscribe sends logsSubscribe and waits for the subscription ID.
func (s *LogStream) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := s.requestID.Add(1)

	var mentions interface{} = "all"
	if len(filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": filter.Mentions}
	}
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": s.config.Commitment},
		},
	}

	confirm := make(chan int64, 1)
	s.pendingMu.Lock()
	s.pending[reqID] = confirm
	s.pendingMu.Unlock()

	forget := func() {
		s.pendingMu.Lock()
		delete(s.pending, reqID)
		s.pendingMu.Unlock()
	}

	if err := s.writeJSON(req); err != nil {
		forget()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID, ok := <-confirm:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-time.After(s.config.SubscribeTimeout):
		forget()
		return 0, fmt.Errorf("subscription timeout after %s", s.config.SubscribeTimeout)
	case <-s.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

func (s *LogStream) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

// Close closes the connection and all subscription channels.
func (s *LogStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	s.subsMu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()

	s.pendingMu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()

	return nil
}

// readLoop dispatches incoming messages and reconnects on read errors.
func (s *LogStream) readLoop() {
	defer s.wg.Done()

	delay := s.config.ReconnectDelay
	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.sleep(delay) {
				return
			}
			if err := s.reconnect(); err != nil {
				delay = nextDelay(delay, s.config.MaxReconnectDelay)
				continue
			}
			delay = s.config.ReconnectDelay
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.connMu.Lock()
			if s.conn == conn {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		s.handleMessage(message)
	}
}

// reconnect dials again and replays subscriptions in the background, since
// confirmations arrive through readLoop.
func (s *LogStream) reconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.dial(ctx); err != nil {
		return err
	}

	go s.resubscribeAll()
	return nil
}

func (s *LogStream) resubscribeAll() {
	s.subsMu.RLock()
	old := make(map[int64]*logSubscription, len(s.subs))
	for id, sub := range s.subs {
		old[id] = sub
	}
	s.subsMu.RUnlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.SubscribeTimeout)
		newID, err := s.subscribe(ctx, sub.filter)
		cancel()
		if err != nil {
			// Keep the old mapping; the next reconnect retries.
			continue
		}

		s.subsMu.Lock()
		delete(s.subs, oldID)
		s.subs[newID] = sub
		s.subsMu.Unlock()
	}
}

func (s *LogStream) sleep(d time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

// handleMessage routes a subscription confirmation or a logs notification.
func (s *LogStream) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}

	switch {
	case env.Method == "logsNotification" && env.Params != nil:
		s.dispatch(env.Params)
	case env.ID != 0 && env.Result != nil:
		var subID int64
		if err := json.Unmarshal(env.Result, &subID); err != nil {
			return
		}
		s.pendingMu.Lock()
		ch, ok := s.pending[env.ID]
		delete(s.pending, env.ID)
		s.pendingMu.Unlock()
		if ok {
			ch <- subID
		}
	}
}

// dispatch blocks until the subscriber accepts the notification.
func (s *LogStream) dispatch(params *wsNotificationParams) {
	value := params.Result.Value
	notif := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if params.Result.Context != nil {
		notif.Slot = params.Result.Context.Slot
	}

	s.subsMu.RLock()
	sub, ok := s.subs[params.Subscription]
	s.subsMu.RUnlock()
	if !ok {
		return
	}

	select {
	case sub.ch <- notif:
	case <-s.done:
	}
}

// pingLoop keeps the connection alive.
func (s *LogStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				// A failed ping surfaces as a read error in readLoop.
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

var _ WSClient = (*LogStream)(nil)

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope covers both subscription responses and notifications.
type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
