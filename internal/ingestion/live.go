package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-swap-pricer/internal/observability"
	"solana-swap-pricer/internal/solana"
)

// ErrStreamClosed is returned when every log subscription has ended.
var ErrStreamClosed = errors.New("log stream closed")

// LiveOptions contains configuration for creating a Live runner.
type LiveOptions struct {
	Stream        solana.WSClient
	Pricer        TxPricer
	Programs      []string // DEX programs whose logs are watched
	Workers       int      // Default: 8
	QueueSize     int      // Default: 1024
	DedupeSize    int      // Default: 10000 signatures
	RetryAttempts int      // Default: 3
	RetryDelay    time.Duration
	Metrics       *observability.Metrics
	Logger        *log.Logger
}

// Live prices transactions as their logs arrive.
type Live struct {
	stream        solana.WSClient
	pricer        TxPricer
	programs      []string
	workers       int
	queueSize     int
	seen          *recentSet
	retryAttempts int
	retryDelay    time.Duration
	metrics       *observability.Metrics
	logger        *log.Logger
	stats         counters
}

// NewLive creates a new live runner.
func NewLive(opts LiveOptions) *Live {
	l := &Live{
		stream:        opts.Stream,
		pricer:        opts.Pricer,
		programs:      opts.Programs,
		workers:       opts.Workers,
		queueSize:     opts.QueueSize,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	if l.workers <= 0 {
		l.workers = 8
	}
	if l.queueSize <= 0 {
		l.queueSize = 1024
	}
	dedupe := opts.DedupeSize
	if dedupe <= 0 {
		dedupe = 10000
	}
	l.seen = newRecentSet(dedupe)
	if l.retryAttempts <= 0 {
		l.retryAttempts = defaultRetryAttempts
	}
	if l.retryDelay <= 0 {
		l.retryDelay = defaultRetryDelay
	}
	if l.metrics == nil {
		l.metrics = observability.DefaultMetrics
	}
	if l.logger == nil {
		l.logger = log.Default()
	}
	return l
}

// Run subscribes to every program and prices notified transactions until ctx
// is cancelled or all subscriptions end. The returned Result is never nil.
func (l *Live) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	if len(l.programs) == 0 {
		return l.stats.result(start), errors.New("no programs to watch")
	}

	// One subscription per program: some providers accept a single mention.
	var subs []<-chan solana.LogNotification
	for _, program := range l.programs {
		ch, err := l.stream.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			return l.stats.result(start), fmt.Errorf("subscribe %s: %w", program, err)
		}
		subs = append(subs, ch)
		l.logger.Printf("subscribed to program %s", program)
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan string, l.queueSize)

	var readers sync.WaitGroup
	for _, ch := range subs {
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			l.read(gctx, ch, queue)
			return nil
		})
	}
	g.Go(func() error {
		readers.Wait()
		close(queue)
		return nil
	})

	for i := 0; i < l.workers; i++ {
		g.Go(func() error {
			for sig := range queue {
				l.metrics.WorkerQueueDepth.Set(float64(len(queue)))
				l.process(gctx, sig)
			}
			return nil
		})
	}

	_ = g.Wait()

	res := l.stats.result(start)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, ErrStreamClosed
}

func (l *Live) read(ctx context.Context, ch <-chan solana.LogNotification, queue chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			l.accept(ctx, n, queue)
		}
	}
}

func (l *Live) accept(ctx context.Context, n solana.LogNotification, queue chan<- string) {
	l.metrics.NotificationsReceived.Inc()
	l.metrics.UpdateHighestSlot(n.Slot)

	if n.Failed() {
		l.metrics.NotificationsSkipped.WithLabelValues("failed").Inc()
		return
	}
	// A swap routed through several watched programs is notified once per program.
	if !l.seen.add(n.Signature) {
		l.metrics.NotificationsSkipped.WithLabelValues("duplicate").Inc()
		return
	}

	select {
	case queue <- n.Signature:
	case <-ctx.Done():
	}
}

func (l *Live) process(ctx context.Context, signature string) {
	if ctx.Err() != nil {
		return
	}
	l.stats.seen.Add(1)
	l.metrics.TransactionsSeen.WithLabelValues("live").Inc()

	swap, err := priceWithRetry(ctx, l.pricer, signature, l.retryAttempts, l.retryDelay)
	l.stats.record(l.logger, signature, swap, err)
}
