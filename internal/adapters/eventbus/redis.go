// Package eventbus mirrors stream status notifications onto Redis pub/sub
// so that other services can follow the relay without a WebSocket.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/StreamRelay/internal/config"
	"github.com/dkeye/StreamRelay/internal/core"
	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/dkeye/StreamRelay/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const publishTimeout = 2 * time.Second

// publisher is satisfied by *redis.Client.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type message struct {
	path  domain.StreamPath
	frame core.Frame
}

// RedisBus publishes from a single worker so per-path order survives export.
// Export never blocks the dispatcher: a full queue drops the frame.
type RedisBus struct {
	pub     publisher
	channel string
	metrics *metrics.Metrics
	closer  func() error

	mu     sync.RWMutex
	closed bool
	queue  chan message
	wg     conc.WaitGroup
}

// NewRedisBus connects and pings before returning.
func NewRedisBus(ctx context.Context, cfg config.RedisConfig, m *metrics.Metrics) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	b := newBus(client, cfg.Channel, cfg.Queue, m)
	b.closer = client.Close
	log.Info().Str("module", "eventbus").Str("addr", cfg.Address).Str("channel", cfg.Channel).Msg("redis export enabled")
	return b, nil
}

func newBus(pub publisher, channel string, queue int, m *metrics.Metrics) *RedisBus {
	if queue <= 0 {
		queue = 1
	}
	b := &RedisBus{
		pub:     pub,
		channel: channel,
		metrics: m,
		queue:   make(chan message, queue),
	}
	b.wg.Go(b.run)
	return b
}

func (b *RedisBus) Export(path domain.StreamPath, frame core.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- message{path: path, frame: frame}:
	default:
		if b.metrics != nil {
			b.metrics.ExportDropped.Inc()
		}
		log.Warn().Str("module", "eventbus").Str("path", string(path)).Msg("export queue full, notification dropped")
	}
}

func (b *RedisBus) run() {
	for msg := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := b.pub.Publish(ctx, b.channel, []byte(msg.frame)).Err()
		cancel()
		if err != nil {
			if b.metrics != nil {
				b.metrics.ExportDropped.Inc()
			}
			log.Error().Err(err).Str("module", "eventbus").Str("path", string(msg.path)).Msg("redis publish failed")
		}
	}
}

// Close flushes queued notifications and closes the client. Safe to call twice.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	if b.closer != nil {
		return b.closer()
	}
	return nil
}
