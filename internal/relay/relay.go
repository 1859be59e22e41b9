// Package relay makes events posted on one node visible on every other node
// sharing a Redis pub/sub channel.
//
// The relay starts CONNECTED. Any connectivity fault while publishing or
// subscribing switches it to LOCAL_MODE, in which publishing is a no-op. There is
// no automatic way back: only ResetLocalMode or a restart clears the flag.
package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/envelope"
	"github.com/fastygo/storefront/internal/metrics"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "eventbus_channel"

// Handler receives decoded envelopes on the subscriber goroutine.
type Handler func(envelope.Envelope)

// DeadLetterSink keeps payloads that could not be decoded.
type DeadLetterSink interface {
	Put(channel string, payload []byte, cause error) error
}

// Relay publishes local events and relays remote ones through a broker. The
// publisher and subscriber use separate connections with separate lifecycles.
type Relay struct {
	publisher  Broker
	subscriber Broker
	channel    string
	logger     *zap.Logger
	deadLetter DeadLetterSink

	localMode atomic.Bool

	pubOnce sync.Once
	pubErr  error

	mu      sync.Mutex
	started bool
	stopped bool
	sub     Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option customises a Relay.
type Option func(*Relay)

// WithDeadLetter records undecodable payloads in sink before they are dropped.
func WithDeadLetter(sink DeadLetterSink) Option {
	return func(r *Relay) { r.deadLetter = sink }
}

// New builds a relay over two broker connections.
func New(publisher, subscriber Broker, channel string, logger *zap.Logger, opts ...Option) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		publisher:  publisher,
		subscriber: subscriber,
		channel:    channel,
		logger:     logger.With(zap.String("component", "relay"), zap.String("channel", channel)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedis builds a relay over two go-redis clients.
func NewRedis(publisher, subscriber *goRedis.Client, channel string, logger *zap.Logger, opts ...Option) *Relay {
	return New(NewRedisBroker(publisher), NewRedisBroker(subscriber), channel, logger, opts...)
}

// LocalMode reports whether cross-node relaying is disabled.
func (r *Relay) LocalMode() bool {
	return r.localMode.Load()
}

// ResetLocalMode clears the local-mode flag so publishing is attempted again.
// It does not restart a subscriber that has already exited.
func (r *Relay) ResetLocalMode() {
	if r.localMode.CompareAndSwap(true, false) {
		metrics.RelayLocalMode.Set(0)
		r.logger.Info("local mode cleared; publishing re-enabled")
	}
}

// PublishEvent sends the event tagged with nodeID. It never reports failure to
// the caller: connectivity faults switch the relay to local mode, encoding
// faults are logged.
func (r *Relay) PublishEvent(ctx context.Context, nodeID string, event domain.Event) {
	if r.localMode.Load() {
		r.logger.Debug("local mode enabled; event not published", zap.Any("event", event))
		return
	}

	payload, err := envelope.Encode(nodeID, event)
	if err != nil {
		r.logger.Error("error serializing event", zap.Error(err))
		return
	}

	if err := r.publisher.Publish(ctx, r.channel, payload); err != nil {
		if IsConnectionError(err) {
			r.enterLocalMode("redis is unavailable; falling back to local mode", err)
			return
		}
		r.logger.Error("error publishing event", zap.Error(err))
		return
	}

	metrics.EventsRelayed.WithLabelValues("published").Inc()
	r.logger.Debug("published event", zap.ByteString("message", payload))
}

// StartSubscriber runs the subscribe loop on a dedicated goroutine and hands
// every decoded envelope to handler. Calling it more than once has no effect.
func (r *Relay) StartSubscriber(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		r.logger.Warn("subscriber already started or stopped")
		return
	}
	r.started = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, handler)
}

func (r *Relay) run(ctx context.Context, handler Handler) {
	defer close(r.done)

	sub, err := r.subscriber.Subscribe(ctx, r.channel)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if IsConnectionError(err) {
			r.enterLocalMode("redis is unavailable for subscription; running in local-only mode", err)
			return
		}
		r.logger.Error("error in redis subscription", zap.Error(err))
		return
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		sub.Close()
		return
	}
	r.sub = sub
	r.mu.Unlock()

	r.logger.Info("subscriber started")
	for {
		payload, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, goRedis.ErrClosed) {
				return
			}
			if IsConnectionError(err) {
				r.enterLocalMode("redis subscription lost; running in local-only mode", err)
				return
			}
			r.logger.Error("error in redis subscription", zap.Error(err))
			return
		}
		r.deliver(payload, handler)
	}
}

func (r *Relay) deliver(payload []byte, handler Handler) {
	env, err := envelope.Decode(payload)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("decode").Inc()
		r.logger.Error("error deserializing event message", zap.Error(err), zap.ByteString("message", payload))
		if r.deadLetter != nil {
			if dlErr := r.deadLetter.Put(r.channel, payload, err); dlErr != nil {
				r.logger.Warn("failed to record dead letter", zap.Error(dlErr))
			}
		}
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			metrics.EventsDropped.WithLabelValues("handler").Inc()
			r.logger.Error("unexpected error in message handler", zap.Any("panic", rec))
		}
	}()
	metrics.EventsRelayed.WithLabelValues("received").Inc()
	handler(env)
}

// StopSubscriber closes the subscriber connection and waits for the loop to
// exit. It is safe to call more than once.
func (r *Relay) StopSubscriber() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	sub, cancel, done := r.sub, r.cancel, r.done
	r.sub = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var result error
	if sub != nil {
		if err := sub.Close(); err != nil && !errors.Is(err, goRedis.ErrClosed) {
			result = errors.Join(result, err)
		}
	}
	if err := r.subscriber.Close(); err != nil && !errors.Is(err, goRedis.ErrClosed) {
		result = errors.Join(result, err)
	}
	if done != nil {
		<-done
	}
	return result
}

// ClosePublisher releases the publisher connection. It is safe to call more
// than once.
func (r *Relay) ClosePublisher() error {
	r.pubOnce.Do(func() {
		if err := r.publisher.Close(); err != nil && !errors.Is(err, goRedis.ErrClosed) {
			r.pubErr = err
		}
	})
	return r.pubErr
}

func (r *Relay) enterLocalMode(msg string, err error) {
	if r.localMode.CompareAndSwap(false, true) {
		metrics.RelayLocalMode.Set(1)
		r.logger.Warn(msg, zap.Error(err))
	}
}
