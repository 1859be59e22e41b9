package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	goRedis "github.com/redis/go-redis/v9"
)

// Broker is one connection to the pub/sub server.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the server has confirmed the subscription.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription delivers raw messages from a subscribed channel.
type Subscription interface {
	ReceiveMessage(ctx context.Context) ([]byte, error)
	Close() error
}

type redisBroker struct {
	client *goRedis.Client
}

// NewRedisBroker adapts a go-redis client to the Broker interface.
func NewRedisBroker(client *goRedis.Client) Broker {
	return &redisBroker{client: client}
}

func (b *redisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *redisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}
	return &redisSubscription{ps: ps}, nil
}

func (b *redisBroker) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps *goRedis.PubSub
}

func (s *redisSubscription) ReceiveMessage(ctx context.Context) ([]byte, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}

// IsConnectionError reports whether err means the broker could not be reached
// or the connection dropped. Server replies such as NOAUTH are not connectivity
// faults.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goRedis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
