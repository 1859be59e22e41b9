package eventbus

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/envelope"
	"github.com/fastygo/storefront/internal/relay"
)

// Relay is the cross-node side of the bus.
type Relay interface {
	PublishEvent(ctx context.Context, nodeID string, event domain.Event)
	StartSubscriber(handler relay.Handler)
	StopSubscriber() error
	ClosePublisher() error
	LocalMode() bool
}

// Bus posts events to local listeners and relays them to the other nodes.
// Events received from other nodes are delivered locally only.
type Bus struct {
	nodeID     string
	dispatcher *Dispatcher
	relay      Relay
	logger     *zap.Logger
}

// New composes a bus. relay may be nil for a single-node setup.
func New(nodeID string, dispatcher *Dispatcher, r Relay, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(DefaultWorkers, logger)
	}
	return &Bus{
		nodeID:     nodeID,
		dispatcher: dispatcher,
		relay:      r,
		logger:     logger.With(zap.String("component", "bus")),
	}
}

// NodeID identifies this node on the wire.
func (b *Bus) NodeID() string { return b.nodeID }

// Dispatcher exposes the local dispatcher for listener registration.
func (b *Bus) Dispatcher() *Dispatcher { return b.dispatcher }

// Register adds a local listener.
func (b *Bus) Register(listener Listener) { b.dispatcher.Register(listener) }

// Unregister removes a local listener.
func (b *Bus) Unregister(listener Listener) { b.dispatcher.Unregister(listener) }

// NewScope returns a registration scope on the local dispatcher.
func (b *Bus) NewScope() *Scope { return b.dispatcher.NewScope() }

// LocalMode reports whether cross-node relaying is disabled.
func (b *Bus) LocalMode() bool {
	return b.relay == nil || b.relay.LocalMode()
}

// Post delivers event locally and publishes it to the other nodes.
func (b *Bus) Post(ctx context.Context, event domain.Event) {
	if event == nil {
		b.logger.Warn("nil event ignored")
		return
	}
	b.dispatcher.Post(event)
	if b.relay != nil {
		b.relay.PublishEvent(ctx, b.nodeID, event)
	}
}

// HandleEnvelope is the relay handler. Envelopes this node published itself
// have already been delivered locally and are skipped.
func (b *Bus) HandleEnvelope(env envelope.Envelope) {
	if env.NodeID == b.nodeID {
		return
	}
	b.logger.Debug("remote event received",
		zap.String("origin", env.NodeID),
		zap.String("event", env.Event.EventName()),
	)
	b.dispatcher.Post(env.Event)
}

// Start begins receiving events from other nodes.
func (b *Bus) Start() {
	if b.relay == nil {
		return
	}
	b.relay.StartSubscriber(b.HandleEnvelope)
}

// Close stops the subscriber, releases the publisher and drains the dispatcher.
func (b *Bus) Close(ctx context.Context) error {
	var result error
	if b.relay != nil {
		if err := b.relay.StopSubscriber(); err != nil {
			result = errors.Join(result, err)
		}
		if err := b.relay.ClosePublisher(); err != nil {
			result = errors.Join(result, err)
		}
	}
	if err := b.dispatcher.Close(ctx); err != nil {
		result = errors.Join(result, err)
	}
	return result
}
