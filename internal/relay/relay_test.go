package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/envelope"
)

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.Called(ctx, channel, payload).Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	args := m.Called(ctx, channel)
	sub, _ := args.Get(0).(Subscription)
	return sub, args.Error(1)
}

func (m *mockBroker) Close() error {
	return m.Called().Error(0)
}

type fakeBroker struct {
	mu           sync.Mutex
	published    [][]byte
	subscribeErr error
	messages     chan []byte
	closeCalls   int
	subs         []*fakeSubscription
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{messages: make(chan []byte, 16)}
}

func (b *fakeBroker) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, _ string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	sub := &fakeSubscription{messages: b.messages, closed: make(chan struct{})}
	b.subs = append(b.subs, sub)
	return sub, nil
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCalls++
	return nil
}

func (b *fakeBroker) closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCalls
}

type fakeSubscription struct {
	messages chan []byte
	closed   chan struct{}
	once     sync.Once
}

func (s *fakeSubscription) ReceiveMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-s.messages:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-s.closed:
		return nil, goRedis.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type memorySink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *memorySink) Put(_ string, payload []byte, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func encode(t *testing.T, nodeID string, ev domain.Event) []byte {
	t.Helper()
	data, err := envelope.Encode(nodeID, ev)
	require.NoError(t, err)
	return data
}

func receive(t *testing.T, ch <-chan envelope.Envelope) envelope.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return envelope.Envelope{}
	}
}

func TestPublishEventSendsEnvelopeOnChannel(t *testing.T) {
	pub := &mockBroker{}
	var sent []byte
	pub.On("Publish", mock.Anything, "test_channel", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).([]byte) }).
		Return(nil).Once()

	r := New(pub, newFakeBroker(), "test_channel", nil)
	r.PublishEvent(context.Background(), "node1", domain.PurchaseSavedEvent{PurchaseID: 42})

	pub.AssertExpectations(t)
	env, err := envelope.Decode(sent)
	require.NoError(t, err)
	assert.Equal(t, "node1", env.NodeID)
	assert.Equal(t, domain.PurchaseSavedEvent{PurchaseID: 42}, env.Event)
	assert.False(t, r.LocalMode())
}

func TestPublishConnectionFaultSwitchesToLocalMode(t *testing.T) {
	pub := &mockBroker{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errRefused).Once()

	r := New(pub, newFakeBroker(), "", nil)
	assert.NotPanics(t, func() {
		r.PublishEvent(context.Background(), "node1", domain.ShutdownEvent{})
	})
	require.True(t, r.LocalMode())

	r.PublishEvent(context.Background(), "node1", domain.ShutdownEvent{})
	r.PublishEvent(context.Background(), "node1", domain.UserUpdatedEvent{UserID: 1})

	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestResetLocalModeReenablesPublishing(t *testing.T) {
	pub := &mockBroker{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(io.EOF).Once()
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	r := New(pub, newFakeBroker(), "", nil)
	r.PublishEvent(context.Background(), "node1", domain.ShutdownEvent{})
	require.True(t, r.LocalMode())

	r.ResetLocalMode()
	assert.False(t, r.LocalMode())
	r.PublishEvent(context.Background(), "node1", domain.ShutdownEvent{})
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestPublishServerErrorKeepsRelayConnected(t *testing.T) {
	pub := &mockBroker{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("NOAUTH Authentication required"))

	r := New(pub, newFakeBroker(), "", nil)
	r.PublishEvent(context.Background(), "node1", domain.ShutdownEvent{})
	r.PublishEvent(context.Background(), "node1", domain.ShutdownEvent{})

	assert.False(t, r.LocalMode())
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestPublishNilEventIsDropped(t *testing.T) {
	pub := &mockBroker{}
	r := New(pub, newFakeBroker(), "", nil)
	r.PublishEvent(context.Background(), "node1", nil)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, r.LocalMode())
}

func TestSubscriberDeliversDecodedEnvelopes(t *testing.T) {
	sub := newFakeBroker()
	r := New(newFakeBroker(), sub, "", nil)
	got := make(chan envelope.Envelope, 4)
	r.StartSubscriber(func(env envelope.Envelope) { got <- env })
	t.Cleanup(func() { _ = r.StopSubscriber() })

	sub.messages <- encode(t, "node2", domain.BooksChangedEvent{ProductID: 5, Change: domain.ChangeSave})

	env := receive(t, got)
	assert.Equal(t, "node2", env.NodeID)
	assert.Equal(t, domain.BooksChangedEvent{ProductID: 5, Change: domain.ChangeSave}, env.Event)
}

func TestSubscriberDropsMalformedMessages(t *testing.T) {
	sub := newFakeBroker()
	sink := &memorySink{}
	r := New(newFakeBroker(), sub, "", nil, WithDeadLetter(sink))
	got := make(chan envelope.Envelope, 4)
	r.StartSubscriber(func(env envelope.Envelope) { got <- env })
	t.Cleanup(func() { _ = r.StopSubscriber() })

	sub.messages <- []byte(`{"@class":"EventEnvelope","nodeId":"n","event":{"@class":"Bogus"}}`)
	sub.messages <- []byte(`not json`)
	sub.messages <- encode(t, "node2", domain.UserUpdatedEvent{UserID: 3})

	env := receive(t, got)
	assert.Equal(t, domain.UserUpdatedEvent{UserID: 3}, env.Event)
	assert.Equal(t, 2, sink.count())
	assert.False(t, r.LocalMode())
}

func TestSubscriberSurvivesPanickingHandler(t *testing.T) {
	sub := newFakeBroker()
	r := New(newFakeBroker(), sub, "", nil)
	got := make(chan envelope.Envelope, 4)
	first := true
	r.StartSubscriber(func(env envelope.Envelope) {
		if first {
			first = false
			panic("listener exploded")
		}
		got <- env
	})
	t.Cleanup(func() { _ = r.StopSubscriber() })

	sub.messages <- encode(t, "node2", domain.UserUpdatedEvent{UserID: 1})
	sub.messages <- encode(t, "node2", domain.UserUpdatedEvent{UserID: 2})

	env := receive(t, got)
	assert.Equal(t, domain.UserUpdatedEvent{UserID: 2}, env.Event)
}

func TestSubscribeConnectionFaultSetsLocalMode(t *testing.T) {
	sub := newFakeBroker()
	sub.subscribeErr = errRefused
	r := New(newFakeBroker(), sub, "", nil)

	r.StartSubscriber(func(envelope.Envelope) { t.Error("handler must not run") })

	require.Eventually(t, r.LocalMode, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.StopSubscriber())
}

func TestDroppedSubscriptionSetsLocalMode(t *testing.T) {
	sub := newFakeBroker()
	r := New(newFakeBroker(), sub, "", nil)
	r.StartSubscriber(func(envelope.Envelope) {})

	close(sub.messages)

	require.Eventually(t, r.LocalMode, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.StopSubscriber())
}

func TestStopSubscriberIsIdempotent(t *testing.T) {
	sub := newFakeBroker()
	r := New(newFakeBroker(), sub, "", nil)
	r.StartSubscriber(func(envelope.Envelope) {})

	require.NoError(t, r.StopSubscriber())
	require.NoError(t, r.StopSubscriber())
	assert.Equal(t, 1, sub.closes())
	assert.False(t, r.LocalMode())
}

func TestStopSubscriberWithoutStart(t *testing.T) {
	sub := newFakeBroker()
	r := New(newFakeBroker(), sub, "", nil)
	require.NoError(t, r.StopSubscriber())
	assert.Equal(t, 1, sub.closes())
}

func TestClosePublisherIsIdempotent(t *testing.T) {
	pub := newFakeBroker()
	r := New(pub, newFakeBroker(), "", nil)

	require.NoError(t, r.ClosePublisher())
	require.NoError(t, r.ClosePublisher())
	assert.Equal(t, 1, pub.closes())
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, IsConnectionError(errRefused))
	assert.True(t, IsConnectionError(io.EOF))
	assert.True(t, IsConnectionError(goRedis.ErrClosed))
	assert.True(t, IsConnectionError(syscall.ECONNRESET))
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(errors.New("WRONGTYPE")))
}
