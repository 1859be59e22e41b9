package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/storefront/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) OnEvent(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) received() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestListenerObservesEventExactlyOnce(t *testing.T) {
	d := NewDispatcher(3, nil)
	l := &recorder{}

	d.Register(l)
	d.Post(domain.UserUpdatedEvent{UserID: 1})
	require.Eventually(t, func() bool { return len(l.received()) == 1 }, time.Second, 5*time.Millisecond)

	d.Unregister(l)
	d.Post(domain.UserUpdatedEvent{UserID: 2})
	closeDispatcher(t, d)

	assert.Equal(t, []domain.Event{domain.UserUpdatedEvent{UserID: 1}}, l.received())
}

func TestRegisterTwiceDeliversOnce(t *testing.T) {
	d := NewDispatcher(2, nil)
	l := &recorder{}

	d.Register(l)
	d.Register(l)
	assert.Equal(t, 1, d.Len())

	d.Post(domain.ShutdownEvent{})
	closeDispatcher(t, d)

	assert.Len(t, l.received(), 1)
}

func TestUnregisterUnknownListenerIsNoop(t *testing.T) {
	d := NewDispatcher(1, nil)
	defer closeDispatcher(t, d)

	assert.NotPanics(t, func() { d.Unregister(&recorder{}) })
	assert.Equal(t, 0, d.Len())
}

func TestEveryListenerReceivesEachEvent(t *testing.T) {
	d := NewDispatcher(DefaultWorkers, nil)
	listeners := make([]*recorder, 10)
	for i := range listeners {
		listeners[i] = &recorder{}
		d.Register(listeners[i])
	}

	for i := 0; i < 20; i++ {
		d.Post(domain.PurchaseSavedEvent{PurchaseID: int64(i)})
	}
	closeDispatcher(t, d)

	for _, l := range listeners {
		assert.Len(t, l.received(), 20)
	}
}

func TestPostDoesNotWaitForListeners(t *testing.T) {
	d := NewDispatcher(1, nil)
	release := make(chan struct{})
	var calls atomic.Int32
	d.Register(ListenerFunc(func(domain.Event) {
		<-release
		calls.Add(1)
	}))

	posted := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Post(domain.ShutdownEvent{})
		}
		close(posted)
	}()

	select {
	case <-posted:
	case <-time.After(time.Second):
		t.Fatal("post blocked on a slow listener")
	}
	close(release)
	closeDispatcher(t, d)
	assert.Equal(t, int32(50), calls.Load())
}

func TestPanickingListenerDoesNotAffectOthers(t *testing.T) {
	d := NewDispatcher(2, nil)
	good := &recorder{}
	d.Register(ListenerFunc(func(domain.Event) { panic("boom") }))
	d.Register(good)

	d.Post(domain.MessageEvent{Message: "hi"})
	d.Post(domain.MessageEvent{Message: "again"})
	closeDispatcher(t, d)

	assert.Len(t, good.received(), 2)
}

func TestConcurrentRegisterAndPost(t *testing.T) {
	d := NewDispatcher(4, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := &recorder{}
			for j := 0; j < 50; j++ {
				d.Register(l)
				d.Post(domain.ShutdownEvent{})
				d.Unregister(l)
			}
		}()
	}
	wg.Wait()
	closeDispatcher(t, d)
	assert.Equal(t, 0, d.Len())
}

func TestPostAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(1, nil)
	l := &recorder{}
	d.Register(l)
	closeDispatcher(t, d)

	d.Post(domain.ShutdownEvent{})
	assert.Empty(t, l.received())
	require.NoError(t, d.Close(context.Background()))
}

func TestPostWarnsWhenQueueClosesUnderIt(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDispatcher(1, zap.New(core))
	first, second := &recorder{}, &recorder{}
	d.Register(first)
	d.Register(second)

	// Close has shut the queue but not yet marked the dispatcher closed.
	d.queue.close()
	d.Post(domain.ShutdownEvent{})

	assert.Empty(t, first.received())
	assert.Empty(t, second.received())
	entries := logs.FilterMessage("dispatcher closed during post; event dropped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["dropped"])
	require.NoError(t, d.Close(context.Background()))
}

func TestScopeCloseUnregistersItsListeners(t *testing.T) {
	d := NewDispatcher(2, nil)
	outside := &recorder{}
	d.Register(outside)

	scope := d.NewScope()
	a, b := &recorder{}, &recorder{}
	scope.Register(a)
	scope.Register(b)
	require.Equal(t, 3, d.Len())

	scope.Close()
	assert.False(t, d.Registered(a))
	assert.False(t, d.Registered(b))
	assert.True(t, d.Registered(outside))

	scope.Register(&recorder{})
	assert.Equal(t, 1, d.Len())

	d.Post(domain.ShutdownEvent{})
	closeDispatcher(t, d)
	assert.Empty(t, a.received())
	assert.Len(t, outside.received(), 1)
}
