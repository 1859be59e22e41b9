// Package eventbus delivers domain events to in-process listeners and, through
// the relay, to listeners on other nodes.
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/metrics"
)

// DefaultWorkers is the size of the listener worker pool.
const DefaultWorkers = 5

// Listener receives events posted on this node. Implementations must be
// comparable, so pointer receivers are the norm.
type Listener interface {
	OnEvent(event domain.Event)
}

type funcListener struct {
	fn func(domain.Event)
}

func (l *funcListener) OnEvent(event domain.Event) { l.fn(event) }

// ListenerFunc wraps fn in a Listener. Each call returns a distinct listener.
func ListenerFunc(fn func(domain.Event)) Listener {
	return &funcListener{fn: fn}
}

// Dispatcher fans events out to registered listeners on a fixed worker pool.
type Dispatcher struct {
	mu        sync.Mutex
	listeners map[Listener]struct{}
	closed    bool

	queue  *taskQueue
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewDispatcher starts workers goroutines that run listener callbacks.
func NewDispatcher(workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		listeners: make(map[Listener]struct{}),
		queue:     newTaskQueue(),
		logger:    logger.With(zap.String("component", "dispatcher")),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		task, ok := d.queue.pop()
		if !ok {
			return
		}
		task()
	}
}

// Register adds listener. Registering the same listener twice is logged and ignored.
func (d *Dispatcher) Register(listener Listener) {
	if listener == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.listeners[listener]; ok {
		d.logger.Warn("listener already registered")
		return
	}
	d.listeners[listener] = struct{}{}
	metrics.ListenersRegistered.Set(float64(len(d.listeners)))
}

// Unregister removes listener if present.
func (d *Dispatcher) Unregister(listener Listener) {
	if listener == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.listeners[listener]; !ok {
		return
	}
	delete(d.listeners, listener)
	metrics.ListenersRegistered.Set(float64(len(d.listeners)))
}

// Registered reports whether listener is currently registered.
func (d *Dispatcher) Registered(listener Listener) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.listeners[listener]
	return ok
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Post queues one delivery per listener registered at the time of the call and
// returns without waiting for them. Listeners registered afterwards do not see
// the event.
func (d *Dispatcher) Post(event domain.Event) {
	if event == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("dispatcher closed; event dropped", zap.String("event", event.EventName()))
		return
	}
	recipients := make([]Listener, 0, len(d.listeners))
	for l := range d.listeners {
		recipients = append(recipients, l)
	}
	d.mu.Unlock()

	metrics.EventsPosted.WithLabelValues(event.EventName()).Inc()
	d.logger.Debug("posting event",
		zap.String("event", event.EventName()),
		zap.Int("recipients", len(recipients)),
	)

	dropped := 0
	for _, l := range recipients {
		listener := l
		if !d.queue.push(func() { d.deliver(listener, event) }) {
			dropped++
		}
	}
	if dropped > 0 {
		metrics.EventsDropped.WithLabelValues("dispatcher_closed").Add(float64(dropped))
		d.logger.Warn("dispatcher closed during post; event dropped",
			zap.String("event", event.EventName()),
			zap.Int("dropped", dropped),
		)
	}
}

func (d *Dispatcher) deliver(listener Listener, event domain.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ListenerPanics.Inc()
			d.logger.Error("listener panicked",
				zap.String("event", event.EventName()),
				zap.Any("panic", rec),
			)
		}
	}()
	listener.OnEvent(event)
	metrics.ListenerDeliveries.Inc()
}

// Close stops accepting events, runs everything already queued and stops the
// workers. It returns ctx.Err() if the queue does not drain in time.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.queue.close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out", zap.Int("pending", d.queue.len()))
		return ctx.Err()
	}
}

// Scope groups registrations made on behalf of one session so they can be
// dropped together.
type Scope struct {
	dispatcher *Dispatcher

	mu        sync.Mutex
	listeners map[Listener]struct{}
	closed    bool
}

// NewScope returns an empty registration scope.
func (d *Dispatcher) NewScope() *Scope {
	return &Scope{dispatcher: d, listeners: make(map[Listener]struct{})}
}

// Register adds listener to the dispatcher and tracks it in the scope. It is
// ignored once the scope is closed.
func (s *Scope) Register(listener Listener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.listeners[listener] = struct{}{}
	s.dispatcher.Register(listener)
}

// Unregister removes listener from the dispatcher and the scope.
func (s *Scope) Unregister(listener Listener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[listener]; !ok {
		return
	}
	delete(s.listeners, listener)
	s.dispatcher.Unregister(listener)
}

// Close unregisters every listener added through the scope.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for l := range s.listeners {
		s.dispatcher.Unregister(l)
	}
	s.listeners = nil
}
