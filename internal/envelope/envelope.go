// Package envelope encodes domain events for transit between nodes.
//
// The wire format carries a "@class" discriminator on both the envelope and the
// nested event so a receiver can rebuild the concrete event type:
//
//	{"@class":"EventEnvelope","nodeId":"node-1","event":{"@class":"LockingEvent",...}}
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fastygo/storefront/domain"
)

// Class is the discriminator written for the envelope itself.
const Class = "EventEnvelope"

const classKey = "@class"

var (
	// ErrMalformed is returned for payloads that cannot be decoded.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknownEvent is returned for event discriminators with no registered type.
	ErrUnknownEvent = errors.New("unknown event type")
)

// Envelope is a domain event tagged with the node that produced it.
type Envelope struct {
	NodeID string
	Event  domain.Event
}

type decodeFunc func(raw json.RawMessage) (domain.Event, error)

var (
	mu       sync.RWMutex
	registry = map[string]decodeFunc{}
)

func init() {
	Register[domain.LockingEvent](domain.EventLocking)
	Register[domain.MessageEvent](domain.EventMessage)
	Register[domain.BooksChangedEvent](domain.EventBooksChanged)
	Register[domain.CategoriesUpdatedEvent](domain.EventCategoriesUpdated)
	Register[domain.UserUpdatedEvent](domain.EventUserUpdated)
	Register[domain.ShutdownEvent](domain.EventShutdown)
	Register[domain.PurchaseSavedEvent](domain.EventPurchaseSaved)
	Register[domain.PurchaseStatusChangedEvent](domain.EventPurchaseStatusChanged)
}

// Register adds T to the closed set of events that can cross node boundaries.
func Register[T domain.Event](name string) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = func(raw json.RawMessage) (domain.Event, error) {
		var ev T
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
}

func lookup(name string) (decodeFunc, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

type wireEnvelope struct {
	Class  string          `json:"@class"`
	NodeID string          `json:"nodeId"`
	Event  json.RawMessage `json:"event"`
}

// Encode serializes the event wrapped with nodeID.
func Encode(nodeID string, event domain.Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("encode envelope: %w", domain.ErrInvalidPayload)
	}
	name := event.EventName()
	if _, ok := lookup(name); !ok {
		return nil, fmt.Errorf("encode %s: %w", name, ErrUnknownEvent)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: event is not an object: %w", name, err)
	}
	tag, _ := json.Marshal(name)
	fields[classKey] = tag

	tagged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	return json.Marshal(wireEnvelope{
		Class:  Class,
		NodeID: nodeID,
		Event:  tagged,
	})
}

// Decode rebuilds an envelope and its concrete event.
func Decode(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Class != Class {
		return Envelope{}, fmt.Errorf("%w: unexpected class %q", ErrMalformed, wire.Class)
	}
	if len(wire.Event) == 0 || string(wire.Event) == "null" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}

	var head struct {
		Class string `json:"@class"`
	}
	if err := json.Unmarshal(wire.Event, &head); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	decode, ok := lookup(head.Class)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Class)
	}
	event, err := decode(wire.Event)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %v", ErrMalformed, head.Class, err)
	}

	return Envelope{NodeID: wire.NodeID, Event: event}, nil
}
