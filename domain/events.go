package domain

import (
	"context"
	"time"
)

// Event is a domain event distributed through the event bus. EventName is the
// discriminator written to the wire so receivers can rebuild the concrete type.
type Event interface {
	EventName() string
}

// EventPoster accepts events for local delivery and cross-node relay.
type EventPoster interface {
	Post(ctx context.Context, event Event)
}

// Event discriminators.
const (
	EventLocking               = "LockingEvent"
	EventMessage               = "MessageEvent"
	EventBooksChanged          = "BooksChangedEvent"
	EventCategoriesUpdated     = "CategoriesUpdatedEvent"
	EventUserUpdated           = "UserUpdatedEvent"
	EventShutdown              = "ShutdownEvent"
	EventPurchaseSaved         = "PurchaseSavedEvent"
	EventPurchaseStatusChanged = "PurchaseStatusChangedEvent"
)

// Change describes what happened to a catalog entity.
type Change string

const (
	ChangeSave   Change = "SAVE"
	ChangeDelete Change = "DELETE"
)

// LockingEvent reports that an entity was locked or unlocked for editing.
type LockingEvent struct {
	Type     string `json:"type"`
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Locked   bool   `json:"locked"`
}

func (LockingEvent) EventName() string { return EventLocking }

// MessageEvent is an admin broadcast shown to every connected session.
type MessageEvent struct {
	Message   string    `json:"message"`
	TimeStamp time.Time `json:"timeStamp"`
}

func (MessageEvent) EventName() string { return EventMessage }

type BooksChangedEvent struct {
	ProductID int64  `json:"productId"`
	Change    Change `json:"change"`
}

func (BooksChangedEvent) EventName() string { return EventBooksChanged }

type CategoriesUpdatedEvent struct {
	CategoryID int64  `json:"categoryId"`
	Change     Change `json:"change"`
}

func (CategoriesUpdatedEvent) EventName() string { return EventCategoriesUpdated }

type UserUpdatedEvent struct {
	UserID int64 `json:"userId"`
}

func (UserUpdatedEvent) EventName() string { return EventUserUpdated }

// ShutdownEvent tells sessions that the node is going away.
type ShutdownEvent struct{}

func (ShutdownEvent) EventName() string { return EventShutdown }

type PurchaseSavedEvent struct {
	PurchaseID int64 `json:"purchaseId"`
}

func (PurchaseSavedEvent) EventName() string { return EventPurchaseSaved }

type PurchaseStatusChangedEvent struct {
	PurchaseID int64          `json:"purchaseId"`
	Status     PurchaseStatus `json:"status"`
}

func (PurchaseStatusChangedEvent) EventName() string { return EventPurchaseStatusChanged }
