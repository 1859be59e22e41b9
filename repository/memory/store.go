// Package memory provides in-process repositories. They back the use-case tests
// and a database-less development mode.
package memory

import (
	"sync"
)

// Store holds every entity behind one mutex so cross-entity operations such as
// purchase decisions stay atomic.
type Store struct {
	mu sync.RWMutex

	users       map[int64]*userRecord
	supervisors map[int64]int64
	products    map[int64]*productRecord
	purchases   map[int64]*purchaseRecord

	nextUserID     int64
	nextProductID  int64
	nextPurchaseID int64
	nextLineID     int64
}

func NewStore() *Store {
	return &Store{
		users:       map[int64]*userRecord{},
		supervisors: map[int64]int64{},
		products:    map[int64]*productRecord{},
		purchases:   map[int64]*purchaseRecord{},
	}
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{store: s} }

// Products returns the product repository view of the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{store: s} }

// Purchases returns the purchase repository view of the store.
func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{store: s} }
