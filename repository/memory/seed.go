package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fastygo/storefront/domain"
)

// Seed loads the same demo users, supervisor links and products as the
// 000002_seed migration so the memory backend boots with usable data.
func Seed(ctx context.Context, s *Store) error {
	users := s.Users()
	byName := make(map[string]*domain.User)
	for _, u := range []*domain.User{
		{Name: "Admin", Password: "admin", Role: domain.RoleAdmin, Active: true},
		{Name: "User1", Password: "user1", Role: domain.RoleUser, Active: true},
		{Name: "User2", Password: "user2", Role: domain.RoleUser, Active: true},
		{Name: "Customer1", Password: "customer1", Role: domain.RoleCustomer, Active: true},
	} {
		if err := users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Name, err)
		}
		byName[u.Name] = u
	}

	links := [][2]string{{"User2", "User1"}, {"Customer1", "User1"}, {"User1", "Admin"}}
	for _, link := range links {
		if err := users.SetSupervisor(ctx, byName[link[0]].ID, byName[link[1]].ID); err != nil {
			return fmt.Errorf("seed supervisor of %s: %w", link[0], err)
		}
	}

	products := s.Products()
	for _, p := range []domain.Product{
		{Name: "Learning Go", Price: decimal.RequireFromString("39.90"), StockCount: 12},
		{Name: "Concurrency in Go", Price: decimal.RequireFromString("44.50"), StockCount: 7},
		{Name: "The Go Programming Language", Price: decimal.RequireFromString("49.00"), StockCount: 20},
		{Name: "Designing Data-Intensive Applications", Price: decimal.RequireFromString("54.25"), StockCount: 3},
	} {
		product := p
		if err := products.Save(ctx, &product); err != nil {
			return fmt.Errorf("seed product %s: %w", p.Name, err)
		}
	}
	return nil
}
