package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Price and stock are read by the purchase workflow;
// stock is only adjusted when a purchase is approved.
type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	StockCount int             `json:"stock_count"`
	Version    int             `json:"version"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
