package transport

import (
	"github.com/shopspring/decimal"

	"github.com/fastygo/storefront/domain"
)

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type CartLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type AddressRequest struct {
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

func (a AddressRequest) ToDomain() domain.Address {
	return domain.Address{
		Street:     a.Street,
		PostalCode: a.PostalCode,
		City:       a.City,
		Country:    a.Country,
	}
}

type CreatePurchaseRequest struct {
	Lines      []CartLineRequest `json:"lines"`
	Address    AddressRequest    `json:"delivery_address"`
	ApproverID *int64            `json:"approver_id,omitempty"`
}

type ApproveRequest struct {
	Comment *string `json:"comment,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type UserUpdateRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
	Version  int    `json:"version"`
}

type ProductRequest struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	StockCount int             `json:"stock_count"`
	Version    int             `json:"version"`
}

type MessageRequest struct {
	Message string `json:"message"`
}
