package transport

import (
	"encoding/json"
	"time"

	"github.com/fastygo/storefront/domain"
)

// Envelope is the standard API response wrapper used for both success and error payloads.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

// String returns the JSON representation (best-effort) for logging purposes.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// LockResponse is one entry of the locked-objects ledger.
type LockResponse struct {
	Type     string    `json:"type"`
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	UserName string    `json:"user_name"`
	LockedAt time.Time `json:"locked_at"`
}

// PurchaseResponse adds the display amount to a purchase.
type PurchaseResponse struct {
	*domain.Purchase
	DisplayTotal string `json:"display_total"`
}

func NewPurchaseResponse(p *domain.Purchase) PurchaseResponse {
	return PurchaseResponse{Purchase: p, DisplayTotal: domain.FormatAmount(p.Total)}
}

func NewPurchaseResponses(purchases []domain.Purchase) []PurchaseResponse {
	out := make([]PurchaseResponse, 0, len(purchases))
	for i := range purchases {
		out = append(out, NewPurchaseResponse(&purchases[i]))
	}
	return out
}
