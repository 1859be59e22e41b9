package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus tracks a purchase through the approval workflow.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "PENDING"
	PurchaseCompleted PurchaseStatus = "COMPLETED"
	PurchaseRejected  PurchaseStatus = "REJECTED"
	PurchaseCancelled PurchaseStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted || s == PurchaseRejected || s == PurchaseCancelled
}

// TerminalStatuses lists every decided status.
var TerminalStatuses = []PurchaseStatus{PurchaseCompleted, PurchaseRejected, PurchaseCancelled}

// Address is a delivery address. Purchases hold a copy, never a reference.
type Address struct {
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

func (a Address) String() string {
	return a.Street + ", " + a.PostalCode + " " + a.City + ", " + a.Country
}

// Purchase is a purchase request awaiting or past an approver decision.
type Purchase struct {
	ID              int64           `json:"id"`
	Requester       UserRef         `json:"requester"`
	Approver        *UserRef        `json:"approver,omitempty"`
	Status          PurchaseStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	DecisionReason  *string         `json:"decision_reason,omitempty"`
	DeliveryAddress Address         `json:"delivery_address"`
	Lines           []PurchaseLine  `json:"lines"`
	Total           decimal.Decimal `json:"total_amount"`
}

// TotalAmount sums the stored line totals.
func (p *Purchase) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	if p == nil {
		return total
	}
	for _, line := range p.Lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// Refresh recomputes derived fields before the purchase leaves the domain.
func (p *Purchase) Refresh() {
	if p == nil {
		return
	}
	p.Total = p.TotalAmount()
}

// AssignedTo reports whether userID is the assigned approver.
func (p *Purchase) AssignedTo(userID int64) bool {
	return p != nil && p.Approver != nil && p.Approver.ID == userID
}

// PurchaseLine is a single product line with the unit price captured at creation.
type PurchaseLine struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineTotal is unit price times quantity, unrounded.
func (l PurchaseLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// FormatAmount renders an amount for display with half-up rounding to cents.
// Stored values are never rounded.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// PurchaseHistoryMode selects which purchases a history view lists.
type PurchaseHistoryMode string

const (
	HistoryMyPurchases      PurchaseHistoryMode = "MY_PURCHASES"
	HistoryAll              PurchaseHistoryMode = "ALL"
	HistoryPendingApprovals PurchaseHistoryMode = "PENDING_APPROVALS"
)

// ProductPurchaseStat is the completed quantity purchased for one product.
type ProductPurchaseStat struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
}

// MonthlyPurchaseStat is the completed purchase amount for one YYYY-MM month.
type MonthlyPurchaseStat struct {
	YearMonth   string          `json:"year_month"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
