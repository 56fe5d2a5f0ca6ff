package feed

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceRecord is one raw row of the upstream pricing feed, prior to any
// validation or normalization.
type PriceRecord struct {
	Name     string          `json:"n"`
	Price    decimal.Decimal `json:"p"`
	Quantity int             `json:"q"`
}

// Balance mirrors the upstream settlement balance, in feed currency units.
type Balance struct {
	Total     decimal.Decimal `json:"total"`
	Locked    decimal.Decimal `json:"locked"`
	Available decimal.Decimal `json:"available"`
}

// PurchaseRequest carries the canonical parameter set of one signed deal
// submission. CustomID is unique per attempt and lets the upstream system
// deduplicate retries.
type PurchaseRequest struct {
	Product  string
	Partner  string
	Token    string
	MaxPrice int64
	CustomID string
}

// PriceFeed retrieves the raw item price list.
type PriceFeed interface {
	FetchPrices(ctx context.Context) ([]PriceRecord, error)
}

// BalanceFeed retrieves the current settlement balance.
type BalanceFeed interface {
	FetchBalance(ctx context.Context) (Balance, error)
}

// DealSubmitter submits one signed purchase and returns the upstream
// deal identifier.
type DealSubmitter interface {
	SubmitPurchase(ctx context.Context, req PurchaseRequest) (string, error)
}
