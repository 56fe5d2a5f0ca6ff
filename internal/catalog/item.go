package catalog

import (
	"hash/fnv"

	"github.com/shopspring/decimal"
)

// Item is one priced catalog entry derived from the upstream feed.
//
// ProductID is the stable upstream name and the only key ever used when
// submitting a deal. DisplayID is a derived hash kept purely for UI
// correlation; collisions are tolerated and must never route a purchase.
type Item struct {
	ProductID  string          `json:"product_id"`
	DisplayID  int64           `json:"id"`
	Name       string          `json:"name"`
	PriceLocal decimal.Decimal `json:"price_rub"`
	PriceStars int64           `json:"price_stars"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
	ImageURL   string          `json:"image"`
	Quantity   int             `json:"quantity"`
}

const displayIDSpace = 1_000_000_000

// DisplayID derives the non-stable numeric UI id from an item name.
func DisplayID(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64() % displayIDSpace)
}
