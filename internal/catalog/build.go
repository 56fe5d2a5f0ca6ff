package catalog

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"skindrop/internal/feed"
)

var decThousand = decimal.NewFromInt(1000)

// Builder normalizes raw feed records into catalog items. All derived
// fields are computed here, once, at ingestion; nothing downstream may
// annotate a published item.
type Builder struct {
	images   *ImageResolver
	starRate decimal.Decimal
	logger   zerolog.Logger
}

// NewBuilder constructs a Builder with the configured star conversion rate.
func NewBuilder(images *ImageResolver, starRate int64, logger zerolog.Logger) *Builder {
	return &Builder{
		images:   images,
		starRate: decimal.NewFromInt(starRate),
		logger:   logger.With().Str("component", "catalog_builder").Logger(),
	}
}

// Build validates and normalizes records, preserving upstream feed order.
// Records with a missing name or non-positive price are dropped and never
// reach the snapshot.
func (b *Builder) Build(records []feed.PriceRecord) []Item {
	items := make([]Item, 0, len(records))
	skipped := 0

	for _, rec := range records {
		if rec.Name == "" || !rec.Price.IsPositive() {
			skipped++
			continue
		}

		items = append(items, Item{
			ProductID:  rec.Name,
			DisplayID:  DisplayID(rec.Name),
			Name:       rec.Name,
			PriceLocal: rec.Price,
			PriceStars: starPrice(rec.Price, b.starRate),
			PriceUSD:   rec.Price.Div(decThousand).Round(2),
			ImageURL:   b.images.Resolve(rec.Name),
			Quantity:   rec.Quantity,
		})
	}

	if skipped > 0 {
		b.logger.Debug().Int("skipped", skipped).Int("kept", len(items)).Msg("dropped invalid feed records")
	}
	return items
}

// starPrice converts a local-currency price into integer stars:
// max(1, floor(price / 1000 * rate)).
func starPrice(price, rate decimal.Decimal) int64 {
	stars := price.Mul(rate).Div(decThousand).IntPart()
	if stars < 1 {
		return 1
	}
	return stars
}
