package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"skindrop/internal/catalog"
	"skindrop/internal/feed"
	"skindrop/internal/fulfill"
	"skindrop/internal/ledger"
	"skindrop/internal/referral"
)

const (
	defaultPageSize = 20
	minPageSize     = 5
	maxPageSize     = 100
)

// CatalogPage is a derived, paginated view over the current snapshot.
// It is always a fresh object; cached items are never annotated on the
// read path.
type CatalogPage struct {
	Items      []catalog.Item `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Pages      int            `json:"pages"`
	CapturedAt *time.Time     `json:"cache_timestamp"`
}

// QueryCatalog pages through the current snapshot with optional substring
// search and an affordable-only filter against the available balance.
func (s *Service) QueryCatalog(page, pageSize int, search string, affordableOnly bool) CatalogPage {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	snap := s.snapshots.Snapshot()

	filtered := snap.Items
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle != "" || affordableOnly {
		available := snap.Available()
		filtered = make([]catalog.Item, 0, len(snap.Items))
		for _, item := range snap.Items {
			if needle != "" && !strings.Contains(strings.ToLower(item.Name), needle) {
				continue
			}
			if affordableOnly && item.PriceLocal.GreaterThan(available) {
				continue
			}
			filtered = append(filtered, item)
		}
	}

	total := len(filtered)
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	window := make([]catalog.Item, end-start)
	copy(window, filtered[start:end])

	return CatalogPage{
		Items:      window,
		Total:      total,
		Page:       page,
		Pages:      pages,
		CapturedAt: snap.CapturedAt,
	}
}

// GetBalance returns the settlement balance from the current snapshot,
// or zeroes before the first balance refresh.
func (s *Service) GetBalance() feed.Balance {
	snap := s.snapshots.Snapshot()
	if snap.Balance == nil {
		return feed.Balance{}
	}
	return *snap.Balance
}

// GetFreshPrice resolves the authoritative local-currency price for a
// product from the current snapshot.
func (s *Service) GetFreshPrice(productID string) (decimal.Decimal, bool) {
	item, ok := s.snapshots.Snapshot().FindItem(productID)
	if !ok {
		return decimal.Decimal{}, false
	}
	return item.PriceLocal, true
}

// SubmitPurchase fulfils a paid invoice for a user: their bound trade
// destination is parsed and the deal is submitted with a purchase-kind
// idempotency token.
func (s *Service) SubmitPurchase(ctx context.Context, userID int64, productID string) (fulfill.Receipt, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fulfill.Receipt{}, err
	}
	if user.TradeLink == nil || *user.TradeLink == "" {
		return fulfill.Receipt{}, referral.ErrTradeLinkNotSet
	}

	trade, err := fulfill.ParseTradeLink(*user.TradeLink)
	if err != nil {
		return fulfill.Receipt{}, err
	}

	return s.submitter.Submit(ctx, fulfill.Params{
		ProductID: productID,
		Trade:     trade,
		Kind:      "purchase",
		Seed:      userID,
	})
}

// RegisterUser creates the user and records the referral, if any.
func (s *Service) RegisterUser(ctx context.Context, userID int64, referrerID *int64) (ledger.User, error) {
	return s.machine.Register(ctx, userID, referrerID)
}

// AttemptGiftClaim runs the gift claim state machine for one user.
func (s *Service) AttemptGiftClaim(ctx context.Context, userID int64) (referral.ClaimResult, error) {
	return s.machine.AttemptClaim(ctx, userID)
}

// AcknowledgeGift resets the one-shot gift flag after user confirmation.
func (s *Service) AcknowledgeGift(ctx context.Context, userID int64) error {
	return s.machine.AcknowledgeGift(ctx, userID)
}

// BindTradeLink validates and persists a user's trade destination. The
// link must parse before anything is stored.
func (s *Service) BindTradeLink(ctx context.Context, userID int64, profile, tradeLink string) error {
	if _, err := fulfill.ParseTradeLink(tradeLink); err != nil {
		return err
	}
	return s.store.SetTradeDestination(ctx, userID, profile, tradeLink)
}

// Profile builds the storefront read model for one user.
func (s *Service) Profile(ctx context.Context, userID int64) (ledger.Profile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return ledger.Profile{}, err
	}

	items := []string{}
	if user.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(user.ItemsJSON), &items); err != nil {
			s.logger.Warn().Err(err).Int64("user", userID).Msg("malformed items_received json")
			items = []string{}
		}
	}

	return ledger.Profile{
		Referrals:    user.Referrals,
		Items:        items,
		SteamProfile: user.SteamProfile,
		TradeLink:    user.TradeLink,
		HasGift:      user.HasGift,
	}, nil
}
