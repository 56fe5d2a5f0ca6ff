package fulfill

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"skindrop/internal/alerting"
	"skindrop/internal/cache"
	"skindrop/internal/catalog"
	"skindrop/internal/feed"
)

// Slippage allowance: the settlement ceiling is 110% of the price shown
// at submission time, tolerating feed drift until the deal settles.
var slippageMultiplier = decimal.NewFromFloat(1.1)

// Params describe one settlement request, for either a referral-gift
// redemption or a paid purchase. Kind prefixes the idempotency token
// ("gift" or "purchase"); Seed is the caller-supplied user id.
type Params struct {
	ProductID string
	Trade     TradeParams
	Kind      string
	Seed      int64
}

// Receipt is the successful outcome of one submission.
type Receipt struct {
	DealID   string
	Item     catalog.Item
	MaxPrice int64
	CustomID string
}

// Submitter builds and submits signed purchase requests, enforcing
// balance sufficiency and the per-product cooldown.
type Submitter struct {
	snapshots *cache.Cache
	balance   feed.BalanceFeed
	deals     feed.DealSubmitter
	cooldowns *CooldownRegistry
	notifier  alerting.Notifier
	logger    zerolog.Logger
}

// NewSubmitter constructs a Submitter. notifier may be nil when operator
// alerting is disabled.
func NewSubmitter(snapshots *cache.Cache, balance feed.BalanceFeed, deals feed.DealSubmitter, cooldowns *CooldownRegistry, notifier alerting.Notifier, logger zerolog.Logger) *Submitter {
	return &Submitter{
		snapshots: snapshots,
		balance:   balance,
		deals:     deals,
		cooldowns: cooldowns,
		notifier:  notifier,
		logger:    logger.With().Str("component", "submitter").Logger(),
	}
}

// Submit performs one settlement attempt. The authoritative price is
// resolved from the current snapshot at submission time; prices captured
// earlier in a flow are never trusted. The cooldown slot for the product
// is held from the check through the upstream call, so two concurrent
// submissions for the same product cannot both pass.
func (s *Submitter) Submit(ctx context.Context, p Params) (Receipt, error) {
	item, ok := s.snapshots.Snapshot().FindItem(p.ProductID)
	if !ok {
		return Receipt{}, ErrProductNotFound
	}

	refPrice := item.PriceLocal
	maxPrice := refPrice.Mul(slippageMultiplier).Ceil().IntPart()

	ticket, err := s.cooldowns.Begin(p.ProductID)
	if err != nil {
		return Receipt{}, err
	}
	defer ticket.Close()

	bal, err := s.balance.FetchBalance(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("check settlement balance: %w", err)
	}
	if bal.Available.LessThan(refPrice) {
		return Receipt{}, &InsufficientBalanceError{Required: refPrice, Available: bal.Available}
	}

	customID := newCustomID(p.Kind, p.Seed)
	req := feed.PurchaseRequest{
		Product:  p.ProductID,
		Partner:  p.Trade.Partner,
		Token:    p.Trade.Token,
		MaxPrice: maxPrice,
		CustomID: customID,
	}

	dealID, err := s.deals.SubmitPurchase(ctx, req)
	if err != nil {
		classified := classifySubmitError(err)
		s.alert(p, customID, classified)
		return Receipt{}, classified
	}

	ticket.Commit()

	s.logger.Info().
		Str("product", p.ProductID).
		Str("deal_id", dealID).
		Str("custom_id", customID).
		Int64("max_price", maxPrice).
		Msg("deal submitted")

	return Receipt{DealID: dealID, Item: item, MaxPrice: maxPrice, CustomID: customID}, nil
}

// newCustomID generates the per-attempt idempotency token. A retry gets
// a fresh token; the upstream deduplicates on its side.
func newCustomID(kind string, seed int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", kind, seed, suffix)
}

// classifySubmitError separates the ambiguous-timeout case from clean
// upstream rejections. An ambiguous outcome must never look like a clean
// failure: the deal may have gone through.
func classifySubmitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrSubmissionAmbiguous, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrSubmissionAmbiguous, err)
	}
	return err
}

func (s *Submitter) alert(p Params, customID string, cause error) {
	if s.notifier == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alert := alerting.Alert{
		Kind:    "submission_failed",
		Subject: p.ProductID,
		Detail:  fmt.Sprintf("custom_id=%s kind=%s: %s", customID, p.Kind, cause),
		At:      time.Now().UTC(),
	}
	if err := s.notifier.Notify(alertCtx, alert); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch submission alert")
	}
}
