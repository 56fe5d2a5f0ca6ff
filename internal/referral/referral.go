package referral

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"skindrop/internal/alerting"
	"skindrop/internal/cache"
	"skindrop/internal/catalog"
	"skindrop/internal/fulfill"
	"skindrop/internal/ledger"
)

var (
	// ErrAlreadyClaimed rejects a claim from a user whose gift flag is set.
	ErrAlreadyClaimed = errors.New("referral: gift already claimed")
	// ErrNotEligible rejects a claim below the referral threshold.
	ErrNotEligible = errors.New("referral: not enough referrals")
	// ErrTradeLinkNotSet rejects a claim without a bound trade destination.
	ErrTradeLinkNotSet = errors.New("referral: trade link not set")
	// ErrGiftPoolEmpty rejects a claim while the cheap-item pool is empty.
	ErrGiftPoolEmpty = errors.New("referral: no gift items available")
)

// State is the user's position in the gift lifecycle.
type State int

const (
	StateIneligible State = iota
	StateEligible
	StateClaimed
)

func (s State) String() string {
	switch s {
	case StateEligible:
		return "eligible"
	case StateClaimed:
		return "claimed"
	default:
		return "ineligible"
	}
}

// ClaimResult reports a successful redemption.
type ClaimResult struct {
	Item   catalog.Item
	DealID string
}

// Options tune the eligibility rules.
type Options struct {
	Threshold       int
	CheapItemsCount int
}

// Machine tracks referral counts and drives the one-shot gift lifecycle.
type Machine struct {
	opts      Options
	store     ledger.UserStore
	snapshots *cache.Cache
	submitter *fulfill.Submitter
	notifier  alerting.Notifier
	logger    zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewMachine constructs the eligibility state machine. notifier may be
// nil when user notifications are disabled.
func NewMachine(opts Options, store ledger.UserStore, snapshots *cache.Cache, submitter *fulfill.Submitter, notifier alerting.Notifier, logger zerolog.Logger) *Machine {
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	if opts.CheapItemsCount <= 0 {
		opts.CheapItemsCount = 5
	}
	return &Machine{
		opts:      opts,
		store:     store,
		snapshots: snapshots,
		submitter: submitter,
		notifier:  notifier,
		logger:    logger.With().Str("component", "referral").Logger(),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// StateOf derives the lifecycle state from a user row.
func (m *Machine) StateOf(user ledger.User) State {
	switch {
	case user.HasGift:
		return StateClaimed
	case user.Referrals >= m.opts.Threshold:
		return StateEligible
	default:
		return StateIneligible
	}
}

// Register creates the user row if absent and, for a brand-new user with
// a referrer, records the referral. Self-referral is rejected at
// registration and never counted.
func (m *Machine) Register(ctx context.Context, userID int64, referrerID *int64) (ledger.User, error) {
	user, created, err := m.store.CreateUser(ctx, userID)
	if err != nil {
		return ledger.User{}, err
	}

	if created && referrerID != nil {
		if err := m.RecordReferral(ctx, *referrerID, userID); err != nil {
			// Registration stands even when the referral does not.
			m.logger.Warn().Err(err).Int64("referrer", *referrerID).Int64("invited", userID).Msg("referral not counted")
		}
	}

	return user, nil
}

// RecordReferral binds invited to referrer and increments the count.
// The eligibility notification is edge-triggered: it fires exactly when
// the increment lands on the threshold for a user who has not claimed,
// and never again for increments past it.
func (m *Machine) RecordReferral(ctx context.Context, referrerID, invitedID int64) error {
	newCount, counted, err := m.store.AddReferral(ctx, referrerID, invitedID)
	if err != nil {
		return err
	}
	if !counted || newCount != m.opts.Threshold {
		return nil
	}

	referrer, err := m.store.GetUser(ctx, referrerID)
	if err != nil {
		return err
	}
	if referrer.HasGift {
		return nil
	}

	m.logger.Info().Int64("referrer", referrerID).Int("referrals", newCount).Msg("referral threshold crossed")
	m.notifyEligible(referrerID, newCount)
	return nil
}

// AttemptClaim runs the ordered claim preconditions and, when all pass,
// submits a gift redemption. Every denial is typed, has no side effect,
// and leaves the state unchanged, so retrying is always safe. Concurrent
// claims by the same user are serialised; at most one can redeem.
func (m *Machine) AttemptClaim(ctx context.Context, userID int64) (ClaimResult, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return ClaimResult{}, err
	}

	if user.HasGift {
		return ClaimResult{}, ErrAlreadyClaimed
	}
	if user.Referrals < m.opts.Threshold {
		return ClaimResult{}, ErrNotEligible
	}
	if user.TradeLink == nil || *user.TradeLink == "" {
		return ClaimResult{}, ErrTradeLinkNotSet
	}

	trade, err := fulfill.ParseTradeLink(*user.TradeLink)
	if err != nil {
		return ClaimResult{}, err
	}

	pool := m.cheapPool()
	if len(pool) == 0 {
		return ClaimResult{}, ErrGiftPoolEmpty
	}
	gift := pool[rand.Intn(len(pool))]

	receipt, err := m.submitter.Submit(ctx, fulfill.Params{
		ProductID: gift.ProductID,
		Trade:     trade,
		Kind:      "gift",
		Seed:      userID,
	})
	if err != nil {
		return ClaimResult{}, err
	}

	if err := m.store.SetGiftClaimed(ctx, userID, true); err != nil {
		return ClaimResult{}, fmt.Errorf("mark gift claimed: %w", err)
	}
	if err := m.store.RecordGiftItem(ctx, userID, gift.Name); err != nil {
		m.logger.Error().Err(err).Int64("user", userID).Msg("failed to record gift item")
	}

	m.logger.Info().Int64("user", userID).Str("item", gift.Name).Str("deal_id", receipt.DealID).Msg("gift redeemed")
	return ClaimResult{Item: receipt.Item, DealID: receipt.DealID}, nil
}

// AcknowledgeGift resets the gift flag after the user confirms receipt.
// A second gift cycle then requires crossing the threshold again.
func (m *Machine) AcknowledgeGift(ctx context.Context, userID int64) error {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasGift {
		return ErrNotEligible
	}
	return m.store.SetGiftClaimed(ctx, userID, false)
}

// cheapPool returns the lowest-N priced items of the current snapshot as
// a fresh slice; the cached item list is never reordered.
func (m *Machine) cheapPool() []catalog.Item {
	items := m.snapshots.Snapshot().Items
	pool := make([]catalog.Item, len(items))
	copy(pool, items)

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].PriceStars < pool[j].PriceStars
	})

	if len(pool) > m.opts.CheapItemsCount {
		pool = pool[:m.opts.CheapItemsCount]
	}
	return pool
}

func (m *Machine) userLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

func (m *Machine) notifyEligible(referrerID int64, count int) {
	if m.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := fmt.Sprintf(
		"Congratulations! One of your referrals joined — you now have %d referrals.\n"+
			"You earned a gift: claim a random cheap skin straight to your Steam.", count)
	if err := m.notifier.NotifyUser(notifyCtx, referrerID, text); err != nil {
		m.logger.Error().Err(err).Int64("referrer", referrerID).Msg("failed to send eligibility notification")
	}
}
