package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"skindrop/internal/alerting"
	"skindrop/internal/cache"
	"skindrop/internal/catalog"
	"skindrop/internal/feed"
	"skindrop/internal/fulfill"
	"skindrop/internal/ledger"
	"skindrop/internal/referral"
)

type scriptedPrices struct {
	records []feed.PriceRecord
	err     error
}

func (f *scriptedPrices) FetchPrices(ctx context.Context) ([]feed.PriceRecord, error) {
	return f.records, f.err
}

type scriptedBalance struct {
	bal feed.Balance
	err error
}

func (f *scriptedBalance) FetchBalance(ctx context.Context) (feed.Balance, error) {
	return f.bal, f.err
}

type scriptedDeals struct {
	dealID string
	err    error
}

func (f *scriptedDeals) SubmitPurchase(ctx context.Context, req feed.PurchaseRequest) (string, error) {
	return f.dealID, f.err
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (n *alertRecorder) Notify(ctx context.Context, a alerting.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *alertRecorder) NotifyUser(ctx context.Context, telegramID int64, text string) error {
	return nil
}

func (n *alertRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// mapStore is a map-backed ledger for request-path tests.
type mapStore struct {
	mu    sync.Mutex
	users map[int64]*ledger.User
}

func newMapStore() *mapStore {
	return &mapStore{users: make(map[int64]*ledger.User)}
}

func (s *mapStore) GetUser(ctx context.Context, telegramID int64) (ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return ledger.User{}, ledger.ErrUserNotFound
	}
	return *u, nil
}

func (s *mapStore) CreateUser(ctx context.Context, telegramID int64) (ledger.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[telegramID]; ok {
		return *u, false, nil
	}
	u := &ledger.User{TelegramID: telegramID, ItemsJSON: "[]"}
	s.users[telegramID] = u
	return *u, true, nil
}

func (s *mapStore) AddReferral(ctx context.Context, referrerID, invitedID int64) (int, bool, error) {
	return 0, false, nil
}

func (s *mapStore) SetGiftClaimed(ctx context.Context, telegramID int64, claimed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return ledger.ErrUserNotFound
	}
	u.HasGift = claimed
	return nil
}

func (s *mapStore) RecordGiftItem(ctx context.Context, telegramID int64, item string) error {
	return nil
}

func (s *mapStore) SetTradeDestination(ctx context.Context, telegramID int64, profile, tradeLink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return ledger.ErrUserNotFound
	}
	u.SteamProfile = &profile
	u.TradeLink = &tradeLink
	return nil
}

var _ ledger.UserStore = (*mapStore)(nil)

type harness struct {
	prices   *scriptedPrices
	balance  *scriptedBalance
	deals    *scriptedDeals
	store    *mapStore
	cache    *cache.Cache
	notifier *alertRecorder
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	prices := &scriptedPrices{}
	balance := &scriptedBalance{bal: feed.Balance{Available: decimal.NewFromInt(100000)}}
	deals := &scriptedDeals{dealID: "deal-1"}
	store := newMapStore()
	snapshots := cache.New()
	notifier := &alertRecorder{}

	logger := zerolog.Nop()
	images := catalog.NewImageResolver(t.TempDir(), logger)
	builder := catalog.NewBuilder(images, 45, logger)
	submitter := fulfill.NewSubmitter(snapshots, balance, deals, fulfill.NewCooldownRegistry(time.Minute), nil, logger)
	machine := referral.NewMachine(referral.Options{Threshold: 3}, store, snapshots, submitter, nil, logger)

	return &harness{
		prices:   prices,
		balance:  balance,
		deals:    deals,
		store:    store,
		cache:    snapshots,
		notifier: notifier,
		svc:      New(nil, prices, balance, builder, snapshots, store, submitter, machine, notifier, logger),
	}
}

func priceRecords(names ...string) []feed.PriceRecord {
	records := make([]feed.PriceRecord, 0, len(names))
	for i, name := range names {
		records = append(records, feed.PriceRecord{
			Name:     name,
			Price:    decimal.NewFromInt(int64(100 * (i + 1))),
			Quantity: 1,
		})
	}
	return records
}

func TestRefreshTickPublishesItemsAndBalance(t *testing.T) {
	h := newHarness(t)
	h.prices.records = priceRecords("AK-47 | Redline", "AWP | Asiimov")
	h.balance.bal = feed.Balance{Available: decimal.NewFromInt(500)}

	if err := h.svc.RefreshTick(context.Background()); err != nil {
		t.Fatalf("RefreshTick: %v", err)
	}

	snap := h.cache.Snapshot()
	if !snap.Loaded() || len(snap.Items) != 2 {
		t.Fatalf("snapshot not published: %+v", snap)
	}
	if snap.Available().Cmp(decimal.NewFromInt(500)) != 0 {
		t.Fatalf("balance not published: %s", snap.Available())
	}
}

func TestRefreshTickFailureKeepsLastSnapshot(t *testing.T) {
	h := newHarness(t)
	h.prices.records = priceRecords("AK-47 | Redline")
	if err := h.svc.RefreshTick(context.Background()); err != nil {
		t.Fatalf("seed tick: %v", err)
	}

	h.prices.err = fmt.Errorf("feed down")
	if err := h.svc.RefreshTick(context.Background()); err == nil {
		t.Fatal("expected tick error")
	}

	snap := h.cache.Snapshot()
	if len(snap.Items) != 1 {
		t.Fatalf("failed refresh must keep the last snapshot, got %d items", len(snap.Items))
	}
}

func TestFeedAlertFiresOncePerStreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.prices.err = fmt.Errorf("feed down")

	_ = h.svc.RefreshTick(ctx)
	_ = h.svc.RefreshTick(ctx)
	_ = h.svc.RefreshTick(ctx)
	if h.notifier.count() != 1 {
		t.Fatalf("expected one alert per streak, got %d", h.notifier.count())
	}
	if h.notifier.alerts[0].Kind != "feed_failure" || h.notifier.alerts[0].Subject != "items" {
		t.Fatalf("unexpected alert: %+v", h.notifier.alerts[0])
	}

	// Recovery resets the streak; the next outage alerts again.
	h.prices.err = nil
	h.prices.records = priceRecords("AK-47 | Redline")
	_ = h.svc.RefreshTick(ctx)

	h.prices.err = fmt.Errorf("feed down again")
	_ = h.svc.RefreshTick(ctx)
	if h.notifier.count() != 2 {
		t.Fatalf("expected a second alert after recovery, got %d", h.notifier.count())
	}
}

func TestFeedFailuresAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.prices.records = priceRecords("AK-47 | Redline")
	h.balance.err = fmt.Errorf("balance down")

	if err := h.svc.RefreshTick(context.Background()); err == nil {
		t.Fatal("expected tick error from balance failure")
	}

	snap := h.cache.Snapshot()
	if len(snap.Items) != 1 {
		t.Fatal("item publish must not depend on the balance fetch")
	}
	if h.notifier.count() != 1 || h.notifier.alerts[0].Subject != "balance" {
		t.Fatalf("expected one balance alert, got %+v", h.notifier.alerts)
	}
}

func TestQueryCatalogPagination(t *testing.T) {
	h := newHarness(t)
	h.prices.records = priceRecords("a", "b", "c", "d", "e", "f", "g")
	_ = h.svc.RefreshTick(context.Background())

	page := h.svc.QueryCatalog(1, 5, "", false)
	if page.Total != 7 || page.Pages != 2 || len(page.Items) != 5 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page.Items[0].Name != "a" {
		t.Fatalf("feed order not preserved: %q", page.Items[0].Name)
	}

	page = h.svc.QueryCatalog(2, 5, "", false)
	if len(page.Items) != 2 || page.Items[0].Name != "f" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	// Past the end: empty window, metadata intact.
	page = h.svc.QueryCatalog(9, 5, "", false)
	if len(page.Items) != 0 || page.Total != 7 {
		t.Fatalf("unexpected overflow page: %+v", page)
	}
}

func TestQueryCatalogClampsPageSize(t *testing.T) {
	h := newHarness(t)
	h.prices.records = priceRecords("a", "b", "c", "d", "e", "f", "g")
	_ = h.svc.RefreshTick(context.Background())

	if page := h.svc.QueryCatalog(1, 1, "", false); len(page.Items) != 5 {
		t.Fatalf("page size below minimum must clamp to 5, got %d", len(page.Items))
	}
	if page := h.svc.QueryCatalog(1, 1000, "", false); page.Pages != 1 {
		t.Fatalf("page size above maximum must clamp to 100, got %d pages", page.Pages)
	}
	if page := h.svc.QueryCatalog(0, 0, "", false); page.Page != 1 || len(page.Items) != 7 {
		t.Fatalf("zero inputs must default sanely: %+v", page)
	}
}

func TestQueryCatalogSearch(t *testing.T) {
	h := newHarness(t)
	h.prices.records = priceRecords("AK-47 | Redline", "AWP | Asiimov", "AK-47 | Vulcan")
	_ = h.svc.RefreshTick(context.Background())

	page := h.svc.QueryCatalog(1, 20, "ak-47", false)
	if page.Total != 2 {
		t.Fatalf("expected 2 matches, got %d", page.Total)
	}

	page = h.svc.QueryCatalog(1, 20, "ASIIMOV", false)
	if page.Total != 1 || page.Items[0].Name != "AWP | Asiimov" {
		t.Fatalf("search must be case-insensitive: %+v", page)
	}
}

func TestQueryCatalogAffordableOnly(t *testing.T) {
	h := newHarness(t)
	// Prices 100, 200, 300; balance covers the first two.
	h.prices.records = priceRecords("a", "b", "c")
	h.balance.bal = feed.Balance{Available: decimal.NewFromInt(250)}
	_ = h.svc.RefreshTick(context.Background())

	page := h.svc.QueryCatalog(1, 20, "", true)
	if page.Total != 2 {
		t.Fatalf("expected 2 affordable items, got %d", page.Total)
	}
	for _, item := range page.Items {
		if item.PriceLocal.GreaterThan(decimal.NewFromInt(250)) {
			t.Fatalf("unaffordable item %q in filtered page", item.Name)
		}
	}
}

func TestQueryCatalogEmptyBeforeFirstRefresh(t *testing.T) {
	h := newHarness(t)

	page := h.svc.QueryCatalog(1, 20, "", false)
	if page.Total != 0 || page.Pages != 1 || page.CapturedAt != nil {
		t.Fatalf("unexpected page before first refresh: %+v", page)
	}
}

func TestGetFreshPrice(t *testing.T) {
	h := newHarness(t)
	h.prices.records = priceRecords("AK-47 | Redline")
	_ = h.svc.RefreshTick(context.Background())

	price, ok := h.svc.GetFreshPrice("AK-47 | Redline")
	if !ok || price.Cmp(decimal.NewFromInt(100)) != 0 {
		t.Fatalf("unexpected fresh price: %s ok=%v", price, ok)
	}
	if _, ok := h.svc.GetFreshPrice("missing"); ok {
		t.Fatal("missing product must not resolve a price")
	}
}

func TestGetBalanceBeforeRefreshIsZero(t *testing.T) {
	h := newHarness(t)
	if bal := h.svc.GetBalance(); !bal.Available.IsZero() {
		t.Fatalf("expected zero balance before refresh, got %s", bal.Available)
	}
}

func TestSubmitPurchaseRequiresTradeLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, _ = h.store.CreateUser(ctx, 1)

	_, err := h.svc.SubmitPurchase(ctx, 1, "AK-47 | Redline")
	if !errors.Is(err, referral.ErrTradeLinkNotSet) {
		t.Fatalf("expected ErrTradeLinkNotSet, got %v", err)
	}
}

func TestSubmitPurchaseSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.prices.records = priceRecords("AK-47 | Redline")
	_ = h.svc.RefreshTick(ctx)

	_, _, _ = h.store.CreateUser(ctx, 1)
	link := "https://steamcommunity.com/tradeoffer/new/?partner=123&token=abc"
	if err := h.svc.BindTradeLink(ctx, 1, "profile", link); err != nil {
		t.Fatalf("BindTradeLink: %v", err)
	}

	receipt, err := h.svc.SubmitPurchase(ctx, 1, "AK-47 | Redline")
	if err != nil {
		t.Fatalf("SubmitPurchase: %v", err)
	}
	if receipt.DealID != "deal-1" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	// ceil(100 * 1.1) = 110
	if receipt.MaxPrice != 110 {
		t.Fatalf("expected max price 110, got %d", receipt.MaxPrice)
	}
}

func TestBindTradeLinkRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, _ = h.store.CreateUser(ctx, 1)

	err := h.svc.BindTradeLink(ctx, 1, "profile", "https://example.com/nope")
	if !errors.Is(err, fulfill.ErrInvalidTradeLink) {
		t.Fatalf("expected ErrInvalidTradeLink, got %v", err)
	}

	user, _ := h.store.GetUser(ctx, 1)
	if user.TradeLink != nil {
		t.Fatal("invalid link must not be stored")
	}
}

func TestProfileParsesReceivedItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, _ = h.store.CreateUser(ctx, 1)
	h.store.users[1].Referrals = 4
	h.store.users[1].ItemsJSON = `["Cheap Skin","AWP | Asiimov"]`

	profile, err := h.svc.Profile(ctx, 1)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.Referrals != 4 || len(profile.Items) != 2 || profile.Items[1] != "AWP | Asiimov" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestProfileToleratesMalformedItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, _ = h.store.CreateUser(ctx, 1)
	h.store.users[1].ItemsJSON = "{not json"

	profile, err := h.svc.Profile(ctx, 1)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(profile.Items) != 0 {
		t.Fatalf("malformed history must read as empty, got %+v", profile.Items)
	}
}
