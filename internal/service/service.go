package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"skindrop/internal/alerting"
	"skindrop/internal/cache"
	"skindrop/internal/catalog"
	"skindrop/internal/feed"
	"skindrop/internal/fulfill"
	"skindrop/internal/ledger"
	"skindrop/internal/referral"
	"skindrop/internal/scheduler"
)

// Service owns the snapshot cache and orchestrates refresh, catalog
// queries, purchases, and the gift lifecycle. It is constructed once by
// the service root and passed by handle; there is no process-wide
// singleton.
type Service struct {
	loop      *scheduler.Loop
	prices    feed.PriceFeed
	balance   feed.BalanceFeed
	builder   *catalog.Builder
	snapshots *cache.Cache
	store     ledger.UserStore
	submitter *fulfill.Submitter
	machine   *referral.Machine
	notifier  alerting.Notifier
	logger    zerolog.Logger

	// Failure-streak flags, one per feed endpoint. Mutated only by the
	// single refresh goroutine.
	pricesFailing  bool
	balanceFailing bool
}

// New constructs the fulfillment service.
func New(loop *scheduler.Loop, prices feed.PriceFeed, balance feed.BalanceFeed, builder *catalog.Builder, snapshots *cache.Cache, store ledger.UserStore, submitter *fulfill.Submitter, machine *referral.Machine, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		loop:      loop,
		prices:    prices,
		balance:   balance,
		builder:   builder,
		snapshots: snapshots,
		store:     store,
		submitter: submitter,
		machine:   machine,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the background refresh loop and blocks until ctx cancels.
func (s *Service) Run(ctx context.Context) error {
	if s.loop == nil {
		return errors.New("refresh loop not configured")
	}
	return s.loop.Run(ctx, s.RefreshTick)
}

// RefreshTick performs one refresh cycle: fetch items, publish, fetch
// balance, publish. A failed fetch keeps the last good snapshot and is
// retried on the next tick; it never clears published state.
func (s *Service) RefreshTick(ctx context.Context) error {
	var tickErr error

	records, err := s.prices.FetchPrices(ctx)
	if err != nil {
		s.feedFailed(ctx, "items", &s.pricesFailing, err)
		tickErr = err
	} else {
		s.feedRecovered("items", &s.pricesFailing)
		items := s.builder.Build(records)
		s.snapshots.PublishItems(items)
		s.logger.Info().Int("items", len(items)).Msg("catalog snapshot published")
	}

	bal, err := s.balance.FetchBalance(ctx)
	if err != nil {
		s.feedFailed(ctx, "balance", &s.balanceFailing, err)
		tickErr = errors.Join(tickErr, err)
	} else {
		s.feedRecovered("balance", &s.balanceFailing)
		s.snapshots.PublishBalance(bal)
		s.logger.Debug().Str("available", bal.Available.String()).Msg("balance snapshot published")
	}

	return tickErr
}

// feedFailed alerts exactly once per failure streak: the false→true
// transition fires, repeated failures stay silent.
func (s *Service) feedFailed(ctx context.Context, name string, failing *bool, cause error) {
	s.logger.Error().Err(cause).Str("feed", name).Msg("feed refresh failed; keeping last snapshot")
	if *failing {
		return
	}
	*failing = true

	if s.notifier == nil {
		return
	}
	alert := alerting.Alert{
		Kind:    "feed_failure",
		Subject: name,
		Detail:  cause.Error(),
		At:      time.Now().UTC(),
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch feed alert")
	}
}

// feedRecovered resets the streak flag silently so the next outage
// alerts again.
func (s *Service) feedRecovered(name string, failing *bool) {
	if *failing {
		s.logger.Info().Str("feed", name).Msg("feed recovered")
	}
	*failing = false
}
