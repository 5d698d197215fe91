package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/suspectuso/ord-tracker/internal/bestinslot"
	"github.com/suspectuso/ord-tracker/internal/bitcoin"
	"github.com/suspectuso/ord-tracker/internal/classifier"
	"github.com/suspectuso/ord-tracker/internal/metrics"
	"github.com/suspectuso/ord-tracker/internal/notifier"
	"github.com/suspectuso/ord-tracker/internal/storage"
	"github.com/suspectuso/ord-tracker/internal/tracking"
)

// FeedClient fetches wallet activity: one page for polling, several for backlog
// seeding.
type FeedClient interface {
	FetchActivity(ctx context.Context, address string, feed bestinslot.FeedKind, page int) ([]bestinslot.Activity, error)
	FetchHistory(ctx context.Context, address string, feed bestinslot.FeedKind, maxPages int) ([]bestinslot.Activity, error)
}

// PriceSource returns the BTC price in USD.
type PriceSource interface {
	BTCPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

type Options struct {
	Interval time.Duration
	Workers  int
}

// Engine polls the latest activity of every tracked wallet and notifies each new
// record at most once per scope.
type Engine struct {
	state    *tracking.State
	feeds    FeedClient
	prices   PriceSource
	notify   notifier.Notifier
	interval time.Duration
	workers  int
	log      *slog.Logger
}

func New(state *tracking.State, feeds FeedClient, prices PriceSource, notify notifier.Notifier, opts Options, log *slog.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		state:    state,
		feeds:    feeds,
		prices:   prices,
		notify:   notify,
		interval: opts.Interval,
		workers:  opts.Workers,
		log:      log,
	}
}

// Start runs a cycle every interval until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.log.Info("wallet tracker started", "interval", e.interval, "workers", e.workers)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("wallet tracker stopped")
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// unit is one (target, feed) fetch of a cycle.
type unit struct {
	target tracking.Target
	feed   bestinslot.FeedKind

	activities []bestinslot.Activity
	err        error
}

// RunCycle runs one polling tick. Fetches run concurrently; classification and
// dedup run afterwards in target order so check-and-mark never interleaves.
func (e *Engine) RunCycle(ctx context.Context) {
	start := time.Now()
	log := e.log.With("cycle_id", uuid.NewString())

	targets := e.state.Targets()
	var units []*unit
	for _, t := range targets {
		for _, feed := range feedsFor(t.Config) {
			units = append(units, &unit{target: t, feed: feed})
		}
	}

	e.fetchAll(ctx, units)

	c := &cycle{engine: e, log: log}
	for _, u := range units {
		if ctx.Err() != nil {
			break
		}
		c.process(ctx, u)
	}

	if err := e.state.Flush(ctx); err != nil {
		metrics.PersistFailures.WithLabelValues("tracking").Inc()
		log.Error("flush tracking state", "error", err)
		sentry.CaptureException(err)
	}

	metrics.RecordCycle(time.Since(start))
	log.Debug("cycle complete",
		"targets", len(targets),
		"units", len(units),
		"notified", c.notified,
		"duration", time.Since(start),
	)
}

func (e *Engine) fetchAll(ctx context.Context, units []*unit) {
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for _, u := range units {
		wg.Add(1)
		sem <- struct{}{}
		go func(u *unit) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					u.err = fmt.Errorf("panic: %v", r)
					sentry.CurrentHub().Recover(r)
				}
			}()

			// Steady state only ever reads the newest page.
			u.activities, u.err = e.feeds.FetchActivity(ctx, u.target.Address, u.feed, 1)
			metrics.RecordFetch(string(u.feed), u.err)
		}(u)
	}
	wg.Wait()
}

// cycle carries per-tick state through the sequential phase.
type cycle struct {
	engine   *Engine
	log      *slog.Logger
	notified int

	priceFetched bool
	btcUSD       *decimal.Decimal
}

func (c *cycle) process(ctx context.Context, u *unit) {
	log := c.log.With(
		"scope", u.target.Scope.Key(),
		"wallet", bitcoin.ShortAddr(u.target.Address, 6),
		"feed", u.feed,
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("process activity panicked", "panic", r)
			sentry.CurrentHub().Recover(r)
		}
	}()

	if u.err != nil {
		log.Warn("fetch activity", "error", u.err)
		return
	}
	if len(u.activities) == 0 {
		return
	}

	// Only the newest record is considered per feed per cycle.
	rec, ok := classifier.Classify(u.activities[0], u.target.Address)
	if !ok {
		return
	}
	if !allows(u.target.Config, rec.Direction) {
		return
	}

	if !c.engine.state.MarkSeen(u.target, rec.ID) {
		metrics.DedupSkips.Inc()
		return
	}

	n := notifier.Notification{
		ChannelID:     u.target.OutputChannel,
		Category:      rec.Category,
		Direction:     rec.Direction,
		PriceSats:     rec.PriceSats,
		Counterparty:  rec.Counterparty,
		AssetLabel:    rec.AssetLabel,
		CanonicalID:   rec.ID,
		Guild:         u.target.Scope.Guild,
		WalletName:    u.target.Config.Name,
		WalletAddress: u.target.Address,
		Quantity:      rec.Quantity,
		AssetID:       rec.AssetID,
		ContentID:     rec.ContentID,
		Feed:          rec.Feed,
	}
	if rec.PriceSats != nil && *rec.PriceSats > 0 {
		if price := c.btcPrice(ctx); price != nil {
			usd := bitcoin.SatsToUSD(*rec.PriceSats, *price)
			n.PriceUSD = &usd
		}
	}

	c.notified++
	metrics.RecordNotification(string(rec.Category), string(rec.Direction))
	if err := c.engine.notify.Notify(ctx, n); err != nil {
		metrics.NotifyErrors.Inc()
		log.Warn("send notification", "id", rec.ID, "error", err)
		return
	}
	log.Info("notified", "id", rec.ID, "category", rec.Category, "direction", rec.Direction)
}

// btcPrice fetches the ticker at most once per cycle.
func (c *cycle) btcPrice(ctx context.Context) *decimal.Decimal {
	if c.priceFetched || c.engine.prices == nil {
		return c.btcUSD
	}
	c.priceFetched = true

	price, err := c.engine.prices.BTCPriceUSD(ctx)
	if err != nil {
		c.log.Warn("fetch btc price", "error", err)
		return nil
	}
	c.btcUSD = &price
	return c.btcUSD
}

// feedsFor returns the feeds a wallet's flags require.
func feedsFor(cfg storage.WalletConfig) []bestinslot.FeedKind {
	var feeds []bestinslot.FeedKind
	if cfg.TrackBuy.Enabled() || cfg.TrackSell.Enabled() {
		feeds = append(feeds, bestinslot.FeedInscriptionSales)
	}
	if cfg.TrackMint.Enabled() {
		feeds = append(feeds, bestinslot.FeedInscriptions)
	}
	if cfg.TrackBuy.Enabled() || cfg.TrackSell.Enabled() {
		feeds = append(feeds, bestinslot.FeedRuneTransfers)
	}
	return feeds
}

// allows reports whether cfg wants records of direction d. A buy or sell flag set
// to "both" lets either trade direction through.
func allows(cfg storage.WalletConfig, d classifier.Direction) bool {
	switch d {
	case classifier.Buy:
		return cfg.TrackBuy.Enabled() || cfg.TrackSell == storage.Both
	case classifier.Sell:
		return cfg.TrackSell.Enabled() || cfg.TrackBuy == storage.Both
	case classifier.Mint:
		return cfg.TrackMint.Enabled()
	}
	return false
}
