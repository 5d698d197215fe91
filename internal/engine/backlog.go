package engine

import (
	"context"
	"fmt"

	"github.com/suspectuso/ord-tracker/internal/bitcoin"
	"github.com/suspectuso/ord-tracker/internal/classifier"
	"github.com/suspectuso/ord-tracker/internal/metrics"
	"github.com/suspectuso/ord-tracker/internal/storage"
	"github.com/suspectuso/ord-tracker/internal/tracking"
)

// SeedBacklog marks up to pages pages of a wallet's existing activity as seen
// without notifying, so the polling loop only reports what happens afterwards.
// It returns the number of newly marked ids.
func (e *Engine) SeedBacklog(ctx context.Context, scope tracking.Scope, address string, pages int) (int, error) {
	target, ok := e.state.Target(scope, address)
	if !ok {
		return 0, fmt.Errorf("%w: wallet %s in %s has no output channel or is not tracked", storage.ErrNotFound, address, scope.Key())
	}
	if pages < 1 {
		pages = 1
	}

	log := e.log.With("scope", scope.Key(), "wallet", bitcoin.ShortAddr(target.Address, 6))

	marked := 0
	var fetchErr error
	for _, feed := range feedsFor(target.Config) {
		activities, err := e.feeds.FetchHistory(ctx, target.Address, feed, pages)
		metrics.RecordFetch(string(feed), err)
		for _, a := range activities {
			rec, ok := classifier.Classify(a, target.Address)
			if ok && e.state.MarkSeen(target, rec.ID) {
				marked++
			}
		}
		if err != nil {
			fetchErr = fmt.Errorf("fetch %s history: %w", feed, err)
			break
		}
	}

	if err := e.state.Flush(ctx); err != nil {
		return marked, err
	}
	if fetchErr != nil {
		return marked, fetchErr
	}

	log.Info("backlog seeded", "marked", marked, "pages", pages)
	return marked, nil
}
