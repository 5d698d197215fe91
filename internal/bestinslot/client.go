package bestinslot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/suspectuso/ord-tracker/internal/upstream"
)

const DefaultBaseURL = "https://v2api.bestinslot.xyz"

// Client reads wallet activity feeds.
type Client struct {
	http *upstream.Client
}

func NewClient(c *upstream.Client) *Client {
	return &Client{http: c}
}

// FetchActivity returns one page of a feed, most recent first. Pages start at 1.
// Non-200 responses and undecodable bodies come back as errors matching
// upstream.ErrStatus and upstream.ErrMalformed.
func (c *Client) FetchActivity(ctx context.Context, address string, feed FeedKind, page int) ([]Activity, error) {
	if page < 1 {
		page = 1
	}

	path, query, err := feedRequest(address, feed, page)
	if err != nil {
		return nil, err
	}

	res, err := c.http.GetJSON(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d for %s: %w", feed, page, address, err)
	}
	return ParseActivities(feed, res), nil
}

// FetchHistory walks up to maxPages pages and stops at the first empty one.
// Used for backlog reconciliation, never by the polling loop.
func (c *Client) FetchHistory(ctx context.Context, address string, feed FeedKind, maxPages int) ([]Activity, error) {
	var all []Activity
	for page := 1; page <= maxPages; page++ {
		items, err := c.FetchActivity(ctx, address, feed, page)
		if err != nil {
			return all, err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	return all, nil
}

func feedRequest(address string, feed FeedKind, page int) (string, url.Values, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("address", address)

	switch feed {
	case FeedInscriptionSales:
		return "/wallet/history", q, nil
	case FeedInscriptions:
		q.Set("activity", "1")
		return "/wallet/history", q, nil
	case FeedRuneTransfers:
		q.Set("include_rune", "true")
		return "/rune/activity", q, nil
	}
	return "", nil, fmt.Errorf("unknown feed %q", feed)
}
