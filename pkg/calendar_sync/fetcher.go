package calendar_sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	log "github.com/sirupsen/logrus"
)

type FetchResult struct {
	Records []feed.EventRecord
	// NextSyncToken is the cursor for the next incremental listing, read from the last page.
	NextSyncToken string
}

// CursorFetcher walks every page of one listing. It never writes anything.
type CursorFetcher struct {
	pageSize int
	timeout  time.Duration
}

func NewCursorFetcher(pageSize int, timeout time.Duration) *CursorFetcher {
	return &CursorFetcher{pageSize: pageSize, timeout: timeout}
}

// Fetch lists the calendar's events: incrementally from cal.SyncToken when it is set, in full otherwise.
// Pages are requested one after another, each bounded by the request timeout.
func (f *CursorFetcher) Fetch(ctx context.Context, lister feed.EventLister, cal calendar.Calendar) (FetchResult, error) {
	query := feed.ListQuery{
		SyncToken: cal.SyncToken,
		PageSize:  f.pageSize,
		Fields:    feed.EventFields,
	}
	mode := "incremental"
	if cal.SyncToken == "" {
		mode = "full"
	}
	log.Debugf("fetching %s listing for %s", mode, cal.Email)

	var result FetchResult
	for pageNo := 1; ; pageNo++ {
		page, err := f.fetchPage(ctx, lister, cal.Email, query)
		if err != nil {
			return FetchResult{}, err
		}
		result.Records = append(result.Records, page.Items...)
		log.Tracef("page %d of %s: %d records", pageNo, cal.Email, len(page.Items))

		if page.NextPageToken == "" {
			result.NextSyncToken = page.NextSyncToken
			break
		}
		// the cursor belongs to the first request only
		query = feed.ListQuery{
			PageToken: page.NextPageToken,
			PageSize:  f.pageSize,
			Fields:    feed.EventFields,
		}
	}

	log.Debugf("fetched %d records for %s", len(result.Records), cal.Email)
	return result, nil
}

func (f *CursorFetcher) fetchPage(ctx context.Context, lister feed.EventLister, calendarId string, query feed.ListQuery) (feed.Page, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	page, err := lister.ListEvents(ctx, calendarId, query)
	if err == nil {
		return page, nil
	}
	if errors.Is(err, feed.ErrCursorExpired) ||
		errors.Is(err, feed.ErrProviderUnavailable) ||
		errors.Is(err, feed.ErrUnauthenticated) {
		return feed.Page{}, err
	}
	return feed.Page{}, fmt.Errorf("%w: %w", feed.ErrProviderUnavailable, err)
}
