// Package feed describes the remote calendar provider as seen by the sync core: the event listing,
// the push subscription service and the records they return.
package feed

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCursorExpired is returned when the provider no longer accepts the sync token.
	ErrCursorExpired       = errors.New("sync cursor expired")
	ErrProviderUnavailable = errors.New("calendar provider unavailable")
	ErrUnauthenticated     = errors.New("user is unauthenticated, authentication is required")
)

const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// EventFields is the partial response mask requested on every listing call.
const EventFields = "items(id,status,summary,eventType,start,end,organizer,attendees(email,responseStatus)),nextPageToken,nextSyncToken"

// EventTime holds exactly one of DateTime (RFC3339) or Date (YYYY-MM-DD) in a well-formed record.
type EventTime struct {
	DateTime string
	Date     string
}

type Attendee struct {
	Email          string
	ResponseStatus string
}

// EventRecord is a single item from an event listing, before reconciliation.
type EventRecord struct {
	Id             string
	Status         string
	Summary        string
	EventType      string
	Start          *EventTime
	End            *EventTime
	OrganizerEmail string
	Attendees      []Attendee
}

func (r EventRecord) Cancelled() bool {
	return r.Status == StatusCancelled
}

type ListQuery struct {
	SyncToken string
	PageToken string
	PageSize  int
	Fields    string
}

type Page struct {
	Items         []EventRecord
	NextPageToken string
	NextSyncToken string
}

type WatchRequest struct {
	ChannelId   string
	CallbackUrl string
	// Token is echoed back by the provider on every notification for this channel.
	Token string
}

type Subscription struct {
	ResourceId       string
	ExpirationMillis int64
}

func (s Subscription) Expiration() time.Time {
	return time.UnixMilli(s.ExpirationMillis)
}

type CalendarInfo struct {
	Id       string
	Timezone string
}

type EventLister interface {
	ListEvents(ctx context.Context, calendarId string, query ListQuery) (Page, error)
}

type Watcher interface {
	Watch(ctx context.Context, calendarId string, req WatchRequest) (Subscription, error)
	Stop(ctx context.Context, channelId string, resourceId string) error
}

type Provider interface {
	EventLister
	Watcher
	PrimaryCalendar(ctx context.Context) (CalendarInfo, error)
}

// ProviderFactory returns a provider client authenticated as the given user.
type ProviderFactory interface {
	ForUser(ctx context.Context, userId int) (Provider, error)
}
