package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/klokku/calaudit/pkg/feed"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const channelType = "web_hook"

// APIRecorder receives one sample per Google API call.
type APIRecorder interface {
	RecordGoogleAPIOperation(ctx context.Context, operation, status string, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordGoogleAPIOperation(context.Context, string, string, time.Duration) {}

// Client adapts the Google Calendar API to feed.Provider.
type Client struct {
	service  *gcal.Service
	recorder APIRecorder
}

func NewClient(service *gcal.Service, recorder APIRecorder) *Client {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Client{service: service, recorder: recorder}
}

func (c *Client) ListEvents(ctx context.Context, calendarId string, query feed.ListQuery) (feed.Page, error) {
	call := c.service.Events.List(calendarId).
		SingleEvents(true).
		Context(ctx)
	if query.PageSize > 0 {
		call = call.MaxResults(int64(query.PageSize))
	}
	if query.Fields != "" {
		call = call.Fields(googleapi.Field(query.Fields))
	}
	if query.PageToken != "" {
		call = call.PageToken(query.PageToken)
	}
	if query.SyncToken != "" {
		call = call.SyncToken(query.SyncToken)
	}

	var events *gcal.Events
	err := c.observe(ctx, "events.list", func() (err error) {
		events, err = call.Do()
		return err
	})
	if err != nil {
		return feed.Page{}, mapError(err)
	}

	page := feed.Page{
		Items:         make([]feed.EventRecord, 0, len(events.Items)),
		NextPageToken: events.NextPageToken,
		NextSyncToken: events.NextSyncToken,
	}
	for _, item := range events.Items {
		if item == nil {
			continue
		}
		page.Items = append(page.Items, toEventRecord(item))
	}
	return page, nil
}

func (c *Client) Watch(ctx context.Context, calendarId string, req feed.WatchRequest) (feed.Subscription, error) {
	var channel *gcal.Channel
	err := c.observe(ctx, "events.watch", func() (err error) {
		channel, err = c.service.Events.Watch(calendarId, &gcal.Channel{
			Id:      req.ChannelId,
			Type:    channelType,
			Address: req.CallbackUrl,
			Token:   req.Token,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return feed.Subscription{}, mapError(err)
	}
	return feed.Subscription{
		ResourceId:       channel.ResourceId,
		ExpirationMillis: channel.Expiration,
	}, nil
}

func (c *Client) Stop(ctx context.Context, channelId string, resourceId string) error {
	err := c.observe(ctx, "channels.stop", func() error {
		return c.service.Channels.Stop(&gcal.Channel{
			Id:         channelId,
			ResourceId: resourceId,
		}).Context(ctx).Do()
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) PrimaryCalendar(ctx context.Context) (feed.CalendarInfo, error) {
	var cal *gcal.Calendar
	err := c.observe(ctx, "calendars.get", func() (err error) {
		cal, err = c.service.Calendars.Get("primary").Context(ctx).Do()
		return err
	})
	if err != nil {
		return feed.CalendarInfo{}, mapError(err)
	}
	return feed.CalendarInfo{Id: cal.Id, Timezone: cal.TimeZone}, nil
}

func (c *Client) observe(ctx context.Context, operation string, call func() error) error {
	start := time.Now()
	err := call()
	status := "success"
	if err != nil {
		status = "error"
		log.Debugf("Google API %s failed: %v", operation, err)
	}
	c.recorder.RecordGoogleAPIOperation(ctx, operation, status, time.Since(start))
	return err
}

// mapError translates API failures into the feed error taxonomy. The original error stays in the chain.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusGone:
			return fmt.Errorf("%w: %w", feed.ErrCursorExpired, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", feed.ErrUnauthenticated, err)
		}
	}
	return fmt.Errorf("%w: %w", feed.ErrProviderUnavailable, err)
}

func toEventRecord(e *gcal.Event) feed.EventRecord {
	record := feed.EventRecord{
		Id:        e.Id,
		Status:    e.Status,
		Summary:   e.Summary,
		EventType: e.EventType,
		Start:     toEventTime(e.Start),
		End:       toEventTime(e.End),
	}
	if e.Organizer != nil {
		record.OrganizerEmail = e.Organizer.Email
	}
	for _, a := range e.Attendees {
		if a == nil || a.Email == "" {
			continue
		}
		record.Attendees = append(record.Attendees, feed.Attendee{
			Email:          a.Email,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return record
}

func toEventTime(t *gcal.EventDateTime) *feed.EventTime {
	if t == nil {
		return nil
	}
	return &feed.EventTime{DateTime: t.DateTime, Date: t.Date}
}
