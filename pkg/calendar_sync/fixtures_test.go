package calendar_sync

import (
	"context"
	"time"

	"github.com/klokku/calaudit/internal/event_bus"
	"github.com/klokku/calaudit/internal/utils"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/klokku/calaudit/pkg/user"
	"github.com/klokku/calaudit/pkg/watch_channel"
)

const callbackUrl = "https://calaudit.example.com/api/watch/notifications"

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func timedRecord(id, start, end string, attendees ...string) feed.EventRecord {
	record := feed.EventRecord{
		Id:             id,
		Status:         feed.StatusConfirmed,
		Summary:        "Meeting " + id,
		EventType:      "default",
		Start:          &feed.EventTime{DateTime: start},
		End:            &feed.EventTime{DateTime: end},
		OrganizerEmail: "boss@example.com",
	}
	for _, email := range attendees {
		record.Attendees = append(record.Attendees, feed.Attendee{Email: email, ResponseStatus: "accepted"})
	}
	return record
}

func cancelledRecord(id string) feed.EventRecord {
	return feed.EventRecord{Id: id, Status: feed.StatusCancelled}
}

func page(nextPageToken, nextSyncToken string, records ...feed.EventRecord) feed.PageResult {
	return feed.PageResult{Page: feed.Page{Items: records, NextPageToken: nextPageToken, NextSyncToken: nextSyncToken}}
}

func failure(err error) feed.PageResult {
	return feed.PageResult{Err: err}
}

type syncFixture struct {
	calendars *calendar.RepositoryStub
	users     *user.StubUserRepository
	channels  *watch_channel.RepositoryStub
	provider  *feed.ProviderStub
	bus       *event_bus.EventBus
	service   *Service
	cal       calendar.Calendar
	user      user.User
}

func newSyncFixture() syncFixture {
	calendars := calendar.NewRepositoryStub()
	users := user.NewStubUserRepository()
	channels := watch_channel.NewRepositoryStub()
	clock := &utils.MockClock{FixedNow: now}
	bus := event_bus.NewEventBus()
	provider := feed.NewProviderStub()
	provider.Subscription = feed.Subscription{ResourceId: "res-1", ExpirationMillis: now.Add(24 * time.Hour).UnixMilli()}

	cal := calendars.PutCalendar(calendar.Calendar{Email: "me@example.com", Timezone: "UTC", SyncToken: "tok-1"})
	u := user.User{Uid: "uid-1", Username: "me", PrimaryCalendarId: cal.Id}
	u.Id, _ = users.CreateUser(context.Background(), u)
	users.CalendarEmails[cal.Id] = cal.Email

	manager := watch_channel.NewManager(channels, clock, bus, callbackUrl, time.Second)
	service := NewService(
		feed.ProviderFactoryStub{Provider: provider},
		users,
		calendars,
		manager,
		NewCursorFetcher(2500, time.Second),
		bus,
		clock,
	)
	return syncFixture{
		calendars: calendars,
		users:     users,
		channels:  channels,
		provider:  provider,
		bus:       bus,
		service:   service,
		cal:       cal,
		user:      u,
	}
}
