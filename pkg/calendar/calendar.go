package calendar

import (
	"strings"
	"time"

	"github.com/klokku/calaudit/pkg/time_window"
)

// Calendar is a mirrored calendar identified by its email address. Calendars that only show up
// as organizers or attendees never get a timezone or a sync token.
type Calendar struct {
	Id        int
	Email     string
	Timezone  string
	SyncToken string
}

func (c Calendar) Location() (*time.Location, error) {
	return time_window.LoadLocation(c.Timezone)
}

type Event struct {
	Id       int
	GoogleId string
	// OrganizerId is 0 when the provider did not report an organizer.
	OrganizerId int
	Status      string
	Summary     string
	EventType   string
	AllDay      bool
	Start       time.Time
	Duration    time.Duration
}

func (e Event) End() time.Time {
	return e.Start.Add(e.Duration)
}

// SameFields reports whether two events carry the same mirrored data, ignoring local ids.
func (e Event) SameFields(other Event) bool {
	return e.GoogleId == other.GoogleId &&
		e.OrganizerId == other.OrganizerId &&
		e.Status == other.Status &&
		e.Summary == other.Summary &&
		e.EventType == other.EventType &&
		e.AllDay == other.AllDay &&
		e.Start.Equal(other.Start) &&
		e.Duration == other.Duration
}

type Attendee struct {
	CalendarId     int
	Email          string
	ResponseStatus string
}

// NormalizeEmail is applied to every email before it is used as a calendar key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
