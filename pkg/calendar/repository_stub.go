package calendar

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
)

type stubState struct {
	calendars    map[int]Calendar
	events       map[int]Event
	associations map[int]map[int]bool // eventId -> calendarId set
	attendees    map[int][]Attendee
	nextId       int
}

func (s stubState) clone() stubState {
	associations := make(map[int]map[int]bool, len(s.associations))
	for k, v := range s.associations {
		associations[k] = maps.Clone(v)
	}
	attendees := make(map[int][]Attendee, len(s.attendees))
	for k, v := range s.attendees {
		attendees[k] = slices.Clone(v)
	}
	return stubState{
		calendars:    maps.Clone(s.calendars),
		events:       maps.Clone(s.events),
		associations: associations,
		attendees:    attendees,
		nextId:       s.nextId,
	}
}

// RepositoryStub keeps the calendar store in memory. A failed transaction restores the state
// captured when it began.
type RepositoryStub struct {
	mu    sync.Mutex
	state stubState

	// ReplaceAttendeesErr, when set, is consulted before attendees are written.
	ReplaceAttendeesErr func(eventId int) error
	// Counters for assertions.
	Transactions int
	Rollbacks    int
}

func NewRepositoryStub() *RepositoryStub {
	r := &RepositoryStub{}
	r.Reset()
	return r
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stubState{
		calendars:    map[int]Calendar{},
		events:       map[int]Event{},
		associations: map[int]map[int]bool{},
		attendees:    map[int][]Attendee{},
		nextId:       1,
	}
	r.Transactions = 0
	r.Rollbacks = 0
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	snapshot := r.state.clone()
	r.Transactions++
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.state = snapshot
		r.Rollbacks++
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *RepositoryStub) id() int {
	id := r.state.nextId
	r.state.nextId++
	return id
}

func (r *RepositoryStub) GetOrCreateCalendar(_ context.Context, email string) (Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = NormalizeEmail(email)
	for _, c := range r.state.calendars {
		if c.Email == email {
			return c, nil
		}
	}
	c := Calendar{Id: r.id(), Email: email}
	r.state.calendars[c.Id] = c
	return c, nil
}

func (r *RepositoryStub) GetCalendar(_ context.Context, id int) (Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.calendars[id]
	if !ok {
		return Calendar{}, ErrCalendarNotFound
	}
	return c, nil
}

func (r *RepositoryStub) GetCalendarByEmail(_ context.Context, email string) (Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = NormalizeEmail(email)
	for _, c := range r.state.calendars {
		if c.Email == email {
			return c, nil
		}
	}
	return Calendar{}, ErrCalendarNotFound
}

func (r *RepositoryStub) UpdateTimezone(_ context.Context, calendarId int, timezone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.calendars[calendarId]
	if !ok {
		return ErrCalendarNotFound
	}
	c.Timezone = timezone
	r.state.calendars[calendarId] = c
	return nil
}

func (r *RepositoryStub) SetSyncToken(_ context.Context, calendarId int, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.calendars[calendarId]
	if !ok {
		return ErrCalendarNotFound
	}
	c.SyncToken = token
	r.state.calendars[calendarId] = c
	return nil
}

func (r *RepositoryStub) PurgeEvents(_ context.Context, calendarId int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	purged := 0
	for eventId, calendars := range r.state.associations {
		if calendars[calendarId] {
			r.deleteEvent(eventId)
			purged++
		}
	}
	return purged, nil
}

func (r *RepositoryStub) FindEventByGoogleId(_ context.Context, googleId string) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.state.events {
		if e.GoogleId == googleId {
			return e, nil
		}
	}
	return Event{}, ErrEventNotFound
}

func (r *RepositoryStub) InsertEvent(_ context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Id = r.id()
	r.state.events[event.Id] = event
	return event, nil
}

func (r *RepositoryStub) UpdateEvent(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.events[event.Id]; !ok {
		return ErrEventNotFound
	}
	r.state.events[event.Id] = event
	return nil
}

func (r *RepositoryStub) DeleteEvent(_ context.Context, eventId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.events[eventId]; !ok {
		return ErrEventNotFound
	}
	r.deleteEvent(eventId)
	return nil
}

func (r *RepositoryStub) deleteEvent(eventId int) {
	delete(r.state.events, eventId)
	delete(r.state.associations, eventId)
	delete(r.state.attendees, eventId)
}

func (r *RepositoryStub) IsAssociated(_ context.Context, eventId int, calendarId int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.associations[eventId][calendarId], nil
}

func (r *RepositoryStub) Associate(_ context.Context, eventId int, calendarId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.events[eventId]; !ok {
		return ErrEventNotFound
	}
	if r.state.associations[eventId] == nil {
		r.state.associations[eventId] = map[int]bool{}
	}
	r.state.associations[eventId][calendarId] = true
	return nil
}

func (r *RepositoryStub) GetEventCalendarIds(_ context.Context, eventId int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := slices.Collect(maps.Keys(r.state.associations[eventId]))
	sort.Ints(ids)
	return ids, nil
}

func (r *RepositoryStub) ReplaceAttendees(_ context.Context, eventId int, attendees []Attendee) error {
	if r.ReplaceAttendeesErr != nil {
		if err := r.ReplaceAttendeesErr(eventId); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byCalendar := map[int]Attendee{}
	for _, a := range attendees {
		a.Email = r.state.calendars[a.CalendarId].Email
		byCalendar[a.CalendarId] = a
	}
	replaced := slices.Collect(maps.Values(byCalendar))
	sort.Slice(replaced, func(i, j int) bool { return replaced[i].Email < replaced[j].Email })
	r.state.attendees[eventId] = replaced
	return nil
}

func (r *RepositoryStub) GetAttendees(_ context.Context, eventId int) ([]Attendee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.attendees[eventId]), nil
}

// Events returns every stored event; test helper.
func (r *RepositoryStub) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := slices.Collect(maps.Values(r.state.events))
	sort.Slice(events, func(i, j int) bool { return events[i].Id < events[j].Id })
	return events
}

// PutCalendar stores a calendar as-is; test helper.
func (r *RepositoryStub) PutCalendar(c Calendar) Calendar {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Id == 0 {
		c.Id = r.id()
	}
	c.Email = NormalizeEmail(c.Email)
	r.state.calendars[c.Id] = c
	return c
}
