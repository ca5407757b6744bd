package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var (
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrEventNotFound    = errors.New("event not found")
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error

	// GetOrCreateCalendar returns the calendar with the given email, inserting it when missing.
	// It is a single statement, so concurrent callers never create duplicates.
	GetOrCreateCalendar(ctx context.Context, email string) (Calendar, error)
	GetCalendar(ctx context.Context, id int) (Calendar, error)
	GetCalendarByEmail(ctx context.Context, email string) (Calendar, error)
	UpdateTimezone(ctx context.Context, calendarId int, timezone string) error
	// SetSyncToken stores the cursor for the next incremental listing. An empty token clears it.
	SetSyncToken(ctx context.Context, calendarId int, token string) error
	// PurgeEvents deletes every event associated with the calendar and returns how many were removed.
	PurgeEvents(ctx context.Context, calendarId int) (int, error)

	FindEventByGoogleId(ctx context.Context, googleId string) (Event, error)
	InsertEvent(ctx context.Context, event Event) (Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	DeleteEvent(ctx context.Context, eventId int) error

	IsAssociated(ctx context.Context, eventId int, calendarId int) (bool, error)
	Associate(ctx context.Context, eventId int, calendarId int) error
	GetEventCalendarIds(ctx context.Context, eventId int) ([]int, error)

	// ReplaceAttendees drops the event's attendee rows and inserts the given set.
	ReplaceAttendees(ctx context.Context, eventId int, attendees []Attendee) error
	GetAttendees(ctx context.Context, eventId int) ([]Attendee, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// getQueryer returns the transaction when one is open, the pool otherwise.
func (r *RepositoryImpl) getQueryer() interface {
	Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	if err := fn(&RepositoryImpl{db: r.db, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const calendarColumns = `id, email, COALESCE(timezone, ''), COALESCE(sync_token, '')`

func (r *RepositoryImpl) GetOrCreateCalendar(ctx context.Context, email string) (Calendar, error) {
	query := `INSERT INTO calendar (email) VALUES ($1)
			  ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
			  RETURNING ` + calendarColumns
	var c Calendar
	err := r.getQueryer().QueryRow(ctx, query, NormalizeEmail(email)).Scan(&c.Id, &c.Email, &c.Timezone, &c.SyncToken)
	if err != nil {
		return Calendar{}, fmt.Errorf("get or create calendar %s: %w", email, err)
	}
	return c, nil
}

func (r *RepositoryImpl) GetCalendar(ctx context.Context, id int) (Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendar WHERE id = $1`
	return r.scanCalendar(r.getQueryer().QueryRow(ctx, query, id))
}

func (r *RepositoryImpl) GetCalendarByEmail(ctx context.Context, email string) (Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendar WHERE email = $1`
	return r.scanCalendar(r.getQueryer().QueryRow(ctx, query, NormalizeEmail(email)))
}

func (r *RepositoryImpl) scanCalendar(row pgx.Row) (Calendar, error) {
	var c Calendar
	err := row.Scan(&c.Id, &c.Email, &c.Timezone, &c.SyncToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return Calendar{}, ErrCalendarNotFound
	}
	if err != nil {
		return Calendar{}, fmt.Errorf("read calendar: %w", err)
	}
	return c, nil
}

func (r *RepositoryImpl) UpdateTimezone(ctx context.Context, calendarId int, timezone string) error {
	result, err := r.getQueryer().Exec(ctx, `UPDATE calendar SET timezone = $1 WHERE id = $2`, timezone, calendarId)
	if err != nil {
		return fmt.Errorf("update calendar timezone: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCalendarNotFound
	}
	return nil
}

func (r *RepositoryImpl) SetSyncToken(ctx context.Context, calendarId int, token string) error {
	result, err := r.getQueryer().Exec(ctx, `UPDATE calendar SET sync_token = $1 WHERE id = $2`, nullable(token), calendarId)
	if err != nil {
		return fmt.Errorf("update sync token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCalendarNotFound
	}
	return nil
}

func (r *RepositoryImpl) PurgeEvents(ctx context.Context, calendarId int) (int, error) {
	query := `DELETE FROM event WHERE id IN (SELECT event_id FROM event_calendar WHERE calendar_id = $1)`
	result, err := r.getQueryer().Exec(ctx, query, calendarId)
	if err != nil {
		return 0, fmt.Errorf("purge calendar events: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *RepositoryImpl) FindEventByGoogleId(ctx context.Context, googleId string) (Event, error) {
	query := `SELECT id, google_id, organizer_id, status, COALESCE(summary, ''), event_type, all_day, start_time, duration_sec
			  FROM event WHERE google_id = $1`
	var e Event
	var organizerId *int
	var durationSec int64
	err := r.getQueryer().QueryRow(ctx, query, googleId).Scan(
		&e.Id,
		&e.GoogleId,
		&organizerId,
		&e.Status,
		&e.Summary,
		&e.EventType,
		&e.AllDay,
		&e.Start,
		&durationSec,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("find event %s: %w", googleId, err)
	}
	if organizerId != nil {
		e.OrganizerId = *organizerId
	}
	e.Duration = time.Duration(durationSec) * time.Second
	return e, nil
}

func (r *RepositoryImpl) InsertEvent(ctx context.Context, event Event) (Event, error) {
	query := `INSERT INTO event (google_id, organizer_id, status, summary, event_type, all_day, start_time, duration_sec)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := r.getQueryer().QueryRow(ctx, query,
		event.GoogleId,
		nullableId(event.OrganizerId),
		event.Status,
		nullable(event.Summary),
		event.EventType,
		event.AllDay,
		event.Start,
		int64(event.Duration.Seconds()),
	).Scan(&event.Id)
	if err != nil {
		return Event{}, fmt.Errorf("insert event %s: %w", event.GoogleId, err)
	}
	return event, nil
}

func (r *RepositoryImpl) UpdateEvent(ctx context.Context, event Event) error {
	query := `UPDATE event SET organizer_id = $1, status = $2, summary = $3, event_type = $4, all_day = $5,
				start_time = $6, duration_sec = $7
			  WHERE id = $8`
	result, err := r.getQueryer().Exec(ctx, query,
		nullableId(event.OrganizerId),
		event.Status,
		nullable(event.Summary),
		event.EventType,
		event.AllDay,
		event.Start,
		int64(event.Duration.Seconds()),
		event.Id,
	)
	if err != nil {
		return fmt.Errorf("update event %s: %w", event.GoogleId, err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *RepositoryImpl) DeleteEvent(ctx context.Context, eventId int) error {
	result, err := r.getQueryer().Exec(ctx, `DELETE FROM event WHERE id = $1`, eventId)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", eventId, err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *RepositoryImpl) IsAssociated(ctx context.Context, eventId int, calendarId int) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM event_calendar WHERE event_id = $1 AND calendar_id = $2)`
	if err := r.getQueryer().QueryRow(ctx, query, eventId, calendarId).Scan(&exists); err != nil {
		return false, fmt.Errorf("check event association: %w", err)
	}
	return exists, nil
}

func (r *RepositoryImpl) Associate(ctx context.Context, eventId int, calendarId int) error {
	query := `INSERT INTO event_calendar (event_id, calendar_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.getQueryer().Exec(ctx, query, eventId, calendarId); err != nil {
		return fmt.Errorf("associate event %d with calendar %d: %w", eventId, calendarId, err)
	}
	return nil
}

func (r *RepositoryImpl) GetEventCalendarIds(ctx context.Context, eventId int) ([]int, error) {
	rows, err := r.getQueryer().Query(ctx, `SELECT calendar_id FROM event_calendar WHERE event_id = $1 ORDER BY calendar_id`, eventId)
	if err != nil {
		return nil, fmt.Errorf("list event calendars: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("list event calendars: %w", err)
	}
	return ids, nil
}

func (r *RepositoryImpl) ReplaceAttendees(ctx context.Context, eventId int, attendees []Attendee) error {
	if _, err := r.getQueryer().Exec(ctx, `DELETE FROM attendee WHERE event_id = $1`, eventId); err != nil {
		return fmt.Errorf("clear attendees of event %d: %w", eventId, err)
	}
	query := `INSERT INTO attendee (event_id, calendar_id, response_status) VALUES ($1, $2, $3)
			  ON CONFLICT (event_id, calendar_id) DO UPDATE SET response_status = EXCLUDED.response_status`
	for _, a := range attendees {
		if _, err := r.getQueryer().Exec(ctx, query, eventId, a.CalendarId, a.ResponseStatus); err != nil {
			return fmt.Errorf("insert attendee %d of event %d: %w", a.CalendarId, eventId, err)
		}
	}
	return nil
}

func (r *RepositoryImpl) GetAttendees(ctx context.Context, eventId int) ([]Attendee, error) {
	query := `SELECT a.calendar_id, c.email, a.response_status
			  FROM attendee a JOIN calendar c ON c.id = a.calendar_id
			  WHERE a.event_id = $1
			  ORDER BY c.email`
	rows, err := r.getQueryer().Query(ctx, query, eventId)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []Attendee
	for rows.Next() {
		var a Attendee
		if err := rows.Scan(&a.CalendarId, &a.Email, &a.ResponseStatus); err != nil {
			return nil, err
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableId(id int) *int {
	if id == 0 {
		return nil
	}
	return &id
}
