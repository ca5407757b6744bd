package calendar_sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/klokku/calaudit/pkg/time_window"
	log "github.com/sirupsen/logrus"
)

var ErrMalformedEventRecord = errors.New("malformed event record")

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeAssociated
	outcomeDeleted
	outcomeIgnored
)

// ReconcileResult counts what happened to each record of a batch.
type ReconcileResult struct {
	Created    int
	Updated    int
	Associated int
	Deleted    int
	// Ignored records were cancellations of events never stored locally.
	Ignored int
	// Skipped records were malformed and dropped.
	Skipped int
	// Failed records had their transaction rolled back.
	Failed int
	Errors []error
}

func (r ReconcileResult) Err() error {
	return errors.Join(r.Errors...)
}

func (r *ReconcileResult) count(o outcome) {
	switch o {
	case outcomeCreated:
		r.Created++
	case outcomeUpdated:
		r.Updated++
	case outcomeAssociated:
		r.Associated++
	case outcomeDeleted:
		r.Deleted++
	case outcomeIgnored:
		r.Ignored++
	}
}

// Reconciler applies listed records to the local store, one transaction per record.
type Reconciler struct {
	repo calendar.Repository
}

func NewReconciler(repo calendar.Repository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Reconcile applies records in order on behalf of owner. A failing record never stops the batch.
func (r *Reconciler) Reconcile(ctx context.Context, owner calendar.Calendar, records []feed.EventRecord) ReconcileResult {
	loc, err := owner.Location()
	if err != nil {
		log.Warnf("calendar %s has unknown timezone %q, using UTC: %v", owner.Email, owner.Timezone, err)
		loc = time.UTC
	}

	var result ReconcileResult
	for _, record := range records {
		var o outcome
		err := r.repo.WithTransaction(ctx, func(repo calendar.Repository) error {
			var err error
			o, err = reconcileRecord(ctx, repo, owner, loc, record)
			return err
		})
		switch {
		case err == nil:
			result.count(o)
		case errors.Is(err, ErrMalformedEventRecord):
			log.Warnf("skipping event %q of %s: %v", record.Id, owner.Email, err)
			result.Skipped++
			result.Errors = append(result.Errors, err)
		default:
			log.Errorf("failed to reconcile event %q of %s: %v", record.Id, owner.Email, err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("event %s: %w", record.Id, err))
		}
	}
	return result
}

func reconcileRecord(ctx context.Context, repo calendar.Repository, owner calendar.Calendar, loc *time.Location, record feed.EventRecord) (outcome, error) {
	if record.Id == "" {
		return 0, fmt.Errorf("%w: missing id", ErrMalformedEventRecord)
	}

	existing, err := repo.FindEventByGoogleId(ctx, record.Id)
	if err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
		return 0, err
	}
	found := err == nil

	if !found {
		if record.Cancelled() {
			return outcomeIgnored, nil
		}
		return outcomeCreated, createEvent(ctx, repo, owner, loc, record)
	}

	if record.Cancelled() {
		log.Tracef("deleting cancelled event %s", record.Id)
		return outcomeDeleted, repo.DeleteEvent(ctx, existing.Id)
	}

	associated, err := repo.IsAssociated(ctx, existing.Id, owner.Id)
	if err != nil {
		return 0, err
	}
	if !associated {
		// membership only, fields are not refreshed
		return outcomeAssociated, repo.Associate(ctx, existing.Id, owner.Id)
	}
	return outcomeUpdated, updateEvent(ctx, repo, existing, loc, record)
}

func createEvent(ctx context.Context, repo calendar.Repository, owner calendar.Calendar, loc *time.Location, record feed.EventRecord) error {
	event, err := populateEvent(ctx, repo, calendar.Event{GoogleId: record.Id}, loc, record)
	if err != nil {
		return err
	}
	event, err = repo.InsertEvent(ctx, event)
	if err != nil {
		return err
	}
	if err := repo.Associate(ctx, event.Id, owner.Id); err != nil {
		return err
	}
	return replaceAttendees(ctx, repo, event.Id, record.Attendees)
}

func updateEvent(ctx context.Context, repo calendar.Repository, existing calendar.Event, loc *time.Location, record feed.EventRecord) error {
	event, err := populateEvent(ctx, repo, existing, loc, record)
	if err != nil {
		return err
	}
	if err := repo.UpdateEvent(ctx, event); err != nil {
		return err
	}
	return replaceAttendees(ctx, repo, event.Id, record.Attendees)
}

func populateEvent(ctx context.Context, repo calendar.Repository, event calendar.Event, loc *time.Location, record feed.EventRecord) (calendar.Event, error) {
	start, allDay, err := parseEventTime(record.Start, loc)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: start: %w", ErrMalformedEventRecord, err)
	}
	end, _, err := parseEventTime(record.End, loc)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: end: %w", ErrMalformedEventRecord, err)
	}
	duration := end.Sub(start)
	if duration < 0 {
		return calendar.Event{}, fmt.Errorf("%w: end %s is before start %s", ErrMalformedEventRecord, end, start)
	}

	event.Status = record.Status
	event.Summary = record.Summary
	event.EventType = record.EventType
	event.AllDay = allDay
	event.Start = start
	event.Duration = duration
	event.OrganizerId = 0
	if email := calendar.NormalizeEmail(record.OrganizerEmail); email != "" {
		organizer, err := repo.GetOrCreateCalendar(ctx, email)
		if err != nil {
			return calendar.Event{}, err
		}
		event.OrganizerId = organizer.Id
	}
	return event, nil
}

func replaceAttendees(ctx context.Context, repo calendar.Repository, eventId int, records []feed.Attendee) error {
	attendees := make([]calendar.Attendee, 0, len(records))
	for _, a := range records {
		email := calendar.NormalizeEmail(a.Email)
		if email == "" {
			continue
		}
		cal, err := repo.GetOrCreateCalendar(ctx, email)
		if err != nil {
			return err
		}
		attendees = append(attendees, calendar.Attendee{
			CalendarId:     cal.Id,
			Email:          cal.Email,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return repo.ReplaceAttendees(ctx, eventId, attendees)
}

const naiveDateTime = "2006-01-02T15:04:05"

// parseEventTime reads a timed value as RFC3339, keeping its offset, and a date-only value as local midnight in loc.
// A timed value without offset is wall time in loc.
func parseEventTime(t *feed.EventTime, loc *time.Location) (time.Time, bool, error) {
	if t == nil {
		return time.Time{}, false, errors.New("missing")
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			naive, naiveErr := time.ParseInLocation(naiveDateTime, t.DateTime, loc)
			if naiveErr != nil {
				return time.Time{}, false, err
			}
			parsed = naive
		}
		return parsed, false, nil
	}
	if t.Date != "" {
		parsed, err := time_window.LocalMidnight(t.Date, loc)
		if err != nil {
			return time.Time{}, false, err
		}
		return parsed, true, nil
	}
	return time.Time{}, false, errors.New("neither date nor dateTime set")
}
