package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// GetMeetings returns the calendar's timed events starting in [from, to), ordered by start.
	GetMeetings(ctx context.Context, calendarId int, from time.Time, to time.Time) ([]Meeting, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetMeetings(ctx context.Context, calendarId int, from time.Time, to time.Time) ([]Meeting, error) {
	query := `
		SELECT e.id, e.start_time, e.duration_sec, COALESCE(e.summary, ''),
			COALESCE(array_agg(c.email ORDER BY c.email) FILTER (WHERE c.email IS NOT NULL), '{}')
		FROM event e
			JOIN event_calendar ec ON ec.event_id = e.id AND ec.calendar_id = $1
			LEFT JOIN attendee a ON a.event_id = e.id
			LEFT JOIN calendar c ON c.id = a.calendar_id
		WHERE e.all_day = false AND e.start_time >= $2 AND e.start_time < $3
		GROUP BY e.id
		ORDER BY e.start_time, e.id`

	rows, err := r.db.Query(ctx, query, calendarId, from, to)
	if err != nil {
		err := fmt.Errorf("could not query meetings: %w", err)
		log.Error(err)
		return nil, err
	}

	meetings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Meeting, error) {
		var m Meeting
		var durationSec int64
		err := row.Scan(&m.EventId, &m.Start, &durationSec, &m.Summary, &m.Attendees)
		m.Duration = time.Duration(durationSec) * time.Second
		return m, err
	})
	if err != nil {
		err := fmt.Errorf("could not read meetings: %w", err)
		log.Error(err)
		return nil, err
	}
	return meetings, nil
}
