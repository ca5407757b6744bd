package watch_channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	FindByCalendar(ctx context.Context, calendarId int) (Channel, error)
	// Store inserts the channel, replacing any channel the calendar already had.
	Store(ctx context.Context, channel Channel) error
	// Delete removes the channel. Deleting a channel that does not exist is not an error.
	Delete(ctx context.Context, channelId uuid.UUID) error
	DeleteByCalendar(ctx context.Context, calendarId int) error
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) FindByCalendar(ctx context.Context, calendarId int) (Channel, error) {
	query := `SELECT id, resource_id, expiration, calendar_id FROM watch_channel WHERE calendar_id = $1`

	var channel Channel
	err := r.db.QueryRow(ctx, query, calendarId).
		Scan(&channel.Id, &channel.ResourceId, &channel.Expiration, &channel.CalendarId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Channel{}, ErrChannelNotFound
		}
		err := fmt.Errorf("failed to read watch channel of calendar %d: %w", calendarId, err)
		log.Error(err)
		return Channel{}, err
	}
	return channel, nil
}

func (r *RepositoryImpl) Store(ctx context.Context, channel Channel) error {
	query := `INSERT INTO watch_channel (id, resource_id, expiration, calendar_id) VALUES ($1, $2, $3, $4)
			  ON CONFLICT (calendar_id) DO UPDATE SET
				id = EXCLUDED.id,
				resource_id = EXCLUDED.resource_id,
				expiration = EXCLUDED.expiration`

	_, err := r.db.Exec(ctx, query, channel.Id, channel.ResourceId, channel.Expiration, channel.CalendarId)
	if err != nil {
		err := fmt.Errorf("failed to store watch channel %s: %w", channel.Id, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, channelId uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM watch_channel WHERE id = $1`, channelId)
	if err != nil {
		err := fmt.Errorf("failed to delete watch channel %s: %w", channelId, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) DeleteByCalendar(ctx context.Context, calendarId int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM watch_channel WHERE calendar_id = $1`, calendarId)
	if err != nil {
		err := fmt.Errorf("failed to delete watch channel of calendar %d: %w", calendarId, err)
		log.Error(err)
		return err
	}
	return nil
}
