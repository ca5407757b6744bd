package watch_channel

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type RepositoryStub struct {
	mu       sync.Mutex
	channels map[int]Channel // calendarId -> channel

	Deletes int
	Stores  int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{channels: map[int]Channel{}}
}

func (r *RepositoryStub) FindByCalendar(_ context.Context, calendarId int) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	channel, ok := r.channels[calendarId]
	if !ok {
		return Channel{}, ErrChannelNotFound
	}
	return channel, nil
}

func (r *RepositoryStub) Store(_ context.Context, channel Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stores++
	r.channels[channel.CalendarId] = channel
	return nil
}

func (r *RepositoryStub) Delete(_ context.Context, channelId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deletes++
	for calendarId, channel := range r.channels {
		if channel.Id == channelId {
			delete(r.channels, calendarId)
		}
	}
	return nil
}

func (r *RepositoryStub) DeleteByCalendar(_ context.Context, calendarId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deletes++
	delete(r.channels, calendarId)
	return nil
}

func (r *RepositoryStub) Channels() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels := make([]Channel, 0, len(r.channels))
	for _, channel := range r.channels {
		channels = append(channels, channel)
	}
	return channels
}
