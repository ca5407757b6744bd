package watch_channel

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrChannelNotFound       = errors.New("watch channel not found")
	ErrChannelCreationFailed = errors.New("failed to create watch channel")
	ErrChannelStopFailed     = errors.New("failed to stop watch channel")
)

// Channel is a push subscription registered with the provider for one calendar.
type Channel struct {
	Id         uuid.UUID
	ResourceId string
	Expiration time.Time
	CalendarId int
}

// IsValid reports whether the channel still delivers notifications at now. The expiration instant itself counts as valid.
func (c Channel) IsValid(now time.Time) bool {
	return !c.Expiration.Before(now)
}
