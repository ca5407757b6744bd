package event_bus

import "time"

const (
	SyncCompletedEvent  EventType = "calendar_sync.completed"
	ChannelCreatedEvent EventType = "watch_channel.created"
)

// SyncCompleted is published after every sync attempt, successful or not.
type SyncCompleted struct {
	UserId        int
	CalendarEmail string
	Full          bool
	// Retried is set when an expired cursor forced a second, full listing.
	Retried    bool
	Created    int
	Updated    int
	Associated int
	Deleted    int
	Skipped    int
	Failed     int
	Duration   time.Duration
	Err        error
}

type ChannelCreated struct {
	CalendarEmail string
	ChannelId     string
	ResourceId    string
	Expiration    time.Time
}
