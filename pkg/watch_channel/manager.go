package watch_channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/calaudit/internal/event_bus"
	"github.com/klokku/calaudit/internal/utils"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	log "github.com/sirupsen/logrus"
)

// Manager keeps at most one live push channel per calendar.
type Manager struct {
	repo        Repository
	clock       utils.Clock
	eventBus    *event_bus.EventBus
	callbackUrl string
	timeout     time.Duration
	locks       *utils.KeyedLocks
}

func NewManager(repo Repository, clock utils.Clock, eventBus *event_bus.EventBus, callbackUrl string, timeout time.Duration) *Manager {
	return &Manager{
		repo:        repo,
		clock:       clock,
		eventBus:    eventBus,
		callbackUrl: callbackUrl,
		timeout:     timeout,
		locks:       utils.NewKeyedLocks(),
	}
}

// EnsureChannel returns the calendar's channel, creating a new one when none is stored or the stored one expired.
// Expired channels are replaced, never renewed in place. Without a callback URL no channel is created.
func (m *Manager) EnsureChannel(ctx context.Context, watcher feed.Watcher, cal calendar.Calendar) (Channel, error) {
	if m.callbackUrl == "" {
		log.Debugf("webhook url not configured, skipping watch channel for %s", cal.Email)
		return Channel{}, nil
	}

	unlock, err := m.locks.Lock(ctx, cal.Id)
	if err != nil {
		return Channel{}, err
	}
	defer unlock()

	existing, err := m.repo.FindByCalendar(ctx, cal.Id)
	switch {
	case err == nil && existing.IsValid(m.clock.Now()):
		log.Tracef("watch channel %s for %s is valid until %s", existing.Id, cal.Email, existing.Expiration)
		return existing, nil
	case err == nil:
		log.Debugf("watch channel %s for %s expired at %s, replacing", existing.Id, cal.Email, existing.Expiration)
		if err := m.repo.Delete(ctx, existing.Id); err != nil {
			return Channel{}, err
		}
	case !errors.Is(err, ErrChannelNotFound):
		return Channel{}, err
	}

	return m.create(ctx, watcher, cal)
}

// RenewChannel replaces the calendar's channel when it expires within lead, so pushes keep flowing across the
// expiration. The new channel is stored before the old one is stopped at the provider.
func (m *Manager) RenewChannel(ctx context.Context, watcher feed.Watcher, cal calendar.Calendar, lead time.Duration) (Channel, error) {
	if m.callbackUrl == "" {
		log.Debugf("webhook url not configured, skipping watch channel for %s", cal.Email)
		return Channel{}, nil
	}

	unlock, err := m.locks.Lock(ctx, cal.Id)
	if err != nil {
		return Channel{}, err
	}
	defer unlock()

	existing, err := m.repo.FindByCalendar(ctx, cal.Id)
	if errors.Is(err, ErrChannelNotFound) {
		return m.create(ctx, watcher, cal)
	}
	if err != nil {
		return Channel{}, err
	}
	if existing.IsValid(m.clock.Now().Add(lead)) {
		log.Tracef("watch channel %s for %s is valid until %s", existing.Id, cal.Email, existing.Expiration)
		return existing, nil
	}

	log.Debugf("watch channel %s for %s expires at %s, renewing", existing.Id, cal.Email, existing.Expiration)
	channel, err := m.create(ctx, watcher, cal)
	if err != nil {
		return Channel{}, err
	}
	if err := watcher.Stop(ctx, existing.Id.String(), existing.ResourceId); err != nil {
		log.Warnf("failed to stop replaced watch channel %s: %v", existing.Id, err)
	}
	return channel, nil
}

func (m *Manager) create(ctx context.Context, watcher feed.Watcher, cal calendar.Calendar) (Channel, error) {
	channelId := uuid.New()
	callCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	subscription, err := watcher.Watch(callCtx, cal.Email, feed.WatchRequest{
		ChannelId:   channelId.String(),
		CallbackUrl: m.callbackUrl,
		Token:       cal.Email,
	})
	if err != nil {
		return Channel{}, fmt.Errorf("%w for %s: %w", ErrChannelCreationFailed, cal.Email, err)
	}

	channel := Channel{
		Id:         channelId,
		ResourceId: subscription.ResourceId,
		Expiration: subscription.Expiration(),
		CalendarId: cal.Id,
	}
	if err := m.repo.Store(ctx, channel); err != nil {
		return Channel{}, err
	}
	log.Infof("created watch channel %s for %s, expires at %s", channel.Id, cal.Email, channel.Expiration)

	if m.eventBus != nil {
		event := event_bus.NewEvent(ctx, event_bus.ChannelCreatedEvent, event_bus.ChannelCreated{
			CalendarEmail: cal.Email,
			ChannelId:     channel.Id.String(),
			ResourceId:    channel.ResourceId,
			Expiration:    channel.Expiration,
		})
		if err := m.eventBus.Publish(event); err != nil {
			log.Warnf("failed to publish channel created event: %v", err)
		}
	}
	return channel, nil
}

// Stop forgets the channel locally, then asks the provider to stop delivering. A provider rejection is
// reported as ErrChannelStopFailed and not retried.
func (m *Manager) Stop(ctx context.Context, watcher feed.Watcher, channel Channel) error {
	if err := m.repo.Delete(ctx, channel.Id); err != nil {
		return err
	}
	if err := watcher.Stop(ctx, channel.Id.String(), channel.ResourceId); err != nil {
		return fmt.Errorf("%w %s: %w", ErrChannelStopFailed, channel.Id, err)
	}
	log.Infof("stopped watch channel %s", channel.Id)
	return nil
}

// Unsubscribe stops the calendar's channel if it has one.
func (m *Manager) Unsubscribe(ctx context.Context, watcher feed.Watcher, cal calendar.Calendar) error {
	unlock, err := m.locks.Lock(ctx, cal.Id)
	if err != nil {
		return err
	}
	defer unlock()

	channel, err := m.repo.FindByCalendar(ctx, cal.Id)
	if errors.Is(err, ErrChannelNotFound) {
		log.Debugf("no watch channel for %s", cal.Email)
		return nil
	}
	if err != nil {
		return err
	}
	return m.Stop(ctx, watcher, channel)
}
