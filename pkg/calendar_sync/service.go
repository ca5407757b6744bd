package calendar_sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klokku/calaudit/internal/event_bus"
	"github.com/klokku/calaudit/internal/utils"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/klokku/calaudit/pkg/user"
	"github.com/klokku/calaudit/pkg/watch_channel"
	log "github.com/sirupsen/logrus"
)

// ErrSyncFailed means the provider rejected the cursor again after a full resync was started.
var ErrSyncFailed = errors.New("calendar sync failed")

type Result struct {
	CalendarEmail string `json:"calendarEmail"`
	Full          bool   `json:"full"`
	Retried       bool   `json:"retried"`
	Purged        int    `json:"purged"`
	Fetched       int    `json:"fetched"`
	Created       int    `json:"created"`
	Updated       int    `json:"updated"`
	Associated    int    `json:"associated"`
	Deleted       int    `json:"deleted"`
	Ignored       int    `json:"ignored"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	// CursorSaved is false when a failed event kept the cursor in place.
	CursorSaved bool     `json:"cursorSaved"`
	Errors      []string `json:"errors,omitempty"`
}

type Syncer interface {
	Sync(ctx context.Context, u user.User, full bool) (Result, error)
}

type ChannelEnsurer interface {
	EnsureChannel(ctx context.Context, watcher feed.Watcher, cal calendar.Calendar) (watch_channel.Channel, error)
}

type PrimaryCalendarStore interface {
	SetPrimaryCalendar(ctx context.Context, userId int, calendarId int) error
}

type Service struct {
	providers  feed.ProviderFactory
	users      PrimaryCalendarStore
	calendars  calendar.Repository
	channels   ChannelEnsurer
	fetcher    *CursorFetcher
	reconciler *Reconciler
	eventBus   *event_bus.EventBus
	clock      utils.Clock
	locks      *utils.KeyedLocks
}

func NewService(
	providers feed.ProviderFactory,
	users PrimaryCalendarStore,
	calendars calendar.Repository,
	channels ChannelEnsurer,
	fetcher *CursorFetcher,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
) *Service {
	return &Service{
		providers:  providers,
		users:      users,
		calendars:  calendars,
		channels:   channels,
		fetcher:    fetcher,
		reconciler: NewReconciler(calendars),
		eventBus:   eventBus,
		clock:      clock,
		locks:      utils.NewKeyedLocks(),
	}
}

// Sync mirrors the user's primary calendar. A listing rejected with ErrCursorExpired falls back to one full resync.
func (s *Service) Sync(ctx context.Context, u user.User, full bool) (Result, error) {
	started := s.clock.Now()
	result := Result{Full: full}

	provider, err := s.providers.ForUser(ctx, u.Id)
	if err != nil {
		return result, fmt.Errorf("failed to get calendar provider for user %d: %w", u.Id, err)
	}
	calendarId, err := s.primaryCalendarId(ctx, u, provider)
	if err != nil {
		return result, err
	}

	unlock, err := s.locks.Lock(ctx, calendarId)
	if err != nil {
		return result, fmt.Errorf("waiting for sync of calendar %d: %w", calendarId, err)
	}
	defer unlock()

	// read after locking, a concurrent sync may have moved the cursor
	cal, err := s.calendars.GetCalendar(ctx, calendarId)
	if err != nil {
		return result, err
	}
	result.CalendarEmail = cal.Email

	err = s.sync(ctx, provider, cal, full, &result)
	s.publish(ctx, u, result, err, started)
	return result, err
}

func (s *Service) sync(ctx context.Context, provider feed.Provider, cal calendar.Calendar, full bool, result *Result) error {
	if _, err := s.channels.EnsureChannel(ctx, provider, cal); err != nil {
		if errors.Is(err, watch_channel.ErrChannelCreationFailed) {
			log.Warnf("continuing sync of %s without push notifications: %v", cal.Email, err)
		} else {
			log.Errorf("failed to ensure watch channel for %s: %v", cal.Email, err)
		}
	}

	if full {
		purged, err := s.clearCursorAndPurge(ctx, cal)
		if err != nil {
			return err
		}
		result.Purged += purged
		cal.SyncToken = ""
	}

	fetched, err := s.fetcher.Fetch(ctx, provider, cal)
	// one full retry per invocation, whether the rejected listing was incremental or full
	if errors.Is(err, feed.ErrCursorExpired) {
		log.Infof("sync cursor of %s expired, starting full resync", cal.Email)
		result.Retried = true
		purged, purgeErr := s.clearCursorAndPurge(ctx, cal)
		if purgeErr != nil {
			return purgeErr
		}
		result.Purged += purged
		cal.SyncToken = ""
		fetched, err = s.fetcher.Fetch(ctx, provider, cal)
		if errors.Is(err, feed.ErrCursorExpired) {
			return fmt.Errorf("%w: cursor of %s expired again during full resync: %w", ErrSyncFailed, cal.Email, err)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to fetch events of %s: %w", cal.Email, err)
	}
	result.Fetched = len(fetched.Records)

	reconciled := s.reconciler.Reconcile(ctx, cal, fetched.Records)
	result.Created = reconciled.Created
	result.Updated = reconciled.Updated
	result.Associated = reconciled.Associated
	result.Deleted = reconciled.Deleted
	result.Ignored = reconciled.Ignored
	result.Skipped = reconciled.Skipped
	result.Failed = reconciled.Failed
	for _, e := range reconciled.Errors {
		result.Errors = append(result.Errors, e.Error())
	}

	if reconciled.Failed > 0 {
		log.Warnf("sync of %s left cursor unchanged, %d events failed: %v", cal.Email, reconciled.Failed, reconciled.Err())
		return nil
	}
	if fetched.NextSyncToken == "" {
		log.Warnf("provider returned no sync token for %s", cal.Email)
		return nil
	}
	if err := s.calendars.SetSyncToken(ctx, cal.Id, fetched.NextSyncToken); err != nil {
		return fmt.Errorf("failed to save sync cursor of %s: %w", cal.Email, err)
	}
	result.CursorSaved = true
	log.Infof("synced %s: %d created, %d updated, %d associated, %d deleted, %d skipped",
		cal.Email, result.Created, result.Updated, result.Associated, result.Deleted, result.Skipped)
	return nil
}

func (s *Service) clearCursorAndPurge(ctx context.Context, cal calendar.Calendar) (int, error) {
	var purged int
	err := s.calendars.WithTransaction(ctx, func(repo calendar.Repository) error {
		if err := repo.SetSyncToken(ctx, cal.Id, ""); err != nil {
			return err
		}
		var err error
		purged, err = repo.PurgeEvents(ctx, cal.Id)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset calendar %s: %w", cal.Email, err)
	}
	log.Debugf("cleared cursor and purged %d events of %s", purged, cal.Email)
	return purged, nil
}

// primaryCalendarId returns the user's configured calendar, configuring it from the provider on first use.
func (s *Service) primaryCalendarId(ctx context.Context, u user.User, provider feed.Provider) (int, error) {
	if u.HasPrimaryCalendar() {
		return u.PrimaryCalendarId, nil
	}

	info, err := provider.PrimaryCalendar(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read primary calendar of user %d: %w", u.Id, err)
	}
	var cal calendar.Calendar
	err = s.calendars.WithTransaction(ctx, func(repo calendar.Repository) error {
		var err error
		cal, err = repo.GetOrCreateCalendar(ctx, info.Id)
		if err != nil {
			return err
		}
		return repo.UpdateTimezone(ctx, cal.Id, info.Timezone)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to configure primary calendar of user %d: %w", u.Id, err)
	}
	if err := s.users.SetPrimaryCalendar(ctx, u.Id, cal.Id); err != nil {
		return 0, fmt.Errorf("failed to configure primary calendar of user %d: %w", u.Id, err)
	}
	log.Infof("configured primary calendar %s (%s) for user %d", cal.Email, info.Timezone, u.Id)
	return cal.Id, nil
}

func (s *Service) publish(ctx context.Context, u user.User, result Result, err error, started time.Time) {
	if s.eventBus == nil {
		return
	}
	event := event_bus.NewEvent(context.WithoutCancel(ctx), event_bus.SyncCompletedEvent, event_bus.SyncCompleted{
		UserId:        u.Id,
		CalendarEmail: result.CalendarEmail,
		Full:          result.Full,
		Retried:       result.Retried,
		Created:       result.Created,
		Updated:       result.Updated,
		Associated:    result.Associated,
		Deleted:       result.Deleted,
		Skipped:       result.Skipped,
		Failed:        result.Failed,
		Duration:      s.clock.Now().Sub(started),
		Err:           err,
	})
	if pubErr := s.eventBus.Publish(event); pubErr != nil {
		log.Warnf("failed to publish sync completed event: %v", pubErr)
	}
}
