package watch_channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/klokku/calaudit/pkg/user"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

type UserLister interface {
	GetUsersWithPrimaryCalendar(ctx context.Context) ([]user.User, error)
}

// Renewer replaces expiring channels on a cron schedule, so calendars nobody syncs keep receiving pushes.
type Renewer struct {
	manager   *Manager
	users     UserLister
	calendars calendar.Repository
	providers feed.ProviderFactory
	lead      time.Duration
	cron      *cron.Cron
}

// NewRenewer replaces channels that expire within lead of a renewal run.
func NewRenewer(manager *Manager, users UserLister, calendars calendar.Repository, providers feed.ProviderFactory, lead time.Duration) *Renewer {
	return &Renewer{
		manager:   manager,
		users:     users,
		calendars: calendars,
		providers: providers,
		lead:      lead,
		cron:      cron.New(),
	}
}

// Start schedules RenewAll on a cron schedule, e.g. "@every 6h" or "0 */6 * * *".
func (r *Renewer) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		if err := r.RenewAll(context.Background()); err != nil {
			log.Warnf("watch channel renewal finished with errors: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid channel renewal schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	log.Infof("watch channel renewal scheduled: %s", schedule)
	return nil
}

// Stop halts the schedule and waits for a running renewal to finish or ctx to end.
func (r *Renewer) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RenewAll renews the channel of every user with a primary calendar. A failing user does not stop the others.
func (r *Renewer) RenewAll(ctx context.Context) error {
	users, err := r.users.GetUsersWithPrimaryCalendar(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for channel renewal: %w", err)
	}

	var errs []error
	for _, u := range users {
		if err := r.renew(ctx, u); err != nil {
			log.Errorf("failed to renew watch channel for user %d: %v", u.Id, err)
			errs = append(errs, fmt.Errorf("user %d: %w", u.Id, err))
		}
	}
	log.Debugf("watch channel renewal checked %d users, %d failed", len(users), len(errs))
	return errors.Join(errs...)
}

func (r *Renewer) renew(ctx context.Context, u user.User) error {
	cal, err := r.calendars.GetCalendar(ctx, u.PrimaryCalendarId)
	if err != nil {
		return err
	}
	provider, err := r.providers.ForUser(ctx, u.Id)
	if err != nil {
		return err
	}
	_, err = r.manager.RenewChannel(ctx, provider, cal, r.lead)
	return err
}
