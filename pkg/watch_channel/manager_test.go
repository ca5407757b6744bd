package watch_channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/calaudit/internal/event_bus"
	"github.com/klokku/calaudit/internal/utils"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callbackUrl = "https://calaudit.example.com/api/watch/notifications"

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type managerFixture struct {
	repo     *RepositoryStub
	clock    *utils.MockClock
	bus      *event_bus.EventBus
	provider *feed.ProviderStub
	manager  *Manager
	cal      calendar.Calendar
}

func newManagerFixture() managerFixture {
	repo := NewRepositoryStub()
	clock := &utils.MockClock{FixedNow: now}
	bus := event_bus.NewEventBus()
	provider := feed.NewProviderStub()
	provider.Subscription = feed.Subscription{ResourceId: "res-1", ExpirationMillis: now.Add(7 * 24 * time.Hour).UnixMilli()}
	return managerFixture{
		repo:     repo,
		clock:    clock,
		bus:      bus,
		provider: provider,
		manager:  NewManager(repo, clock, bus, callbackUrl, time.Second),
		cal:      calendar.Calendar{Id: 7, Email: "me@example.com", Timezone: "UTC"},
	}
}

// blockingWatcher holds the first Watch call until release is closed.
type blockingWatcher struct {
	*feed.ProviderStub
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *blockingWatcher) Watch(ctx context.Context, calendarId string, req feed.WatchRequest) (feed.Subscription, error) {
	w.once.Do(func() {
		close(w.entered)
		<-w.release
	})
	return w.ProviderStub.Watch(ctx, calendarId, req)
}

func TestChannel_IsValid(t *testing.T) {
	channel := Channel{Expiration: now}

	t.Run("should be valid at the expiration instant", func(t *testing.T) {
		assert.True(t, channel.IsValid(now))
	})
	t.Run("should be invalid right after expiration", func(t *testing.T) {
		assert.False(t, channel.IsValid(now.Add(time.Millisecond)))
	})
}

func TestManager_EnsureChannel(t *testing.T) {
	t.Run("should create channel when none is stored", func(t *testing.T) {
		// given
		f := newManagerFixture()
		var published []event_bus.ChannelCreated
		event_bus.SubscribeTyped(f.bus, event_bus.ChannelCreatedEvent, func(e event_bus.EventT[event_bus.ChannelCreated]) error {
			published = append(published, e.Data)
			return nil
		})

		// when
		channel, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)

		// then
		require.NoError(t, err)
		require.Len(t, f.provider.WatchRequests, 1)
		request := f.provider.WatchRequests[0]
		assert.Equal(t, channel.Id.String(), request.ChannelId)
		assert.Equal(t, callbackUrl, request.CallbackUrl)
		assert.Equal(t, "me@example.com", request.Token)
		assert.Equal(t, "res-1", channel.ResourceId)
		assert.True(t, channel.Expiration.Equal(now.Add(7*24*time.Hour)))
		assert.Equal(t, 7, channel.CalendarId)
		assert.Equal(t, []Channel{channel}, f.repo.Channels())
		require.Len(t, published, 1)
		assert.Equal(t, channel.Id.String(), published[0].ChannelId)
	})

	t.Run("should make no provider call when stored channel is valid", func(t *testing.T) {
		// given
		f := newManagerFixture()
		first, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)
		require.NoError(t, err)

		// when
		second, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)

		// then
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, f.provider.WatchRequests, 1)
		assert.Equal(t, 0, f.repo.Deletes)
	})

	t.Run("should keep channel that expires exactly now", func(t *testing.T) {
		// given
		f := newManagerFixture()
		stored := Channel{Id: uuid.New(), ResourceId: "res-0", Expiration: now, CalendarId: f.cal.Id}
		require.NoError(t, f.repo.Store(context.Background(), stored))

		// when
		channel, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)

		// then
		require.NoError(t, err)
		assert.Equal(t, stored, channel)
		assert.Empty(t, f.provider.WatchRequests)
	})

	t.Run("should replace expired channel with one delete and one create", func(t *testing.T) {
		// given
		f := newManagerFixture()
		expired := Channel{Id: uuid.New(), ResourceId: "res-0", Expiration: now.Add(-time.Minute), CalendarId: f.cal.Id}
		require.NoError(t, f.repo.Store(context.Background(), expired))

		// when
		channel, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, f.repo.Deletes)
		assert.Len(t, f.provider.WatchRequests, 1)
		assert.NotEqual(t, expired.Id, channel.Id)
		assert.Empty(t, f.provider.StopCalls)
		assert.Equal(t, []Channel{channel}, f.repo.Channels())
	})

	t.Run("should report creation failure and store nothing", func(t *testing.T) {
		// given
		f := newManagerFixture()
		f.provider.WatchErr = feed.ErrProviderUnavailable

		// when
		_, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)

		// then
		require.ErrorIs(t, err, ErrChannelCreationFailed)
		assert.ErrorIs(t, err, feed.ErrProviderUnavailable)
		assert.Empty(t, f.repo.Channels())
	})

	t.Run("should skip channel creation without callback url", func(t *testing.T) {
		// given
		f := newManagerFixture()
		manager := NewManager(f.repo, f.clock, f.bus, "", time.Second)

		// when
		channel, err := manager.EnsureChannel(context.Background(), f.provider, f.cal)

		// then
		require.NoError(t, err)
		assert.Equal(t, Channel{}, channel)
		assert.Empty(t, f.provider.WatchRequests)
	})

	t.Run("should create one channel when ensured concurrently", func(t *testing.T) {
		// given
		f := newManagerFixture()
		watcher := &blockingWatcher{ProviderStub: f.provider, entered: make(chan struct{}), release: make(chan struct{})}
		var first, second Channel
		var firstErr, secondErr error
		var wg sync.WaitGroup

		// when
		wg.Add(2)
		go func() {
			defer wg.Done()
			first, firstErr = f.manager.EnsureChannel(context.Background(), watcher, f.cal)
		}()
		<-watcher.entered
		go func() {
			defer wg.Done()
			second, secondErr = f.manager.EnsureChannel(context.Background(), watcher, f.cal)
		}()
		time.Sleep(20 * time.Millisecond)
		close(watcher.release)
		wg.Wait()

		// then
		require.NoError(t, firstErr)
		require.NoError(t, secondErr)
		assert.Len(t, f.provider.WatchRequests, 1)
		assert.Equal(t, first.Id, second.Id)
		assert.Equal(t, 1, f.repo.Stores)
		assert.Len(t, f.repo.Channels(), 1)
	})

	t.Run("should not wait for a different calendar", func(t *testing.T) {
		// given
		f := newManagerFixture()
		watcher := &blockingWatcher{ProviderStub: f.provider, entered: make(chan struct{}), release: make(chan struct{})}
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = f.manager.EnsureChannel(context.Background(), watcher, f.cal)
		}()
		<-watcher.entered
		other := calendar.Calendar{Id: 8, Email: "other@example.com"}

		// when
		channel, err := f.manager.EnsureChannel(context.Background(), watcher, other)

		// then
		require.NoError(t, err)
		assert.Equal(t, 8, channel.CalendarId)
		close(watcher.release)
		<-done
		assert.Len(t, f.repo.Channels(), 2)
	})
}

func TestManager_RenewChannel(t *testing.T) {
	lead := 12 * time.Hour

	t.Run("should replace channel expiring within lead and stop the old one", func(t *testing.T) {
		// given
		f := newManagerFixture()
		old := Channel{Id: uuid.New(), ResourceId: "res-0", Expiration: now.Add(time.Hour), CalendarId: f.cal.Id}
		require.NoError(t, f.repo.Store(context.Background(), old))

		// when
		channel, err := f.manager.RenewChannel(context.Background(), f.provider, f.cal, lead)

		// then
		require.NoError(t, err)
		assert.NotEqual(t, old.Id, channel.Id)
		assert.Equal(t, []Channel{channel}, f.repo.Channels())
		assert.Equal(t, []string{old.Id.String() + "/res-0"}, f.provider.StopCalls)
	})

	t.Run("should keep channel expiring exactly at the end of lead", func(t *testing.T) {
		// given
		f := newManagerFixture()
		stored := Channel{Id: uuid.New(), ResourceId: "res-0", Expiration: now.Add(lead), CalendarId: f.cal.Id}
		require.NoError(t, f.repo.Store(context.Background(), stored))

		// when
		channel, err := f.manager.RenewChannel(context.Background(), f.provider, f.cal, lead)

		// then
		require.NoError(t, err)
		assert.Equal(t, stored, channel)
		assert.Empty(t, f.provider.WatchRequests)
	})

	t.Run("should keep the renewed channel when stopping the old one fails", func(t *testing.T) {
		// given
		f := newManagerFixture()
		old := Channel{Id: uuid.New(), ResourceId: "res-0", Expiration: now.Add(time.Hour), CalendarId: f.cal.Id}
		require.NoError(t, f.repo.Store(context.Background(), old))
		f.provider.StopErr = errors.New("channel not found")

		// when
		channel, err := f.manager.RenewChannel(context.Background(), f.provider, f.cal, lead)

		// then
		require.NoError(t, err)
		assert.Equal(t, []Channel{channel}, f.repo.Channels())
	})

	t.Run("should keep the old channel when the replacement cannot be created", func(t *testing.T) {
		// given
		f := newManagerFixture()
		old := Channel{Id: uuid.New(), ResourceId: "res-0", Expiration: now.Add(time.Hour), CalendarId: f.cal.Id}
		require.NoError(t, f.repo.Store(context.Background(), old))
		f.provider.WatchErr = feed.ErrProviderUnavailable

		// when
		_, err := f.manager.RenewChannel(context.Background(), f.provider, f.cal, lead)

		// then
		require.ErrorIs(t, err, ErrChannelCreationFailed)
		assert.Equal(t, []Channel{old}, f.repo.Channels())
		assert.Empty(t, f.provider.StopCalls)
	})

	t.Run("should leave channel within lead alone when only ensured", func(t *testing.T) {
		// given
		f := newManagerFixture()
		stored := Channel{Id: uuid.New(), ResourceId: "res-0", Expiration: now.Add(time.Hour), CalendarId: f.cal.Id}
		require.NoError(t, f.repo.Store(context.Background(), stored))

		// when
		channel, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)

		// then
		require.NoError(t, err)
		assert.Equal(t, stored, channel)
		assert.Empty(t, f.provider.WatchRequests)
	})
}

func TestManager_Stop(t *testing.T) {
	t.Run("should delete local row and stop provider channel", func(t *testing.T) {
		// given
		f := newManagerFixture()
		channel, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)
		require.NoError(t, err)

		// when
		err = f.manager.Stop(context.Background(), f.provider, channel)

		// then
		require.NoError(t, err)
		assert.Empty(t, f.repo.Channels())
		assert.Equal(t, []string{channel.Id.String() + "/res-1"}, f.provider.StopCalls)
	})

	t.Run("should report provider rejection without retrying", func(t *testing.T) {
		// given
		f := newManagerFixture()
		channel, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)
		require.NoError(t, err)
		f.provider.StopErr = errors.New("channel not found")

		// when
		err = f.manager.Stop(context.Background(), f.provider, channel)

		// then
		require.ErrorIs(t, err, ErrChannelStopFailed)
		assert.Len(t, f.provider.StopCalls, 1)
		assert.Empty(t, f.repo.Channels())
	})

	t.Run("should not panic when stopping an already stopped channel", func(t *testing.T) {
		// given
		f := newManagerFixture()
		channel, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)
		require.NoError(t, err)
		require.NoError(t, f.manager.Stop(context.Background(), f.provider, channel))
		f.provider.StopErr = errors.New("channel not found")

		// when / then
		assert.NotPanics(t, func() {
			err = f.manager.Stop(context.Background(), f.provider, channel)
		})
		assert.ErrorIs(t, err, ErrChannelStopFailed)
	})
}

func TestManager_Unsubscribe(t *testing.T) {
	t.Run("should stop stored channel", func(t *testing.T) {
		// given
		f := newManagerFixture()
		_, err := f.manager.EnsureChannel(context.Background(), f.provider, f.cal)
		require.NoError(t, err)

		// when
		err = f.manager.Unsubscribe(context.Background(), f.provider, f.cal)

		// then
		require.NoError(t, err)
		assert.Empty(t, f.repo.Channels())
		assert.Len(t, f.provider.StopCalls, 1)
	})

	t.Run("should do nothing without stored channel", func(t *testing.T) {
		f := newManagerFixture()

		err := f.manager.Unsubscribe(context.Background(), f.provider, f.cal)

		require.NoError(t, err)
		assert.Empty(t, f.provider.StopCalls)
	})
}
