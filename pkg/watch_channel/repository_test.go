package watch_channel

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/calaudit/internal/test_utils"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *test_utils.TestDB

func TestMain(m *testing.M) {
	testDB = test_utils.StartTestDB()
	code := m.Run()
	testDB.Terminate()
	os.Exit(code)
}

func TestRepositoryImpl(t *testing.T) {
	expiration := time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)

	t.Run("should store and find channel by calendar", func(t *testing.T) {
		// given
		ctx := context.Background()
		db := testDB.Open(t)
		cal, err := calendar.NewRepository(db).GetOrCreateCalendar(ctx, "me@example.com")
		require.NoError(t, err)
		repo := NewRepository(db)
		channel := Channel{Id: uuid.New(), ResourceId: "res-1", Expiration: expiration, CalendarId: cal.Id}

		// when
		require.NoError(t, repo.Store(ctx, channel))
		found, err := repo.FindByCalendar(ctx, cal.Id)

		// then
		require.NoError(t, err)
		assert.Equal(t, channel.Id, found.Id)
		assert.Equal(t, "res-1", found.ResourceId)
		assert.True(t, expiration.Equal(found.Expiration))
	})

	t.Run("should keep one channel per calendar", func(t *testing.T) {
		// given
		ctx := context.Background()
		db := testDB.Open(t)
		cal, err := calendar.NewRepository(db).GetOrCreateCalendar(ctx, "me@example.com")
		require.NoError(t, err)
		repo := NewRepository(db)
		require.NoError(t, repo.Store(ctx, Channel{Id: uuid.New(), ResourceId: "res-1", Expiration: expiration, CalendarId: cal.Id}))
		replacement := Channel{Id: uuid.New(), ResourceId: "res-2", Expiration: expiration.Add(time.Hour), CalendarId: cal.Id}

		// when
		require.NoError(t, repo.Store(ctx, replacement))
		found, err := repo.FindByCalendar(ctx, cal.Id)

		// then
		require.NoError(t, err)
		assert.Equal(t, replacement.Id, found.Id)
		assert.Equal(t, "res-2", found.ResourceId)
	})

	t.Run("should delete channel idempotently", func(t *testing.T) {
		// given
		ctx := context.Background()
		db := testDB.Open(t)
		cal, err := calendar.NewRepository(db).GetOrCreateCalendar(ctx, "me@example.com")
		require.NoError(t, err)
		repo := NewRepository(db)
		channel := Channel{Id: uuid.New(), ResourceId: "res-1", Expiration: expiration, CalendarId: cal.Id}
		require.NoError(t, repo.Store(ctx, channel))

		// when
		require.NoError(t, repo.Delete(ctx, channel.Id))
		secondErr := repo.Delete(ctx, channel.Id)
		_, findErr := repo.FindByCalendar(ctx, cal.Id)

		// then
		assert.NoError(t, secondErr)
		assert.ErrorIs(t, findErr, ErrChannelNotFound)
	})
}
