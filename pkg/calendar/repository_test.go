package calendar

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/klokku/calaudit/internal/test_utils"
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

func setupTestRepository(t *testing.T) (context.Context, *RepositoryImpl) {
	return context.Background(), NewRepository(testDB.Open(t))
}

func sampleEvent(googleId string) Event {
	return Event{
		GoogleId:  googleId,
		Status:    "confirmed",
		Summary:   "Planning",
		EventType: "default",
		Start:     time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
		Duration:  45 * time.Minute,
	}
}

func TestRepositoryImpl_GetOrCreateCalendar(t *testing.T) {
	t.Run("should return the same calendar for the same email", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		created, err := repo.GetOrCreateCalendar(ctx, "Alice@Example.com")
		require.NoError(t, err)

		// when
		found, err := repo.GetOrCreateCalendar(ctx, "alice@example.com ")

		// then
		require.NoError(t, err)
		assert.Equal(t, created.Id, found.Id)
		assert.Equal(t, "alice@example.com", found.Email)
	})

	t.Run("should not create duplicates under concurrent calls", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		ids := make([]int, 10)
		var wg sync.WaitGroup

		// when
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, err := repo.GetOrCreateCalendar(ctx, "bob@example.com")
				assert.NoError(t, err)
				ids[i] = c.Id
			}(i)
		}
		wg.Wait()

		// then
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})
}

func TestRepositoryImpl_SyncToken(t *testing.T) {
	t.Run("should store and clear sync token", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		c, err := repo.GetOrCreateCalendar(ctx, "me@example.com")
		require.NoError(t, err)

		// when
		require.NoError(t, repo.SetSyncToken(ctx, c.Id, "token-1"))
		stored, err := repo.GetCalendar(ctx, c.Id)
		require.NoError(t, err)
		require.NoError(t, repo.SetSyncToken(ctx, c.Id, ""))
		cleared, err := repo.GetCalendar(ctx, c.Id)
		require.NoError(t, err)

		// then
		assert.Equal(t, "token-1", stored.SyncToken)
		assert.Equal(t, "", cleared.SyncToken)
	})

	t.Run("should report missing calendar", func(t *testing.T) {
		ctx, repo := setupTestRepository(t)

		err := repo.SetSyncToken(ctx, 999, "token")

		require.ErrorIs(t, err, ErrCalendarNotFound)
	})
}

func TestRepositoryImpl_Events(t *testing.T) {
	t.Run("should insert, find and update event", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		organizer, err := repo.GetOrCreateCalendar(ctx, "boss@example.com")
		require.NoError(t, err)
		event := sampleEvent("g-1")
		event.OrganizerId = organizer.Id

		// when
		inserted, err := repo.InsertEvent(ctx, event)
		require.NoError(t, err)
		inserted.Summary = "Planning (moved)"
		inserted.Duration = time.Hour
		require.NoError(t, repo.UpdateEvent(ctx, inserted))
		found, err := repo.FindEventByGoogleId(ctx, "g-1")

		// then
		require.NoError(t, err)
		assert.True(t, inserted.SameFields(found), "expected %+v, got %+v", inserted, found)
	})

	t.Run("should keep empty summary and missing organizer", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		event := sampleEvent("g-2")
		event.Summary = ""

		// when
		_, err := repo.InsertEvent(ctx, event)
		require.NoError(t, err)
		found, err := repo.FindEventByGoogleId(ctx, "g-2")

		// then
		require.NoError(t, err)
		assert.Equal(t, "", found.Summary)
		assert.Equal(t, 0, found.OrganizerId)
	})

	t.Run("should return not found for unknown google id", func(t *testing.T) {
		ctx, repo := setupTestRepository(t)

		_, err := repo.FindEventByGoogleId(ctx, "missing")

		require.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("should cascade associations and attendees on delete", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		owner, _ := repo.GetOrCreateCalendar(ctx, "me@example.com")
		guest, _ := repo.GetOrCreateCalendar(ctx, "guest@example.com")
		event, err := repo.InsertEvent(ctx, sampleEvent("g-3"))
		require.NoError(t, err)
		require.NoError(t, repo.Associate(ctx, event.Id, owner.Id))
		require.NoError(t, repo.ReplaceAttendees(ctx, event.Id, []Attendee{{CalendarId: guest.Id, ResponseStatus: "accepted"}}))

		// when
		err = repo.DeleteEvent(ctx, event.Id)

		// then
		require.NoError(t, err)
		calendarIds, err := repo.GetEventCalendarIds(ctx, event.Id)
		require.NoError(t, err)
		assert.Empty(t, calendarIds)
		attendees, err := repo.GetAttendees(ctx, event.Id)
		require.NoError(t, err)
		assert.Empty(t, attendees)
	})
}

func TestRepositoryImpl_Associations(t *testing.T) {
	t.Run("should associate event idempotently", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		owner, _ := repo.GetOrCreateCalendar(ctx, "me@example.com")
		event, err := repo.InsertEvent(ctx, sampleEvent("g-1"))
		require.NoError(t, err)

		// when
		require.NoError(t, repo.Associate(ctx, event.Id, owner.Id))
		require.NoError(t, repo.Associate(ctx, event.Id, owner.Id))
		associated, err := repo.IsAssociated(ctx, event.Id, owner.Id)

		// then
		require.NoError(t, err)
		assert.True(t, associated)
		ids, err := repo.GetEventCalendarIds(ctx, event.Id)
		require.NoError(t, err)
		assert.Equal(t, []int{owner.Id}, ids)
	})

	t.Run("should purge only events associated with calendar", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		mine, _ := repo.GetOrCreateCalendar(ctx, "me@example.com")
		theirs, _ := repo.GetOrCreateCalendar(ctx, "them@example.com")
		e1, _ := repo.InsertEvent(ctx, sampleEvent("g-1"))
		e2, _ := repo.InsertEvent(ctx, sampleEvent("g-2"))
		require.NoError(t, repo.Associate(ctx, e1.Id, mine.Id))
		require.NoError(t, repo.Associate(ctx, e2.Id, theirs.Id))

		// when
		purged, err := repo.PurgeEvents(ctx, mine.Id)

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, purged)
		_, err = repo.FindEventByGoogleId(ctx, "g-1")
		assert.ErrorIs(t, err, ErrEventNotFound)
		_, err = repo.FindEventByGoogleId(ctx, "g-2")
		assert.NoError(t, err)
	})
}

func TestRepositoryImpl_ReplaceAttendees(t *testing.T) {
	t.Run("should replace attendee set instead of merging", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		a, _ := repo.GetOrCreateCalendar(ctx, "a@example.com")
		b, _ := repo.GetOrCreateCalendar(ctx, "b@example.com")
		c, _ := repo.GetOrCreateCalendar(ctx, "c@example.com")
		event, _ := repo.InsertEvent(ctx, sampleEvent("g-1"))
		require.NoError(t, repo.ReplaceAttendees(ctx, event.Id, []Attendee{
			{CalendarId: a.Id, ResponseStatus: "accepted"},
			{CalendarId: b.Id, ResponseStatus: "needsAction"},
		}))

		// when
		err := repo.ReplaceAttendees(ctx, event.Id, []Attendee{
			{CalendarId: b.Id, ResponseStatus: "accepted"},
			{CalendarId: c.Id, ResponseStatus: "declined"},
		})

		// then
		require.NoError(t, err)
		attendees, err := repo.GetAttendees(ctx, event.Id)
		require.NoError(t, err)
		assert.Equal(t, []Attendee{
			{CalendarId: b.Id, Email: "b@example.com", ResponseStatus: "accepted"},
			{CalendarId: c.Id, Email: "c@example.com", ResponseStatus: "declined"},
		}, attendees)
	})
}

func TestRepositoryImpl_WithTransaction(t *testing.T) {
	t.Run("should roll back every change when the function fails", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		failure := errors.New("boom")

		// when
		err := repo.WithTransaction(ctx, func(tx Repository) error {
			owner, err := tx.GetOrCreateCalendar(ctx, "me@example.com")
			require.NoError(t, err)
			event, err := tx.InsertEvent(ctx, sampleEvent("g-1"))
			require.NoError(t, err)
			require.NoError(t, tx.Associate(ctx, event.Id, owner.Id))
			return failure
		})

		// then
		require.ErrorIs(t, err, failure)
		_, err = repo.FindEventByGoogleId(ctx, "g-1")
		assert.ErrorIs(t, err, ErrEventNotFound)
		_, err = repo.GetCalendarByEmail(ctx, "me@example.com")
		assert.ErrorIs(t, err, ErrCalendarNotFound)
	})

	t.Run("should commit when the function succeeds", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)

		// when
		err := repo.WithTransaction(ctx, func(tx Repository) error {
			_, err := tx.InsertEvent(ctx, sampleEvent("g-1"))
			return err
		})

		// then
		require.NoError(t, err)
		_, err = repo.FindEventByGoogleId(ctx, "g-1")
		assert.NoError(t, err)
	})
}
