package calendar_sync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klokku/calaudit/internal/rest"
	"github.com/klokku/calaudit/internal/utils"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/klokku/calaudit/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notification(state, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/watch/notifications", nil)
	req.Header.Set("X-Goog-Resource-State", state)
	req.Header.Set("X-Goog-Channel-Token", token)
	req.Header.Set("X-Goog-Channel-Id", "chan-1")
	return req
}

func TestHandler_Notify(t *testing.T) {
	newHandler := func(f syncFixture) *Handler {
		return NewHandler(f.service, user.NewUserService(f.users))
	}

	t.Run("should acknowledge sync ping without syncing", func(t *testing.T) {
		// given
		f := newSyncFixture()
		rec := httptest.NewRecorder()

		// when
		newHandler(f).Notify(rec, notification("sync", "me@example.com"))

		// then
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.provider.Queries)
	})

	t.Run("should ignore other resource states", func(t *testing.T) {
		f := newSyncFixture()
		rec := httptest.NewRecorder()

		newHandler(f).Notify(rec, notification("not_exists", "me@example.com"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.provider.Queries)
	})

	t.Run("should run incremental sync for the calendar owner", func(t *testing.T) {
		// given
		f := newSyncFixture()
		f.provider.Pages = []feed.PageResult{
			page("", "tok-2", timedRecord("evt-1", "2024-03-11T09:00:00Z", "2024-03-11T10:00:00Z")),
		}
		rec := httptest.NewRecorder()

		// when
		newHandler(f).Notify(rec, notification("exists", "Me@Example.com"))

		// then
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, f.provider.Queries, 1)
		assert.Equal(t, "tok-1", f.provider.Queries[0].SyncToken)
		assert.Len(t, f.calendars.Events(), 1)
	})

	t.Run("should acknowledge notification for unknown calendar", func(t *testing.T) {
		f := newSyncFixture()
		rec := httptest.NewRecorder()

		newHandler(f).Notify(rec, notification("exists", "stranger@example.com"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.provider.Queries)
	})

	t.Run("should answer server error when sync fails", func(t *testing.T) {
		// given
		f := newSyncFixture()
		f.provider.Pages = []feed.PageResult{failure(feed.ErrProviderUnavailable)}
		rec := httptest.NewRecorder()

		// when
		newHandler(f).Notify(rec, notification("exists", "me@example.com"))

		// then
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var body rest.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "Calendar sync failed", body.Error)
	})
}

func TestHandler_Sync(t *testing.T) {
	t.Run("should return sync result for current user", func(t *testing.T) {
		// given
		f := newSyncFixture()
		f.provider.Pages = []feed.PageResult{
			page("", "tok-2", timedRecord("evt-1", "2024-03-11T09:00:00Z", "2024-03-11T10:00:00Z")),
		}
		handler := NewHandler(f.service, user.NewUserService(f.users))
		req := httptest.NewRequest(http.MethodPost, "/api/sync?full=true", nil)
		req = req.WithContext(user.WithUser(req.Context(), f.user))
		rec := httptest.NewRecorder()

		// when
		handler.Sync(rec, req)

		// then
		require.Equal(t, http.StatusOK, rec.Code)
		var result Result
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		assert.True(t, result.Full)
		assert.Equal(t, 1, result.Created)
		assert.Equal(t, "", f.provider.Queries[0].SyncToken)
	})

	t.Run("should reject invalid full flag", func(t *testing.T) {
		f := newSyncFixture()
		handler := NewHandler(f.service, user.NewUserService(f.users))
		req := httptest.NewRequest(http.MethodPost, "/api/sync?full=maybe", nil)
		req = req.WithContext(user.WithUser(req.Context(), f.user))
		rec := httptest.NewRecorder()

		handler.Sync(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject request without user", func(t *testing.T) {
		f := newSyncFixture()
		rec := httptest.NewRecorder()

		NewHandler(f.service, user.NewUserService(f.users)).Sync(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("should answer forbidden when google is not connected", func(t *testing.T) {
		// given
		f := newSyncFixture()
		service := NewService(feed.ProviderFactoryStub{Err: feed.ErrUnauthenticated}, f.users, f.calendars, nil,
			NewCursorFetcher(2500, time.Second), nil, utils.SystemClock{})
		req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
		req = req.WithContext(user.WithUser(req.Context(), f.user))
		rec := httptest.NewRecorder()

		// when
		NewHandler(service, user.NewUserService(f.users)).Sync(rec, req)

		// then
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
