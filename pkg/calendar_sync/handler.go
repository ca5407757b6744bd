package calendar_sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/klokku/calaudit/internal/rest"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/klokku/calaudit/pkg/user"
	log "github.com/sirupsen/logrus"
)

const (
	resourceStateHeader = "X-Goog-Resource-State"
	channelTokenHeader  = "X-Goog-Channel-Token"

	resourceStateSync   = "sync"
	resourceStateExists = "exists"
)

type UserResolver interface {
	GetUserByPrimaryCalendarEmail(ctx context.Context, email string) (user.User, error)
}

type Handler struct {
	syncer Syncer
	users  UserResolver
}

func NewHandler(syncer Syncer, users UserResolver) *Handler {
	return &Handler{syncer: syncer, users: users}
}

// Notify receives push notifications. The owning user is resolved from the channel token, never from the request session.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	state := r.Header.Get(resourceStateHeader)
	token := r.Header.Get(channelTokenHeader)
	log.Tracef("watch notification: state=%s channel=%s", state, r.Header.Get("X-Goog-Channel-Id"))

	if state == resourceStateSync {
		log.Debugf("watch channel for %s confirmed", token)
		w.WriteHeader(http.StatusOK)
		return
	}
	if state != resourceStateExists {
		log.Debugf("ignoring notification with resource state %q", state)
		w.WriteHeader(http.StatusOK)
		return
	}

	u, err := h.users.GetUserByPrimaryCalendarEmail(r.Context(), token)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			log.Warnf("notification for unknown calendar %q", token)
			w.WriteHeader(http.StatusOK)
			return
		}
		log.Errorf("failed to resolve notification owner %q: %v", token, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to resolve calendar owner", "")
		return
	}

	if _, err := h.syncer.Sync(r.Context(), u, false); err != nil {
		log.Errorf("sync after notification for %s failed: %v", token, err)
		rest.WriteError(w, http.StatusInternalServerError, "Calendar sync failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Sync runs a sync for the current user and returns its result.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil {
		http.Error(w, "User not found", http.StatusForbidden)
		return
	}

	full := false
	if fullParam := r.URL.Query().Get("full"); fullParam != "" {
		full, err = strconv.ParseBool(fullParam)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid full parameter", "full must be true or false")
			return
		}
	}

	result, err := h.syncer.Sync(r.Context(), currentUser, full)
	if err != nil {
		status, message := syncErrorStatus(err)
		rest.WriteError(w, status, message, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func syncErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, feed.ErrUnauthenticated):
		return http.StatusForbidden, "Google Calendar is not connected"
	case errors.Is(err, ErrSyncFailed), errors.Is(err, feed.ErrProviderUnavailable):
		return http.StatusBadGateway, "Calendar provider failed"
	default:
		return http.StatusInternalServerError, "Calendar sync failed"
	}
}
