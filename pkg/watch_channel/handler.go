package watch_channel

import (
	"errors"
	"net/http"

	"github.com/klokku/calaudit/internal/rest"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/feed"
	"github.com/klokku/calaudit/pkg/user"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	manager   *Manager
	calendars calendar.Repository
	providers feed.ProviderFactory
}

func NewHandler(manager *Manager, calendars calendar.Repository, providers feed.ProviderFactory) *Handler {
	return &Handler{manager: manager, calendars: calendars, providers: providers}
}

// Unsubscribe stops push notifications for the current user's primary calendar.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currentUser, err := user.CurrentUser(ctx)
	if err != nil {
		http.Error(w, "User not found", http.StatusForbidden)
		return
	}
	if !currentUser.HasPrimaryCalendar() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	cal, err := h.calendars.GetCalendar(ctx, currentUser.PrimaryCalendarId)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to read calendar", "")
		return
	}
	provider, err := h.providers.ForUser(ctx, currentUser.Id)
	if err != nil {
		if errors.Is(err, feed.ErrUnauthenticated) {
			rest.WriteError(w, http.StatusForbidden, "Google Calendar is not connected", "")
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to reach calendar provider", "")
		return
	}

	if err := h.manager.Unsubscribe(ctx, provider, cal); err != nil {
		log.Errorf("failed to unsubscribe %s: %v", cal.Email, err)
		if errors.Is(err, ErrChannelStopFailed) {
			rest.WriteError(w, http.StatusBadGateway, "Provider rejected channel stop", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to unsubscribe", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
