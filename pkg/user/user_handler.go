package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/klokku/calaudit/internal/rest"
	log "github.com/sirupsen/logrus"
)

type UserDTO struct {
	Uid                string `json:"uid"`
	Username           string `json:"username"`
	DisplayName        string `json:"displayName"`
	HasPrimaryCalendar bool   `json:"hasPrimaryCalendar"`
}

type Handler struct {
	userService Service
}

func NewHandler(userService Service) *Handler {
	return &Handler{
		userService: userService,
	}
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating user")

	var dto UserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}

	createdUser, err := h.userService.CreateUser(r.Context(), User{Username: dto.Username, DisplayName: dto.DisplayName})
	if err != nil {
		if errors.Is(err, ErrUserDataInvalid) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid user data", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to create user", "")
		return
	}
	log.Tracef("Created user: %+v", createdUser)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(userToDTO(createdUser)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	currentUser, err := h.userService.GetCurrentUser(r.Context())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrNoUser) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(userToDTO(currentUser)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func userToDTO(u User) UserDTO {
	return UserDTO{
		Uid:                u.Uid,
		Username:           u.Username,
		DisplayName:        u.DisplayName,
		HasPrimaryCalendar: u.HasPrimaryCalendar(),
	}
}
