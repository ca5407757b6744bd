package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/klokku/calaudit/internal/rest"
	"github.com/klokku/calaudit/pkg/calendar_sync"
	"github.com/klokku/calaudit/pkg/user"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMonths        = 3
	defaultCollaborators = 5
	maxMonths            = 36
)

type MonthStatsDTO struct {
	Month    time.Time `json:"month"`
	Meetings int       `json:"meetings"`
	Time     int       `json:"time"`
}

type WeekStatsDTO struct {
	WeekStart time.Time `json:"weekStart"`
	Meetings  int       `json:"meetings"`
	Time      int       `json:"time"`
}

type CollaboratorDTO struct {
	Email    string `json:"email"`
	Meetings int    `json:"meetings"`
}

type ReportDTO struct {
	CalendarEmail      string            `json:"calendarEmail"`
	Months             int               `json:"months"`
	From               time.Time         `json:"from"`
	MonthEnd           time.Time         `json:"monthEnd"`
	WeekEnd            time.Time         `json:"weekEnd"`
	DayEnd             time.Time         `json:"dayEnd"`
	TimePerMonth       []MonthStatsDTO   `json:"timePerMonth"`
	MostMeetings       *MonthStatsDTO    `json:"mostMeetings,omitempty"`
	FewestMeetings     *MonthStatsDTO    `json:"fewestMeetings,omitempty"`
	BusiestWeek        *WeekStatsDTO     `json:"busiestWeek,omitempty"`
	LightestWeek       *WeekStatsDTO     `json:"lightestWeek,omitempty"`
	AvgMeetingsPerWeek float64           `json:"avgMeetingsPerWeek"`
	AvgTimePerWeek     int               `json:"avgTimePerWeek"`
	TopCollaborators   []CollaboratorDTO `json:"topCollaborators"`
	RecruitingTime     int               `json:"recruitingTime"`
}

type UserReader interface {
	GetUser(ctx context.Context, id int) (user.User, error)
}

type Handler struct {
	service     Service
	csvRenderer Renderer
	syncer      calendar_sync.Syncer
	users       UserReader
}

func NewHandler(service Service, csvRenderer Renderer, syncer calendar_sync.Syncer, users UserReader) *Handler {
	return &Handler{service: service, csvRenderer: csvRenderer, syncer: syncer, users: users}
}

// GetReport syncs the current user's calendar, then reports over whatever is mirrored. A failed sync
// does not prevent the report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currentUser, err := user.CurrentUser(ctx)
	if err != nil {
		http.Error(w, "User not found", http.StatusForbidden)
		return
	}

	months, err := intParam(r, "months", defaultMonths)
	if err != nil || months < 1 || months > maxMonths {
		rest.WriteError(w, http.StatusBadRequest, "Invalid months parameter", "months must be between 1 and 36")
		return
	}
	collaborators, err := intParam(r, "collaborators", defaultCollaborators)
	if err != nil || collaborators < 0 {
		rest.WriteError(w, http.StatusBadRequest, "Invalid collaborators parameter", "collaborators must be a positive number")
		return
	}

	if _, err := h.syncer.Sync(ctx, currentUser, false); err != nil {
		log.Warnf("serving report for user %d without fresh sync: %v", currentUser.Id, err)
	}
	// the first sync may have configured the primary calendar
	if refreshed, err := h.users.GetUser(ctx, currentUser.Id); err == nil {
		currentUser = refreshed
	}

	report, err := h.service.GetReport(ctx, currentUser, months, collaborators)
	if err != nil {
		if errors.Is(err, ErrNoPrimaryCalendar) {
			rest.WriteError(w, http.StatusNotFound, "No calendar synchronized yet", "")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.Header.Get("Accept") == "text/csv" {
		csv, err := h.csvRenderer.Render(report)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(csv)); err != nil {
			log.Errorf("failed to write csv report: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toDTO(report)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func intParam(r *http.Request, name string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func toDTO(report Report) ReportDTO {
	dto := ReportDTO{
		CalendarEmail:      report.CalendarEmail,
		Months:             report.Months,
		From:               report.From,
		MonthEnd:           report.MonthEnd,
		WeekEnd:            report.WeekEnd,
		DayEnd:             report.DayEnd,
		TimePerMonth:       make([]MonthStatsDTO, 0, len(report.TimePerMonth)),
		AvgMeetingsPerWeek: report.AvgMeetingsPerWeek,
		AvgTimePerWeek:     int(report.AvgTimePerWeek.Seconds()),
		TopCollaborators:   make([]CollaboratorDTO, 0, len(report.TopCollaborators)),
		RecruitingTime:     int(report.RecruitingTime.Seconds()),
	}
	for _, m := range report.TimePerMonth {
		dto.TimePerMonth = append(dto.TimePerMonth, monthToDTO(m))
	}
	if report.MostMeetings != nil {
		most, fewest := monthToDTO(*report.MostMeetings), monthToDTO(*report.FewestMeetings)
		dto.MostMeetings, dto.FewestMeetings = &most, &fewest
	}
	if report.BusiestWeek != nil {
		busiest, lightest := weekToDTO(*report.BusiestWeek), weekToDTO(*report.LightestWeek)
		dto.BusiestWeek, dto.LightestWeek = &busiest, &lightest
	}
	for _, c := range report.TopCollaborators {
		dto.TopCollaborators = append(dto.TopCollaborators, CollaboratorDTO{Email: c.Email, Meetings: c.Meetings})
	}
	return dto
}

func monthToDTO(m MonthStats) MonthStatsDTO {
	return MonthStatsDTO{Month: m.Month, Meetings: m.Meetings, Time: int(m.Time.Seconds())}
}

func weekToDTO(w WeekStats) WeekStatsDTO {
	return WeekStatsDTO{WeekStart: w.WeekStart, Meetings: w.Meetings, Time: int(w.Time.Seconds())}
}
