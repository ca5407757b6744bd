package report

import (
	"errors"
	"time"
)

var ErrNoPrimaryCalendar = errors.New("user has no primary calendar")

// Meeting is a timed event of the reported calendar, with the emails of its attendees.
type Meeting struct {
	EventId   int
	Start     time.Time
	Duration  time.Duration
	Summary   string
	Attendees []string
}

type MonthStats struct {
	Month    time.Time
	Meetings int
	Time     time.Duration
}

type WeekStats struct {
	WeekStart time.Time
	Meetings  int
	Time      time.Duration
}

type Collaborator struct {
	Email    string
	Meetings int
}

type Report struct {
	CalendarEmail string
	Months        int
	// From is the first instant covered. Each report ends at the start of this month, this week or today.
	From           time.Time
	MonthEnd       time.Time
	WeekEnd        time.Time
	DayEnd         time.Time
	TimePerMonth   []MonthStats
	MostMeetings   *MonthStats
	FewestMeetings *MonthStats
	BusiestWeek    *WeekStats
	LightestWeek   *WeekStats
	// Averages are taken over weeks that had at least one meeting.
	AvgMeetingsPerWeek float64
	AvgTimePerWeek     time.Duration
	TopCollaborators   []Collaborator
	RecruitingTime     time.Duration
}
