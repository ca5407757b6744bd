package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/klokku/calaudit/internal/utils"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/time_window"
	"github.com/klokku/calaudit/pkg/user"
	log "github.com/sirupsen/logrus"
)

var recruitingKeywords = []string{"recruiting", "interview"}

type Service interface {
	GetReport(ctx context.Context, u user.User, months int, collaborators int) (Report, error)
}

type CalendarReader interface {
	GetCalendar(ctx context.Context, id int) (calendar.Calendar, error)
}

type ServiceImpl struct {
	repo      Repository
	calendars CalendarReader
	clock     utils.Clock
}

func NewService(repo Repository, calendars CalendarReader, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, calendars: calendars, clock: clock}
}

func (s *ServiceImpl) GetReport(ctx context.Context, u user.User, months int, collaborators int) (Report, error) {
	if !u.HasPrimaryCalendar() {
		return Report{}, ErrNoPrimaryCalendar
	}
	cal, err := s.calendars.GetCalendar(ctx, u.PrimaryCalendarId)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read primary calendar of user %d: %w", u.Id, err)
	}
	loc, err := cal.Location()
	if err != nil {
		log.Warnf("calendar %s has unknown timezone %q, reporting in UTC", cal.Email, cal.Timezone)
		loc = time.UTC
	}

	window := time_window.New(s.clock.Now(), loc)
	report := Report{
		CalendarEmail: cal.Email,
		Months:        months,
		From:          window.MonthsBack(months),
		MonthEnd:      window.ThisMonth(),
		WeekEnd:       window.ThisWeek(),
		DayEnd:        window.Today(),
	}

	// the day range covers the two others
	meetings, err := s.repo.GetMeetings(ctx, cal.Id, report.From, report.DayEnd)
	if err != nil {
		return Report{}, err
	}
	log.Tracef("report for %s over %d meetings", cal.Email, len(meetings))

	report.TimePerMonth = monthStats(before(meetings, report.MonthEnd), loc)
	report.MostMeetings, report.FewestMeetings = mostAndFewest(report.TimePerMonth)

	weeks := weekStats(before(meetings, report.WeekEnd), loc)
	report.BusiestWeek, report.LightestWeek = busiestAndLightest(weeks)
	report.AvgMeetingsPerWeek, report.AvgTimePerWeek = weeklyAverages(weeks)

	report.TopCollaborators = topCollaborators(meetings, cal.Email, collaborators)
	report.RecruitingTime = recruitingTime(meetings)
	return report, nil
}

func before(meetings []Meeting, end time.Time) []Meeting {
	result := make([]Meeting, 0, len(meetings))
	for _, m := range meetings {
		if m.Start.Before(end) {
			result = append(result, m)
		}
	}
	return result
}

func monthStats(meetings []Meeting, loc *time.Location) []MonthStats {
	byMonth := map[time.Time]*MonthStats{}
	for _, m := range meetings {
		month := time_window.StartOfMonth(m.Start, loc)
		stats, ok := byMonth[month]
		if !ok {
			stats = &MonthStats{Month: month}
			byMonth[month] = stats
		}
		stats.Meetings++
		stats.Time += m.Duration
	}
	result := make([]MonthStats, 0, len(byMonth))
	for _, stats := range byMonth {
		result = append(result, *stats)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Month.Before(result[j].Month) })
	return result
}

func weekStats(meetings []Meeting, loc *time.Location) []WeekStats {
	byWeek := map[time.Time]*WeekStats{}
	for _, m := range meetings {
		week := time_window.StartOfWeek(m.Start, loc)
		stats, ok := byWeek[week]
		if !ok {
			stats = &WeekStats{WeekStart: week}
			byWeek[week] = stats
		}
		stats.Meetings++
		stats.Time += m.Duration
	}
	result := make([]WeekStats, 0, len(byWeek))
	for _, stats := range byWeek {
		result = append(result, *stats)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WeekStart.Before(result[j].WeekStart) })
	return result
}

// mostAndFewest picks by meeting count. Ties go to the earlier month.
func mostAndFewest(months []MonthStats) (*MonthStats, *MonthStats) {
	if len(months) == 0 {
		return nil, nil
	}
	most, fewest := months[0], months[0]
	for _, m := range months[1:] {
		if m.Meetings > most.Meetings {
			most = m
		}
		if m.Meetings < fewest.Meetings {
			fewest = m
		}
	}
	return &most, &fewest
}

// busiestAndLightest picks by time spent in meetings. Ties go to the earlier week.
func busiestAndLightest(weeks []WeekStats) (*WeekStats, *WeekStats) {
	if len(weeks) == 0 {
		return nil, nil
	}
	busiest, lightest := weeks[0], weeks[0]
	for _, w := range weeks[1:] {
		if w.Time > busiest.Time {
			busiest = w
		}
		if w.Time < lightest.Time {
			lightest = w
		}
	}
	return &busiest, &lightest
}

func weeklyAverages(weeks []WeekStats) (float64, time.Duration) {
	if len(weeks) == 0 {
		return 0, 0
	}
	var meetings int
	var total time.Duration
	for _, w := range weeks {
		meetings += w.Meetings
		total += w.Time
	}
	return float64(meetings) / float64(len(weeks)), total / time.Duration(len(weeks))
}

func topCollaborators(meetings []Meeting, ownEmail string, limit int) []Collaborator {
	ownEmail = calendar.NormalizeEmail(ownEmail)
	counts := map[string]int{}
	for _, m := range meetings {
		for _, email := range m.Attendees {
			if email == ownEmail {
				continue
			}
			counts[email]++
		}
	}
	result := make([]Collaborator, 0, len(counts))
	for email, count := range counts {
		result = append(result, Collaborator{Email: email, Meetings: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Meetings != result[j].Meetings {
			return result[i].Meetings > result[j].Meetings
		}
		return result[i].Email < result[j].Email
	})
	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func recruitingTime(meetings []Meeting) time.Duration {
	var total time.Duration
	for _, m := range meetings {
		summary := strings.ToLower(m.Summary)
		for _, keyword := range recruitingKeywords {
			if strings.Contains(summary, keyword) {
				total += m.Duration
				break
			}
		}
	}
	return total
}
