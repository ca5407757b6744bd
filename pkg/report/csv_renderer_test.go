package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationToString(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{name: "zero", duration: 0, want: "0 hrs 0 min"},
		{name: "minutes only", duration: 45 * time.Minute, want: "0 hrs 45 min"},
		{name: "hours and minutes", duration: 5*time.Hour + 30*time.Minute, want: "5 hrs 30 min"},
		{name: "seconds are dropped", duration: 61*time.Minute + 59*time.Second, want: "1 hrs 1 min"},
		{name: "more than a day", duration: 26 * time.Hour, want: "26 hrs 0 min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, durationToString(tt.duration))
		})
	}
}

func TestCsvRendererImpl_Render(t *testing.T) {
	t.Run("should render every section", func(t *testing.T) {
		// given
		january := MonthStats{Month: at(time.January, 1, 0), Meetings: 2, Time: 90 * time.Minute}
		february := MonthStats{Month: at(time.February, 1, 0), Meetings: 1, Time: 2 * time.Hour}
		busiest := WeekStats{WeekStart: at(time.February, 5, 0), Meetings: 1, Time: 2 * time.Hour}
		lightest := WeekStats{WeekStart: at(time.March, 4, 0), Meetings: 1, Time: 45 * time.Minute}
		report := Report{
			CalendarEmail:      "me@example.com",
			Months:             2,
			From:               at(time.January, 1, 0),
			DayEnd:             at(time.March, 13, 0),
			TimePerMonth:       []MonthStats{january, february},
			MostMeetings:       &january,
			FewestMeetings:     &february,
			BusiestWeek:        &busiest,
			LightestWeek:       &lightest,
			AvgMeetingsPerWeek: 4.0 / 3.0,
			AvgTimePerWeek:     85 * time.Minute,
			TopCollaborators:   []Collaborator{{Email: "a@example.com", Meetings: 3}},
			RecruitingTime:     75 * time.Minute,
		}

		// when
		csv, err := NewCsvRenderer().Render(report)

		// then
		require.NoError(t, err)
		want := "Calendar,me@example.com\n" +
			"From,2024-01-01,To,2024-03-13\n" +
			"\n" +
			"Month,Meetings,Time\n" +
			"January 2024,2,1 hrs 30 min\n" +
			"February 2024,1,2 hrs 0 min\n" +
			"\n" +
			"Most meetings,January 2024,2\n" +
			"Fewest meetings,February 2024,1\n" +
			"Busiest week,2024-02-05,2 hrs 0 min\n" +
			"Lightest week,2024-03-04,0 hrs 45 min\n" +
			"Average meetings per week,1.3\n" +
			"Average meeting time per week,1 hrs 25 min\n" +
			"Recruiting time,1 hrs 15 min\n" +
			"\n" +
			"Collaborator,Meetings\n" +
			"a@example.com,3\n"
		assert.Equal(t, want, csv)
	})
}
