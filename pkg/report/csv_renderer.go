package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

type Renderer interface {
	Render(report Report) (string, error)
}

type CsvRendererImpl struct {
}

func NewCsvRenderer() *CsvRendererImpl {
	return &CsvRendererImpl{}
}

func (r *CsvRendererImpl) Render(report Report) (string, error) {
	data := [][]string{
		{"Calendar", report.CalendarEmail},
		{"From", report.From.Format(dateLayout), "To", report.DayEnd.Format(dateLayout)},
		{},
		{"Month", "Meetings", "Time"},
	}
	for _, month := range report.TimePerMonth {
		data = append(data, []string{month.Month.Format("January 2006"), strconv.Itoa(month.Meetings), durationToString(month.Time)})
	}
	data = append(data, []string{})

	if report.MostMeetings != nil {
		data = append(data,
			[]string{"Most meetings", report.MostMeetings.Month.Format("January 2006"), strconv.Itoa(report.MostMeetings.Meetings)},
			[]string{"Fewest meetings", report.FewestMeetings.Month.Format("January 2006"), strconv.Itoa(report.FewestMeetings.Meetings)},
		)
	}
	if report.BusiestWeek != nil {
		data = append(data,
			[]string{"Busiest week", report.BusiestWeek.WeekStart.Format(dateLayout), durationToString(report.BusiestWeek.Time)},
			[]string{"Lightest week", report.LightestWeek.WeekStart.Format(dateLayout), durationToString(report.LightestWeek.Time)},
		)
	}
	data = append(data,
		[]string{"Average meetings per week", strconv.FormatFloat(report.AvgMeetingsPerWeek, 'f', 1, 64)},
		[]string{"Average meeting time per week", durationToString(report.AvgTimePerWeek)},
		[]string{"Recruiting time", durationToString(report.RecruitingTime)},
		[]string{},
		[]string{"Collaborator", "Meetings"},
	)
	for _, c := range report.TopCollaborators {
		data = append(data, []string{c.Email, strconv.Itoa(c.Meetings)})
	}

	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	for _, row := range data {
		if err := writer.Write(row); err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}
	return b.String(), nil
}

const dateLayout = "2006-01-02"

// durationToString renders whole hours and minutes, e.g. "5 hrs 30 min".
func durationToString(duration time.Duration) string {
	minutes := int(duration.Minutes())
	return fmt.Sprintf("%d hrs %d min", minutes/60, minutes%60)
}
