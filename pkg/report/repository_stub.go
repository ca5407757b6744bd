package report

import (
	"context"
	"time"
)

type RepositoryStub struct {
	meetings map[int][]Meeting
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{meetings: map[int][]Meeting{}}
}

func (r *RepositoryStub) Add(calendarId int, meetings ...Meeting) {
	r.meetings[calendarId] = append(r.meetings[calendarId], meetings...)
}

func (r *RepositoryStub) GetMeetings(_ context.Context, calendarId int, from time.Time, to time.Time) ([]Meeting, error) {
	var result []Meeting
	for _, m := range r.meetings[calendarId] {
		if !m.Start.Before(from) && m.Start.Before(to) {
			result = append(result, m)
		}
	}
	return result, nil
}
