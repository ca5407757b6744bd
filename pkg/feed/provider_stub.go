package feed

import (
	"context"
	"fmt"
	"sync"
)

// ProviderStub is a scripted in-memory Provider for tests.
type ProviderStub struct {
	mu sync.Mutex

	// Pages are returned in order by ListEvents. An entry with Err set fails that call.
	Pages    []PageResult
	Queries  []ListQuery
	Calendar CalendarInfo

	WatchErr      error
	Subscription  Subscription
	WatchRequests []WatchRequest

	StopErr   error
	StopCalls []string
}

type PageResult struct {
	Page Page
	Err  error
}

func NewProviderStub() *ProviderStub {
	return &ProviderStub{Calendar: CalendarInfo{Id: "me@example.com", Timezone: "UTC"}}
}

func (s *ProviderStub) ListEvents(_ context.Context, _ string, query ListQuery) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, query)
	if len(s.Pages) == 0 {
		return Page{}, fmt.Errorf("unexpected listing call: %w", ErrProviderUnavailable)
	}
	next := s.Pages[0]
	s.Pages = s.Pages[1:]
	return next.Page, next.Err
}

func (s *ProviderStub) Watch(_ context.Context, _ string, req WatchRequest) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WatchRequests = append(s.WatchRequests, req)
	if s.WatchErr != nil {
		return Subscription{}, s.WatchErr
	}
	return s.Subscription, nil
}

func (s *ProviderStub) Stop(_ context.Context, channelId string, resourceId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls = append(s.StopCalls, channelId+"/"+resourceId)
	return s.StopErr
}

func (s *ProviderStub) PrimaryCalendar(_ context.Context) (CalendarInfo, error) {
	return s.Calendar, nil
}

// ProviderFactoryStub hands out the same provider for every user.
type ProviderFactoryStub struct {
	Provider Provider
	Err      error
}

func (f ProviderFactoryStub) ForUser(_ context.Context, _ int) (Provider, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Provider, nil
}
