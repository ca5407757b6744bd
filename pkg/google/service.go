package google

import (
	"context"
	"fmt"
	"net/http"

	"github.com/klokku/calaudit/pkg/feed"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CredentialProvider returns an HTTP client authorized as the given user.
type CredentialProvider interface {
	HTTPClient(ctx context.Context, userId int) (*http.Client, error)
}

type Service struct {
	credentials CredentialProvider
	recorder    APIRecorder
	options     []option.ClientOption
}

// NewService builds the provider factory. Extra options are appended to every client, which lets
// tests point the API at a local endpoint.
func NewService(credentials CredentialProvider, recorder APIRecorder, options ...option.ClientOption) *Service {
	return &Service{credentials: credentials, recorder: recorder, options: options}
}

func (s *Service) ForUser(ctx context.Context, userId int) (feed.Provider, error) {
	client, err := s.credentials.HTTPClient(ctx, userId)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.options...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to create Calendar client: %w", err)
		log.Error(err)
		return nil, err
	}
	return NewClient(service, s.recorder), nil
}
