package harness

import (
	"sync"

	"github.com/tombee/semroute/pkg/api"
)

// CatalogStub implements the endpoint catalog's server side over scripted
// API groups. Each group is sent as its own batch so clients exercise the
// multi-frame drain path, and every request's email is recorded.
type CatalogStub struct {
	groups []*api.APIGroup

	mu     sync.Mutex
	emails []string
}

// GetAPIGroups streams the scripted groups, one batch per group.
func (s *CatalogStub) GetAPIGroups(req *api.APIGroupsRequest, stream api.APIGroupsServerStream) error {
	s.mu.Lock()
	s.emails = append(s.emails, req.Email)
	s.mu.Unlock()

	for _, group := range s.groups {
		if err := stream.Send(&api.APIGroupsResponse{APIGroups: []*api.APIGroup{group}}); err != nil {
			return err
		}
	}
	return nil
}

// Emails returns a copy of the emails requested so far, in order.
func (s *CatalogStub) Emails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.emails))
	copy(out, s.emails)
	return out
}

// Fetches reports how many catalog requests the stub served.
func (s *CatalogStub) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.emails)
}

// DefaultAPIGroups is the catalog most tests run against: an email sender
// with two required parameters and one optional, and a templated-path user
// lookup in a second group.
func DefaultAPIGroups() []*api.APIGroup {
	return []*api.APIGroup{
		{
			ID:   "comm",
			Name: "Communication",
			Endpoints: []*api.RemoteEndpoint{
				{
					ID:          "send_email",
					Text:        "Send Email",
					Description: "Send an email to a recipient",
					Verb:        "POST",
					Base:        "https://api.example.com",
					Path:        "/email/send",
					Parameters: []*api.RemoteParameter{
						{Name: "to", Description: "recipient address", Required: "true", Alternatives: []string{"recipient", "email"}},
						{Name: "subject", Description: "subject line", Required: "true"},
						{Name: "body", Description: "message body", Required: "false"},
					},
				},
			},
		},
		{
			ID:   "users",
			Name: "Users",
			Endpoints: []*api.RemoteEndpoint{
				{
					ID:          "get_user",
					Text:        "Get User",
					Description: "Fetch a user profile",
					Verb:        "GET",
					Base:        "https://api.example.com",
					Path:        "/users/{user_id}",
					Parameters: []*api.RemoteParameter{
						{Name: "include_inactive", Description: "include deactivated accounts", Required: "false"},
					},
				},
			},
		},
	}
}
