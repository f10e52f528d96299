package integration

import (
	"context"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RolesProvider returns role names granted to a subject by the authorization service.
type RolesProvider interface {
	GetRoles(ctx context.Context, subjectID string) ([]string, error)
}

// RolesClient calls the external authorization service.
type RolesClient struct {
	client serviceClient
}

// NewRolesClient builds a client against baseURL.
func NewRolesClient(baseURL, serviceToken string, timeout time.Duration) *RolesClient {
	return &RolesClient{client: newServiceClient(baseURL, serviceToken, timeout)}
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

// GetRoles handles GET /v1/subjects/:id/roles.
func (c *RolesClient) GetRoles(ctx context.Context, subjectID string) ([]string, error) {
	var resp rolesResponse
	if err := c.client.call(ctx, fiber.MethodGet, "/v1/subjects/"+url.PathEscape(subjectID)+"/roles", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Roles == nil {
		return []string{}, nil
	}
	return resp.Roles, nil
}
