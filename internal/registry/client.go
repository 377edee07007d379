package registry

import (
	"context"
	"errors"
	"fmt"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
	"github.com/felixgeelhaar/ckdreg/internal/graphql"
)

// ErrNoIdentity is returned by Me when the server resolves no user for the
// presented token.
var ErrNoIdentity = errors.New("registry: token did not resolve to a user")

// Doer executes GraphQL requests. *graphql.Client implements it.
type Doer interface {
	Do(ctx context.Context, req graphql.Request, out any) error
}

// Client exposes the registry's GraphQL operations.
type Client struct {
	gql Doer
}

// NewClient creates a registry API client on top of a GraphQL transport.
func NewClient(gql Doer) *Client {
	return &Client{gql: gql}
}

// Me fetches the identity behind the current token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp struct {
		Me *User `json:"me"`
	}
	err := c.gql.Do(ctx, graphql.Request{
		Query:         meQuery,
		OperationName: "Me",
		Policy:        graphql.NetworkOnly,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Me == nil {
		return nil, ErrNoIdentity
	}
	return resp.Me, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthPayload, error) {
	var resp struct {
		Login *AuthPayload `json:"login"`
	}
	err := c.gql.Do(ctx, graphql.Request{
		Query:         loginMutation,
		OperationName: "Login",
		Variables:     map[string]any{"email": email, "password": password},
		Policy:        graphql.NetworkOnly,
	}, &resp)
	if err != nil {
		return nil, regerrors.NewLoginFailedError(email, err)
	}
	if resp.Login == nil || resp.Login.Token == "" {
		return nil, regerrors.NewLoginFailedError(email, fmt.Errorf("server returned no token"))
	}
	return resp.Login, nil
}

// RegisterUser creates an account and returns a token for it.
func (c *Client) RegisterUser(ctx context.Context, in RegisterUserInput) (*AuthPayload, error) {
	var resp struct {
		RegisterUser *AuthPayload `json:"registerUser"`
	}
	err := c.gql.Do(ctx, graphql.Request{
		Query:         registerUserMutation,
		OperationName: "RegisterUser",
		Variables:     map[string]any{"input": in},
		Policy:        graphql.NetworkOnly,
	}, &resp)
	if err != nil {
		return nil, regerrors.NewRegistrationError(in.Email, err)
	}
	if resp.RegisterUser == nil || resp.RegisterUser.Token == "" {
		return nil, regerrors.NewRegistrationError(in.Email, fmt.Errorf("server returned no token"))
	}
	return resp.RegisterUser, nil
}

// RegisterInstitute submits an institute for review. The caller must be
// authenticated as the institute's admin.
func (c *Client) RegisterInstitute(ctx context.Context, in RegisterInstituteInput) (*Institute, error) {
	var resp struct {
		RegisterInstitute *Institute `json:"registerInstitute"`
	}
	err := c.gql.Do(ctx, graphql.Request{
		Query:         registerInstituteMutation,
		OperationName: "RegisterInstitute",
		Variables:     map[string]any{"input": in},
		Policy:        graphql.NetworkOnly,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to register institute %q: %w", in.Name, err)
	}
	if resp.RegisterInstitute == nil {
		return nil, fmt.Errorf("failed to register institute %q: empty response", in.Name)
	}
	return resp.RegisterInstitute, nil
}

// Patients lists patients visible to the current user.
func (c *Client) Patients(ctx context.Context, filter PatientFilter) (*PatientPage, error) {
	vars := map[string]any{}
	if filter.Search != "" {
		vars["search"] = filter.Search
	}
	if filter.Status != "" {
		vars["status"] = filter.Status
	}
	if filter.Limit > 0 {
		vars["limit"] = filter.Limit
	}
	if filter.Offset > 0 {
		vars["offset"] = filter.Offset
	}

	var resp struct {
		Patients *PatientPage `json:"patients"`
	}
	err := c.gql.Do(ctx, graphql.Request{
		Query:         patientsQuery,
		OperationName: "Patients",
		Variables:     vars,
		Policy:        graphql.CacheFirst,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Patients == nil {
		return &PatientPage{}, nil
	}
	return resp.Patients, nil
}
