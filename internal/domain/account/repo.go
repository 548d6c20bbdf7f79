package account

import (
	"context"
	"net/http"

	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// Repository is the account side of the screening API.
type Repository interface {
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	Me(ctx context.Context) (*Profile, error)
	UpdateMe(ctx context.Context, u ProfileUpdate) error
}

// APIRepository implements Repository over the screening API.
type APIRepository struct {
	client *upstream.Client
}

func NewAPIRepository(client *upstream.Client) *APIRepository {
	return &APIRepository{client: client}
}

func (r *APIRepository) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	var out SignInResult
	err := r.client.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *APIRepository) ForgotPassword(ctx context.Context, email string) error {
	return r.client.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   "/auth/forgot-password",
		Body:   map[string]string{"email": email},
	}, nil)
}

func (r *APIRepository) ResetPassword(ctx context.Context, token, password string) error {
	return r.client.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   "/auth/reset-password",
		Body:   map[string]string{"token": token, "password": password},
	}, nil)
}

func (r *APIRepository) Me(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := r.client.Get(ctx, "/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *APIRepository) UpdateMe(ctx context.Context, u ProfileUpdate) error {
	return r.client.Do(ctx, upstream.Request{
		Method: http.MethodPut,
		Path:   "/me",
		Body:   u,
	}, nil)
}
