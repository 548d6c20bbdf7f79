package report

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// Repository reads service requests and their report documents.
type Repository interface {
	ServiceRequest(ctx context.Context, id string) (*ServiceRequest, error)
	PDF(ctx context.Context, id string) (*upstream.Stream, error)
}

// APIRepository implements Repository over the screening API.
type APIRepository struct {
	client *upstream.Client
}

func NewAPIRepository(client *upstream.Client) *APIRepository {
	return &APIRepository{client: client}
}

func (r *APIRepository) ServiceRequest(ctx context.Context, id string) (*ServiceRequest, error) {
	var out ServiceRequest
	if err := r.client.Get(ctx, "/service-requests/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PDF opens the rendered report. The caller must close the stream body.
func (r *APIRepository) PDF(ctx context.Context, id string) (*upstream.Stream, error) {
	return r.client.Open(ctx, upstream.Request{
		Method:  http.MethodGet,
		Path:    "/findings/service-request/" + url.PathEscape(id) + "/report",
		Headers: map[string]string{"Accept": "application/pdf"},
	})
}
