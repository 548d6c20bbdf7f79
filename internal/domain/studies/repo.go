package studies

import (
	"context"

	"github.com/kaiprevention/portal/internal/platform/upstream"
	"github.com/kaiprevention/portal/pkg/pagination"
)

// Repository lists the signed-in patient's studies.
type Repository interface {
	List(ctx context.Context) (*pagination.Response[Study], error)
}

// APIRepository implements Repository over GET /studies.
type APIRepository struct {
	client *upstream.Client
}

func NewAPIRepository(client *upstream.Client) *APIRepository {
	return &APIRepository{client: client}
}

func (r *APIRepository) List(ctx context.Context) (*pagination.Response[Study], error) {
	var out pagination.Response[Study]
	if err := r.client.Get(ctx, "/studies", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
