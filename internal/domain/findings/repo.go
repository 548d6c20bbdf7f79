package findings

import (
	"context"
	"net/url"

	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// Repository reads findings and the organ/pathology catalog.
type Repository interface {
	Summary(ctx context.Context, scope Scope) ([]Summary, error)
	List(ctx context.Context, scope Scope) ([]Finding, error)
	Organs(ctx context.Context, system catalog.System) ([]Organ, error)
	Pathologies(ctx context.Context, system catalog.System, organ string) ([]Pathology, error)
}

// APIRepository implements Repository over the screening API.
type APIRepository struct {
	client *upstream.Client
	// ActiveOnly restricts pathology listings to active entries.
	ActiveOnly bool
}

func NewAPIRepository(client *upstream.Client) *APIRepository {
	return &APIRepository{client: client}
}

func (r *APIRepository) Summary(ctx context.Context, scope Scope) ([]Summary, error) {
	var out []Summary
	if err := r.client.Get(ctx, "/findings/summary", scope.query(false), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *APIRepository) List(ctx context.Context, scope Scope) ([]Finding, error) {
	var out struct {
		Data []Finding `json:"data"`
	}
	if err := r.client.Get(ctx, "/findings", scope.query(true), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Organs queries by system display name, which is what the API indexes on.
func (r *APIRepository) Organs(ctx context.Context, system catalog.System) ([]Organ, error) {
	var out []Organ
	q := url.Values{"system": {system.Name()}}
	if err := r.client.Get(ctx, "/system/organs", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *APIRepository) Pathologies(ctx context.Context, system catalog.System, organ string) ([]Pathology, error) {
	var out []Pathology
	q := url.Values{"system": {system.Name()}, "organ": {organ}}
	if r.ActiveOnly {
		q.Set("active", "true")
	}
	if err := r.client.Get(ctx, "/system/pathologies", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Scope) query(withPathology bool) url.Values {
	q := url.Values{}
	if s.ReportID != "" {
		q.Set("reportId", s.ReportID)
	}
	if name := s.System.Name(); name != "" {
		q.Set("system", name)
	}
	if s.Organ != "" {
		q.Set("organ", s.Organ)
	}
	if withPathology && s.Pathology != "" {
		q.Set("pathology", s.Pathology)
	}
	return q
}
