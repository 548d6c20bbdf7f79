package findings

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// FAQItem is one question/answer pair of the pathology information panel.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PathologyInfo is the educational text shown next to a selected pathology.
type PathologyInfo struct {
	Description string    `json:"description"`
	FAQ         []FAQItem `json:"faq"`
}

// InfoRepository reads pathology information.
type InfoRepository interface {
	PathologyInfo(ctx context.Context, organ, pathology string) (*PathologyInfo, error)
}

// APIInfoRepository implements InfoRepository over the external
// pathologies-data endpoint, which authenticates with a static API key
// instead of the patient's bearer token.
type APIInfoRepository struct {
	client *upstream.Client
	apiKey string
}

func NewAPIInfoRepository(client *upstream.Client, apiKey string) *APIInfoRepository {
	return &APIInfoRepository{client: client, apiKey: apiKey}
}

func (r *APIInfoRepository) PathologyInfo(ctx context.Context, organ, pathology string) (*PathologyInfo, error) {
	if organ == "" {
		organ = "Unknown"
	}
	var out PathologyInfo
	err := r.client.Do(ctx, upstream.Request{
		Method:  http.MethodGet,
		Path:    "/external/pathologies-data",
		Query:   url.Values{"organ": {organ}, "pathology": {pathology}},
		Headers: map[string]string{"api-key": r.apiKey},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
