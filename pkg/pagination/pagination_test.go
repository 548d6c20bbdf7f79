package pagination

import (
	"encoding/json"
	"testing"
)

func TestResponse_Decode(t *testing.T) {
	raw := `{"data":[{"id":"a"},{"id":"b"}],"meta":{"total":5}}`
	var r Response[struct {
		ID string `json:"id"`
	}]
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 items, got %d", r.Len())
	}
	if r.Total() != 5 {
		t.Errorf("expected total 5, got %d", r.Total())
	}
	if !r.HasMore() {
		t.Error("expected HasMore with total above page length")
	}
	if r.Data[1].ID != "b" {
		t.Errorf("expected second id b, got %q", r.Data[1].ID)
	}
}

func TestResponse_MissingMeta(t *testing.T) {
	var r Response[int]
	if err := json.Unmarshal([]byte(`{"data":[1,2,3]}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Total() != 3 {
		t.Errorf("expected total to fall back to page length, got %d", r.Total())
	}
	if r.HasMore() {
		t.Error("expected no more items")
	}
}

func TestResponse_Empty(t *testing.T) {
	var r Response[int]
	if !r.Empty() {
		t.Error("zero response should be empty")
	}
	r.Meta.Total = 1
	if r.Empty() {
		t.Error("response with a total should not be empty")
	}
}
