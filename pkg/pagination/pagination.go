// Package pagination models the paged list envelope of the screening API:
// {"data": [...], "meta": {"total": N}}.
package pagination

// Meta is the paging block of a list response. Page and Limit are only
// present when the endpoint pages its results.
type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Response is a list response carrying items of type T.
type Response[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

// Len returns the number of items in this page.
func (r *Response[T]) Len() int {
	return len(r.Data)
}

// Total returns the number of items on the server. Responses without a meta
// block report the page length.
func (r *Response[T]) Total() int {
	if r.Meta.Total < len(r.Data) {
		return len(r.Data)
	}
	return r.Meta.Total
}

// HasMore reports whether the server holds items beyond this page.
func (r *Response[T]) HasMore() bool {
	return r.Total() > len(r.Data)
}

// Empty reports whether the list has no items at all.
func (r *Response[T]) Empty() bool {
	return r.Total() == 0
}
