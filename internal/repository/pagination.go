package repository

// Pagination is the offset/limit window accepted by every list-returning
// query. Ordering is stable across calls given no intervening mutations, so
// consecutive windows compose.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// Normalize clamps the window: negative offsets become 0, non-positive
// limits take the default, oversized limits are capped.
func (p Pagination) Normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// PaginatedResult carries one window of an ordered result set together with
// the total number of matching items.
type PaginatedResult[T any] struct {
	Items         []T  `json:"items"`
	TotalMatching int  `json:"totalMatching"`
	Offset        int  `json:"offset"`
	Limit         int  `json:"limit"`
	HasMore       bool `json:"hasMore"`
}

// Paginate applies the window to a fully materialized ordered result set.
func Paginate[T any](all []T, p Pagination) PaginatedResult[T] {
	p = p.Normalize()
	total := len(all)

	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}

	items := make([]T, end-start)
	copy(items, all[start:end])

	return PaginatedResult[T]{
		Items:         items,
		TotalMatching: total,
		Offset:        p.Offset,
		Limit:         p.Limit,
		HasMore:       end < total,
	}
}
