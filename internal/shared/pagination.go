package shared

import "math"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// ClampPage normalizes page/perPage values: page >= 1, 1 <= perPage <= 100.
func ClampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	return page, perPage
}

// NewPagination computes pagination metadata from clamped inputs.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = ClampPage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
