package shared

import "math"

// DefaultPerPage is used when a listing does not request a page size.
const DefaultPerPage = 20

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination computes pagination metadata. Non-positive page and perPage
// fall back to the first page and DefaultPerPage.
func NewPagination(page, perPage int, total int64) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the number of rows before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
