package search

// CalculateTotalPages returns ceil(totalItems / pageSize), or 0 when there
// are no items. A non-positive page size counts as DefaultPageSize.
func CalculateTotalPages(totalItems, pageSize int) int {
	if totalItems <= 0 {
		return 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return (totalItems + pageSize - 1) / pageSize
}

// ValidatePageNumber clamps page into [1, max(totalPages, 1)].
func ValidatePageNumber(page, totalPages int) int {
	upper := max(totalPages, 1)
	return min(max(page, 1), upper)
}

// normalize returns p with a positive page size, non-negative totals and a
// page clamped into [1, max(TotalPages, 1)].
func (p Pagination) normalize() Pagination {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.TotalItems < 0 {
		p.TotalItems = 0
	}
	if p.TotalPages < 0 {
		p.TotalPages = 0
	}
	p.Page = ValidatePageNumber(p.Page, p.TotalPages)
	return p
}

// WithTotals returns p updated with the totals of a response. TotalPages is
// recomputed from totalItems and the page size, and the page is clamped.
func (p Pagination) WithTotals(totalItems int) Pagination {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	p.TotalItems = max(totalItems, 0)
	p.TotalPages = CalculateTotalPages(p.TotalItems, p.PageSize)
	p.Page = ValidatePageNumber(p.Page, p.TotalPages)
	return p
}
